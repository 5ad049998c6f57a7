// Package trlg implements the engine capability for the TRLG board game.
//
// The rules here are a reduced cut of the full board game: turn rotation,
// movement, property purchase and liquidation, and the lotto minigame, enough
// to drive the session runtime end to end. Encounter effects that need the
// full rule set resolve as simple bookkeeping.
package trlg

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/Honey-Be/trlg-statemachine/internal/game/engine"
)

const (
	boardSize       = 40
	startingCash    = 1_000_000
	passStartSalary = 200_000
	lottoStake      = 50_000
)

// Game state labels exposed through Context.State.
const (
	phaseAwaitRoll   = "awaitRoll"
	phaseAwaitAction = "awaitAction"
	phaseLotto       = "lotto"
)

// ErrEventNotAllowed reports an event that is invalid in the current phase.
var ErrEventNotAllowed = errors.New("event not allowed in current phase")

// Engine is the TRLG variant of the engine capability.
type Engine struct {
	roll func() int // returns a die face 1..6
}

// Option configures an Engine.
type Option func(*Engine)

// WithRoll injects a die roll function. Tests use this to make outcomes
// deterministic.
func WithRoll(roll func() int) Option {
	return func(e *Engine) {
		e.roll = roll
	}
}

// New creates a TRLG engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		roll: func() int { return rand.Intn(6) + 1 },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type gameContext struct {
	Phase          string                            `json:"state"`
	PlayerAccounts [engine.PlayerSlots]string        `json:"playerAccounts"`
	Turn           int                               `json:"turn"`
	Positions      [engine.PlayerSlots]int           `json:"positions"`
	Cash           [engine.PlayerSlots]int64         `json:"cash"`
	Tickets        [engine.PlayerSlots]int           `json:"tickets"`
	Owners         map[string]int                    `json:"owners"`
	LastRoll       [2]int                            `json:"lastRoll"`
	LottoPot       int64                             `json:"lottoPot"`
	TargetGroup    string                            `json:"targetGroup,omitempty"`
	TargetLocation int                               `json:"targetLocation"`
	NoticePending  bool                              `json:"noticePending"`
}

func (c *gameContext) State() string {
	return c.Phase
}

func (c *gameContext) NowPlayerAccount() string {
	return c.PlayerAccounts[c.Turn]
}

func (c *gameContext) clone() *gameContext {
	next := *c
	next.Owners = make(map[string]int, len(c.Owners))
	for location, owner := range c.Owners {
		next.Owners[location] = owner
	}
	return &next
}

// advanceTurn moves to the next claimed seat. Empty seats are skipped so a
// two-player session rotates between slots 0 and 1.
func (c *gameContext) advanceTurn() {
	for i := 1; i <= engine.PlayerSlots; i++ {
		candidate := (c.Turn + i) % engine.PlayerSlots
		if c.PlayerAccounts[candidate] != "" {
			c.Turn = candidate
			return
		}
	}
}

func locationKey(location int) string {
	return fmt.Sprintf("%d", location)
}

// NewContext creates the starting context for a fresh session.
func (e *Engine) NewContext(playerAccounts [engine.PlayerSlots]string) engine.Context {
	ctx := &gameContext{
		Phase:          phaseAwaitRoll,
		PlayerAccounts: playerAccounts,
		Owners:         make(map[string]int),
		TargetLocation: -1,
	}
	for slot := range ctx.Cash {
		ctx.Cash[slot] = startingCash
		ctx.Tickets[slot] = 1
	}
	return ctx
}

// ApplyEvent advances the context by one event, returning a replacement
// context. The input context is never mutated.
func (e *Engine) ApplyEvent(gameCtx engine.Context, event engine.Event) (engine.Context, error) {
	current, ok := gameCtx.(*gameContext)
	if !ok {
		return nil, fmt.Errorf("context does not belong to the trlg engine: %T", gameCtx)
	}
	next := current.clone()

	switch ev := event.(type) {
	case engine.RollDice:
		if next.Phase != phaseAwaitRoll {
			return nil, fmt.Errorf("rollDice in %s: %w", next.Phase, ErrEventNotAllowed)
		}
		first, second := e.roll(), e.roll()
		next.LastRoll = [2]int{first, second}
		position := next.Positions[next.Turn] + first + second
		if position >= boardSize {
			position -= boardSize
			next.Cash[next.Turn] += passStartSalary
		}
		next.Positions[next.Turn] = position
		next.Phase = phaseAwaitAction

	case engine.Purchase:
		if next.Phase != phaseAwaitAction {
			return nil, fmt.Errorf("purchase in %s: %w", next.Phase, ErrEventNotAllowed)
		}
		if ev.Amount <= 0 || ev.Amount > next.Cash[next.Turn] {
			return nil, fmt.Errorf("purchase amount %d: %w", ev.Amount, ErrEventNotAllowed)
		}
		next.Cash[next.Turn] -= ev.Amount
		next.Owners[locationKey(next.Positions[next.Turn])] = next.Turn

	case engine.Sell:
		if next.Phase != phaseAwaitAction {
			return nil, fmt.Errorf("sell in %s: %w", next.Phase, ErrEventNotAllowed)
		}
		for _, target := range ev.Targets {
			key := locationKey(target.Location)
			owner, owned := next.Owners[key]
			if !owned || owner != next.Turn {
				return nil, fmt.Errorf("sell location %d not owned: %w", target.Location, ErrEventNotAllowed)
			}
			delete(next.Owners, key)
			next.Cash[next.Turn] += target.Amount
		}

	case engine.StartLotto:
		if next.Phase != phaseAwaitAction {
			return nil, fmt.Errorf("startLotto in %s: %w", next.Phase, ErrEventNotAllowed)
		}
		stake := int64(lottoStake)
		if ev.UseDoubleLottoTicket {
			stake *= 2
		}
		if stake > next.Cash[next.Turn] {
			return nil, fmt.Errorf("lotto stake %d: %w", stake, ErrEventNotAllowed)
		}
		next.Cash[next.Turn] -= stake
		next.LottoPot = stake
		next.Phase = phaseLotto

	case engine.TryLotto:
		if next.Phase != phaseLotto {
			return nil, fmt.Errorf("tryLotto in %s: %w", next.Phase, ErrEventNotAllowed)
		}
		face := e.roll()
		won := (face%2 == 1) == (ev.Choice == "odd")
		if won {
			next.LottoPot *= 2
		} else {
			next.LottoPot = 0
			next.Phase = phaseAwaitAction
		}

	case engine.StopLotto:
		if next.Phase != phaseLotto {
			return nil, fmt.Errorf("stopLotto in %s: %w", next.Phase, ErrEventNotAllowed)
		}
		next.Cash[next.Turn] += next.LottoPot
		next.LottoPot = 0
		next.Phase = phaseAwaitAction

	case engine.ThanksToLawyer:
		if next.Phase != phaseAwaitAction {
			return nil, fmt.Errorf("thanksToLawyer in %s: %w", next.Phase, ErrEventNotAllowed)
		}
		next.NoticePending = true

	case engine.ShowMeTheMoney:
		if next.Phase != phaseAwaitAction {
			return nil, fmt.Errorf("showMeTheMONEY in %s: %w", next.Phase, ErrEventNotAllowed)
		}
		next.Cash[next.Turn] += passStartSalary
		next.NoticePending = true

	case engine.PickTargetGroup:
		next.TargetGroup = ev.TargetGroup

	case engine.PickTargetLocation:
		if ev.TargetLocation < 0 || ev.TargetLocation >= boardSize {
			return nil, fmt.Errorf("target location %d: %w", ev.TargetLocation, ErrEventNotAllowed)
		}
		next.TargetLocation = ev.TargetLocation

	case engine.PickTargetPlayer:
		next.NoticePending = true

	case engine.UseTicket:
		if next.Tickets[next.Turn] <= 0 {
			return nil, fmt.Errorf("no tickets held: %w", ErrEventNotAllowed)
		}
		next.Tickets[next.Turn]--

	case engine.NoticeChecked:
		next.NoticePending = false

	case engine.Nop:
		if next.Phase != phaseAwaitAction {
			return nil, fmt.Errorf("nop in %s: %w", next.Phase, ErrEventNotAllowed)
		}
		next.Phase = phaseAwaitRoll
		next.TargetGroup = ""
		next.TargetLocation = -1
		next.advanceTurn()

	default:
		return nil, fmt.Errorf("unsupported event %q: %w", event.Name(), ErrEventNotAllowed)
	}

	return next, nil
}

// Serialize encodes the context as JSON.
func (e *Engine) Serialize(gameCtx engine.Context) (string, error) {
	current, ok := gameCtx.(*gameContext)
	if !ok {
		return "", fmt.Errorf("context does not belong to the trlg engine: %T", gameCtx)
	}
	encoded, err := json.Marshal(current)
	if err != nil {
		return "", fmt.Errorf("encode game context: %w", err)
	}
	return string(encoded), nil
}

// Deserialize restores a context from its JSON snapshot.
func (e *Engine) Deserialize(snapshot string) (engine.Context, error) {
	var restored gameContext
	if err := json.Unmarshal([]byte(snapshot), &restored); err != nil {
		return nil, fmt.Errorf("decode game context: %w", err)
	}
	if restored.Phase == "" {
		return nil, errors.New("snapshot is missing the state label")
	}
	if restored.Owners == nil {
		restored.Owners = make(map[string]int)
	}
	return &restored, nil
}

// View projects the context into its client-facing form.
func (e *Engine) View(gameCtx engine.Context) (engine.View, error) {
	current, ok := gameCtx.(*gameContext)
	if !ok {
		return engine.View{}, fmt.Errorf("context does not belong to the trlg engine: %T", gameCtx)
	}
	encoded, err := json.Marshal(current)
	if err != nil {
		return engine.View{}, fmt.Errorf("encode game context: %w", err)
	}
	return engine.View{
		State:            current.Phase,
		Context:          encoded,
		NowPlayerAccount: current.NowPlayerAccount(),
	}, nil
}
