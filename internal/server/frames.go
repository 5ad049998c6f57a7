package server

import (
	"encoding/json"
	"log"

	"github.com/Honey-Be/trlg-statemachine/internal/game/engine"
	apperrors "github.com/Honey-Be/trlg-statemachine/internal/platform/errors"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type joinPayload struct {
	GameID string `json:"game_id"`
}

type joinedPayload struct {
	GameID string `json:"game_id"`
}

type joinFailedPayload struct {
	GameID string `json:"game_id"`
	Reason string `json:"reason"`
}

type grantPayload struct {
	GameID  string `json:"game_id,omitempty"`
	Account string `json:"account"`
}

type grantedPayload struct {
	GameID  string `json:"game_id"`
	Account string `json:"account"`
	Slot    int    `json:"slot"`
}

type notGrantedPayload struct {
	GameID  string `json:"game_id"`
	Account string `json:"account"`
}

type registerPayload struct {
	GameID   string                     `json:"game_id"`
	Accounts [engine.PlayerSlots]string `json:"accounts"`
	Snapshot string                     `json:"snapshot,omitempty"`
}

type registeredPayload struct {
	GameID  string `json:"game_id"`
	Outcome string `json:"outcome"`
}

type viewPayload struct {
	GameID string `json:"game_id,omitempty"`
}

type sellTargetPayload struct {
	Location int   `json:"location"`
	Amount   int64 `json:"amount"`
}

// commandEvent decodes one per-action command frame into its engine event.
// The frame type set is closed; unknown types report ok=false so the caller
// can fall through to the unsupported-frame error.
func commandEvent(frameType string, payload json.RawMessage) (engine.Event, bool, error) {
	decode := func(v any) error {
		if len(payload) == 0 {
			return apperrors.New(apperrors.CodeEventInvalid, "payload is required")
		}
		if err := json.Unmarshal(payload, v); err != nil {
			return apperrors.Wrap(apperrors.CodeEventInvalid, "decode command payload", err)
		}
		return nil
	}

	switch frameType {
	case "game.roll_dice":
		return engine.RollDice{}, true, nil
	case "game.purchase":
		var body struct {
			Amount int64 `json:"amount"`
		}
		if err := decode(&body); err != nil {
			return nil, true, err
		}
		return engine.Purchase{Amount: body.Amount}, true, nil
	case "game.sell":
		var body struct {
			Targets []sellTargetPayload `json:"targets"`
		}
		if err := decode(&body); err != nil {
			return nil, true, err
		}
		if len(body.Targets) == 0 {
			return nil, true, apperrors.New(apperrors.CodeEventInvalid, "targets is required")
		}
		targets := make([]engine.SellTarget, 0, len(body.Targets))
		for _, target := range body.Targets {
			targets = append(targets, engine.SellTarget{Location: target.Location, Amount: target.Amount})
		}
		return engine.Sell{Targets: targets}, true, nil
	case "game.start_lotto":
		var body struct {
			UseDoubleLottoTicket bool `json:"use_double_lotto_ticket"`
		}
		if err := decode(&body); err != nil {
			return nil, true, err
		}
		return engine.StartLotto{UseDoubleLottoTicket: body.UseDoubleLottoTicket}, true, nil
	case "game.try_lotto":
		var body struct {
			Choice string `json:"choice"`
		}
		if err := decode(&body); err != nil {
			return nil, true, err
		}
		if body.Choice == "" {
			return nil, true, apperrors.New(apperrors.CodeEventInvalid, "choice is required")
		}
		return engine.TryLotto{Choice: body.Choice}, true, nil
	case "game.stop_lotto":
		return engine.StopLotto{}, true, nil
	case "game.thanks_to_lawyer":
		return engine.ThanksToLawyer{}, true, nil
	case "game.show_me_the_money":
		return engine.ShowMeTheMoney{}, true, nil
	case "game.pick_target_group":
		var body struct {
			TargetGroup string `json:"target_group"`
		}
		if err := decode(&body); err != nil {
			return nil, true, err
		}
		if body.TargetGroup == "" {
			return nil, true, apperrors.New(apperrors.CodeEventInvalid, "target_group is required")
		}
		return engine.PickTargetGroup{TargetGroup: body.TargetGroup}, true, nil
	case "game.pick_target_location":
		var body struct {
			TargetLocation int `json:"target_location"`
		}
		if err := decode(&body); err != nil {
			return nil, true, err
		}
		return engine.PickTargetLocation{TargetLocation: body.TargetLocation}, true, nil
	case "game.pick_target_player":
		return engine.PickTargetPlayer{}, true, nil
	case "game.use_ticket":
		return engine.UseTicket{}, true, nil
	case "game.notice_checked":
		return engine.NoticeChecked{}, true, nil
	case "game.nop":
		return engine.Nop{}, true, nil
	default:
		return nil, false, nil
	}
}

func refreshFrame(view engine.View) wsFrame {
	return wsFrame{
		Type:    "game.refresh",
		Payload: mustJSON(view),
	}
}

func writeWSError(peer *wsPeer, requestID string, code apperrors.Code, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      "game.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      string(code),
				Message:   message,
				Retryable: code.Retryable(),
			},
		}),
	})
}

// writeGameError maps a runtime error to the game.error envelope.
func writeGameError(peer *wsPeer, requestID string, err error) error {
	return writeWSError(peer, requestID, apperrors.CodeOf(err), err.Error())
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
