package engine

// Event is one game command from the closed per-action set. The unexported
// method seals the set: every supported action has exactly one variant here,
// and transports construct them from typed payloads.
type Event interface {
	// Name returns the action identifier used in logs.
	Name() string
	isEvent()
}

// RollDice asks the engine to roll and move the current player.
type RollDice struct{}

// Purchase buys the property at the current player's location.
type Purchase struct {
	Amount int64
}

// SellTarget names one owned location to liquidate and the expected proceeds.
type SellTarget struct {
	Location int
	Amount   int64
}

// Sell liquidates one or more owned properties.
type Sell struct {
	Targets []SellTarget
}

// StartLotto enters the lotto minigame.
type StartLotto struct {
	UseDoubleLottoTicket bool
}

// TryLotto plays one lotto round with the player's parity choice.
type TryLotto struct {
	Choice string
}

// StopLotto leaves the lotto minigame and collects the pot.
type StopLotto struct{}

// ThanksToLawyer resolves the lawyer encounter.
type ThanksToLawyer struct{}

// ShowMeTheMoney claims the cash bonus encounter.
type ShowMeTheMoney struct{}

// PickTargetGroup selects a city group for the pending effect.
type PickTargetGroup struct {
	TargetGroup string
}

// PickTargetLocation selects a board location for the pending effect.
type PickTargetLocation struct {
	TargetLocation int
}

// PickTargetPlayer selects the opposing player for the pending effect.
type PickTargetPlayer struct{}

// UseTicket spends a held ticket.
type UseTicket struct{}

// NoticeChecked acknowledges the pending notice dialog.
type NoticeChecked struct{}

// Nop ends the current player's action phase without acting.
type Nop struct{}

func (RollDice) Name() string           { return "rollDice" }
func (Purchase) Name() string           { return "purchase" }
func (Sell) Name() string               { return "sell" }
func (StartLotto) Name() string         { return "startLotto" }
func (TryLotto) Name() string           { return "tryLotto" }
func (StopLotto) Name() string          { return "stopLotto" }
func (ThanksToLawyer) Name() string     { return "thanksToLawyer" }
func (ShowMeTheMoney) Name() string     { return "showMeTheMONEY" }
func (PickTargetGroup) Name() string    { return "pickTargetGroup" }
func (PickTargetLocation) Name() string { return "pickTargetLocation" }
func (PickTargetPlayer) Name() string   { return "pickTargetPlayer" }
func (UseTicket) Name() string          { return "useTicket" }
func (NoticeChecked) Name() string      { return "noticeChecked" }
func (Nop) Name() string                { return "nop" }

func (RollDice) isEvent()           {}
func (Purchase) isEvent()           {}
func (Sell) isEvent()               {}
func (StartLotto) isEvent()         {}
func (TryLotto) isEvent()           {}
func (StopLotto) isEvent()          {}
func (ThanksToLawyer) isEvent()     {}
func (ShowMeTheMoney) isEvent()     {}
func (PickTargetGroup) isEvent()    {}
func (PickTargetLocation) isEvent() {}
func (PickTargetPlayer) isEvent()   {}
func (UseTicket) isEvent()          {}
func (NoticeChecked) isEvent()      {}
func (Nop) isEvent()                {}
