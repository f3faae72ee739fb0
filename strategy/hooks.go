package strategy

import "github.com/zintix-labs/dicebot/gamestate"

// Hooks are fired by the framework around a strategy's Decide/Update calls,
// never by a concrete strategy itself (spec §4.4). All fields are optional;
// a nil hook is simply not called.
type Hooks struct {
	OnWinningStreak  func(n int)
	OnLosingStreak   func(n int)
	OnDrawdown       func(ratio float64)
	OnBeforeDecision func(gs *gamestate.State)
	OnAfterDecision  func(gs *gamestate.State, d BetDecision)
}

// Dispatch wraps a Strategy so Decide's surrounding framework hooks fire
// automatically; the streak/drawdown hooks are evaluated against gs, which
// already reflects the prior bet's Apply.
func Dispatch(gs *gamestate.State, h Hooks, s Strategy) BetDecision {
	if h.OnBeforeDecision != nil {
		h.OnBeforeDecision(gs)
	}
	if w := gs.ConsecutiveWins(); w > 0 && h.OnWinningStreak != nil {
		h.OnWinningStreak(w)
	}
	if l := gs.ConsecutiveLosses(); l > 0 && h.OnLosingStreak != nil {
		h.OnLosingStreak(l)
	}
	if gs.CurrentDrawdown > 0 && h.OnDrawdown != nil {
		h.OnDrawdown(gs.CurrentDrawdown)
	}

	d := s.Decide(gs)

	if h.OnAfterDecision != nil {
		h.OnAfterDecision(gs, d)
	}
	return d
}
