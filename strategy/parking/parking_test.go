package parking

import (
	"testing"

	"github.com/zintix-labs/dicebot/game"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/oracle"
	"github.com/zintix-labs/dicebot/strategy"
)

// skipper always asks to skip, driving Parking into its alt path.
type skipper struct {
	altSeen []strategy.AltAction
}

func (s *skipper) Decide(gs *gamestate.State) strategy.BetDecision {
	return strategy.BetDecision{Skip: true}
}
func (s *skipper) Update(res strategy.BetResult)    {}
func (s *skipper) OnAltAction(a strategy.AltAction) { s.altSeen = append(s.altSeen, a) }
func (s *skipper) Reset()                           {}
func (s *skipper) Genome() map[string]any           { return map[string]any{"kind": "skipper"} }

// bettor always bets a fixed amount.
type bettor struct{ amount money.Money }

func (b *bettor) Decide(gs *gamestate.State) strategy.BetDecision {
	return strategy.BetDecision{Bet: b.amount, Multiplier: 2.0}
}
func (b *bettor) Update(res strategy.BetResult)    {}
func (b *bettor) OnAltAction(a strategy.AltAction) {}
func (b *bettor) Reset()                           {}
func (b *bettor) Genome() map[string]any           { return map[string]any{"kind": "bettor"} }

func state(t *testing.T, balance string) *gamestate.State {
	t.Helper()
	b, err := money.FromString(balance)
	if err != nil {
		t.Fatalf("bad money literal: %v", err)
	}
	return gamestate.New(b, 0)
}

func TestTogglesThenParkingBet(t *testing.T) {
	p, err := Wrap(DefaultConfig(), &skipper{})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	gs := state(t, "50")

	for i := 0; i < 3; i++ {
		d := p.Decide(gs)
		if !d.Skip || d.Action != strategy.ActionToggleBetType {
			t.Fatalf("decision %d: expected toggle, got %+v", i, d)
		}
		p.OnAltAction(d.Action)
	}

	d := p.Decide(gs)
	if d.Skip {
		t.Fatalf("expected a parking bet after max toggles, got skip: %+v", d)
	}
	if d.Action != strategy.ActionParkingBet {
		t.Fatalf("expected parking-bet action, got %v", d.Action)
	}
	wantMult := 100.0 / 98.0
	if d.Multiplier != wantMult {
		t.Fatalf("parking multiplier %v, want %v", d.Multiplier, wantMult)
	}
	amount, _ := money.FromString("0.00015")
	if !d.Bet.Equal(amount) {
		t.Fatalf("parking amount %s, want %s", d.Bet, amount)
	}
}

// Spec §8 property 8: toggles between consumed bets never exceed the cap.
func TestTogglesBoundedBetweenConsumedBets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTogglesBeforeBet = 3
	p, err := Wrap(cfg, &skipper{})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	gs := state(t, "50")

	toggles := 0
	for i := 0; i < 100; i++ {
		d := p.Decide(gs)
		if d.Skip && d.Action == strategy.ActionToggleBetType {
			toggles++
			if toggles > cfg.MaxTogglesBeforeBet {
				t.Fatalf("toggles %d exceeded cap %d without a consumed bet", toggles, cfg.MaxTogglesBeforeBet)
			}
			p.OnAltAction(d.Action)
			continue
		}
		// a consumed bet (parking or real) resets the toggle budget
		p.Update(strategy.BetResult{Won: true, Bet: d.Bet, Payout: d.Bet})
		toggles = 0
	}
}

func TestAutoRotationAfterThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoRotationThreshold = 5
	p, err := Wrap(cfg, &skipper{})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	gs := state(t, "50")

	// consume enough bets to cross the rotation threshold
	for i := 0; i < 5; i++ {
		p.Update(strategy.BetResult{Won: true})
	}
	// burn the toggle budget
	for i := 0; i < 3; i++ {
		d := p.Decide(gs)
		p.OnAltAction(d.Action)
	}
	d := p.Decide(gs)
	if !d.Skip || d.Action != strategy.ActionSeedRotated {
		t.Fatalf("expected seed rotation after threshold, got %+v", d)
	}
	p.OnAltAction(d.Action)
	if p.betsSince != 0 {
		t.Fatalf("expected bets-since counter reset after rotation, got %d", p.betsSince)
	}

	// the rotation must not reopen the toggle budget mid-episode: the very
	// next decision consumes a nonce via a parking bet, keeping the
	// episode's toggle total at 3
	d = p.Decide(gs)
	if d.Skip {
		t.Fatalf("expected a consumed parking bet after rotation, got skip: %+v", d)
	}
	if d.Action != strategy.ActionParkingBet {
		t.Fatalf("expected parking-bet action after rotation, got %v", d.Action)
	}
}

func TestSpontaneousEntryOnLossStreak(t *testing.T) {
	amount, _ := money.FromString("1")
	p, err := Wrap(DefaultConfig(), &bettor{amount: amount})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	gs := state(t, "50")

	// no streak yet: the base's bet flows through
	d := p.Decide(gs)
	if d.Skip || !d.Bet.Equal(amount) {
		t.Fatalf("expected base bet to pass through, got %+v", d)
	}

	// five consecutive losses trigger parking even though the base bets
	lossRes := betLoss(t, "1")
	for i := 0; i < 5; i++ {
		gs.Apply(lossRes)
	}
	d = p.Decide(gs)
	if !d.Skip || d.Action != strategy.ActionToggleBetType {
		t.Fatalf("expected spontaneous parking entry (toggle first), got %+v", d)
	}
}

func TestSpontaneousEntryOnDrawdown(t *testing.T) {
	amount, _ := money.FromString("1")
	cfg := DefaultConfig()
	cfg.OnConsecutiveLosses = 0 // isolate the drawdown trigger
	p, err := Wrap(cfg, &bettor{amount: amount})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	gs := state(t, "50")
	gs.Apply(betLoss(t, "10")) // 20% drawdown >= 10% default

	d := p.Decide(gs)
	if !d.Skip {
		t.Fatalf("expected parking entry on drawdown, got %+v", d)
	}
}

func TestToggleFlipsParkingBetSide(t *testing.T) {
	p, err := Wrap(DefaultConfig(), &skipper{})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if p.currentType != oracle.Under {
		t.Fatalf("expected default UNDER")
	}
	p.OnAltAction(strategy.ActionToggleBetType)
	if p.currentType != oracle.Over {
		t.Fatalf("expected OVER after toggle")
	}
	p.OnAltAction(strategy.ActionToggleBetType)
	if p.currentType != oracle.Under {
		t.Fatalf("expected UNDER after second toggle")
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	p, err := Wrap(DefaultConfig(), &skipper{})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	gs := state(t, "50")
	d := p.Decide(gs)
	p.OnAltAction(d.Action)
	p.Update(strategy.BetResult{Won: true})

	p.Reset()
	if p.toggleCount != 0 || p.betsSince != 0 || p.currentType != oracle.Under {
		t.Fatalf("reset did not restore initial state: %+v", p)
	}
}

func TestWrapRequiresBase(t *testing.T) {
	if _, err := Wrap(DefaultConfig(), nil); err == nil {
		t.Fatalf("expected error wrapping a nil base")
	}
}

func betLoss(t *testing.T, bet string) game.BetResult {
	t.Helper()
	b, err := money.FromString(bet)
	if err != nil {
		t.Fatalf("bad money literal: %v", err)
	}
	return game.BetResult{Won: false, Bet: b, Payout: b.Neg()}
}
