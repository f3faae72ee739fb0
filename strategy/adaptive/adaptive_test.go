package adaptive

import (
	"testing"

	"github.com/zintix-labs/dicebot/eventbus"
	"github.com/zintix-labs/dicebot/game"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/strategy"
)

// named is a stub child that identifies itself through its bet amount.
type named struct {
	amount     money.Money
	confidence float64
	updates    int
	resets     int
}

func (n *named) Decide(gs *gamestate.State) strategy.BetDecision {
	return strategy.BetDecision{Bet: n.amount, Multiplier: 2.0}
}
func (n *named) Update(res strategy.BetResult)    { n.updates++ }
func (n *named) OnAltAction(a strategy.AltAction) {}
func (n *named) Reset()                           { n.resets++ }
func (n *named) CarryConfidence(c float64)        { n.confidence = c }
func (n *named) Genome() map[string]any {
	return map[string]any{"kind": "named", "confidence": n.confidence}
}

func m(t *testing.T, s string) money.Money {
	t.Helper()
	v, err := money.FromString(s)
	if err != nil {
		t.Fatalf("bad money literal %q: %v", s, err)
	}
	return v
}

func lossResult(t *testing.T, bet string) game.BetResult {
	t.Helper()
	b := m(t, bet)
	return game.BetResult{Won: false, Bet: b, Payout: b.Neg()}
}

func winResult(t *testing.T, bet string) game.BetResult {
	t.Helper()
	b := m(t, bet)
	return game.BetResult{Won: true, Bet: b, Payout: b.MulFloatMultiplier(2.0)}
}

func twoChildren(t *testing.T) (map[string]strategy.Strategy, *named, *named) {
	t.Helper()
	safe := &named{amount: m(t, "1"), confidence: 0.9}
	bold := &named{amount: m(t, "5"), confidence: 0.4}
	return map[string]strategy.Strategy{"safe": safe, "bold": bold}, safe, bold
}

func TestNewValidatesChildrenAndTargets(t *testing.T) {
	children, _, _ := twoChildren(t)
	if _, err := New(nil, map[string]strategy.Strategy{}, "safe"); err == nil {
		t.Fatalf("expected error with no children")
	}
	if _, err := New(nil, children, "missing"); err == nil {
		t.Fatalf("expected error for unknown initial")
	}
	rules := []Rule{{Condition: ConsecutiveLosses, Threshold: 3, TargetName: "nope"}}
	if _, err := New(rules, children, "safe"); err == nil {
		t.Fatalf("expected error for unknown rule target")
	}
}

func TestSwitchesOnConsecutiveLosses(t *testing.T) {
	children, _, _ := twoChildren(t)
	rules := []Rule{{Condition: ConsecutiveLosses, Threshold: 3, TargetName: "safe"}}
	a, err := New(rules, children, "bold")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	gs := gamestate.New(m(t, "100"), 0)

	if d := a.Decide(gs); !d.Bet.Equal(m(t, "5")) {
		t.Fatalf("expected bold active initially, got %s", d.Bet)
	}

	for i := 0; i < 3; i++ {
		gs.Apply(lossResult(t, "1"))
		a.Update(strategy.BetResult{Won: false, Bet: m(t, "1"), Payout: m(t, "1").Neg()})
	}
	if d := a.Decide(gs); !d.Bet.Equal(m(t, "1")) {
		t.Fatalf("expected switch to safe after loss streak, got %s", d.Bet)
	}
}

func TestCooldownPreventsReswitch(t *testing.T) {
	children, _, _ := twoChildren(t)
	rules := []Rule{
		{Condition: ConsecutiveLosses, Threshold: 2, TargetName: "safe", CooldownBets: 5},
		{Condition: ConsecutiveWins, Threshold: 1, TargetName: "bold"},
	}
	a, err := New(rules, children, "bold")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	gs := gamestate.New(m(t, "100"), 0)

	gs.Apply(lossResult(t, "1"))
	gs.Apply(lossResult(t, "1"))
	a.Update(strategy.BetResult{Won: false})
	a.Update(strategy.BetResult{Won: false})
	if d := a.Decide(gs); !d.Bet.Equal(m(t, "1")) {
		t.Fatalf("expected switch to safe, got %s", d.Bet)
	}

	// a win would match the bold rule, but cooldown is still running
	gs.Apply(winResult(t, "1"))
	a.Update(strategy.BetResult{Won: true})
	if d := a.Decide(gs); !d.Bet.Equal(m(t, "1")) {
		t.Fatalf("expected safe to stay active under cooldown, got %s", d.Bet)
	}
}

func TestUpdateFeedsActiveChildOnly(t *testing.T) {
	children, safe, bold := twoChildren(t)
	a, err := New(nil, children, "bold")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a.Update(strategy.BetResult{Won: true})
	if bold.updates != 1 || safe.updates != 0 {
		t.Fatalf("expected only the active child updated: safe=%d bold=%d", safe.updates, bold.updates)
	}
}

func TestBalanceRules(t *testing.T) {
	children, _, _ := twoChildren(t)
	rules := []Rule{{Condition: BalanceBelow, Threshold: 50, TargetName: "safe"}}
	a, err := New(rules, children, "bold")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	gs := gamestate.New(m(t, "100"), 0)

	if d := a.Decide(gs); !d.Bet.Equal(m(t, "5")) {
		t.Fatalf("expected bold while balance healthy")
	}
	gs.Apply(lossResult(t, "60")) // balance 40 < 50
	if d := a.Decide(gs); !d.Bet.Equal(m(t, "1")) {
		t.Fatalf("expected switch when balance drops below threshold, got %s", d.Bet)
	}
}

func TestResetRestoresInitialActive(t *testing.T) {
	children, safe, bold := twoChildren(t)
	rules := []Rule{{Condition: ConsecutiveLosses, Threshold: 1, TargetName: "safe"}}
	a, err := New(rules, children, "bold")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	gs := gamestate.New(m(t, "100"), 0)
	gs.Apply(lossResult(t, "1"))
	a.Decide(gs) // triggers switch to safe

	a.Reset()
	if safe.resets != 1 || bold.resets != 1 {
		t.Fatalf("expected all children reset")
	}
	if d := a.Decide(gamestate.New(m(t, "100"), 0)); !d.Bet.Equal(m(t, "5")) {
		t.Fatalf("expected initial strategy restored after reset, got %s", d.Bet)
	}
}

func TestSwitchCarriesConfidence(t *testing.T) {
	children, safe, _ := twoChildren(t) // bold at 0.4, safe at 0.9
	rules := []Rule{{Condition: ConsecutiveLosses, Threshold: 1, TargetName: "safe"}}
	a, err := New(rules, children, "bold")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	gs := gamestate.New(m(t, "100"), 0)
	gs.Apply(lossResult(t, "1"))
	a.Decide(gs) // triggers the switch

	if safe.confidence != 0.4 {
		t.Fatalf("expected the outgoing strategy's confidence 0.4 carried to the incoming one, got %v", safe.confidence)
	}
}

func TestSwitchPublishesStrategySwitchEvent(t *testing.T) {
	children, _, _ := twoChildren(t)
	rules := []Rule{{Condition: ConsecutiveLosses, Threshold: 1, TargetName: "safe"}}
	a, err := New(rules, children, "bold")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	bus := eventbus.New("sess-adaptive")
	a.SetBus(bus)

	var got []eventbus.Event
	bus.Subscribe(func(ev eventbus.Event) { got = append(got, ev) })

	gs := gamestate.New(m(t, "100"), 0)
	gs.Apply(lossResult(t, "1"))
	a.Decide(gs)

	if len(got) != 1 || got[0].Kind != eventbus.StrategySwitch {
		t.Fatalf("expected one STRATEGY_SWITCH event, got %v", got)
	}
	sw := got[0].Payload.(Switched)
	if sw.From != "bold" || sw.To != "safe" {
		t.Fatalf("unexpected switch payload: %+v", sw)
	}
}

func TestGenomeReportsActive(t *testing.T) {
	children, _, _ := twoChildren(t)
	a, err := New(nil, children, "safe")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	g := a.Genome()
	if g["active"] != "safe" {
		t.Fatalf("expected genome to name the active child, got %v", g["active"])
	}
}
