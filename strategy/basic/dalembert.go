package basic

import (
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/strategy"
)

// DAlembert adds base_bet after a loss and subtracts it after a win
// (floored at base_bet), capped at MaxLosses consecutive steps (spec
// §4.4).
type DAlembert struct {
	cfg     Config
	metrics *strategy.Metrics
	next    money.Money
	steps   int
}

func init() {
	_ = strategy.Global.Register("dalembert", func(cfg map[string]any) (strategy.Strategy, error) {
		return NewDAlembert(decodeConfig(cfg)), nil
	})
}

// NewDAlembert builds a D'Alembert strategy.
func NewDAlembert(cfg Config) *DAlembert {
	return &DAlembert{cfg: cfg, metrics: strategy.NewMetrics(), next: cfg.BaseBet}
}

func (d *DAlembert) Decide(gs *gamestate.State) strategy.BetDecision {
	return decisionFor(d.cfg, d.next, d.metrics, gs)
}

func (d *DAlembert) Update(res strategy.BetResult) {
	d.metrics.Accrue(res)
	if res.Won {
		reduced := d.next.Sub(d.cfg.BaseBet)
		d.next = money.Max(d.cfg.BaseBet, reduced)
		if d.steps > 0 {
			d.steps--
		}
		return
	}
	if d.cfg.MaxLosses > 0 && d.steps >= d.cfg.MaxLosses {
		return // capped: hold at current level rather than stepping further
	}
	d.next = d.next.Add(d.cfg.BaseBet)
	d.steps++
}

func (d *DAlembert) CarryConfidence(c float64) { d.metrics.SetConfidence(c) }

func (d *DAlembert) OnAltAction(a strategy.AltAction) {}

func (d *DAlembert) Reset() {
	d.next = d.cfg.BaseBet
	d.steps = 0
}

func (d *DAlembert) Genome() map[string]any {
	return strategyGenome("dalembert", d.cfg, d.metrics, map[string]any{
		"next_bet": d.next.String(),
		"steps":    d.steps,
	})
}
