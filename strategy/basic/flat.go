package basic

import (
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/strategy"
)

// Flat bets base_bet forever: win or lose, the next bet is unchanged.
type Flat struct {
	cfg     Config
	metrics *strategy.Metrics
}

func init() {
	_ = strategy.Global.Register("flat", func(cfg map[string]any) (strategy.Strategy, error) {
		return NewFlat(decodeConfig(cfg)), nil
	})
}

// NewFlat builds a Flat strategy from an already-decoded Config.
func NewFlat(cfg Config) *Flat {
	return &Flat{cfg: cfg, metrics: strategy.NewMetrics()}
}

func (f *Flat) Decide(gs *gamestate.State) strategy.BetDecision {
	return decisionFor(f.cfg, f.cfg.BaseBet, f.metrics, gs)
}

func (f *Flat) Update(res strategy.BetResult) { f.metrics.Accrue(res) }
func (f *Flat) CarryConfidence(c float64)     { f.metrics.SetConfidence(c) }

func (f *Flat) OnAltAction(a strategy.AltAction) {}
func (f *Flat) Reset()                           {}
func (f *Flat) Genome() map[string]any           { return strategyGenome("flat", f.cfg, f.metrics, nil) }
