package basic

import (
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/strategy"
)

// maxParoliWinStreak bounds Paroli's pyramid before it resets (spec §4.4).
const maxParoliWinStreak = 3

// Paroli resets to base_bet after any loss and after maxParoliWinStreak
// consecutive wins; otherwise it multiplies the previous bet by
// Multiplier after each win (spec §4.4).
type Paroli struct {
	cfg       Config
	metrics   *strategy.Metrics
	next      money.Money
	winsInRow int
}

func init() {
	_ = strategy.Global.Register("paroli", func(cfg map[string]any) (strategy.Strategy, error) {
		return NewParoli(decodeConfig(cfg)), nil
	})
}

// NewParoli builds a Paroli strategy.
func NewParoli(cfg Config) *Paroli {
	return &Paroli{cfg: cfg, metrics: strategy.NewMetrics(), next: cfg.BaseBet}
}

func (p *Paroli) Decide(gs *gamestate.State) strategy.BetDecision {
	return decisionFor(p.cfg, p.next, p.metrics, gs)
}

func (p *Paroli) Update(res strategy.BetResult) {
	p.metrics.Accrue(res)
	if !res.Won {
		p.next = p.cfg.BaseBet
		p.winsInRow = 0
		return
	}
	p.winsInRow++
	if p.winsInRow >= maxParoliWinStreak {
		p.next = p.cfg.BaseBet
		p.winsInRow = 0
		return
	}
	p.next = p.next.MulFloatMultiplier(p.cfg.Multiplier)
}

func (p *Paroli) CarryConfidence(c float64) { p.metrics.SetConfidence(c) }

func (p *Paroli) OnAltAction(a strategy.AltAction) {}

func (p *Paroli) Reset() {
	p.next = p.cfg.BaseBet
	p.winsInRow = 0
}

func (p *Paroli) Genome() map[string]any {
	return strategyGenome("paroli", p.cfg, p.metrics, map[string]any{
		"next_bet":    p.next.String(),
		"wins_in_row": p.winsInRow,
	})
}
