package basic

import (
	"github.com/zintix-labs/dicebot/eventbus"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/strategy"
)

// Martingale doubles (times Multiplier) the bet after every loss and resets
// to base_bet after a win, or after MaxLosses consecutive losses (spec
// §4.4, property 7: "after max_losses consecutive losses, the next bet
// equals base_bet").
type Martingale struct {
	cfg         Config
	metrics     *strategy.Metrics
	next        money.Money
	lossesInRow int
	bus         *eventbus.Bus // optional; emits a MartingaleCapped payload on StrategyToggle
}

// MartingaleCapped is the payload published on eventbus.StrategyToggle when
// the loss streak hits MaxLosses and the progression resets without a win.
// There is no dedicated event kind for this (spec's sixteen kinds have no
// slot for it); an ordinary bet-type toggle publishes a nil payload, so a
// detail-log reader tells the two apart by payload shape, not by kind.
type MartingaleCapped struct {
	LossesInRow int
}

func init() {
	_ = strategy.Global.Register("martingale", func(cfg map[string]any) (strategy.Strategy, error) {
		return NewMartingale(decodeConfig(cfg), nil), nil
	})
}

// NewMartingale builds a Martingale strategy. bus may be nil; when set, a
// cap event is published each time the progression resets due to hitting
// MaxLosses rather than a win.
func NewMartingale(cfg Config, bus *eventbus.Bus) *Martingale {
	return &Martingale{cfg: cfg, metrics: strategy.NewMetrics(), next: cfg.BaseBet, bus: bus}
}

func (m *Martingale) Decide(gs *gamestate.State) strategy.BetDecision {
	return decisionFor(m.cfg, m.next, m.metrics, gs)
}

func (m *Martingale) Update(res strategy.BetResult) {
	m.metrics.Accrue(res)
	if res.Won {
		m.next = m.cfg.BaseBet
		m.lossesInRow = 0
		return
	}
	m.lossesInRow++
	if m.cfg.MaxLosses > 0 && m.lossesInRow >= m.cfg.MaxLosses {
		capped := m.lossesInRow
		m.next = m.cfg.BaseBet
		m.lossesInRow = 0
		if m.bus != nil {
			m.bus.Publish(eventbus.StrategyToggle, MartingaleCapped{LossesInRow: capped})
		}
		return
	}
	m.next = m.next.MulFloatMultiplier(m.cfg.Multiplier)
}

func (m *Martingale) CarryConfidence(c float64) { m.metrics.SetConfidence(c) }

func (m *Martingale) OnAltAction(a strategy.AltAction) {}

func (m *Martingale) Reset() {
	m.next = m.cfg.BaseBet
	m.lossesInRow = 0
}

func (m *Martingale) Genome() map[string]any {
	return strategyGenome("martingale", m.cfg, m.metrics, map[string]any{
		"next_bet":      m.next.String(),
		"losses_in_row": m.lossesInRow,
	})
}
