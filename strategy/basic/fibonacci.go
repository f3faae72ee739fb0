package basic

import (
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/strategy"
)

// Fibonacci advances an index into the Fibonacci sequence on loss and
// retreats it by two (floored at zero) on win; the bet is base_bet times
// the sequence value at the current index, capped at index MaxLosses
// (spec §4.4).
type Fibonacci struct {
	cfg     Config
	metrics *strategy.Metrics
	idx     int
	fib     []int64
}

func init() {
	_ = strategy.Global.Register("fibonacci", func(cfg map[string]any) (strategy.Strategy, error) {
		return NewFibonacci(decodeConfig(cfg)), nil
	})
}

// NewFibonacci builds a Fibonacci strategy, precomputing enough of the
// sequence to cover any plausible MaxLosses cap.
func NewFibonacci(cfg Config) *Fibonacci {
	n := cfg.MaxLosses
	if n <= 0 {
		n = 64
	}
	return &Fibonacci{cfg: cfg, metrics: strategy.NewMetrics(), fib: fibSequence(n + 3)}
}

func fibSequence(n int) []int64 {
	seq := make([]int64, n)
	if n > 0 {
		seq[0] = 1
	}
	if n > 1 {
		seq[1] = 1
	}
	for i := 2; i < n; i++ {
		seq[i] = seq[i-1] + seq[i-2]
	}
	return seq
}

func (f *Fibonacci) at(i int) int64 {
	if i < 0 {
		i = 0
	}
	if i >= len(f.fib) {
		i = len(f.fib) - 1
	}
	return f.fib[i]
}

func (f *Fibonacci) Decide(gs *gamestate.State) strategy.BetDecision {
	amount := f.cfg.BaseBet.MulFloatMultiplier(float64(f.at(f.idx)))
	return decisionFor(f.cfg, amount, f.metrics, gs)
}

func (f *Fibonacci) Update(res strategy.BetResult) {
	f.metrics.Accrue(res)
	if res.Won {
		f.idx -= 2
		if f.idx < 0 {
			f.idx = 0
		}
		return
	}
	f.idx++
	if f.cfg.MaxLosses > 0 && f.idx > f.cfg.MaxLosses {
		f.idx = f.cfg.MaxLosses
	}
}

func (f *Fibonacci) CarryConfidence(c float64) { f.metrics.SetConfidence(c) }

func (f *Fibonacci) OnAltAction(a strategy.AltAction) {}

func (f *Fibonacci) Reset() { f.idx = 0 }

func (f *Fibonacci) Genome() map[string]any {
	return strategyGenome("fibonacci", f.cfg, f.metrics, map[string]any{"index": f.idx})
}
