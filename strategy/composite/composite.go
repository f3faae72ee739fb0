// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package composite wraps k≥2 sub-strategies and combines their individual
// decisions into one, per spec §4.4's six combination modes. Sub-strategies
// are held by the same Strategy interface, never by concrete type, the way
// catalog.Catalog holds heterogeneous game entries by name/ID, not by
// embedding.
package composite

import (
	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/strategy"
)

// Mode selects how sub-strategy decisions are combined into one.
type Mode uint8

const (
	Average Mode = iota
	Weighted
	Consensus
	Aggressive
	Conservative
	Rotate
)

// Config tunes a Composite's combination behavior.
type Config struct {
	Mode               Mode
	ConsensusThreshold float64 // default 0.5
	RotationInterval   int     // bets per sub-strategy under Rotate, default 1
}

// Composite fans every Update out to all children and asks every child for
// a Decide, then folds the results per Config.Mode (spec §4.4).
type Composite struct {
	cfg      Config
	children []strategy.Strategy
	rotateAt int // bet count since last rotation, for Rotate mode
}

// New builds a Composite over at least two children.
func New(cfg Config, children ...strategy.Strategy) (*Composite, error) {
	if len(children) < 2 {
		return nil, errs.ConfigInvalid("composite: requires at least 2 sub-strategies")
	}
	if cfg.ConsensusThreshold <= 0 {
		cfg.ConsensusThreshold = 0.5
	}
	if cfg.RotationInterval <= 0 {
		cfg.RotationInterval = 1
	}
	return &Composite{cfg: cfg, children: children}, nil
}

func (c *Composite) Decide(gs *gamestate.State) strategy.BetDecision {
	decisions := make([]strategy.BetDecision, len(c.children))
	confidences := make([]float64, len(c.children))
	for i, child := range c.children {
		decisions[i] = child.Decide(gs)
		confidences[i] = strategy.Confidence(child)
	}

	var d strategy.BetDecision
	switch c.cfg.Mode {
	case Weighted:
		d = weighted(decisions, confidences)
	case Consensus:
		d = consensus(decisions, c.cfg.ConsensusThreshold)
	case Aggressive:
		d = extremum(decisions, true)
	case Conservative:
		d = extremum(decisions, false)
	case Rotate:
		idx := (c.rotateAt / c.cfg.RotationInterval) % len(decisions)
		d = decisions[idx]
	default: // Average
		d = average(decisions)
	}
	if d.Confidence == 0 {
		var sum float64
		for _, conf := range confidences {
			sum += conf
		}
		d.Confidence = sum / float64(len(confidences))
	}
	return d
}

func (c *Composite) Update(res strategy.BetResult) {
	c.rotateAt++
	for _, child := range c.children {
		child.Update(res)
	}
}

// CarryConfidence forwards a confidence override to every child that
// accepts one.
func (c *Composite) CarryConfidence(conf float64) {
	for _, child := range c.children {
		if cc, ok := child.(strategy.ConfidenceCarrier); ok {
			cc.CarryConfidence(conf)
		}
	}
}

func (c *Composite) OnAltAction(a strategy.AltAction) {
	for _, child := range c.children {
		child.OnAltAction(a)
	}
}

func (c *Composite) Reset() {
	c.rotateAt = 0
	for _, child := range c.children {
		child.Reset()
	}
}

func (c *Composite) Genome() map[string]any {
	children := make([]map[string]any, len(c.children))
	for i, child := range c.children {
		children[i] = child.Genome()
	}
	return map[string]any{
		"kind":     "composite",
		"mode":     c.cfg.Mode,
		"children": children,
	}
}

func average(decisions []strategy.BetDecision) strategy.BetDecision {
	sum := money.Zero()
	for _, d := range decisions {
		sum = sum.Add(d.Bet)
	}
	n := money.FromInt(int64(len(decisions)))
	mean, _ := sum.DivRound(n, 8)
	return strategy.BetDecision{
		Bet:        mean,
		Multiplier: decisions[0].Multiplier,
		BetType:    decisions[0].BetType,
	}
}

func weighted(decisions []strategy.BetDecision, confidences []float64) strategy.BetDecision {
	// Both the weighted sum and the weight total stay in Money so the
	// resulting bet never passes through a binary float; MulFloatMultiplier
	// is the one sanctioned float-to-Money crossing, applied per term.
	one := money.FromInt(1)
	sum := money.Zero()
	weightTotal := money.Zero()
	for i, d := range decisions {
		sum = sum.Add(d.Bet.MulFloatMultiplier(confidences[i]))
		weightTotal = weightTotal.Add(one.MulFloatMultiplier(confidences[i]))
	}
	amount := money.Zero()
	if weightTotal.IsPositive() {
		amount, _ = sum.DivRound(weightTotal, money.Precision)
	}
	return strategy.BetDecision{
		Bet:        amount,
		Multiplier: decisions[0].Multiplier,
		BetType:    decisions[0].BetType,
	}
}

func consensus(decisions []strategy.BetDecision, threshold float64) strategy.BetDecision {
	underCount := 0
	for _, d := range decisions {
		if !d.Skip && d.BetType == decisions[0].BetType {
			underCount++
		}
	}
	agree := float64(underCount) / float64(len(decisions))
	if agree < threshold {
		return strategy.BetDecision{Skip: true, Action: strategy.ActionToggleBetType}
	}
	return average(decisions)
}

func extremum(decisions []strategy.BetDecision, wantMax bool) strategy.BetDecision {
	best := decisions[0]
	for _, d := range decisions[1:] {
		if wantMax && d.Bet.GreaterThan(best.Bet) {
			best = d
		}
		if !wantMax && d.Bet.LessThan(best.Bet) {
			best = d
		}
	}
	return best
}
