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

// Package strategy defines the betting-strategy contract (spec §4.4): a
// closed-set interface plus a name-keyed builder registry, generalizing
// sdk/slot's LogicRegistry/LogicBuilder from a per-game symbol table into a
// per-simulation strategy catalog.
package strategy

import (
	"fmt"

	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/oracle"
	"gonum.org/v1/gonum/stat"
)

// AltAction is a side channel the framework may ask a strategy to perform
// that does not itself consume a nonce (bet-type toggle, a seed rotation
// notice, or a forced parking bet).
type AltAction uint8

const (
	ActionNone AltAction = iota
	ActionToggleBetType
	ActionSeedRotated
	ActionParkingBet
)

// BetDecision is what Decide returns: either a real bet, or a request to
// perform an AltAction instead of consuming a nonce this turn.
type BetDecision struct {
	Skip       bool // true when the strategy wants an AltAction, not a bet
	Action     AltAction
	Bet        money.Money
	Multiplier float64
	BetType    oracle.BetType
	Confidence float64        // the deciding strategy's self-reported confidence
	Metadata   map[string]any // optional decision annotations, carried into the event log
}

// Strategy is the closed-set contract every concrete strategy satisfies
// (spec §4.4). Decide is pure with respect to the supplied GameState; a
// strategy may consult its own hidden progression state.
type Strategy interface {
	Decide(gs *gamestate.State) BetDecision
	Update(res BetResult)
	OnAltAction(a AltAction)
	Reset()
	Genome() map[string]any
}

// BetResult is the subset of a resolved bet a strategy needs to update its
// progression and metrics: only the Won, Bet and Payout fields of a
// game.BetResult.
type BetResult struct {
	Won    bool
	Bet    money.Money
	Payout money.Money
}

// Metrics are the auto-accrued statistics the framework maintains for every
// strategy, regardless of its concrete progression logic (spec §4.4).
type Metrics struct {
	TotalBets       int
	Wins            int
	Losses          int
	MaxBetSeen      money.Money
	CurrentDrawdown float64
	FitnessScore    float64
	Confidence      float64 // clamped to [0.1, 1.0]

	returns []float64 // per-bet fractional return, for fitness_score
}

// NewMetrics returns zeroed Metrics with Confidence starting at 1.0.
func NewMetrics() *Metrics {
	return &Metrics{MaxBetSeen: money.Zero(), Confidence: 1.0}
}

const fitnessEps = 1e-9

// Accrue folds one resolved bet into the metrics: counts, max bet seen,
// confidence drift, and fitness_score = mean_return / (stddev + eps)
// (spec §4.4).
func (m *Metrics) Accrue(res BetResult) {
	m.TotalBets++
	if res.Won {
		m.Wins++
		m.Confidence += 0.02
	} else {
		m.Losses++
		m.Confidence -= 0.05
	}
	if m.Confidence < 0.1 {
		m.Confidence = 0.1
	}
	if m.Confidence > 1.0 {
		m.Confidence = 1.0
	}
	if res.Bet.GreaterThan(m.MaxBetSeen) {
		m.MaxBetSeen = res.Bet
	}

	var ret float64
	if !res.Bet.IsZero() {
		r, _ := res.Payout.DivRound(res.Bet, 8)
		ret = r.InexactFloat64()
	}
	m.returns = append(m.returns, ret)

	mean := stat.Mean(m.returns, nil)
	var stddev float64
	if len(m.returns) >= 2 {
		stddev = stat.StdDev(m.returns, nil)
	}
	m.FitnessScore = mean / (stddev + fitnessEps)
}

// SetConfidence overrides the confidence level in place, clamped to the
// same [0.1, 1.0] band Accrue enforces. Used to carry confidence from an
// outgoing strategy to its replacement on an adaptive switch (spec §4.4).
func (m *Metrics) SetConfidence(c float64) {
	if c < 0.1 {
		c = 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	m.Confidence = c
}

// ConfidenceCarrier is implemented by strategies whose confidence can be
// overwritten in place. Adaptive uses it to carry the outgoing strategy's
// confidence over to the incoming one when a rule fires; a strategy that
// does not implement it simply keeps its own level.
type ConfidenceCarrier interface {
	CarryConfidence(c float64)
}

// Confidence extracts a strategy's self-reported confidence from its
// Genome, defaulting to 1.0 when absent. Shared by composite, adaptive,
// and parking so each doesn't hand-roll the same genome lookup.
func Confidence(s Strategy) float64 {
	if g := s.Genome(); g != nil {
		if v, ok := g["confidence"].(float64); ok {
			return v
		}
	}
	return 1.0
}

// Key names a registered strategy builder, e.g. "flat", "martingale".
type Key string

// Builder constructs a Strategy instance from a YAML-decoded config blob.
// cfg is left as map[string]any so the registry does not need to know each
// strategy's concrete config type; builders perform their own decoding.
type Builder func(cfg map[string]any) (Strategy, error)

// Registry is a fail-fast, name-keyed catalog of strategy Builders,
// generalizing sdk/slot.LogicRegistry's symbol table from game IDs to
// strategy names.
type Registry struct {
	builders map[Key]Builder
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[Key]Builder, 32)}
}

// Register adds a builder under key, or fails if key is already taken.
func (r *Registry) Register(key Key, b Builder) error {
	if _, ok := r.builders[key]; ok {
		return errs.ConfigInvalid(fmt.Sprintf("strategy: duplicate builder for key %q", key))
	}
	r.builders[key] = b
	return nil
}

// Build constructs a Strategy for key using cfg.
func (r *Registry) Build(key Key, cfg map[string]any) (Strategy, error) {
	b, ok := r.builders[key]
	if !ok {
		return nil, errs.ConfigInvalid(fmt.Sprintf("strategy: unknown key %q", key))
	}
	return b(cfg)
}

// IsExist reports whether key has a registered builder.
func (r *Registry) IsExist(key Key) bool {
	_, ok := r.builders[key]
	return ok
}

// Keys returns all registered keys, in no particular order.
func (r *Registry) Keys() []Key {
	out := make([]Key, 0, len(r.builders))
	for k := range r.builders {
		out = append(out, k)
	}
	return out
}

// Merge combines multiple registries into a new one. Duplicate keys across
// registries are a fail-fast error, matching sdk/slot.MergeLogicRegistry's
// "no last-one-wins" contract (function values are not comparable in Go, so
// silently picking a winner would be non-deterministic).
func Merge(regs ...*Registry) (*Registry, error) {
	out := NewRegistry()
	origin := make(map[Key]int, 32)
	for i, r := range regs {
		if r == nil {
			continue
		}
		for k, b := range r.builders {
			if _, ok := out.builders[k]; ok {
				return nil, errs.ConfigInvalid(fmt.Sprintf("strategy: duplicate key %q (registry #%d and #%d)", k, origin[k], i))
			}
			out.builders[k] = b
			origin[k] = i
		}
	}
	return out, nil
}

// Global is the process-wide registry concrete strategies self-register
// into via init(), mirroring the demo_logic package's pattern. Simulation
// configs reference strategies by Key; nothing about a simulation run
// itself is process-global (spec §9) — only the catalog of known builders
// is shared, the way a symbol table is shared but machine instances are not.
var Global = NewRegistry()
