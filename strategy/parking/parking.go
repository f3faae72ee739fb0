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

// Package parking wraps any strategy.Strategy with the sequential-nonce
// workaround of spec §4.4: when the base wants to skip, or when a loss
// streak/drawdown threshold is crossed, Parking chooses between toggling
// the bet side, rotating seeds, or placing a minimal near-certain bet,
// rather than ever leaving a nonce unconsumed with no forward progress.
// No strategy exactly like this exists in the teacher (slot machines never
// "skip a spin"); it is built in the registry/interface idiom of package
// strategy.
package parking

import (
	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/oracle"
	"github.com/zintix-labs/dicebot/strategy"
)

// Config tunes when and how Parking intervenes (spec §4.4 and §6).
type Config struct {
	MaxTogglesBeforeBet   int
	AutoRotationThreshold int // bets since rotation
	ParkingBetAmount      money.Money
	ParkingTarget         float64 // yields ~target% win chance after edge
	ParkingBetType        oracle.BetType
	OnConsecutiveLosses   int
	OnDrawdownPercent     float64
}

// DefaultConfig matches spec §6's documented parking defaults.
func DefaultConfig() Config {
	amount, _ := money.FromString("0.00015")
	return Config{
		MaxTogglesBeforeBet:   3,
		AutoRotationThreshold: 1000,
		ParkingBetAmount:      amount,
		ParkingTarget:         98.0,
		ParkingBetType:        oracle.Under,
		OnConsecutiveLosses:   5,
		OnDrawdownPercent:     0.10,
	}
}

// Parking wraps a base strategy. The base is consulted first; Parking only
// overrides it when the base skips or when a spontaneous-entry condition
// fires (spec §4.4).
type Parking struct {
	cfg         Config
	base        strategy.Strategy
	toggleCount int
	betsSince   int // bets consumed since last seed rotation observed
	currentType oracle.BetType
}

// Wrap builds a Parking strategy around base.
func Wrap(cfg Config, base strategy.Strategy) (*Parking, error) {
	if base == nil {
		return nil, errs.ConfigInvalid("parking: base strategy is required")
	}
	if cfg.MaxTogglesBeforeBet <= 0 {
		cfg.MaxTogglesBeforeBet = 3
	}
	if cfg.AutoRotationThreshold <= 0 {
		cfg.AutoRotationThreshold = 1000
	}
	if cfg.ParkingTarget <= 0 {
		cfg.ParkingTarget = 98.0
	}
	return &Parking{cfg: cfg, base: base, currentType: cfg.ParkingBetType}, nil
}

// spontaneous reports whether Parking should engage even though the base
// did not ask to skip (spec §4.4: loss-streak or drawdown triggers).
func (p *Parking) spontaneous(gs *gamestate.State) bool {
	if p.cfg.OnConsecutiveLosses > 0 && gs.ConsecutiveLosses() >= p.cfg.OnConsecutiveLosses {
		return true
	}
	if p.cfg.OnDrawdownPercent > 0 && gs.CurrentDrawdown >= p.cfg.OnDrawdownPercent {
		return true
	}
	return false
}

func (p *Parking) Decide(gs *gamestate.State) strategy.BetDecision {
	if !p.spontaneous(gs) {
		d := p.base.Decide(gs)
		if !d.Skip {
			p.currentType = d.BetType
			return d
		}
	}
	return p.alt()
}

// alt picks one of the three alternatives in spec §4.4's priority order:
// toggle, then auto-rotate, then a parking bet. toggleCount is the toggle
// budget for the current skip episode; it renews only when a bet is
// actually consumed (see Update), never on a rotation — a rotation in the
// middle of an episode must not reopen the budget, or two toggle bursts
// could straddle it and exceed MaxTogglesBeforeBet between consumed bets.
func (p *Parking) alt() strategy.BetDecision {
	if p.toggleCount < p.cfg.MaxTogglesBeforeBet {
		p.toggleCount++
		return strategy.BetDecision{Skip: true, Action: strategy.ActionToggleBetType}
	}
	if p.betsSince >= p.cfg.AutoRotationThreshold {
		return strategy.BetDecision{Skip: true, Action: strategy.ActionSeedRotated}
	}
	return strategy.BetDecision{
		Bet:        p.cfg.ParkingBetAmount,
		Multiplier: 100.0 / p.cfg.ParkingTarget,
		BetType:    p.currentType,
		Action:     strategy.ActionParkingBet,
		Confidence: strategy.Confidence(p.base),
		Metadata:   map[string]any{"parking": true},
	}
}

// Update only ever sees consumed bets — toggles and rotations never reach
// Update, they go through OnAltAction (spec §4.6's engine loop routes them
// separately and `continue`s before calling Update). A consumed bet ends
// the current skip episode, so the toggle budget renews here.
func (p *Parking) Update(res strategy.BetResult) {
	p.betsSince++
	p.toggleCount = 0
	p.base.Update(res)
}

// CarryConfidence forwards a confidence override to the base strategy, so
// a Parking-wrapped child behaves like its base under an adaptive switch.
func (p *Parking) CarryConfidence(c float64) {
	if cc, ok := p.base.(strategy.ConfidenceCarrier); ok {
		cc.CarryConfidence(c)
	}
}

func (p *Parking) OnAltAction(a strategy.AltAction) {
	switch a {
	case strategy.ActionToggleBetType:
		if p.currentType == oracle.Under {
			p.currentType = oracle.Over
		} else {
			p.currentType = oracle.Under
		}
	case strategy.ActionSeedRotated:
		p.betsSince = 0
	}
	p.base.OnAltAction(a)
}

func (p *Parking) Reset() {
	p.toggleCount = 0
	p.betsSince = 0
	p.currentType = p.cfg.ParkingBetType
	p.base.Reset()
}

func (p *Parking) Genome() map[string]any {
	return map[string]any{
		"kind":                "parking",
		"toggle_count":        p.toggleCount,
		"bets_since_rotation": p.betsSince,
		"current_type":        p.currentType.String(),
		"base":                p.base.Genome(),
		"confidence":          strategy.Confidence(p.base),
	}
}
