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

// Package basic holds the five concrete fixed-progression strategies from
// spec §4.4's table: Flat, Martingale, Fibonacci, D'Alembert, Paroli. Each
// self-registers into strategy.Global via init(), the way demo_logic's
// concrete logics self-register into the slot LogicRegistry.
package basic

import (
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/oracle"
	"github.com/zintix-labs/dicebot/strategy"
)

// Config is the shared tunable set every basic strategy reads from its
// YAML-decoded builder config. Unknown/missing keys fall back to the
// documented defaults (spec §4.4).
type Config struct {
	BaseBet    money.Money
	MinBet     money.Money
	Multiplier float64
	MaxLosses  int // C in the progression table; 0 means "no cap enforced"
	BetType    oracle.BetType
}

// decodeConfig pulls the shared fields out of a generic config map,
// applying defaults for anything absent. Concrete strategies call this
// first, then read any of their own extra keys.
func decodeConfig(cfg map[string]any) Config {
	out := Config{
		BaseBet:    mustMoney(cfg, "base_bet", "0.001"),
		MinBet:     mustMoney(cfg, "min_bet", "0.00015"),
		Multiplier: floatOr(cfg, "multiplier", 2.0),
		MaxLosses:  intOr(cfg, "max_losses", 0),
		BetType:    oracle.Under,
	}
	if bt, ok := cfg["bet_type"].(string); ok && bt == "OVER" {
		out.BetType = oracle.Over
	}
	return out
}

func mustMoney(cfg map[string]any, key, def string) money.Money {
	if v, ok := cfg[key]; ok {
		switch t := v.(type) {
		case string:
			if m, err := money.FromString(t); err == nil {
				return m
			}
		case float64:
			return money.FromFloatLossy(t).Value
		}
	}
	m, _ := money.FromString(def)
	return m
}

func floatOr(cfg map[string]any, key string, def float64) float64 {
	if v, ok := cfg[key].(float64); ok {
		return v
	}
	return def
}

func intOr(cfg map[string]any, key string, def int) int {
	if v, ok := cfg[key]; ok {
		switch t := v.(type) {
		case int:
			return t
		case float64:
			return int(t)
		}
	}
	return def
}

// clamp enforces spec §4.4's "all must clamp bet to [min_bet, balance]".
func clamp(amount money.Money, cfg Config, balance money.Money) money.Money {
	lo := cfg.MinBet
	hi := balance
	return money.Clamp(amount, lo, hi)
}

func strategyGenome(kind string, cfg Config, metrics *strategy.Metrics, extra map[string]any) map[string]any {
	g := map[string]any{
		"kind":       kind,
		"base_bet":   cfg.BaseBet.String(),
		"multiplier": cfg.Multiplier,
		"max_losses": cfg.MaxLosses,
		"bet_type":   cfg.BetType.String(),
		"confidence": metrics.Confidence,
	}
	for k, v := range extra {
		g[k] = v
	}
	return g
}

func decisionFor(cfg Config, amount money.Money, m *strategy.Metrics, gs *gamestate.State) strategy.BetDecision {
	return strategy.BetDecision{
		Bet:        clamp(amount, cfg, gs.Balance),
		Multiplier: cfg.Multiplier,
		BetType:    cfg.BetType,
		Confidence: m.Confidence,
	}
}
