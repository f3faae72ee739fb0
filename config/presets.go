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

package config

import "github.com/zintix-labs/dicebot/errs"

// PresetTunable is the Martingale-shaped tunable block every named preset
// of the Glossary resolves to.
type PresetTunable struct {
	BaseBet    string  `yaml:"base_bet"`
	MaxLosses  int     `yaml:"max_losses"`
	Multiplier float64 `yaml:"multiplier"`
}

// ResolvePreset returns the tunable values the Glossary documents for a
// named preset.
func ResolvePreset(p StrategyPreset) (PresetTunable, error) {
	switch p {
	case Conservative:
		return PresetTunable{BaseBet: "0.0005", MaxLosses: 5, Multiplier: 2.0}, nil
	case Moderate, "":
		return PresetTunable{BaseBet: "0.001", MaxLosses: 8, Multiplier: 2.0}, nil
	case Aggressive:
		return PresetTunable{BaseBet: "0.002", MaxLosses: 12, Multiplier: 2.0}, nil
	case Experimental:
		return PresetTunable{BaseBet: "0.003", MaxLosses: 15, Multiplier: 2.5}, nil
	default:
		return PresetTunable{}, errs.ConfigInvalid("config: unknown strategy_preset " + string(p))
	}
}
