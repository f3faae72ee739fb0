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

// Package config decodes and validates the YAML configuration record of
// spec §6, using gopkg.in/yaml.v3 the way the teacher's spec package does
// for GameSetting. Strategy tunables are left as a map[string]any blob and
// decoded into concrete config structs on demand via DecodeTunables,
// generalizing spec/fixed_decoder.go's DecodeFixed from one GameSetting's
// Fixed blob to any strategy's tunable block.
package config

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zintix-labs/dicebot/errs"
)

// SimulationConfig is the `simulation` block of spec §6.
type SimulationConfig struct {
	DefaultSessions       uint32 `yaml:"default_sessions"`
	ParallelWorkers       uint32 `yaml:"parallel_workers"`
	AutoParallelThreshold uint32 `yaml:"auto_parallel_threshold"`
	CheckpointInterval    uint32 `yaml:"checkpoint_interval"`
	MaxCheckpointAgeDays  uint32 `yaml:"max_checkpoint_age_days"`
}

// GameConfig is the `game` block of spec §6.
type GameConfig struct {
	HouseEdge     float64 `yaml:"house_edge"`
	MinBet        string  `yaml:"min_bet"`
	MaxBet        string  `yaml:"max_bet"`
	MinMultiplier float64 `yaml:"min_multiplier"`
	MaxMultiplier float64 `yaml:"max_multiplier"`
}

// VaultConfig is the `vault` block of spec §6.
type VaultConfig struct {
	VaultRatio         float64 `yaml:"vault_ratio"`
	WorkingRatio       float64 `yaml:"working_ratio"`
	MaxTransfersPerDay int     `yaml:"max_transfers_per_day"`
}

// SessionConfig is the `session` block: the stop-loss/take-profit/max-bets
// termination predicate of spec §4.5, supplementing spec §6's documented
// key list with the session-scoped knobs RunSpec's session_config refers
// to (the distilled spec names the concept without enumerating its keys).
type SessionConfig struct {
	StopLossRatio   float64 `yaml:"stop_loss_ratio"`
	TakeProfitRatio float64 `yaml:"take_profit_ratio"`
	MaxBets         int     `yaml:"max_bets"`
	HistoryWindow   int     `yaml:"history_window"`
}

// ParkingConfig is the `parking` block of spec §6.
type ParkingConfig struct {
	Enabled                  bool    `yaml:"enabled"`
	MaxTogglesBeforeBet      uint32  `yaml:"max_toggles_before_bet"`
	ParkingBetAmount         string  `yaml:"parking_bet_amount"`
	ParkingTarget            float64 `yaml:"parking_target"`
	ParkingBetType           string  `yaml:"parking_bet_type"`
	AutoSeedRotationAfter    uint32  `yaml:"auto_seed_rotation_after"`
	ParkingOnConsecutiveLoss uint32  `yaml:"parking_on_consecutive_losses"`
	ParkingOnDrawdownPercent float64 `yaml:"parking_on_drawdown_percent"`
}

// StrategyPreset is one of the named presets of the Glossary.
type StrategyPreset string

const (
	Conservative StrategyPreset = "conservative"
	Moderate     StrategyPreset = "moderate"
	Aggressive   StrategyPreset = "aggressive"
	Experimental StrategyPreset = "experimental"
)

// Config is the root configuration record of spec §6.
type Config struct {
	Simulation     SimulationConfig `yaml:"simulation"`
	Game           GameConfig       `yaml:"game"`
	Vault          VaultConfig      `yaml:"vault"`
	Session        SessionConfig    `yaml:"session"`
	StrategyPreset StrategyPreset   `yaml:"strategy_preset"`
	Parking        ParkingConfig    `yaml:"parking"`

	// Strategy carries the strategy registry key plus its tunable block,
	// decoded on demand by strategy builders via DecodeTunables.
	Strategy struct {
		Key     string         `yaml:"key"`
		Tunable map[string]any `yaml:"tunable"`
	} `yaml:"strategy"`
}

// Defaults returns a Config populated with spec §6's documented defaults.
func Defaults() Config {
	var c Config
	c.Simulation = SimulationConfig{
		DefaultSessions:       1,
		ParallelWorkers:       0,
		AutoParallelThreshold: 50,
		CheckpointInterval:    0,
		MaxCheckpointAgeDays:  30,
	}
	c.Game = GameConfig{
		HouseEdge:     0.01,
		MinBet:        "0.00015",
		MinMultiplier: 1.01,
		MaxMultiplier: 99.00,
	}
	c.Vault = VaultConfig{VaultRatio: 0.85, WorkingRatio: 0.15, MaxTransfersPerDay: 2}
	c.Session = SessionConfig{StopLossRatio: 0, TakeProfitRatio: 0, MaxBets: 0, HistoryWindow: 0}
	c.StrategyPreset = Moderate
	c.Parking = ParkingConfig{
		Enabled:                  false,
		MaxTogglesBeforeBet:      3,
		ParkingTarget:            98.0,
		ParkingBetType:           "UNDER",
		AutoSeedRotationAfter:    1000,
		ParkingOnConsecutiveLoss: 5,
		ParkingOnDrawdownPercent: 0.10,
	}
	return c
}

// Load reads and strictly decodes a YAML config file on top of Defaults,
// so a file that only overrides a few keys still yields a complete Config.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.ConfigInvalid("config: failed to read " + path + ": " + err.Error())
	}
	c := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Config{}, errs.ConfigInvalid("config: failed to parse " + path + ": " + err.Error())
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the documented bounds of spec §6, returning a
// CONFIG_INVALID error describing the first violation found.
func (c Config) Validate() error {
	if c.Vault.VaultRatio <= 0 || c.Vault.VaultRatio >= 1 {
		return errs.ConfigInvalid("config: vault.vault_ratio must be in (0, 1)")
	}
	if c.Game.MinMultiplier < 1.0 {
		return errs.ConfigInvalid("config: game.min_multiplier must be >= 1.0")
	}
	if c.Game.MaxMultiplier <= c.Game.MinMultiplier {
		return errs.ConfigInvalid("config: game.max_multiplier must exceed min_multiplier")
	}
	switch c.StrategyPreset {
	case Conservative, Moderate, Aggressive, Experimental, "":
	default:
		return errs.ConfigInvalid("config: unknown strategy_preset " + string(c.StrategyPreset))
	}
	return nil
}

// DecodeTunables decodes cfg.Strategy.Tunable into a concrete struct T,
// generalizing spec/fixed_decoder.go's DecodeFixed from one GameSetting's
// Fixed blob to any strategy's tunable block: marshal the generic blob
// back to YAML, then strictly decode it into T so an unknown or misspelled
// tunable key is a hard error rather than silently ignored.
func DecodeTunables[T any](tunable map[string]any, out *T) error {
	bs, err := yaml.Marshal(tunable)
	if err != nil {
		return errs.Wrap(err, "config: marshal tunables failed")
	}
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return errs.Wrap(err, "config: decode tunables failed")
	}
	return nil
}
