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

// Package game is a thin combinator over an oracle.Oracle and the
// house-edge threshold math: it turns (bet, multiplier, bet_type) into an
// immutable BetResult, consuming exactly one nonce per roll. Modeled on
// the teacher's sdk/slot.Game, which wraps a Core + GameLogic the same way.
package game

import (
	"time"

	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/oracle"
)

// Limits bound what a single roll will accept (spec §4.3).
type Limits struct {
	MinBet        money.Money
	MinMultiplier float64
	MaxMultiplier float64
}

// DefaultLimits matches spec §6's documented defaults.
func DefaultLimits() Limits {
	minBet, _ := money.FromString("0.00015")
	return Limits{MinBet: minBet, MinMultiplier: 1.01, MaxMultiplier: 99.00}
}

// BetResult is immutable once produced (spec §3).
type BetResult struct {
	Roll           oracle.Roll
	Threshold      float64
	Won            bool
	Bet            money.Money
	Multiplier     float64
	Payout         money.Money // positive on win, negative (== -bet) on loss
	BetType        oracle.BetType
	ServerSeedHash string
	ClientSeed     string
	Nonce          uint64
	Timestamp      time.Time
}

// Game owns one Oracle and the active limits for a session.
type Game struct {
	Oracle *oracle.Oracle
	Limits Limits
	now    func() time.Time
}

// New builds a Game around an already-constructed Oracle.
func New(o *oracle.Oracle, limits Limits) *Game {
	return &Game{Oracle: o, Limits: limits, now: time.Now}
}

// Roll validates inputs, derives a roll (consuming one nonce), and returns
// the immutable BetResult (spec §4.3).
func (g *Game) Roll(bet money.Money, multiplier float64, betType oracle.BetType, balance money.Money) (BetResult, error) {
	if multiplier < g.Limits.MinMultiplier || multiplier > g.Limits.MaxMultiplier {
		return BetResult{}, errs.BetInvalid("game: multiplier out of band")
	}
	if bet.LessThan(g.Limits.MinBet) {
		return BetResult{}, errs.BetInvalid("game: bet below minimum")
	}
	if bet.GreaterThan(balance) {
		return BetResult{}, errs.BetInvalid("game: bet exceeds balance")
	}

	roll, triple, err := g.Oracle.RollNext()
	if err != nil {
		return BetResult{}, err
	}

	won := oracle.Won(roll, betType, multiplier)
	var payout money.Money
	if won {
		payout = bet.MulFloatMultiplier(multiplier)
	} else {
		payout = bet.Neg()
	}

	info := g.Oracle.GetCurrentInfo()
	_ = triple // triple carries the exact inputs consumed; info carries the commitment hash shown externally

	return BetResult{
		Roll:           roll,
		Threshold:      oracle.Threshold(multiplier),
		Won:            won,
		Bet:            bet,
		Multiplier:     multiplier,
		Payout:         payout,
		BetType:        betType,
		ServerSeedHash: info.ServerSeedHash,
		ClientSeed:     triple.ClientSeed,
		Nonce:          triple.Nonce,
		Timestamp:      g.now(),
	}, nil
}
