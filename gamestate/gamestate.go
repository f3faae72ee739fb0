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

// Package gamestate accumulates the running picture of one session's play:
// balance, streaks, drawdown, a bounded bet-history window, and parking
// counters (spec §3). Modeled on recorder.SpinRecorder's accumulate-then-
// report shape, with the accrued-statistics style of stats.Std/Cv/Ci.
package gamestate

import (
	"time"

	"github.com/zintix-labs/dicebot/game"
	"github.com/zintix-labs/dicebot/money"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the default bounded bet-history size (spec §3).
const DefaultWindow = 20

// MaxWindow is the largest bet-history window a session may configure.
const MaxWindow = 100

// State is the rolling, mutable game-state model for one session.
type State struct {
	Balance money.Money

	BetsCount     int
	WinsCount     int
	LossesCount   int
	CurrentStreak int // signed: +n wins in a row, -n losses in a row

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	PeakBalance     money.Money
	TroughBalance   money.Money
	CurrentDrawdown float64 // fraction of PeakBalance lost, 0 when at/above peak
	MaxDrawdown     float64

	BetHistory []game.BetResult // bounded ring, newest at the tail
	window     int

	ParkingBetsCount   int
	ParkingLosses      int
	SeedRotationsCount int
	BetTypeToggles     int

	SessionStartTime    time.Time
	SessionStartBalance money.Money

	returns []float64 // per-bet fractional return, for fitness/Sharpe
}

// New creates a State with the given starting balance and history window.
// A window of 0 selects DefaultWindow; values above MaxWindow are clamped.
func New(startBalance money.Money, window int) *State {
	if window <= 0 {
		window = DefaultWindow
	}
	if window > MaxWindow {
		window = MaxWindow
	}
	return &State{
		Balance:             startBalance,
		PeakBalance:         startBalance,
		TroughBalance:       startBalance,
		window:              window,
		SessionStartTime:    time.Now(),
		SessionStartBalance: startBalance,
	}
}

// Apply folds a resolved bet into the running state (spec §4.6's
// `gamestate.update(result)` step).
func (s *State) Apply(res game.BetResult) {
	s.Balance = s.Balance.Add(res.Payout)
	s.BetsCount++

	if res.Won {
		s.WinsCount++
		if s.CurrentStreak >= 0 {
			s.CurrentStreak++
		} else {
			s.CurrentStreak = 1
		}
		if s.CurrentStreak > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = s.CurrentStreak
		}
	} else {
		s.LossesCount++
		if s.CurrentStreak <= 0 {
			s.CurrentStreak--
		} else {
			s.CurrentStreak = -1
		}
		if -s.CurrentStreak > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = -s.CurrentStreak
		}
	}

	if s.Balance.GreaterThan(s.PeakBalance) {
		s.PeakBalance = s.Balance
		s.CurrentDrawdown = 0
	} else if !s.PeakBalance.IsZero() {
		dd, _ := s.PeakBalance.Sub(s.Balance).DivRound(s.PeakBalance, 8)
		s.CurrentDrawdown = dd.InexactFloat64()
		if s.CurrentDrawdown > s.MaxDrawdown {
			s.MaxDrawdown = s.CurrentDrawdown
		}
	}
	if s.Balance.LessThan(s.TroughBalance) {
		s.TroughBalance = s.Balance
	}

	s.BetHistory = append(s.BetHistory, res)
	if len(s.BetHistory) > s.window {
		s.BetHistory = s.BetHistory[len(s.BetHistory)-s.window:]
	}

	if !res.Bet.IsZero() {
		ret, _ := res.Payout.DivRound(res.Bet, 8)
		s.returns = append(s.returns, ret.InexactFloat64())
	}
}

// RecordParkingBet counts one bet placed while in parking mode.
func (s *State) RecordParkingBet(lost bool) {
	s.ParkingBetsCount++
	if lost {
		s.ParkingLosses++
	}
}

// RecordSeedRotation counts one server-seed rotation.
func (s *State) RecordSeedRotation() { s.SeedRotationsCount++ }

// RecordBetTypeToggle counts one UNDER/OVER toggle that did not consume a nonce.
func (s *State) RecordBetTypeToggle() { s.BetTypeToggles++ }

// ConsecutiveLosses returns the current losing streak length (0 if on a win
// streak or no bets yet).
func (s *State) ConsecutiveLosses() int {
	if s.CurrentStreak < 0 {
		return -s.CurrentStreak
	}
	return 0
}

// ConsecutiveWins returns the current winning streak length.
func (s *State) ConsecutiveWins() int {
	if s.CurrentStreak > 0 {
		return s.CurrentStreak
	}
	return 0
}

// MeanReturn is the mean fractional per-bet return over all recorded bets.
func (s *State) MeanReturn() float64 {
	if len(s.returns) == 0 {
		return 0
	}
	return stat.Mean(s.returns, nil)
}

// StddevReturn is the sample (n-1) standard deviation of per-bet returns
// (gonum's stat.StdDev).
func (s *State) StddevReturn() float64 {
	if len(s.returns) < 2 {
		return 0
	}
	return stat.StdDev(s.returns, nil)
}

// Sharpe is the fitness_score formula from spec §4.4:
// mean_return / (stddev_return + eps).
func (s *State) Sharpe(eps float64) float64 {
	return s.MeanReturn() / (s.StddevReturn() + eps)
}

// ROI is the session's return on initial balance so far.
func (s *State) ROI() float64 {
	if s.SessionStartBalance.IsZero() {
		return 0
	}
	roi, _ := s.Balance.Sub(s.SessionStartBalance).DivRound(s.SessionStartBalance, 8)
	return roi.InexactFloat64()
}
