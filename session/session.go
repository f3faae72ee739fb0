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

// Package session wraps a gamestate.State with the stop-loss/take-profit/
// max-bets termination predicate of spec §4.5, and owns the session's
// identity and wall-clock lifetime. One Session exists per replay,
// generalizing machine.go's per-instance lifecycle discipline from one
// machine's Core state to one simulated bettor's run.
package session

import (
	"time"

	"github.com/zintix-labs/dicebot/game"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
)

// Reason is the terminal-reason taxonomy of spec §3.
type Reason uint8

const (
	None Reason = iota
	Bankrupt
	StopLoss
	TakeProfit
	MaxBets
	ExternalCancel
)

func (r Reason) String() string {
	switch r {
	case Bankrupt:
		return "BANKRUPT"
	case StopLoss:
		return "STOP_LOSS"
	case TakeProfit:
		return "TAKE_PROFIT"
	case MaxBets:
		return "MAX_BETS"
	case ExternalCancel:
		return "EXTERNAL_CANCEL"
	default:
		return ""
	}
}

// Config tunes a Session's stop predicate (spec §4.5/§6).
type Config struct {
	MinBet          money.Money
	StopLossRatio   float64 // negative fraction of starting balance, e.g. -0.5; 0 disables
	TakeProfitRatio float64 // positive fraction; 0 disables
	MaxBets         int     // 0 means unlimited
	HistoryWindow   int     // forwarded to gamestate.New
}

// Session is one replay: a gamestate.State plus the stop predicate and
// terminal-reason bookkeeping of spec §4.5.
type Session struct {
	ID        string
	Config    Config
	State     *gamestate.State
	StartedAt time.Time

	reason          Reason
	oracleExhausted bool
}

// New creates a Session with the given id and starting balance.
func New(id string, startBalance money.Money, cfg Config) *Session {
	return &Session{
		ID:        id,
		Config:    cfg,
		State:     gamestate.New(startBalance, cfg.HistoryWindow),
		StartedAt: time.Now(),
	}
}

// Apply folds a resolved bet into the session's game state.
func (s *Session) Apply(res game.BetResult) {
	s.State.Apply(res)
}

// ShouldStop evaluates spec §4.5's termination predicate in the documented
// priority order and latches the first reason found; subsequent calls
// return the same latched reason (a Session, once stopped, stays stopped).
func (s *Session) ShouldStop() (bool, Reason) {
	if s.reason != None {
		return true, s.reason
	}
	if s.State.Balance.LessThan(s.Config.MinBet) {
		s.reason = Bankrupt
		return true, s.reason
	}
	roi := s.State.ROI()
	if s.Config.StopLossRatio != 0 && roi <= s.Config.StopLossRatio {
		s.reason = StopLoss
		return true, s.reason
	}
	if s.Config.TakeProfitRatio != 0 && roi >= s.Config.TakeProfitRatio {
		s.reason = TakeProfit
		return true, s.reason
	}
	if s.Config.MaxBets > 0 && s.State.BetsCount >= s.Config.MaxBets {
		s.reason = MaxBets
		return true, s.reason
	}
	return false, None
}

// Cancel latches ExternalCancel as the terminal reason (spec §5:
// cancellation is observed between bets, never mid-bet).
func (s *Session) Cancel() {
	if s.reason == None {
		s.reason = ExternalCancel
	}
}

// MarkOracleExhausted latches Bankrupt with the ORACLE_EXHAUSTED flag set
// (spec §7: fatal for the session, SESSION_END(BANKRUPT) with a distinct
// flag — in practice impossible but must be handled).
func (s *Session) MarkOracleExhausted() {
	if s.reason == None {
		s.reason = Bankrupt
	}
	s.oracleExhausted = true
}

// OracleExhausted reports whether this session ended via the
// ORACLE_EXHAUSTED fatal path rather than an ordinary bankroll bankruptcy.
func (s *Session) OracleExhausted() bool { return s.oracleExhausted }

// MarkBankrupt latches Bankrupt without the ORACLE_EXHAUSTED flag, for an
// engine that finds a bet unplayable outside of that specific path (e.g.
// the clamped bet still fails table validation).
func (s *Session) MarkBankrupt() {
	if s.reason == None {
		s.reason = Bankrupt
	}
}

// TerminalReason returns the latched reason, or None if still running.
func (s *Session) TerminalReason() Reason { return s.reason }
