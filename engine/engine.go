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

// Package engine runs the per-session bet loop of spec §4.6: ask the
// strategy to decide, route alt-actions without consuming a nonce, clamp
// the real bet into the table's limits, roll, fold the result back into
// session and strategy state, and publish every step onto the session's
// event bus. One Engine drives exactly one Session with exactly one
// Oracle, the way machine.go's Spin drives one Machine's Core through one
// resolve-and-restore cycle per call — except an Engine's loop runs until
// the session's own stop predicate fires, not once per external request.
package engine

import (
	"context"

	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/eventbus"
	"github.com/zintix-labs/dicebot/game"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/oracle"
	"github.com/zintix-labs/dicebot/session"
	"github.com/zintix-labs/dicebot/strategy"
)

// Engine wires one Session's Game, Strategy and event Bus together and
// drives the bet loop until the session's stop predicate fires or the
// caller cancels ctx.
type Engine struct {
	Session  *session.Session
	Game     *game.Game
	Strategy strategy.Strategy
	Bus      *eventbus.Bus
	Hooks    strategy.Hooks
}

// New builds an Engine. bus may be nil, in which case a private bus
// scoped to sess.ID is created.
func New(sess *session.Session, g *game.Game, strat strategy.Strategy, bus *eventbus.Bus, hooks strategy.Hooks) *Engine {
	if bus == nil {
		bus = eventbus.New(sess.ID)
	}
	return &Engine{Session: sess, Game: g, Strategy: strat, Bus: bus, Hooks: hooks}
}

// Result summarizes how a Run ended.
type Result struct {
	Reason session.Reason
	Bets   int
}

// Snapshot is enough state to resume a session between simulation runs
// (spec §4.8), generalizing Machine.SnapshotCore/RestoreCore's before/after
// discipline from one Core to one Engine. Strategy state is captured only
// as its read-only Genome for audit/resume-inspection; a resumed engine's
// strategy restarts from a fresh Reset() rather than replaying internal
// progression counters, since Strategy exposes no generic import path —
// checkpointing is whole-session granularity, never mid-session.
type Snapshot struct {
	SessionID  string
	OracleSeed oracle.SeedTriple
	GameState  gamestate.State
	Genome     map[string]any
	Reason     session.Reason
}

// Snapshot captures the engine's current oracle/gamestate/strategy-genome
// state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		SessionID:  e.Session.ID,
		OracleSeed: e.Game.Oracle.Snapshot(),
		GameState:  *e.Session.State,
		Genome:     e.Strategy.Genome(),
		Reason:     e.Session.TerminalReason(),
	}
}

// Restore rewinds the engine's oracle and gamestate to a prior Snapshot.
// The strategy is reset to a blank state rather than genome-replayed; see
// Snapshot's doc comment.
func (e *Engine) Restore(snap Snapshot) {
	e.Game.Oracle.Restore(snap.OracleSeed)
	*e.Session.State = snap.GameState
	e.Strategy.Reset()
}

// Run drives the loop of spec §4.6 until the session stops or ctx is
// cancelled. Cancellation is only observed between bets (spec §5); a bet
// already dispatched to the oracle always resolves.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	e.Bus.Publish(eventbus.SessionStart, e.Session.ID)

	for {
		select {
		case <-ctx.Done():
			e.Session.Cancel()
		default:
		}

		if stop, reason := e.Session.ShouldStop(); stop {
			e.Bus.Publish(eventbus.SessionEnd, reason.String())
			return Result{Reason: reason, Bets: e.Session.State.BetsCount}, nil
		}

		decision := strategy.Dispatch(e.Session.State, e.Hooks, e.Strategy)
		e.Bus.Publish(eventbus.BetDecision, decision)

		if decision.Skip {
			if err := e.routeAlt(decision.Action); err != nil {
				return Result{Reason: session.Bankrupt, Bets: e.Session.State.BetsCount}, err
			}
			continue
		}

		bet := e.clamp(decision.Bet)
		res, err := e.Game.Roll(bet, decision.Multiplier, decision.BetType, e.Session.State.Balance)
		if err != nil {
			if errs.IsKind(err, errs.KindOracleExhausted) {
				e.Session.MarkOracleExhausted()
				e.Bus.Publish(eventbus.SessionEnd, session.Bankrupt.String())
				return Result{Reason: session.Bankrupt, Bets: e.Session.State.BetsCount}, nil
			}
			if errs.IsKind(err, errs.KindBetInvalid) {
				// Recoverable in principle, but clamp already bounds the bet
				// to [MinBet, Balance], so reaching this means the table
				// cannot be played at all (e.g. balance below min). Treat as
				// a bankrupt exit rather than looping forever on it.
				e.Session.MarkBankrupt()
				return Result{Reason: session.Bankrupt, Bets: e.Session.State.BetsCount}, nil
			}
			return Result{Reason: session.Bankrupt, Bets: e.Session.State.BetsCount}, err
		}

		e.Bus.Publish(eventbus.BetPlaced, res)
		e.Session.Apply(res)
		e.Strategy.Update(strategy.BetResult{Won: res.Won, Bet: res.Bet, Payout: res.Payout})
		e.Bus.Publish(eventbus.BetResolved, res)
		e.Bus.Publish(eventbus.BetResult, res)

		if decision.Action == strategy.ActionParkingBet {
			e.Session.State.RecordParkingBet(!res.Won)
			e.Bus.Publish(eventbus.StrategyParkingBet, res)
		}

		e.emitAlerts()
	}
}

// routeAlt performs a non-nonce-consuming alt-action (spec §4.6's
// toggle/rotate branch) and notifies the strategy, publishing the matching
// event kind.
func (e *Engine) routeAlt(action strategy.AltAction) error {
	switch action {
	case strategy.ActionToggleBetType:
		e.Session.State.RecordBetTypeToggle()
		e.Strategy.OnAltAction(action)
		e.Bus.Publish(eventbus.StrategyToggle, nil)
	case strategy.ActionSeedRotated:
		revealed, err := e.Game.Oracle.RotateSeeds()
		if err != nil {
			return err
		}
		e.Session.State.RecordSeedRotation()
		e.Strategy.OnAltAction(action)
		e.Bus.Publish(eventbus.StrategySeedChange, revealed)
	case strategy.ActionParkingBet:
		// A parking bet is a real bet at a near-certain multiplier; it still
		// consumes a nonce, so route it through the ordinary roll path by
		// re-asking the strategy is unnecessary here — callers that return
		// ActionParkingBet also populate Bet/Multiplier/BetType on the same
		// BetDecision, so Run's Skip branch never reaches this case. Kept
		// only to make the AltAction switch exhaustive and self-documenting.
	}
	return nil
}

// clamp bounds a strategy's requested bet to the table limits and the
// session's current balance (spec §4.6).
func (e *Engine) clamp(bet money.Money) money.Money {
	lim := e.Game.Limits
	if bet.LessThan(lim.MinBet) {
		bet = lim.MinBet
	}
	if bet.GreaterThan(e.Session.State.Balance) {
		bet = e.Session.State.Balance
	}
	return bet
}

// emitAlerts publishes streak/drawdown/profit events derived from the
// freshly-updated session state (spec §4.5).
func (e *Engine) emitAlerts() {
	gs := e.Session.State
	if w := gs.ConsecutiveWins(); w > 0 && w == gs.MaxConsecutiveWins {
		e.Bus.Publish(eventbus.WinningStreak, w)
	}
	if l := gs.ConsecutiveLosses(); l > 0 && l == gs.MaxConsecutiveLosses {
		e.Bus.Publish(eventbus.LosingStreak, l)
	}
	if gs.CurrentDrawdown > 0 && gs.CurrentDrawdown == gs.MaxDrawdown {
		e.Bus.Publish(eventbus.DrawdownAlert, gs.CurrentDrawdown)
	}
	if e.Session.Config.TakeProfitRatio != 0 && gs.ROI() >= e.Session.Config.TakeProfitRatio {
		e.Bus.Publish(eventbus.ProfitTargetReached, gs.ROI())
	}
	if e.Session.Config.StopLossRatio != 0 && gs.ROI() <= e.Session.Config.StopLossRatio {
		e.Bus.Publish(eventbus.StopLossTriggered, gs.ROI())
	}
}
