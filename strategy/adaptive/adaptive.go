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

// Package adaptive holds an ordered rule list that switches the active
// strategy by name when a condition fires (spec §4.4). Children are held
// by name in a map, never by an ownership edge — the same shape as
// catalog.Catalog's byName lookup, per spec §9's explicit guidance that
// rule targets are name-based lookups, not ownership cycles.
package adaptive

import (
	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/eventbus"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/strategy"
)

// Condition is one of the seven trigger conditions a Rule can test.
type Condition uint8

const (
	ConsecutiveLosses Condition = iota
	ConsecutiveWins
	DrawdownPct
	ProfitPct
	LowConfidence
	BalanceBelow
	BalanceAbove
)

// Rule is one entry of the adaptive rule list (spec §4.4).
type Rule struct {
	Condition    Condition
	Threshold    float64
	TargetName   string
	CooldownBets int
}

// Adaptive evaluates its rules once per decision (functionally equivalent
// to evaluating "after every update", since Decide is always immediately
// followed by the engine resolving and Updating the same bet — see
// DESIGN.md's Open Question note) and switches the active child by name
// when the first non-cooling rule matches.
type Adaptive struct {
	rules    []Rule
	children map[string]strategy.Strategy
	order    []string // stable iteration for Genome
	active   string
	cooldown int
	initial  string
	bus      *eventbus.Bus // optional; publishes Switched on StrategySwitch
}

// Switched is the payload published on eventbus.StrategySwitch when a rule
// fires and the active strategy changes.
type Switched struct {
	From      string
	To        string
	Condition Condition
}

// SetBus attaches an event bus so rule-driven switches are published as
// StrategySwitch events. A nil bus disables publication.
func (a *Adaptive) SetBus(bus *eventbus.Bus) { a.bus = bus }

// New builds an Adaptive over the given named children. initial names the
// starting active strategy; every rule's TargetName must be a known child.
func New(rules []Rule, children map[string]strategy.Strategy, initial string) (*Adaptive, error) {
	if len(children) == 0 {
		return nil, errs.ConfigInvalid("adaptive: requires at least one child strategy")
	}
	if _, ok := children[initial]; !ok {
		return nil, errs.ConfigInvalid("adaptive: initial strategy " + initial + " not found among children")
	}
	order := make([]string, 0, len(children))
	for name := range children {
		order = append(order, name)
	}
	for _, r := range rules {
		if _, ok := children[r.TargetName]; !ok {
			return nil, errs.ConfigInvalid("adaptive: rule target " + r.TargetName + " not found among children")
		}
	}
	return &Adaptive{rules: rules, children: children, order: order, active: initial, initial: initial}, nil
}

func (a *Adaptive) activeStrategy() strategy.Strategy { return a.children[a.active] }

func (a *Adaptive) Decide(gs *gamestate.State) strategy.BetDecision {
	if a.cooldown <= 0 {
		a.maybeSwitch(gs)
	}
	return a.activeStrategy().Decide(gs)
}

func (a *Adaptive) maybeSwitch(gs *gamestate.State) {
	for _, r := range a.rules {
		if r.TargetName == a.active {
			continue
		}
		if a.matches(r, gs) {
			prev := a.active
			carried := strategy.Confidence(a.activeStrategy())
			a.active = r.TargetName
			a.cooldown = r.CooldownBets
			// confidence carries over to the incoming strategy (spec §4.4)
			if cc, ok := a.children[r.TargetName].(strategy.ConfidenceCarrier); ok {
				cc.CarryConfidence(carried)
			}
			if a.bus != nil {
				a.bus.Publish(eventbus.StrategySwitch, Switched{From: prev, To: r.TargetName, Condition: r.Condition})
			}
			return
		}
	}
}

func (a *Adaptive) matches(r Rule, gs *gamestate.State) bool {
	switch r.Condition {
	case ConsecutiveLosses:
		return float64(gs.ConsecutiveLosses()) >= r.Threshold
	case ConsecutiveWins:
		return float64(gs.ConsecutiveWins()) >= r.Threshold
	case DrawdownPct:
		return gs.CurrentDrawdown >= r.Threshold
	case ProfitPct:
		return gs.ROI() >= r.Threshold
	case LowConfidence:
		return strategy.Confidence(a.activeStrategy()) <= r.Threshold
	case BalanceBelow:
		return gs.Balance.LessThan(money.FromFloatLossy(r.Threshold).Value)
	case BalanceAbove:
		return gs.Balance.GreaterThan(money.FromFloatLossy(r.Threshold).Value)
	default:
		return false
	}
}

// Update feeds the resolved bet to the active child only — progression
// state of the outgoing strategy is preserved untouched for potential
// return (spec §4.4), so inactive children simply don't see bets that
// happened while they were benched.
func (a *Adaptive) Update(res strategy.BetResult) {
	a.activeStrategy().Update(res)
	if a.cooldown > 0 {
		a.cooldown--
	}
}

// CarryConfidence forwards a confidence override to the active child, so
// a nested Adaptive behaves like its current strategy under an outer
// switch.
func (a *Adaptive) CarryConfidence(c float64) {
	if cc, ok := a.activeStrategy().(strategy.ConfidenceCarrier); ok {
		cc.CarryConfidence(c)
	}
}

func (a *Adaptive) OnAltAction(act strategy.AltAction) {
	for _, s := range a.children {
		s.OnAltAction(act)
	}
}

func (a *Adaptive) Reset() {
	for _, s := range a.children {
		s.Reset()
	}
	a.active = a.initial
	a.cooldown = 0
}

func (a *Adaptive) Genome() map[string]any {
	children := make(map[string]any, len(a.children))
	for _, name := range a.order {
		children[name] = a.children[name].Genome()
	}
	return map[string]any{
		"kind":       "adaptive",
		"active":     a.active,
		"cooldown":   a.cooldown,
		"confidence": strategy.Confidence(a.activeStrategy()),
		"children":   children,
	}
}
