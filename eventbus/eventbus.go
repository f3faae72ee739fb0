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

// Package eventbus is an in-process pub/sub for the sixteen event kinds a
// simulated session emits. Each Bus keeps a bounded ring of past events and
// fans out synchronously to its subscribers; there is deliberately no
// process-global bus (a session's Engine owns one, the way a MachinePool
// owns its own pool/broken channels rather than reaching for shared state).
package eventbus

import (
	"sync"
	"time"
)

// Kind identifies one of the sixteen event kinds (spec §4.5).
type Kind uint8

const (
	BetPlaced Kind = iota
	BetResolved
	BetDecision
	BetResult
	WinningStreak
	LosingStreak
	DrawdownAlert
	ProfitTargetReached
	StopLossTriggered
	SessionStart
	SessionEnd
	StrategyToggle
	StrategySeedChange
	StrategyParkingBet
	StrategySwitch
	CheckpointWritten
)

var kindNames = [...]string{
	"BET_PLACED", "BET_RESOLVED", "BET_DECISION", "BET_RESULT",
	"WINNING_STREAK", "LOSING_STREAK", "DRAWDOWN_ALERT",
	"PROFIT_TARGET_REACHED", "STOP_LOSS_TRIGGERED",
	"SESSION_START", "SESSION_END",
	"STRATEGY_TOGGLE", "STRATEGY_SEED_CHANGE", "STRATEGY_PARKING_BET",
	"STRATEGY_SWITCH", "CHECKPOINT_WRITTEN",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// Event is one occurrence published to a Bus. Payload is kind-specific and
// left as an opaque value so the bus itself stays decoupled from the
// domain types of its subscribers. SessionID is stamped from the owning
// Bus (spec §3's event envelope); Timestamp is stamped at publish time.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	SessionID string
	Payload   any
}

// Subscriber receives events synchronously, in publish order. A Subscriber
// must not block for long; Publish will not return until every subscriber
// has processed the event.
type Subscriber func(Event)

// ringCapacity bounds the Bus's retained event history (spec §4.5).
const ringCapacity = 10_000

// Bus is one session's (or one engine's) event hub. The zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.Mutex
	sessionID   string
	subscribers []Subscriber
	ring        []Event
	head        int // index of the oldest retained event
	count       int // number of valid events currently in ring
	total       uint64
}

// New creates an empty Bus with its own ring buffer, stamping every
// published event with sessionID.
func New(sessionID string) *Bus {
	return &Bus{sessionID: sessionID, ring: make([]Event, ringCapacity)}
}

// Subscribe registers a Subscriber. Order of delivery across subscribers
// matches registration order.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Publish appends the event to the ring (evicting the oldest entry once
// full) and synchronously fans it out to every subscriber, in registration
// order, under the bus's lock.
func (b *Bus) Publish(kind Kind, payload any) {
	ev := Event{Kind: kind, Timestamp: time.Now(), SessionID: b.sessionID, Payload: payload}

	b.mu.Lock()
	idx := (b.head + b.count) % ringCapacity
	b.ring[idx] = ev
	if b.count < ringCapacity {
		b.count++
	} else {
		b.head = (b.head + 1) % ringCapacity
	}
	b.total++
	subs := append([]Subscriber(nil), b.subscribers...)
	b.mu.Unlock()

	for _, s := range subs {
		s(ev)
	}
}

// History returns a copy of the currently retained events, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.ring[(b.head+i)%ringCapacity]
	}
	return out
}

// Total is the count of events ever published, including those since
// evicted from the ring.
func (b *Bus) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
