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

// Package vault tracks the capital split between a reserve (vault) and the
// working balance sessions actually wager with, including the
// replenish/skim transfer policy of spec §4.5. A Vault is created once per
// simulation (spec §3 lifecycle) and is shared by every session the
// simulation runs, so its operations are safe for concurrent callers —
// generalizing machine.go's quiescent-point bookkeeping discipline from one
// machine's Core state to one simulation's capital.
package vault

import (
	"sync"
	"time"

	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/money"
)

// Trigger distinguishes an automatic transfer (rate-limited) from a
// manually requested one (spec §4.5 rate-limits only auto transfers).
type Trigger uint8

const (
	Auto Trigger = iota
	Manual
)

// dayWindow is the rolling window auto-transfers are rate-limited over.
const dayWindow = 24 * time.Hour

// Vault holds the reserve/working split and its transfer policy.
type Vault struct {
	mu sync.Mutex

	VaultBalance   money.Money
	WorkingBalance money.Money

	vaultRatio         float64
	workingRatio       float64
	maxTransfersPerDay int

	// startingWorking is the baseline working-balance size the 50%/10%
	// replenish/skim thresholds of spec §4.5 are computed against. It is
	// reset to the post-transfer WorkingBalance every time a transfer
	// completes, the way a fresh "starting size" is established each time
	// the working tranche is topped up or skimmed.
	startingWorking money.Money

	transfers []time.Time // auto-transfer timestamps within the rate window

	now func() time.Time
}

// New builds a Vault from total_capital split by vaultRatio/workingRatio
// (spec §6 defaults: 0.85/0.15). workingRatio is derived as the remainder
// of vaultRatio rather than applied independently, so VaultBalance +
// WorkingBalance == totalCapital holds exactly, with no rounding drift
// (spec §3 invariant, tested at spec §8 property 4).
func New(totalCapital money.Money, vaultRatio, workingRatio float64, maxTransfersPerDay int) (*Vault, error) {
	if vaultRatio <= 0 || vaultRatio >= 1 {
		return nil, errs.ConfigInvalid("vault: vault_ratio must be in (0, 1)")
	}
	if maxTransfersPerDay <= 0 {
		maxTransfersPerDay = 2
	}
	vaultBal := totalCapital.MulFloatMultiplier(vaultRatio)
	workingBal := totalCapital.Sub(vaultBal)
	return &Vault{
		VaultBalance:       vaultBal,
		WorkingBalance:     workingBal,
		vaultRatio:         vaultRatio,
		workingRatio:       workingRatio,
		maxTransfersPerDay: maxTransfersPerDay,
		startingWorking:    workingBal,
		now:                time.Now,
	}, nil
}

// Total returns vault + working, the invariant quantity of spec §3.
func (v *Vault) Total() money.Money {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.VaultBalance.Add(v.WorkingBalance)
}

// Reserve draws `amount` out of the working balance for a new session
// (spec §4.5's create_session). It fails if the working balance cannot
// cover the request; the vault itself is never auto-drawn into a session.
func (v *Vault) Reserve(amount money.Money) (money.Money, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount.GreaterThan(v.WorkingBalance) {
		return money.Zero(), errs.ConfigInvalid("vault: insufficient working balance for session")
	}
	v.WorkingBalance = v.WorkingBalance.Sub(amount)
	return amount, nil
}

// Settle returns a finished session's ending balance to the working
// tranche (spec §4.5's close_session) and evaluates the auto replenish/skim
// thresholds: replenish against the new working balance, skim against the
// session's realized profit (final minus the initial stake it reserved).
func (v *Vault) Settle(initial, final money.Money) {
	v.mu.Lock()
	v.WorkingBalance = v.WorkingBalance.Add(final)
	v.mu.Unlock()

	v.tryReplenish()
	v.trySkim(final.Sub(initial))
}

// tryReplenish tops the working balance back up to its starting size when
// it has fallen below 50% of that baseline (spec §4.5).
func (v *Vault) tryReplenish() {
	v.mu.Lock()
	defer v.mu.Unlock()

	half := v.startingWorking.MulFloatMultiplier(0.5)
	if !v.WorkingBalance.LessThan(half) {
		return
	}
	if !v.allowAuto() {
		return
	}
	shortfall := v.startingWorking.Sub(v.WorkingBalance)
	amount := money.Min(shortfall, v.VaultBalance)
	if !amount.IsPositive() {
		return
	}
	v.VaultBalance = v.VaultBalance.Sub(amount)
	v.WorkingBalance = v.WorkingBalance.Add(amount)
	v.startingWorking = v.WorkingBalance
	v.recordAuto()
}

// trySkim moves profit into the vault once session profit reaches +10% of
// the working baseline (spec §4.5).
func (v *Vault) trySkim(sessionProfit money.Money) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !sessionProfit.IsPositive() {
		return
	}
	threshold := v.startingWorking.MulFloatMultiplier(0.10)
	if sessionProfit.LessThan(threshold) {
		return
	}
	if !v.allowAuto() {
		return
	}
	if sessionProfit.GreaterThan(v.WorkingBalance) {
		return // can't skim more than is currently sitting in working
	}
	v.WorkingBalance = v.WorkingBalance.Sub(sessionProfit)
	v.VaultBalance = v.VaultBalance.Add(sessionProfit)
	v.startingWorking = v.WorkingBalance
	v.recordAuto()
}

// Replenish and Skim expose the manual (unrated-limited) transfer path for
// callers (e.g. an operator action) that bypass the automatic cadence.
func (v *Vault) Replenish(trigger Trigger, amount money.Money) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if trigger == Auto && !v.allowAuto() {
		return nil // rate-limited no-op, per spec §4.5
	}
	if amount.GreaterThan(v.VaultBalance) {
		return errs.ConfigInvalid("vault: replenish exceeds vault balance")
	}
	v.VaultBalance = v.VaultBalance.Sub(amount)
	v.WorkingBalance = v.WorkingBalance.Add(amount)
	v.startingWorking = v.WorkingBalance
	if trigger == Auto {
		v.recordAuto()
	}
	return nil
}

func (v *Vault) Skim(trigger Trigger, amount money.Money) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if trigger == Auto && !v.allowAuto() {
		return nil
	}
	if amount.GreaterThan(v.WorkingBalance) {
		return errs.ConfigInvalid("vault: skim exceeds working balance")
	}
	v.WorkingBalance = v.WorkingBalance.Sub(amount)
	v.VaultBalance = v.VaultBalance.Add(amount)
	v.startingWorking = v.WorkingBalance
	if trigger == Auto {
		v.recordAuto()
	}
	return nil
}

// allowAuto reports whether another automatic transfer fits within the
// rolling 24h rate limit (spec §4.5). Must be called with v.mu held.
func (v *Vault) allowAuto() bool {
	now := v.now()
	cutoff := now.Add(-dayWindow)
	live := v.transfers[:0]
	for _, t := range v.transfers {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	v.transfers = live
	return len(v.transfers) < v.maxTransfersPerDay
}

// recordAuto logs one automatic transfer against the rate window. Must be
// called with v.mu held.
func (v *Vault) recordAuto() {
	v.transfers = append(v.transfers, v.now())
}
