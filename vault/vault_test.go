package vault

import (
	"testing"
	"time"

	"github.com/zintix-labs/dicebot/money"
)

func m(t *testing.T, s string) money.Money {
	t.Helper()
	v, err := money.FromString(s)
	if err != nil {
		t.Fatalf("bad money literal %q: %v", s, err)
	}
	return v
}

func newVault(t *testing.T, capital string) *Vault {
	t.Helper()
	v, err := New(m(t, capital), 0.85, 0.15, 2)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return v
}

func TestNewSplitsCapitalExactly(t *testing.T) {
	v := newVault(t, "250")
	if !v.Total().Equal(m(t, "250")) {
		t.Fatalf("vault + working != capital: %s", v.Total())
	}
	if !v.VaultBalance.Equal(m(t, "212.5")) {
		t.Fatalf("expected vault 212.5, got %s", v.VaultBalance)
	}
	if !v.WorkingBalance.Equal(m(t, "37.5")) {
		t.Fatalf("expected working 37.5, got %s", v.WorkingBalance)
	}
}

func TestNewRejectsBadRatio(t *testing.T) {
	for _, ratio := range []float64{0, 1, -0.2, 1.5} {
		if _, err := New(m(t, "100"), ratio, 1-ratio, 2); err == nil {
			t.Fatalf("expected error for vault_ratio %v", ratio)
		}
	}
}

// Spec §8 E5: vault + working == initial + cumulative pnl, exact decimal
// equality, across reserve/settle cycles.
func TestLedgerClosureAcrossSessions(t *testing.T) {
	v := newVault(t, "250")
	pnl := money.Zero()

	// a losing session
	stake, err := v.Reserve(m(t, "10"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	final := m(t, "7.123456789012")
	pnl = pnl.Add(final.Sub(stake))
	v.Settle(stake, final)
	want := m(t, "250").Add(pnl)
	if !v.Total().Equal(want) {
		t.Fatalf("after loss: total %s, want %s", v.Total(), want)
	}

	// a winning session
	stake, err = v.Reserve(m(t, "10"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	final = m(t, "10.5")
	pnl = pnl.Add(final.Sub(stake))
	v.Settle(stake, final)
	want = m(t, "250").Add(pnl)
	if !v.Total().Equal(want) {
		t.Fatalf("after win: total %s, want %s", v.Total(), want)
	}
}

func TestReserveRejectsOverdraw(t *testing.T) {
	v := newVault(t, "100")
	if _, err := v.Reserve(m(t, "50")); err == nil {
		t.Fatalf("expected reserve above working balance to fail")
	}
}

func TestAutoReplenishWhenWorkingBelowHalf(t *testing.T) {
	v := newVault(t, "250") // working 37.5
	stake, err := v.Reserve(m(t, "37.5"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	v.Settle(stake, m(t, "10")) // working 10 < 18.75 -> replenish to 37.5
	if !v.WorkingBalance.Equal(m(t, "37.5")) {
		t.Fatalf("expected working replenished to 37.5, got %s", v.WorkingBalance)
	}
	if !v.Total().Equal(m(t, "222.5")) {
		t.Fatalf("expected total 222.5 after 27.5 loss, got %s", v.Total())
	}
}

func TestSkimMovesProfitOnly(t *testing.T) {
	v := newVault(t, "250") // working 37.5, skim threshold 3.75
	stake, err := v.Reserve(m(t, "37.5"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	v.Settle(stake, m(t, "45")) // profit 7.5 >= 3.75 -> skim 7.5
	if !v.WorkingBalance.Equal(m(t, "37.5")) {
		t.Fatalf("expected working back at 37.5 after skim, got %s", v.WorkingBalance)
	}
	if !v.VaultBalance.Equal(m(t, "220")) {
		t.Fatalf("expected vault 220 after skimming 7.5, got %s", v.VaultBalance)
	}
}

func TestAutoTransfersRateLimited(t *testing.T) {
	v := newVault(t, "1000")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	if err := v.Replenish(Auto, m(t, "1")); err != nil {
		t.Fatalf("replenish 1: %v", err)
	}
	if err := v.Replenish(Auto, m(t, "1")); err != nil {
		t.Fatalf("replenish 2: %v", err)
	}
	before := v.WorkingBalance
	if err := v.Replenish(Auto, m(t, "1")); err != nil {
		t.Fatalf("replenish 3: %v", err)
	}
	if !v.WorkingBalance.Equal(before) {
		t.Fatalf("third auto transfer within 24h should be a no-op")
	}

	// window slides: a day later the next auto transfer goes through again
	now = now.Add(25 * time.Hour)
	if err := v.Replenish(Auto, m(t, "1")); err != nil {
		t.Fatalf("replenish after window: %v", err)
	}
	if v.WorkingBalance.Equal(before) {
		t.Fatalf("expected auto transfer to resume once the window slid")
	}
}

func TestManualTransfersBypassRateLimit(t *testing.T) {
	v := newVault(t, "1000")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if err := v.Replenish(Manual, m(t, "1")); err != nil {
			t.Fatalf("manual replenish %d: %v", i, err)
		}
	}
	if err := v.Skim(Manual, m(t, "3")); err != nil {
		t.Fatalf("manual skim: %v", err)
	}
	if !v.Total().Equal(m(t, "1000")) {
		t.Fatalf("manual transfers must preserve total, got %s", v.Total())
	}
}
