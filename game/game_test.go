package game

import (
	"testing"

	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/oracle"
)

func newTestGame(t *testing.T) *Game {
	t.Helper()
	o, err := oracle.New([]byte("game-test-seed-0123456789012345678"), "client", nil)
	if err != nil {
		t.Fatalf("oracle.New: %v", err)
	}
	return New(o, DefaultLimits())
}

func TestRollRejectsMultiplierOutOfBand(t *testing.T) {
	g := newTestGame(t)
	bal, _ := money.FromString("10")
	bet, _ := money.FromString("1")

	if _, err := g.Roll(bet, 1.0, oracle.Under, bal); err == nil {
		t.Fatalf("expected error for multiplier below 1.01")
	}
	if _, err := g.Roll(bet, 100.0, oracle.Under, bal); err == nil {
		t.Fatalf("expected error for multiplier above 99.00")
	}
}

func TestRollRejectsBetBelowMinimum(t *testing.T) {
	g := newTestGame(t)
	bal, _ := money.FromString("10")
	tooSmall, _ := money.FromString("0.00001")

	if _, err := g.Roll(tooSmall, 2.0, oracle.Under, bal); err == nil {
		t.Fatalf("expected error for bet below minimum")
	}
}

func TestRollRejectsBetAboveBalance(t *testing.T) {
	g := newTestGame(t)
	bal, _ := money.FromString("1")
	bet, _ := money.FromString("2")

	if _, err := g.Roll(bet, 2.0, oracle.Under, bal); err == nil {
		t.Fatalf("expected error for bet exceeding balance")
	}
}

func TestRollConsumesExactlyOneNonce(t *testing.T) {
	g := newTestGame(t)
	bal, _ := money.FromString("100")
	bet, _ := money.FromString("1")

	before := g.Oracle.Nonce()
	res, err := g.Roll(bet, 2.0, oracle.Under, bal)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if g.Oracle.Nonce() != before+1 {
		t.Fatalf("expected nonce to advance by exactly one, got %d -> %d", before, g.Oracle.Nonce())
	}
	if res.Nonce != before {
		t.Fatalf("expected result to carry the consumed nonce %d, got %d", before, res.Nonce)
	}
}

func TestRollPayoutSignMatchesOutcome(t *testing.T) {
	g := newTestGame(t)
	bal, _ := money.FromString("1000")
	bet, _ := money.FromString("1")

	for i := 0; i < 200; i++ {
		res, err := g.Roll(bet, 2.0, oracle.Under, bal)
		if err != nil {
			t.Fatalf("roll: %v", err)
		}
		if res.Won && !res.Payout.IsPositive() {
			t.Fatalf("won but payout is not positive: %s", res.Payout)
		}
		if !res.Won && !res.Payout.Neg().Equal(bet) {
			t.Fatalf("lost but payout is not -bet: %s", res.Payout)
		}
	}
}

func TestRollPreservesSeedCommitmentFields(t *testing.T) {
	g := newTestGame(t)
	bal, _ := money.FromString("10")
	bet, _ := money.FromString("1")

	info := g.Oracle.GetCurrentInfo()
	res, err := g.Roll(bet, 2.0, oracle.Under, bal)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if res.ServerSeedHash != info.ServerSeedHash {
		t.Fatalf("expected server seed hash to match commitment shown before the roll")
	}
	if res.ClientSeed != info.ClientSeed {
		t.Fatalf("expected client seed to match")
	}
}
