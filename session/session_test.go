package session

import (
	"testing"

	"github.com/zintix-labs/dicebot/game"
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

func betOutcome(t *testing.T, bet string, won bool, multiplier float64) game.BetResult {
	t.Helper()
	b := m(t, bet)
	payout := b.Neg()
	if won {
		payout = b.MulFloatMultiplier(multiplier)
	}
	return game.BetResult{Won: won, Bet: b, Multiplier: multiplier, Payout: payout}
}

func TestRunsUntilMaxBets(t *testing.T) {
	s := New("s1", m(t, "100"), Config{MinBet: m(t, "0.00015"), MaxBets: 3})
	for i := 0; i < 3; i++ {
		if stop, _ := s.ShouldStop(); stop {
			t.Fatalf("stopped early at bet %d", i)
		}
		s.Apply(betOutcome(t, "1", i%2 == 0, 2.0))
	}
	stop, reason := s.ShouldStop()
	if !stop || reason != MaxBets {
		t.Fatalf("expected MAX_BETS stop, got stop=%v reason=%v", stop, reason)
	}
}

func TestBankruptWhenBalanceBelowMinBet(t *testing.T) {
	s := New("s2", m(t, "1"), Config{MinBet: m(t, "0.5")})
	s.Apply(betOutcome(t, "0.8", false, 2.0)) // balance 0.2 < min bet
	stop, reason := s.ShouldStop()
	if !stop || reason != Bankrupt {
		t.Fatalf("expected BANKRUPT, got stop=%v reason=%v", stop, reason)
	}
}

func TestStopLossFires(t *testing.T) {
	s := New("s3", m(t, "100"), Config{MinBet: m(t, "0.00015"), StopLossRatio: -0.5})
	s.Apply(betOutcome(t, "60", false, 2.0)) // roi -0.6 <= -0.5
	stop, reason := s.ShouldStop()
	if !stop || reason != StopLoss {
		t.Fatalf("expected STOP_LOSS, got stop=%v reason=%v", stop, reason)
	}
}

func TestTakeProfitFires(t *testing.T) {
	s := New("s4", m(t, "100"), Config{MinBet: m(t, "0.00015"), TakeProfitRatio: 0.10})
	s.Apply(betOutcome(t, "10", true, 2.0)) // +20, roi 0.2 >= 0.1
	stop, reason := s.ShouldStop()
	if !stop || reason != TakeProfit {
		t.Fatalf("expected TAKE_PROFIT, got stop=%v reason=%v", stop, reason)
	}
}

func TestReasonLatchesOnFirstStop(t *testing.T) {
	s := New("s5", m(t, "100"), Config{MinBet: m(t, "0.00015"), TakeProfitRatio: 0.10, MaxBets: 100})
	s.Apply(betOutcome(t, "10", true, 2.0))
	if _, reason := s.ShouldStop(); reason != TakeProfit {
		t.Fatalf("expected TAKE_PROFIT latch, got %v", reason)
	}
	s.Cancel() // too late: reason already latched
	if _, reason := s.ShouldStop(); reason != TakeProfit {
		t.Fatalf("latched reason must not change, got %v", reason)
	}
}

func TestCancelLatchesExternalCancel(t *testing.T) {
	s := New("s6", m(t, "100"), Config{MinBet: m(t, "0.00015")})
	s.Cancel()
	stop, reason := s.ShouldStop()
	if !stop || reason != ExternalCancel {
		t.Fatalf("expected EXTERNAL_CANCEL, got stop=%v reason=%v", stop, reason)
	}
}

func TestOracleExhaustedMarksBankruptWithFlag(t *testing.T) {
	s := New("s7", m(t, "100"), Config{MinBet: m(t, "0.00015")})
	s.MarkOracleExhausted()
	stop, reason := s.ShouldStop()
	if !stop || reason != Bankrupt {
		t.Fatalf("expected BANKRUPT, got stop=%v reason=%v", stop, reason)
	}
	if !s.OracleExhausted() {
		t.Fatalf("expected oracle-exhausted flag set")
	}
}

func TestReasonStrings(t *testing.T) {
	cases := map[Reason]string{
		Bankrupt:       "BANKRUPT",
		StopLoss:       "STOP_LOSS",
		TakeProfit:     "TAKE_PROFIT",
		MaxBets:        "MAX_BETS",
		ExternalCancel: "EXTERNAL_CANCEL",
		None:           "",
	}
	for r, want := range cases {
		if r.String() != want {
			t.Fatalf("Reason(%d).String() = %q, want %q", r, r.String(), want)
		}
	}
}
