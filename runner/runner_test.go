package runner

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/zintix-labs/dicebot/game"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/oracle"
	"github.com/zintix-labs/dicebot/session"
	"github.com/zintix-labs/dicebot/strategy"
	_ "github.com/zintix-labs/dicebot/strategy/basic" // registers the basic strategies
)

// seededReader derives a session's oracle server seed from the runner's
// per-session seed, so a session's whole bet sequence is a pure function
// of that seed.
type seededReader struct{ r *rand.Rand }

func (s *seededReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(s.r.Intn(256))
	}
	return len(p), nil
}

func testFactory(t *testing.T, maxBets int, calls *sync.Map) SessionFactory {
	t.Helper()
	return func(index int, seed int64) (*session.Session, *game.Game, strategy.Strategy, error) {
		if calls != nil {
			calls.Store(index, seed)
		}
		rng := &seededReader{r: rand.New(rand.NewSource(seed))}
		o, err := oracle.New(nil, "runner-test", rng)
		if err != nil {
			return nil, nil, nil, err
		}
		g := game.New(o, game.DefaultLimits())

		strat, err := strategy.Global.Build("flat", map[string]any{"base_bet": "0.01", "multiplier": 2.0})
		if err != nil {
			return nil, nil, nil, err
		}

		start, _ := money.FromString("100")
		sess := session.New(sessionID(index), start, session.Config{
			MinBet:  game.DefaultLimits().MinBet,
			MaxBets: maxBets,
		})
		return sess, g, strat, nil
	}
}

func sessionID(index int) string {
	return "sess-" + string(rune('a'+index%26)) + "-" + string(rune('0'+(index/26)%10))
}

func TestRunRejectsEmptyPlan(t *testing.T) {
	r := New(testFactory(t, 5, nil))
	if _, err := r.Run(context.Background(), Plan{Sessions: 0}); err == nil {
		t.Fatalf("expected error for a plan with no sessions")
	}
}

func TestRunSerialCompletesAllSessions(t *testing.T) {
	r := New(testFactory(t, 20, nil))
	result, err := r.Run(context.Background(), Plan{
		Sessions:              4,
		AutoParallelThreshold: 100, // stay serial
		Seed:                  42,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Sessions) != 4 {
		t.Fatalf("expected 4 summaries, got %d", len(result.Sessions))
	}
	for i, s := range result.Sessions {
		if s.Index != i {
			t.Fatalf("summaries not sorted by index: pos %d has index %d", i, s.Index)
		}
		if s.Reason != session.MaxBets {
			t.Fatalf("session %d: expected MAX_BETS, got %v", i, s.Reason)
		}
		if s.Bets != 20 {
			t.Fatalf("session %d: expected 20 bets, got %d", i, s.Bets)
		}
	}
}

// Spec §8 E6: the same plan seed yields identical per-session outcomes
// regardless of worker count.
func TestParallelMatchesSerial(t *testing.T) {
	run := func(threshold, workers int) PlanResult {
		r := New(testFactory(t, 50, nil))
		result, err := r.Run(context.Background(), Plan{
			Sessions:              8,
			AutoParallelThreshold: threshold,
			Workers:               workers,
			Seed:                  1234,
		})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}

	serial := run(100, 0)  // below threshold: serial
	parallel := run(1, 4)  // above threshold: pooled
	parallel2 := run(1, 8) // different worker count

	for i := range serial.Sessions {
		a, b, c := serial.Sessions[i], parallel.Sessions[i], parallel2.Sessions[i]
		if !a.FinalState.GameState.Balance.Equal(b.FinalState.GameState.Balance) ||
			!a.FinalState.GameState.Balance.Equal(c.FinalState.GameState.Balance) {
			t.Fatalf("session %d balances diverge across worker counts: %s / %s / %s",
				i, a.FinalState.GameState.Balance, b.FinalState.GameState.Balance, c.FinalState.GameState.Balance)
		}
		if a.Bets != b.Bets || a.Bets != c.Bets {
			t.Fatalf("session %d bet counts diverge: %d / %d / %d", i, a.Bets, b.Bets, c.Bets)
		}
	}
}

func TestSeedMakerDeterministicPerSeed(t *testing.T) {
	a := newSeedMaker(7)
	b := newSeedMaker(7)
	for i := 0; i < 100; i++ {
		if a.next() != b.next() {
			t.Fatalf("same top seed must produce the same derived sequence (draw %d)", i)
		}
	}

	c := newSeedMaker(8)
	same := true
	d := newSeedMaker(7)
	for i := 0; i < 10; i++ {
		if c.next() != d.next() {
			same = false
		}
	}
	if same {
		t.Fatalf("different top seeds should diverge")
	}
}

// memCheckpointer records plan-level checkpoints in memory.
type memCheckpointer struct {
	mu   sync.Mutex
	last RunCheckpoint
	ok   bool
}

func (m *memCheckpointer) WriteRunCheckpoint(rc RunCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = rc
	m.ok = true
	return nil
}

func (m *memCheckpointer) ReadRunCheckpoint() (RunCheckpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.ok, nil
}

func TestRunWritesPlanCheckpointAfterEverySession(t *testing.T) {
	store := &memCheckpointer{}
	r := New(testFactory(t, 10, nil))
	result, err := r.Run(context.Background(), Plan{
		Sessions:              3,
		AutoParallelThreshold: 100,
		Seed:                  9,
		RunID:                 "run-cp",
		RunCheckpoint:         store,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rc, ok, _ := store.ReadRunCheckpoint()
	if !ok {
		t.Fatalf("expected a run checkpoint to have been written")
	}
	if rc.RunID != "run-cp" || rc.TotalSessions != 3 || rc.Seed != 9 {
		t.Fatalf("checkpoint header mismatch: %+v", rc)
	}
	if len(rc.PartialSummaries) != len(result.Sessions) {
		t.Fatalf("expected all %d sessions in the final checkpoint, got %d",
			len(result.Sessions), len(rc.PartialSummaries))
	}
}

// Spec §8 property 9: resuming from a checkpoint skips completed sessions
// and reproduces the uninterrupted result.
func TestResumeSkipsCompletedSessions(t *testing.T) {
	// first, an uninterrupted baseline run
	store := &memCheckpointer{}
	full, err := New(testFactory(t, 25, nil)).Run(context.Background(), Plan{
		Sessions:              5,
		AutoParallelThreshold: 100,
		Seed:                  77,
		RunID:                 "run-resume",
		RunCheckpoint:         store,
	})
	if err != nil {
		t.Fatalf("baseline run: %v", err)
	}

	// truncate the checkpoint to look like a crash after 2 sessions
	rc, _, _ := store.ReadRunCheckpoint()
	rc.PartialSummaries = rc.PartialSummaries[:2]
	rc.CompletedSessionIDs = rc.CompletedSessionIDs[:2]
	store.last = rc

	var calls sync.Map
	resumed, err := New(testFactory(t, 25, &calls)).Run(context.Background(), Plan{
		Sessions:              5,
		AutoParallelThreshold: 100,
		RunID:                 "run-resume",
		RunCheckpoint:         store,
		Resume:                true,
	})
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}

	for idx := 0; idx < 2; idx++ {
		if _, ran := calls.Load(idx); ran {
			t.Fatalf("session %d was re-executed despite being checkpointed complete", idx)
		}
	}
	for idx := 2; idx < 5; idx++ {
		if _, ran := calls.Load(idx); !ran {
			t.Fatalf("session %d should have been executed on resume", idx)
		}
	}
	if len(resumed.Sessions) != len(full.Sessions) {
		t.Fatalf("resumed result has %d sessions, want %d", len(resumed.Sessions), len(full.Sessions))
	}
	for i := range full.Sessions {
		if !full.Sessions[i].FinalState.GameState.Balance.Equal(resumed.Sessions[i].FinalState.GameState.Balance) {
			t.Fatalf("session %d: resumed balance %s differs from uninterrupted %s",
				i, resumed.Sessions[i].FinalState.GameState.Balance, full.Sessions[i].FinalState.GameState.Balance)
		}
	}
}

func TestHealthReportsCleanRun(t *testing.T) {
	r := New(testFactory(t, 5, nil))
	if _, err := r.Run(context.Background(), Plan{Sessions: 2, AutoParallelThreshold: 100, Seed: 3}); err != nil {
		t.Fatalf("run: %v", err)
	}
	h := r.Health()
	if !h.OK || h.Panics != 0 || h.Fatals != 0 {
		t.Fatalf("expected clean health, got %+v", h)
	}
}
