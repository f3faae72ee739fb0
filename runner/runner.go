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

// Package runner drives a simulation plan across one or many sessions
// (spec §4.8), generalizing sim.go's Simulator worker-goroutine pattern
// (and its CAS-based seedMaker) from spinning one game repeatedly to
// running many independent dice-betting sessions concurrently, plus
// machinepool.go's panic/fatal bookkeeping for the post-run health report.
package runner

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"

	"github.com/zintix-labs/dicebot/engine"
	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/eventbus"
	"github.com/zintix-labs/dicebot/game"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/session"
	"github.com/zintix-labs/dicebot/strategy"
	"github.com/zintix-labs/dicebot/vault"
)

// SessionFactory builds one session's Oracle/Game/Strategy/Session tuple.
// index is the 0-based session number within the Plan; seed is a unique,
// deterministically-derived per-session seed (from seedMaker) the factory
// may use for its Oracle's server-seed generation RNG.
type SessionFactory func(index int, seed int64) (*session.Session, *game.Game, strategy.Strategy, error)

// Checkpointer persists a session's terminal snapshot. The runner only
// checkpoints at whole-session granularity (Open Question decision, never
// mid-session) — implemented by package sink. wrote reports whether the
// snapshot actually reached the store; an interval-gated implementation
// may decline without error.
type Checkpointer interface {
	WriteCheckpoint(snap engine.Snapshot) (wrote bool, err error)
}

// RunCheckpoint is the plan-level resumable checkpoint document of spec
// §4.8/§6: which sessions of a run have already completed, their
// summaries, and the top-level inputs (TotalSessions, Seed) needed to
// reconstruct the same index→seed mapping on resume. Checkpointer answers
// "what was session N's state"; RunCheckpointer answers "which sessions of
// this plan are already done, and what plan were they part of".
type RunCheckpoint struct {
	RunID               string
	TotalSessions       int
	Seed                int64
	CompletedSessionIDs []string
	PartialSummaries    []SessionSummary
}

// RunCheckpointer persists and loads the plan-level RunCheckpoint document.
// Implemented by package sink, alongside Checkpointer.
type RunCheckpointer interface {
	WriteRunCheckpoint(rc RunCheckpoint) error
	ReadRunCheckpoint() (RunCheckpoint, bool, error)
}

// Plan describes one simulation run: how many sessions, how much of it
// runs concurrently, and the shared capital vault (if any).
type Plan struct {
	Sessions              int
	AutoParallelThreshold int // spec §4.8: sessions >= this run on a worker pool
	Workers               int // 0 (or more than the pending sessions) runs one worker per pending session
	Vault                 *vault.Vault
	Checkpoint            Checkpointer
	ShowProgress          bool
	Seed                  int64 // 0 lets the runner draw a crypto-random seed

	// RunID pins this plan's identity so a later Plan with Resume set and
	// the same RunID (and RunCheckpoint store) can find its prior progress.
	// Left empty, Run draws a fresh uuid and reports it on PlanResult.RunID.
	RunID string

	// RunCheckpoint, when set, is written after every freshly-completed
	// session with the full set of completed session ids/summaries seen so
	// far (spec §6's checkpoint document), independent of Checkpoint's
	// per-session snapshots.
	RunCheckpoint RunCheckpointer

	// Resume, when true, loads any existing RunCheckpoint for RunID before
	// dispatching sessions: a session whose index is already present in
	// that checkpoint's PartialSummaries is not re-executed — its
	// persisted summary is reused verbatim — satisfying spec §4.8's resume
	// property (a resumed PlanResult is byte-identical to an uninterrupted
	// one) as long as Seed/TotalSessions also match, which Run pulls from
	// the loaded checkpoint rather than trusting the caller to repeat them.
	Resume bool

	// Subscribers are attached to every session's event bus before the
	// engine runs (e.g. a sink.DetailLog's Subscriber), so the detail log
	// of spec §6 sees the full 16-event-kind stream per session.
	Subscribers []eventbus.Subscriber

	// Logger receives structured session-lifecycle records (start/end)
	// on top of the JSONL event sink, the way the teacher's AccessLog
	// middleware takes a nil-safe *slog.Logger. A nil Logger disables
	// lifecycle logging entirely.
	Logger *slog.Logger
}

// SessionSummary is one completed session's outcome.
type SessionSummary struct {
	SessionID  string
	Index      int
	Reason     session.Reason
	Bets       int
	FinalState engine.Snapshot
	Err        error
}

// PlanResult aggregates every session's outcome plus runner-level health
// telemetry (spec §4.8's supplemented runtime-health reporting). Sessions
// is always sorted by Index (equivalently session_id, since ids are
// zero-padded by index), so a comparison across worker counts needs no
// further reordering (spec §8 property E6).
type PlanResult struct {
	RunID    string
	Sessions []SessionSummary
	Duration time.Duration
	Panics   int64
	Fatals   int64
}

// Runner drives a Plan to completion.
type Runner struct {
	factory SessionFactory
	panics  atomic.Int64
	fatals  atomic.Int64
}

// New builds a Runner around a SessionFactory.
func New(factory SessionFactory) *Runner {
	return &Runner{factory: factory}
}

// Run executes plan, dispatching sessions serially below
// AutoParallelThreshold and across a worker pool at or above it (spec
// §4.8). Cancellation via ctx is cooperative and only observed between
// bets, never mid-bet (spec §5).
//
// Every per-session seed is drawn from a single seedMaker, in index order,
// before any session runs (not by whichever goroutine happens to dequeue
// the job): index i always gets the i-th draw, so which worker executes a
// session — and how many workers there are — never changes its seed. This
// is what makes a PlanResult reproducible independent of parallelism (spec
// §5, §8 property E6).
func (r *Runner) Run(ctx context.Context, plan Plan) (PlanResult, error) {
	if plan.Sessions <= 0 {
		return PlanResult{}, errs.ConfigInvalid("runner: plan must include at least one session")
	}
	runID := plan.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()

	seed := plan.Seed
	completed := make(map[int]SessionSummary)
	resumedSeed := false
	if plan.Resume && plan.RunCheckpoint != nil {
		rc, ok, err := plan.RunCheckpoint.ReadRunCheckpoint()
		if err != nil {
			return PlanResult{}, errs.Wrap(err, "runner: failed to read run checkpoint")
		}
		if ok {
			runID = rc.RunID
			seed = rc.Seed
			resumedSeed = true
			for _, s := range rc.PartialSummaries {
				completed[s.Index] = s
			}
		}
	}
	if !resumedSeed && seed == 0 {
		var err error
		seed, err = randomSeed()
		if err != nil {
			return PlanResult{}, errs.Wrap(err, "runner: failed to draw seed")
		}
	}

	sm := newSeedMaker(seed)
	seeds := make([]int64, plan.Sessions)
	for i := range seeds {
		seeds[i] = sm.next()
	}

	acc := newRunAccumulator(plan.RunCheckpoint, runID, plan.Sessions, seed, completed)

	threshold := plan.AutoParallelThreshold
	if threshold <= 0 {
		threshold = 1
	}

	var summaries []SessionSummary
	if plan.Sessions < threshold {
		summaries = r.runSerial(ctx, plan, seeds, completed, acc)
	} else {
		summaries = r.runParallel(ctx, plan, seeds, completed, acc)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Index < summaries[j].Index })

	return PlanResult{
		RunID:    runID,
		Sessions: summaries,
		Duration: time.Since(start),
		Panics:   r.panics.Load(),
		Fatals:   r.fatals.Load(),
	}, nil
}

func (r *Runner) runSerial(ctx context.Context, plan Plan, seeds []int64, completed map[int]SessionSummary, acc *runAccumulator) []SessionSummary {
	bar := newBar(plan.Sessions, plan.ShowProgress)
	out := make([]SessionSummary, 0, plan.Sessions)
	for i := 0; i < plan.Sessions; i++ {
		if s, ok := completed[i]; ok {
			out = append(out, s)
			bar.Increment()
			continue
		}
		s := r.runOne(ctx, plan, i, seeds[i])
		acc.record(s)
		out = append(out, s)
		bar.Increment()
	}
	bar.Finish()
	return out
}

func (r *Runner) runParallel(ctx context.Context, plan Plan, seeds []int64, completed map[int]SessionSummary, acc *runAccumulator) []SessionSummary {
	out := make([]SessionSummary, 0, plan.Sessions)
	pending := make([]int, 0, plan.Sessions)
	for i := 0; i < plan.Sessions; i++ {
		if s, ok := completed[i]; ok {
			out = append(out, s)
			continue
		}
		pending = append(pending, i)
	}

	bar := newBar(plan.Sessions, plan.ShowProgress)
	for range out {
		bar.Increment()
	}

	if len(pending) == 0 {
		bar.Finish()
		return out
	}

	workers := plan.Workers
	if workers <= 0 || workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan int, len(pending))
	for _, idx := range pending {
		jobs <- idx
	}
	close(jobs)

	results := make(chan SessionSummary, len(pending))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				s := r.runOne(ctx, plan, idx, seeds[idx])
				acc.record(s)
				results <- s
				bar.Increment()
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for s := range results {
		out = append(out, s)
	}
	bar.Finish()
	return out
}

// runOne drives a single session to completion, recovering from a panic in
// the factory or the engine loop so one bad session never aborts the plan
// (mirroring machinepool.go's isFatalErr/panic-recovery discipline).
func (r *Runner) runOne(ctx context.Context, plan Plan, index int, seed int64) (summary SessionSummary) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			summary = SessionSummary{Index: index, Err: errs.Fatalf("runner: session %d panicked: %v", index, rec)}
		}
	}()

	logLifecycle(plan.Logger, "session.start", slog.Int("index", index), slog.Int64("seed", seed))

	sess, g, strat, err := r.factory(index, seed)
	if err != nil {
		r.fatals.Add(1)
		return SessionSummary{Index: index, Err: err}
	}

	var reserved money.Money
	if plan.Vault != nil {
		reserved, err = plan.Vault.Reserve(sess.State.Balance)
		if err != nil {
			r.fatals.Add(1)
			return SessionSummary{SessionID: sess.ID, Index: index, Err: err}
		}
		sess.State.Balance = reserved
	}

	bus := eventbus.New(sess.ID)
	for _, sub := range plan.Subscribers {
		bus.Subscribe(sub)
	}
	eng := engine.New(sess, g, strat, bus, strategy.Hooks{})
	res, err := eng.Run(ctx)
	if err != nil {
		if e, ok := errs.AsErr(err); ok && e.ErrLv == errs.Fatal {
			r.fatals.Add(1)
		}
	}

	if plan.Vault != nil {
		plan.Vault.Settle(reserved, sess.State.Balance)
	}

	snap := eng.Snapshot()
	if plan.Checkpoint != nil {
		wrote, cerr := plan.Checkpoint.WriteCheckpoint(snap)
		if cerr != nil {
			err = errOr(err, cerr)
		} else if wrote {
			bus.Publish(eventbus.CheckpointWritten, snap.SessionID)
		}
	}

	logLifecycle(plan.Logger, "session.end",
		slog.String("session_id", sess.ID),
		slog.String("reason", res.Reason.String()),
		slog.Int("bets", res.Bets),
		slog.Duration("elapsed", time.Since(sess.StartedAt)),
	)

	return SessionSummary{
		SessionID:  sess.ID,
		Index:      index,
		Reason:     res.Reason,
		Bets:       res.Bets,
		FinalState: snap,
		Err:        err,
	}
}

// logLifecycle emits one structured session-lifecycle record if log is
// non-nil, the way the teacher's AccessLog middleware treats a nil
// *slog.Logger as "lifecycle logging disabled" rather than panicking.
func logLifecycle(log *slog.Logger, msg string, attrs ...slog.Attr) {
	if log == nil {
		return
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}

// runAccumulator gathers completed-session summaries (both resumed and
// freshly produced) behind a mutex, so concurrent workers in runParallel
// can safely persist a plan-level RunCheckpoint after every session.
type runAccumulator struct {
	mu            sync.Mutex
	store         RunCheckpointer
	runID         string
	totalSessions int
	seed          int64
	summaries     map[int]SessionSummary
}

func newRunAccumulator(store RunCheckpointer, runID string, totalSessions int, seed int64, resumed map[int]SessionSummary) *runAccumulator {
	acc := &runAccumulator{
		store:         store,
		runID:         runID,
		totalSessions: totalSessions,
		seed:          seed,
		summaries:     make(map[int]SessionSummary, len(resumed)),
	}
	for idx, s := range resumed {
		acc.summaries[idx] = s
	}
	return acc
}

// record folds s into the accumulated set and persists the full
// RunCheckpoint document, best-effort: a failed plan-level checkpoint
// write is not fatal to the run, matching Checkpointer's own treatment of
// WriteCheckpoint errors (surfaced on the session's summary, not aborted).
func (a *runAccumulator) record(s SessionSummary) {
	if a == nil || a.store == nil {
		return
	}
	a.mu.Lock()
	a.summaries[s.Index] = s
	ids := make([]string, 0, len(a.summaries))
	partials := make([]SessionSummary, 0, len(a.summaries))
	for _, v := range a.summaries {
		ids = append(ids, v.SessionID)
		partials = append(partials, v)
	}
	sort.Slice(partials, func(i, j int) bool { return partials[i].Index < partials[j].Index })
	sort.Strings(ids)
	doc := RunCheckpoint{
		RunID:               a.runID,
		TotalSessions:       a.totalSessions,
		Seed:                a.seed,
		CompletedSessionIDs: ids,
		PartialSummaries:    partials,
	}
	store := a.store
	a.mu.Unlock()
	_ = store.WriteRunCheckpoint(doc)
}

func errOr(primary, fallback error) error {
	if primary != nil {
		return primary
	}
	return fallback
}

func newBar(total int, show bool) *pb.ProgressBar {
	bar := pb.StartNew(total)
	if !show {
		bar.SetWriter(io.Discard)
	}
	return bar
}

// randomSeed draws a fresh top-level seed the way sim.go's newSimulator
// does, via crypto/rand rather than a package-global math/rand source.
func randomSeed() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0, errs.Wrap(err, "runner: failed to draw random seed")
	}
	return n.Int64(), nil
}
