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

// support.go binds the flag.FlagSet for whichever logical command (spec
// §6) was routed to by main.go, the way the teacher's cmd/run/support.go
// binds one global *config from `flag`, and dispatches to the matching
// runner/stats/sink plumbing. The CLI itself is a thin collaborator (spec
// §1): it only resolves a config.Config, builds a runner.Plan, and prints
// what the core hands back.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/zintix-labs/dicebot/config"
	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/eventbus"
	"github.com/zintix-labs/dicebot/game"
	"github.com/zintix-labs/dicebot/gamestate"
	"github.com/zintix-labs/dicebot/money"
	"github.com/zintix-labs/dicebot/oracle"
	"github.com/zintix-labs/dicebot/runner"
	"github.com/zintix-labs/dicebot/session"
	"github.com/zintix-labs/dicebot/sink"
	"github.com/zintix-labs/dicebot/stats"
	"github.com/zintix-labs/dicebot/strategy"
	_ "github.com/zintix-labs/dicebot/strategy/basic"
	"github.com/zintix-labs/dicebot/strategy/parking"
	"github.com/zintix-labs/dicebot/vault"
)

var cfg *cliConfig = new(cliConfig)

// cliConfig holds every flag a subcommand of spec §6's command surface
// can read; not every field applies to every command (mirrors the
// teacher's single flat *config populated once by bindVar).
type cliConfig struct {
	configPath string
	sessions   int
	workers    int
	outputRoot string
	runID      string
	seed       int64
	clientSeed string
	capital    string
	presets    string // comma-separated preset list, for `compare`
	sweepParam string // comma-separated base_bet values ("0.001,0.002,0.003"), for `sweep` use within `compare`
	checkpoint int
	sessionID  string // `recovery resume` target
	maxAgeDays int
	pprofMode  string
	quiet      bool
	resume     bool
}

// bindVar binds cmd's own flag.FlagSet over args, the way the teacher's
// bindVar binds the process-wide flag.CommandLine, except scoped per
// subcommand so `simulate -workers 8` and `recovery clean -max-age-days 7`
// don't share an unrelated flag surface.
func bindVar(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.StringVar(&cfg.configPath, "config", "", "path to a YAML configuration file (spec §6); defaults used when empty")
	fs.IntVar(&cfg.sessions, "sessions", 0, "number of sessions to run (0 uses simulation.default_sessions)")
	fs.IntVar(&cfg.workers, "workers", 0, "worker pool width (0 lets the runner pick)")
	fs.StringVar(&cfg.outputRoot, "root", "build/dicebot", "root directory for detail logs, summaries, and checkpoints")
	fs.StringVar(&cfg.runID, "run", "", "run id, for `recovery list|resume` and `analyze`")
	fs.Int64Var(&cfg.seed, "seed", 0, "top-level plan seed (0 draws a fresh crypto-random seed)")
	fs.StringVar(&cfg.clientSeed, "client-seed", "dicebot", "initial client_seed for every session's oracle")
	fs.StringVar(&cfg.capital, "capital", "100", "starting capital handed to the vault (or directly to a session without one)")
	fs.StringVar(&cfg.presets, "presets", "conservative,moderate,aggressive,experimental", "comma-separated strategy_preset list for `compare`")
	fs.StringVar(&cfg.sweepParam, "sweep", "", "base_bet sweep values for `compare`, e.g. 0.001,0.002,0.003")
	fs.IntVar(&cfg.checkpoint, "checkpoint-interval", 0, "sessions between checkpoints (0 uses simulation.checkpoint_interval)")
	fs.StringVar(&cfg.sessionID, "session", "", "session id, for `recovery resume`'s single-session snapshot inspection")
	fs.IntVar(&cfg.maxAgeDays, "max-age-days", 0, "checkpoint max age in days, for `recovery clean` (0 uses simulation.max_checkpoint_age_days)")
	fs.StringVar(&cfg.pprofMode, "p", "", "pprof: '', cpu, heap, allocs")
	fs.BoolVar(&cfg.quiet, "quiet", false, "suppress the progress bar")
	fs.BoolVar(&cfg.resume, "resume", false, "skip sessions already completed in -run's checkpoint and execute the rest")

	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
}

// dispatch routes to one of spec §6's logical commands. Unlike
// scripts/ops.go's selectTask, a CONFIG_INVALID diagnostic here is printed
// with suggested remediations and exits non-zero rather than panicking.
func dispatch(cmd string) {
	switch cmd {
	case "simulate":
		runSimulate()
	case "compare":
		runCompare()
	case "analyze":
		runAnalyze()
	case "recovery":
		runRecovery()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want simulate|compare|analyze|recovery)\n", cmd)
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	if cfg.configPath == "" {
		return config.Defaults()
	}
	c, err := config.Load(cfg.configPath)
	if err != nil {
		diagnose(err)
		os.Exit(1)
	}
	return c
}

// diagnose prints a structured CONFIG_INVALID-style diagnostic (spec §7):
// the failure plus a suggested remediation, never a bare stack trace.
func diagnose(err error) {
	p := message.NewPrinter(language.English)
	if e, ok := errs.AsErr(err); ok {
		p.Printf("validation failed: %s\n", e.Message)
		p.Printf("  suggestion: re-check the offending key against spec §6's documented bounds\n")
		return
	}
	p.Printf("error: %v\n", err)
}

// buildStrategy resolves cfg.Strategy.Key (or, absent one, the
// Martingale-shaped preset tunables of config/presets.go) into a
// strategy.Strategy, wrapping it in parking.Parking when enabled.
func buildStrategy(c config.Config) (strategy.Strategy, error) {
	key := strategy.Key(c.Strategy.Key)
	tunable := c.Strategy.Tunable
	if key == "" {
		key = "martingale"
		preset, err := config.ResolvePreset(c.StrategyPreset)
		if err != nil {
			return nil, err
		}
		tunable = map[string]any{
			"base_bet":   preset.BaseBet,
			"max_losses": preset.MaxLosses,
			"multiplier": preset.Multiplier,
		}
	}
	base, err := strategy.Global.Build(key, tunable)
	if err != nil {
		return nil, err
	}
	if !c.Parking.Enabled {
		return base, nil
	}
	return wrapParking(c, base)
}

func wrapParking(c config.Config, base strategy.Strategy) (strategy.Strategy, error) {
	pc := parking.DefaultConfig()
	if c.Parking.MaxTogglesBeforeBet > 0 {
		pc.MaxTogglesBeforeBet = int(c.Parking.MaxTogglesBeforeBet)
	}
	if c.Parking.AutoSeedRotationAfter > 0 {
		pc.AutoRotationThreshold = int(c.Parking.AutoSeedRotationAfter)
	}
	if c.Parking.ParkingBetAmount != "" {
		amt, err := money.FromString(c.Parking.ParkingBetAmount)
		if err != nil {
			return nil, errs.ConfigInvalid("parking.parking_bet_amount: " + err.Error())
		}
		pc.ParkingBetAmount = amt
	}
	if c.Parking.ParkingTarget > 0 {
		pc.ParkingTarget = c.Parking.ParkingTarget
	}
	if c.Parking.ParkingBetType == "OVER" {
		pc.ParkingBetType = oracle.Over
	}
	if c.Parking.ParkingOnConsecutiveLoss > 0 {
		pc.OnConsecutiveLosses = int(c.Parking.ParkingOnConsecutiveLoss)
	}
	if c.Parking.ParkingOnDrawdownPercent > 0 {
		pc.OnDrawdownPercent = c.Parking.ParkingOnDrawdownPercent
	}
	return parking.Wrap(pc, base)
}

// seededReader adapts a math/rand source seeded from a per-session int64
// into an io.Reader, so a session's initial server seed (and any
// mid-session rotation) is reproducible from that one seed rather than
// drawn from crypto/rand — the determinism spec §4.6 requires of the bet
// sequence given a fixed seed triple. Only used for simulated/replayed
// sessions; nothing here ever rolls an actual bet with it directly.
type seededReader struct{ r *rand.Rand }

func newSeededReader(seed int64) *seededReader {
	return &seededReader{r: rand.New(rand.NewSource(seed))}
}

func (s *seededReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(s.r.Intn(256))
	}
	return len(p), nil
}

// buildFactory closes over c and returns a runner.SessionFactory that
// mints one Oracle/Game/Strategy/Session tuple per session index, each
// reproducible from the per-session seed the runner's seedMaker derives.
func buildFactory(c config.Config) runner.SessionFactory {
	minBet, _ := money.FromString(c.Game.MinBet)
	if minBet.IsZero() {
		minBet = game.DefaultLimits().MinBet
	}
	limits := game.Limits{
		MinBet:        minBet,
		MinMultiplier: c.Game.MinMultiplier,
		MaxMultiplier: c.Game.MaxMultiplier,
	}
	startBalance, _ := money.FromString(cfg.capital)

	return func(index int, seed int64) (*session.Session, *game.Game, strategy.Strategy, error) {
		rng := newSeededReader(seed)
		o, err := oracle.New(nil, cfg.clientSeed, rng)
		if err != nil {
			return nil, nil, nil, err
		}
		g := game.New(o, limits)

		strat, err := buildStrategy(c)
		if err != nil {
			return nil, nil, nil, err
		}

		sessID := fmt.Sprintf("sess-%06d", index)
		window := c.Session.HistoryWindow
		if window <= 0 {
			window = gamestate.DefaultWindow
		}
		sessCfg := session.Config{
			MinBet:          minBet,
			StopLossRatio:   c.Session.StopLossRatio,
			TakeProfitRatio: c.Session.TakeProfitRatio,
			MaxBets:         c.Session.MaxBets,
			HistoryWindow:   window,
		}
		sess := session.New(sessID, startBalance, sessCfg)
		return sess, g, strat, nil
	}
}

// runSimulate implements the `simulate` command: runs plan, writes the
// detail log and the run summary, and prints a stats.Report. The detail log
// is one file for the whole run, shared by every worker; there is no
// per-worker file.
func runSimulate() {
	c := loadConfig()
	if err := c.Validate(); err != nil {
		diagnose(err)
		os.Exit(1)
	}

	sessions := cfg.sessions
	if sessions <= 0 {
		sessions = int(c.Simulation.DefaultSessions)
	}
	if sessions <= 0 {
		sessions = 1
	}

	plan := runner.Plan{
		Sessions:              sessions,
		AutoParallelThreshold: nonZero(int(c.Simulation.AutoParallelThreshold), 50),
		Workers:               cfg.workers,
		ShowProgress:          !cfg.quiet,
		Seed:                  cfg.seed,
		RunID:                 cfg.runID,
		Resume:                cfg.resume,
	}

	startBalance, _ := money.FromString(cfg.capital)
	if c.Vault.VaultRatio > 0 {
		v, err := vault.New(startBalance, c.Vault.VaultRatio, c.Vault.WorkingRatio, c.Vault.MaxTransfersPerDay)
		if err != nil {
			diagnose(err)
			os.Exit(1)
		}
		plan.Vault = v
	}

	r := runner.New(buildFactory(c))
	runID, result := execute(r, plan, c, sink.Simulate, "simulate")

	report := stats.NewReport(result)
	report.StdOut()
	writeSummary(runID, result)
}

// runCompare implements the `compare` command: runs the same session_config
// once per named strategy preset (spec §4.8's comparison mode) and prints
// the side-by-side ROI/drawdown/survival table of stats.CompareReport.
func runCompare() {
	c := loadConfig()
	if err := c.Validate(); err != nil {
		diagnose(err)
		os.Exit(1)
	}

	sessions := cfg.sessions
	if sessions <= 0 {
		sessions = int(c.Simulation.DefaultSessions)
	}
	if sessions <= 0 {
		sessions = 200
	}

	if cfg.sweepParam != "" {
		runSweep(c, sessions)
		return
	}

	names := strings.Split(cfg.presets, ",")
	runs := make(map[string]runner.PlanResult, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		pc := c
		pc.StrategyPreset = config.StrategyPreset(name)
		pc.Strategy.Key = "" // force preset resolution per named strategy

		plan := runner.Plan{
			Sessions:              sessions,
			AutoParallelThreshold: nonZero(int(c.Simulation.AutoParallelThreshold), 50),
			Workers:               cfg.workers,
			ShowProgress:          !cfg.quiet,
			Seed:                  cfg.seed,
		}
		r := runner.New(buildFactory(pc))
		_, result := execute(r, plan, pc, sink.Compare, "compare-"+name)
		runs[name] = result
	}

	stats.NewCompare(runs).StdOut()
}

// runSweep is spec §4.8's parameter-sweep mode: one strategy (the
// configured key/preset), re-run once per base_bet value in -sweep's
// comma-separated list, each point against an identical session_config and
// plan seed so the grid's points differ only in the swept tunable.
func runSweep(c config.Config, sessions int) {
	values := strings.Split(cfg.sweepParam, ",")
	runs := make(map[string]runner.PlanResult, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, err := money.FromString(v); err != nil {
			diagnose(errs.ConfigInvalid("compare: -sweep value " + v + " is not a decimal bet amount"))
			os.Exit(1)
		}

		pc := c
		if pc.Strategy.Key == "" {
			pc.Strategy.Key = "martingale"
			preset, err := config.ResolvePreset(pc.StrategyPreset)
			if err != nil {
				diagnose(err)
				os.Exit(1)
			}
			pc.Strategy.Tunable = map[string]any{
				"max_losses": preset.MaxLosses,
				"multiplier": preset.Multiplier,
			}
		} else {
			tunable := make(map[string]any, len(pc.Strategy.Tunable)+1)
			for k, tv := range pc.Strategy.Tunable {
				tunable[k] = tv
			}
			pc.Strategy.Tunable = tunable
		}
		pc.Strategy.Tunable["base_bet"] = v

		plan := runner.Plan{
			Sessions:              sessions,
			AutoParallelThreshold: nonZero(int(c.Simulation.AutoParallelThreshold), 50),
			Workers:               cfg.workers,
			ShowProgress:          !cfg.quiet,
			Seed:                  cfg.seed,
		}
		r := runner.New(buildFactory(pc))
		_, result := execute(r, plan, pc, sink.Sweep, "sweep-"+v)
		runs["base_bet="+v] = result
	}

	stats.NewCompare(runs).StdOut()
}

// runAnalyze implements the `analyze` command: loads a previously written
// Summary document by run id and reprints its aggregate and per-session
// figures.
func runAnalyze() {
	if cfg.runID == "" {
		fmt.Fprintln(os.Stderr, "analyze: -run is required")
		os.Exit(1)
	}
	path := cfg.outputRoot + "/summary_" + cfg.runID + ".json"
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
	var summary sink.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: failed to decode summary: %v\n", err)
		os.Exit(1)
	}

	p := message.NewPrinter(language.English)
	p.Printf("run %s: %d sessions, %d bets total, mean ROI %.4f%%\n",
		cfg.runID, summary.Aggregate.TotalSessions, summary.Aggregate.TotalBets, summary.Aggregate.MeanROI*100)
	for _, s := range summary.PerSession {
		p.Printf("  %s  final=%s  roi=%.4f%%  maxdd=%.4f%%  bets=%d  reason=%s\n",
			s.SessionID, s.FinalBalance, s.ROI*100, s.MaxDrawdown*100, s.Bets, s.TerminalReason)
	}
}

// runRecovery implements `recovery {list, resume, clean}` (spec §6).
func runRecovery() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: dicebot recovery {list|resume|clean} [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	bindVar("recovery "+sub, os.Args[3:])

	switch sub {
	case "list":
		recoveryList()
	case "resume":
		recoveryResume()
	case "clean":
		recoveryClean()
	default:
		fmt.Fprintf(os.Stderr, "unknown recovery subcommand %q\n", sub)
		os.Exit(1)
	}
}

func recoveryList() {
	if cfg.runID == "" {
		fmt.Fprintln(os.Stderr, "recovery list: -run is required")
		os.Exit(1)
	}
	cp, err := sink.NewCheckpoint(cfg.outputRoot, cfg.runID)
	if err != nil {
		diagnose(err)
		os.Exit(1)
	}
	metas, err := cp.List()
	if err != nil {
		diagnose(err)
		os.Exit(1)
	}
	for _, m := range metas {
		fmt.Printf("%s\t%s\t%s\n", m.SessionID, m.ModTime.Format(time.RFC3339), m.Path)
	}
}

// recoveryResume implements spec §4.8's resume semantics: given -run, it
// loads that run's plan-level checkpoint and re-executes only the sessions
// not already marked complete in it, producing the same PlanResult an
// uninterrupted run would have (spec §6, property 9's checkpoint
// idempotence). Passing -session alongside -run instead prints one
// session's persisted engine.Snapshot without resuming anything, for
// ad-hoc inspection of a single session's terminal state.
func recoveryResume() {
	if cfg.runID == "" {
		fmt.Fprintln(os.Stderr, "recovery resume: -run is required")
		os.Exit(1)
	}
	cp, err := sink.NewCheckpoint(cfg.outputRoot, cfg.runID)
	if err != nil {
		diagnose(err)
		os.Exit(1)
	}

	if cfg.sessionID != "" {
		snap, err := cp.Resume(cfg.sessionID)
		if err != nil {
			diagnose(err)
			os.Exit(1)
		}
		data, _ := json.MarshalIndent(snap, "", "  ")
		fmt.Println(string(data))
		return
	}

	rc, ok, err := cp.ReadRunCheckpoint()
	if err != nil {
		diagnose(err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "recovery resume: no run-level checkpoint found for %q\n", cfg.runID)
		os.Exit(1)
	}

	c := loadConfig()
	if err := c.Validate(); err != nil {
		diagnose(err)
		os.Exit(1)
	}

	plan := runner.Plan{
		Sessions:              rc.TotalSessions,
		AutoParallelThreshold: nonZero(int(c.Simulation.AutoParallelThreshold), 50),
		Workers:               cfg.workers,
		ShowProgress:          !cfg.quiet,
		Seed:                  rc.Seed,
		RunID:                 cfg.runID,
		Resume:                true,
	}

	startBalance, _ := money.FromString(cfg.capital)
	if c.Vault.VaultRatio > 0 {
		v, err := vault.New(startBalance, c.Vault.VaultRatio, c.Vault.WorkingRatio, c.Vault.MaxTransfersPerDay)
		if err != nil {
			diagnose(err)
			os.Exit(1)
		}
		plan.Vault = v
	}

	r := runner.New(buildFactory(c))
	runID, result := execute(r, plan, c, sink.Simulate, "simulate-resume")
	report := stats.NewReport(result)
	report.StdOut()
	writeSummary(runID, result)
}

func recoveryClean() {
	maxAge := cfg.maxAgeDays
	if maxAge <= 0 {
		maxAge = int(loadConfig().Simulation.MaxCheckpointAgeDays)
	}
	if maxAge <= 0 {
		maxAge = 30
	}
	removed, err := sink.Clean(cfg.outputRoot, time.Duration(maxAge)*24*time.Hour)
	if err != nil {
		diagnose(err)
		os.Exit(1)
	}
	fmt.Printf("removed %d checkpoint(s) older than %d day(s)\n", removed, maxAge)
}

// lifecycleLogger is the structured session-lifecycle logger of SPEC_FULL
// §3's ambient stack: one JSONHandler over stderr, shared across every
// command so "session.start"/"session.end" records land alongside (not
// instead of) the JSONL detail log.
var lifecycleLogger = slog.New(slog.NewJSONHandler(os.Stderr, nil))

// execute wires a detail-log sink, a per-session Checkpoint, and a
// plan-level RunCheckpoint around r.Run, returning the run id alongside
// its PlanResult. discriminator classifies the detail log under
// simulations/{simulate,compare,sweep} (spec §6). plan.RunID, if already
// set by the caller (e.g. a `recovery resume`, or `-run` on `simulate`),
// is reused so the checkpoint directory and the reported run id always
// agree — required for plan.Resume to find its prior RunCheckpoint.
func execute(r *runner.Runner, plan runner.Plan, c config.Config, discriminator sink.Discriminator, label string) (string, runner.PlanResult) {
	runID := plan.RunID
	if runID == "" {
		runID = uuid.NewString()
		plan.RunID = runID
	}

	dlog, err := sink.NewDetailLog(cfg.outputRoot, "simulations/"+string(discriminator), label, 0)
	if err != nil {
		diagnose(err)
		os.Exit(1)
	}
	defer dlog.Close()
	plan.Subscribers = []eventbus.Subscriber{dlog.Subscriber()}
	plan.Logger = lifecycleLogger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cp, err := sink.NewCheckpoint(cfg.outputRoot, runID)
	if err == nil {
		interval := cfg.checkpoint
		if interval <= 0 {
			interval = int(c.Simulation.CheckpointInterval)
		}
		plan.Checkpoint = sink.NewIntervalCheckpoint(cp, interval)
		plan.RunCheckpoint = cp
		fmt.Printf("checkpoints (if any): %s -run %s\n", cfg.outputRoot, runID)
	}

	result, err := r.Run(ctx, plan)
	if err != nil {
		diagnose(err)
		os.Exit(1)
	}
	return result.RunID, result
}

func writeSummary(runID string, result runner.PlanResult) {
	perSession := make([]sink.SessionSummary, 0, len(result.Sessions))
	var roiSum float64
	var totalBets int
	for _, s := range result.Sessions {
		gs := s.FinalState.GameState
		terminal := s.Reason.String()
		errMsg := ""
		if s.Err != nil {
			errMsg = s.Err.Error()
		}
		perSession = append(perSession, sink.SessionSummary{
			SessionID:      s.SessionID,
			FinalBalance:   gs.Balance.String(),
			ROI:            gs.ROI(),
			MaxDrawdown:    gs.MaxDrawdown,
			Bets:           gs.BetsCount,
			Wins:           gs.WinsCount,
			Losses:         gs.LossesCount,
			TerminalReason: terminal,
			Metrics:        map[string]any{"error": errMsg},
		})
		roiSum += gs.ROI()
		totalBets += gs.BetsCount
	}
	meanROI := 0.0
	if len(perSession) > 0 {
		meanROI = roiSum / float64(len(perSession))
	}
	summary := sink.Summary{
		Plan:       map[string]any{"sessions": len(result.Sessions)},
		PerSession: perSession,
		Aggregate: sink.Aggregate{
			TotalSessions: len(result.Sessions),
			TotalBets:     totalBets,
			MeanROI:       meanROI,
			Panics:        result.Panics,
			Fatals:        result.Fatals,
		},
	}
	if err := sink.WriteSummary(cfg.outputRoot, runID, summary); err != nil {
		diagnose(err)
	}
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
