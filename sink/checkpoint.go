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

package sink

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zintix-labs/dicebot/engine"
	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/runner"
	"github.com/zintix-labs/dicebot/session"
)

// Checkpoint persists whole-session engine.Snapshot documents under one
// run's directory, atomically (write-then-rename, the same discipline the
// other example repos' state-file writers use) so a crash mid-write never
// leaves a corrupt checkpoint behind. Only whole-session granularity is
// required (spec §6) — there is no mid-session checkpoint.
type Checkpoint struct {
	root  string
	runID string
}

// NewCheckpoint builds a Checkpoint writer rooted at root/checkpoints/runID.
func NewCheckpoint(root, runID string) (*Checkpoint, error) {
	dir := filepath.Join(root, "checkpoints", runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.SinkIO("sink: failed to create checkpoint directory: " + err.Error())
	}
	return &Checkpoint{root: root, runID: runID}, nil
}

func (c *Checkpoint) dir() string { return filepath.Join(c.root, "checkpoints", c.runID) }

func (c *Checkpoint) path(sessionID string) string {
	return filepath.Join(c.dir(), sessionID+".json")
}

// WriteCheckpoint persists snap via write-to-temp then os.Rename, so a
// reader never observes a partially-written file. Implements
// runner.Checkpointer.
func (c *Checkpoint) WriteCheckpoint(snap engine.Snapshot) (bool, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return false, errs.SinkIO("sink: failed to marshal checkpoint: " + err.Error())
	}
	final := c.path(snap.SessionID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, errs.SinkIO("sink: failed to write checkpoint: " + err.Error())
	}
	if err := os.Rename(tmp, final); err != nil {
		return false, errs.SinkIO("sink: failed to finalize checkpoint: " + err.Error())
	}
	return true, nil
}

// IntervalCheckpoint gates an inner Checkpointer so it only fires every
// `interval` completed sessions (spec §6's checkpoint_interval), rather
// than on every session as Checkpoint.WriteCheckpoint alone would. An
// interval <= 1 checkpoints every session.
type IntervalCheckpoint struct {
	inner    runner.Checkpointer
	interval int64
	count    atomic.Int64
}

// NewIntervalCheckpoint wraps inner so WriteCheckpoint only reaches it on
// every interval-th call.
func NewIntervalCheckpoint(inner runner.Checkpointer, interval int) *IntervalCheckpoint {
	if interval < 1 {
		interval = 1
	}
	return &IntervalCheckpoint{inner: inner, interval: int64(interval)}
}

// WriteCheckpoint implements runner.Checkpointer, forwarding to inner only
// once every c.interval calls. Gated calls report wrote=false.
func (c *IntervalCheckpoint) WriteCheckpoint(snap engine.Snapshot) (bool, error) {
	n := c.count.Add(1)
	if n%c.interval != 0 {
		return false, nil
	}
	return c.inner.WriteCheckpoint(snap)
}

// runCheckpointDoc is the on-disk shape of a plan-level RunCheckpoint: the
// same fields as runner.RunCheckpoint, but with Err projected to a string
// since encoding/json cannot round-trip a bare error interface value.
type runCheckpointDoc struct {
	RunID               string       `json:"run_id"`
	TotalSessions       int          `json:"total_sessions"`
	Seed                int64        `json:"seed"`
	CompletedSessionIDs []string     `json:"completed_session_ids"`
	PartialSummaries    []docSummary `json:"partial_summaries"`
}

type docSummary struct {
	SessionID  string          `json:"session_id"`
	Index      int             `json:"index"`
	Reason     session.Reason  `json:"reason"`
	Bets       int             `json:"bets"`
	FinalState engine.Snapshot `json:"final_state"`
	Err        string          `json:"err,omitempty"`
}

func toDoc(rc runner.RunCheckpoint) runCheckpointDoc {
	d := runCheckpointDoc{
		RunID:               rc.RunID,
		TotalSessions:       rc.TotalSessions,
		Seed:                rc.Seed,
		CompletedSessionIDs: rc.CompletedSessionIDs,
	}
	for _, s := range rc.PartialSummaries {
		errMsg := ""
		if s.Err != nil {
			errMsg = s.Err.Error()
		}
		d.PartialSummaries = append(d.PartialSummaries, docSummary{
			SessionID:  s.SessionID,
			Index:      s.Index,
			Reason:     s.Reason,
			Bets:       s.Bets,
			FinalState: s.FinalState,
			Err:        errMsg,
		})
	}
	return d
}

func fromDoc(d runCheckpointDoc) runner.RunCheckpoint {
	rc := runner.RunCheckpoint{
		RunID:               d.RunID,
		TotalSessions:       d.TotalSessions,
		Seed:                d.Seed,
		CompletedSessionIDs: d.CompletedSessionIDs,
	}
	for _, s := range d.PartialSummaries {
		var err error
		if s.Err != "" {
			err = errors.New(s.Err)
		}
		rc.PartialSummaries = append(rc.PartialSummaries, runner.SessionSummary{
			SessionID:  s.SessionID,
			Index:      s.Index,
			Reason:     s.Reason,
			Bets:       s.Bets,
			FinalState: s.FinalState,
			Err:        err,
		})
	}
	return rc
}

func (c *Checkpoint) runCheckpointPath() string {
	return filepath.Join(c.dir(), "_run.json")
}

// WriteRunCheckpoint persists rc atomically, the same write-then-rename
// discipline as WriteCheckpoint. Implements runner.RunCheckpointer.
func (c *Checkpoint) WriteRunCheckpoint(rc runner.RunCheckpoint) error {
	data, err := json.Marshal(toDoc(rc))
	if err != nil {
		return errs.SinkIO("sink: failed to marshal run checkpoint: " + err.Error())
	}
	final := c.runCheckpointPath()
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.SinkIO("sink: failed to write run checkpoint: " + err.Error())
	}
	if err := os.Rename(tmp, final); err != nil {
		return errs.SinkIO("sink: failed to finalize run checkpoint: " + err.Error())
	}
	return nil
}

// ReadRunCheckpoint loads the plan-level checkpoint document for this run,
// if one was ever written. ok is false (with a nil error) when none exists
// yet, so a fresh run and a first-time resume attempt are both handled
// without treating "no checkpoint yet" as a failure. Implements
// runner.RunCheckpointer.
func (c *Checkpoint) ReadRunCheckpoint() (runner.RunCheckpoint, bool, error) {
	data, err := os.ReadFile(c.runCheckpointPath())
	if err != nil {
		if os.IsNotExist(err) {
			return runner.RunCheckpoint{}, false, nil
		}
		return runner.RunCheckpoint{}, false, errs.SinkIO("sink: failed to read run checkpoint: " + err.Error())
	}
	var doc runCheckpointDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return runner.RunCheckpoint{}, false, errs.SinkIO("sink: failed to decode run checkpoint: " + err.Error())
	}
	return fromDoc(doc), true, nil
}

// CheckpointMeta is one entry of List's result.
type CheckpointMeta struct {
	SessionID string
	Path      string
	ModTime   time.Time
}

// List enumerates every checkpoint currently on disk for this run, newest
// first.
func (c *Checkpoint) List() ([]CheckpointMeta, error) {
	entries, err := os.ReadDir(c.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.SinkIO("sink: failed to list checkpoints: " + err.Error())
	}
	out := make([]CheckpointMeta, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name() == "_run.json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, CheckpointMeta{
			SessionID: strings.TrimSuffix(e.Name(), ".json"),
			Path:      filepath.Join(c.dir(), e.Name()),
			ModTime:   info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// Resume loads a previously written snapshot by session id.
func (c *Checkpoint) Resume(sessionID string) (engine.Snapshot, error) {
	data, err := os.ReadFile(c.path(sessionID))
	if err != nil {
		return engine.Snapshot{}, errs.SinkIO("sink: failed to read checkpoint: " + err.Error())
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return engine.Snapshot{}, errs.SinkIO("sink: failed to decode checkpoint: " + err.Error())
	}
	return snap, nil
}

// Clean prunes checkpoints older than maxAge (spec §6's
// max_checkpoint_age_days), across every run directory under root.
func Clean(root string, maxAge time.Duration) (int, error) {
	base := filepath.Join(root, "checkpoints")
	runDirs, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errs.SinkIO("sink: failed to list checkpoint runs: " + err.Error())
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, rd := range runDirs {
		if !rd.IsDir() {
			continue
		}
		runPath := filepath.Join(base, rd.Name())
		files, err := os.ReadDir(runPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(runPath, f.Name())); err == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}
