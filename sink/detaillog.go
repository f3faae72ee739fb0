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

// Package sink persists the artifacts a simulation run produces: the
// per-event JSONL detail log (directory-classified per spec §6), the
// summary document, and resumable checkpoints. Detail logs use stdlib
// encoding/json one-object-per-line, the same marshaling the teacher uses
// for its Gacha blobs in machine.go, optionally zstd-compressed once
// rotated past a size threshold (klauspost/compress/zstd, also lifted from
// machine.go's Gacha/SeedBank loader).
package sink

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/zintix-labs/dicebot/errs"
	"github.com/zintix-labs/dicebot/eventbus"
)

// Discriminator selects the simulations/ subtree a run's detail log lives
// under (spec §6).
type Discriminator string

const (
	Simulate Discriminator = "simulate"
	Compare  Discriminator = "compare"
	Sweep    Discriminator = "sweep"
)

// ClassifyStrategy maps a strategy kind string (as found in a strategy's
// Genome()["kind"]) to the strategies/ subclass directory spec §6
// mechanically assigns it to.
func ClassifyStrategy(kind string) string {
	switch {
	case strings.HasPrefix(kind, "composite"):
		return "strategies/composite"
	case strings.HasPrefix(kind, "adaptive"):
		return "strategies/adaptive"
	default:
		return "strategies/basic"
	}
}

// DetailLog writes one JSON object per line for every event a session's
// Bus publishes. Rotation above sizeThreshold bytes compresses the rotated
// file with zstd and starts a fresh plain file.
type DetailLog struct {
	mu            sync.Mutex
	root          string
	name          string
	sizeThreshold int64

	f       *os.File
	w       *bufio.Writer
	written int64
	warned  bool
}

// record is the on-disk shape of one detail-log line (spec §6: "each line
// is one event as in §4.7 with its full payload").
type record struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload"`
}

// NewDetailLog opens (creating directories as needed) a detail log under
// root/category/name_{timestamp}.jsonl. category is one produced by
// Classify helpers or a literal "simulations/<discriminator>" string.
func NewDetailLog(root, category, name string, sizeThreshold int64) (*DetailLog, error) {
	dir := filepath.Join(root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.SinkIO("sink: failed to create detail log directory: " + err.Error())
	}
	fname := name + "_" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".jsonl"
	path := filepath.Join(dir, fname)
	f, err := os.Create(path)
	if err != nil {
		return nil, errs.SinkIO("sink: failed to create detail log: " + err.Error())
	}
	if sizeThreshold <= 0 {
		sizeThreshold = 64 * 1024 * 1024
	}
	return &DetailLog{root: root, name: fname, sizeThreshold: sizeThreshold, f: f, w: bufio.NewWriter(f)}, nil
}

// Subscriber adapts the DetailLog into an eventbus.Subscriber.
func (d *DetailLog) Subscriber() eventbus.Subscriber {
	return func(ev eventbus.Event) {
		d.Write(ev)
	}
}

// Write appends one event as a JSON line. A write failure is logged once
// (spec §7's SINK_IO policy: drop the event, one warning per file) rather
// than propagated, since a detail log is diagnostic, not ledger state.
func (d *DetailLog) Write(ev eventbus.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	line, err := json.Marshal(record{
		Kind:      ev.Kind.String(),
		Timestamp: ev.Timestamp,
		SessionID: ev.SessionID,
		Payload:   ev.Payload,
	})
	if err != nil {
		d.warnOnce()
		return
	}
	line = append(line, '\n')
	n, err := d.w.Write(line)
	if err != nil {
		d.warnOnce()
		return
	}
	d.written += int64(n)

	if d.written >= d.sizeThreshold {
		d.rotate()
	}
}

// warnOnce surfaces the first write failure for this file via slog and
// stays silent afterwards — spec §7's SINK_IO policy: drop the event with
// a single warning per file, never a log storm.
func (d *DetailLog) warnOnce() {
	if d.warned {
		return
	}
	d.warned = true
	slog.Warn("sink: detail log write failed, dropping events", "file", d.f.Name())
}

// rotate flushes and compresses the current file with zstd, then starts a
// fresh plain writer. Must be called with d.mu held.
func (d *DetailLog) rotate() {
	_ = d.w.Flush()
	_ = d.f.Close()

	if err := compressToZst(d.f.Name()); err != nil {
		d.warnOnce()
	}

	fname := d.name + "." + strconv.FormatInt(time.Now().UnixNano(), 10) + ".jsonl"
	path := filepath.Join(filepath.Dir(d.f.Name()), fname)
	f, err := os.Create(path)
	if err != nil {
		d.warnOnce()
		return
	}
	d.f = f
	d.w = bufio.NewWriter(f)
	d.written = 0
	d.warned = false
}

// compressToZst reads src fully, writes src+".zst", and removes the
// original, matching the compression side of machine.go's Gacha/SeedBank
// .zst loader.
func compressToZst(src string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	out, err := os.Create(src + ".zst")
	if err != nil {
		return err
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return err
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Close flushes and closes the underlying file.
func (d *DetailLog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.w.Flush(); err != nil {
		return errs.SinkIO("sink: failed to flush detail log: " + err.Error())
	}
	return d.f.Close()
}
