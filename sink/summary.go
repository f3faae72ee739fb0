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
	"os"
	"path/filepath"

	"github.com/zintix-labs/dicebot/errs"
)

// SessionSummary is the per-session entry of a Summary document (spec §6).
type SessionSummary struct {
	SessionID      string         `json:"session_id"`
	FinalBalance   string         `json:"final_balance"`
	ROI            float64        `json:"roi"`
	MaxDrawdown    float64        `json:"max_drawdown"`
	Bets           int            `json:"bets"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	TerminalReason string         `json:"terminal_reason"`
	Metrics        map[string]any `json:"metrics,omitempty"`
}

// Aggregate is the run-level rollup of a Summary document.
type Aggregate struct {
	TotalSessions int     `json:"total_sessions"`
	TotalBets     int     `json:"total_bets"`
	MeanROI       float64 `json:"mean_roi"`
	Panics        int64   `json:"panics"`
	Fatals        int64   `json:"fatals"`
}

// Summary is the one-JSON-document-per-run artifact spec §6 describes.
type Summary struct {
	Plan       map[string]any   `json:"plan"`
	PerSession []SessionSummary `json:"per_session"`
	Aggregate  Aggregate        `json:"aggregate"`
}

// WriteSummary marshals summary as indented JSON to root/summary_<runID>.json.
func WriteSummary(root, runID string, summary Summary) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errs.SinkIO("sink: failed to create summary directory: " + err.Error())
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errs.SinkIO("sink: failed to marshal summary: " + err.Error())
	}
	path := filepath.Join(root, "summary_"+runID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.SinkIO("sink: failed to write summary: " + err.Error())
	}
	return nil
}
