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

// Package stats rolls a runner.PlanResult up into the ROI/drawdown/
// survival report an operator reads after a simulate/compare/sweep run,
// reusing stat.go's Rtp/Std/Cv/Ci accrue-then-Done() shape (accumulate raw
// numbers, derive the report once) and its ASCII table renderer.
package stats

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"

	"github.com/zintix-labs/dicebot/runner"
	"github.com/zintix-labs/dicebot/session"
)

var lang = language.English

// CI is a 95% confidence interval.
type CI struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Report is the derived statistics over one PlanResult's sessions.
type Report struct {
	RunID          string        `json:"run_id"`
	Duration       time.Duration `json:"duration"`
	TotalSessions  int           `json:"total_sessions"`
	TotalBets      int           `json:"total_bets"`
	MeanROI        float64       `json:"mean_roi"`
	StdROI         float64       `json:"std_roi"`
	ROICI          CI            `json:"roi_ci"`
	MeanDrawdown   float64       `json:"mean_max_drawdown"`
	BankruptRate   float64       `json:"bankrupt_rate"`
	TakeProfitRate float64       `json:"take_profit_rate"`
	SharpeRatio    float64       `json:"sharpe_ratio"`
	Panics         int64         `json:"panics"`
	Fatals         int64         `json:"fatals"`
}

// NewReport derives a Report from a completed runner.PlanResult.
func NewReport(result runner.PlanResult) *Report {
	r := &Report{
		RunID:         result.RunID,
		Duration:      result.Duration,
		TotalSessions: len(result.Sessions),
		Panics:        result.Panics,
		Fatals:        result.Fatals,
	}

	rois := make([]float64, 0, len(result.Sessions))
	drawdowns := make([]float64, 0, len(result.Sessions))
	bankrupt, takeProfit := 0, 0

	for _, s := range result.Sessions {
		r.TotalBets += s.Bets
		gs := s.FinalState.GameState
		rois = append(rois, gs.ROI())
		drawdowns = append(drawdowns, gs.MaxDrawdown)
		switch s.Reason {
		case session.Bankrupt:
			bankrupt++
		case session.TakeProfit:
			takeProfit++
		}
	}

	n := float64(len(result.Sessions))
	if n > 0 {
		r.MeanROI = stat.Mean(rois, nil)
		r.MeanDrawdown = stat.Mean(drawdowns, nil)
		r.BankruptRate = float64(bankrupt) / n
		r.TakeProfitRate = float64(takeProfit) / n
	}
	if len(rois) >= 2 {
		r.StdROI = stat.StdDev(rois, nil)
	}
	r.ROICI = confidenceInterval(r.MeanROI, r.StdROI, len(rois))
	const fitnessEps = 1e-9
	r.SharpeRatio = r.MeanROI / (r.StdROI + fitnessEps)

	return r
}

func confidenceInterval(mean, std float64, n int) CI {
	if n <= 1 {
		return CI{Lo: mean, Hi: mean}
	}
	se := std / math.Sqrt(float64(n))
	return CI{Lo: mean - 1.96*se, Hi: mean + 1.96*se}
}

// StdOut prints the report as an ASCII table (stdout), mirroring the
// teacher's StatReport.StdOut.
func (r *Report) StdOut() {
	keys, msg := r.fmtBasic()
	fmt.Println(fmtTable(r.RunID, keys, msg))
}

func (r *Report) fmtBasic() ([]string, map[string]string) {
	p := message.NewPrinter(lang)
	basic := map[string]string{
		"Run ID":            r.RunID,
		"Duration":          r.Duration.String(),
		"Total Sessions":    p.Sprintf("%d", r.TotalSessions),
		"Total Bets":        p.Sprintf("%d", r.TotalBets),
		"Mean ROI":          p.Sprintf("%.2f %%", 100.0*r.MeanROI),
		"ROI 95% CI":        p.Sprintf("[%.2f%%, %.2f%%]", 100.0*r.ROICI.Lo, 100.0*r.ROICI.Hi),
		"Mean Max Drawdown": p.Sprintf("%.2f %%", 100.0*r.MeanDrawdown),
		"Bankrupt Rate":     p.Sprintf("%.2f %%", 100.0*r.BankruptRate),
		"Take-Profit Rate":  p.Sprintf("%.2f %%", 100.0*r.TakeProfitRate),
		"Sharpe Ratio":      p.Sprintf("%.3f", r.SharpeRatio),
		"Panics":            p.Sprintf("%d", r.Panics),
		"Fatals":            p.Sprintf("%d", r.Fatals),
	}
	keys := []string{
		"Run ID", "Duration", "Total Sessions", "Total Bets", "Mean ROI", "ROI 95% CI",
		"Mean Max Drawdown", "Bankrupt Rate", "Take-Profit Rate", "Sharpe Ratio", "Panics", "Fatals",
	}
	return keys, basic
}
