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

package stats

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/zintix-labs/dicebot/runner"
	"github.com/zintix-labs/dicebot/session"
)

// StrategyOutcome is one named strategy's ROI distribution and terminal
// reason breakdown, the unit compare.go puts side by side.
type StrategyOutcome struct {
	Name         string
	ROIMedian    PointStat
	ROIP10       PointStat
	ROIP90       PointStat
	Bankrupt     PointStat
	TakeProfit   PointStat
	StillRunning PointStat
}

// PointStat is a point estimate paired with its 95% confidence interval.
type PointStat struct {
	Hat float64
	CI  CI
}

// CompareReport ranks a set of named strategy runs side by side, reusing the
// CP-exact proportion interval and order-statistic quantile interval the
// teacher's estimator.go derived player RTP distributions with, applied here
// to per-session ROI instead of per-spin RTP.
type CompareReport struct {
	Outcomes []StrategyOutcome
}

// NewCompare builds a CompareReport from one runner.PlanResult per named
// strategy (e.g. the `compare` CLI subcommand's per-preset simulation runs).
func NewCompare(runs map[string]runner.PlanResult) *CompareReport {
	names := make([]string, 0, len(runs))
	for name := range runs {
		names = append(names, name)
	}
	sort.Strings(names)

	cr := &CompareReport{Outcomes: make([]StrategyOutcome, 0, len(names))}
	for _, name := range names {
		result := runs[name]
		n := len(result.Sessions)
		rois := make([]float64, 0, n)
		bankrupt, takeProfit := 0, 0
		for _, s := range result.Sessions {
			rois = append(rois, s.FinalState.GameState.ROI())
			switch s.Reason {
			case session.Bankrupt:
				bankrupt++
			case session.TakeProfit:
				takeProfit++
			}
		}

		medLo, medHi := quantileCI(rois, 0.5, 0.95)
		p10Lo, p10Hi := quantileCI(rois, 0.10, 0.95)
		p90Lo, p90Hi := quantileCI(rois, 0.90, 0.95)
		bankruptHat, bankruptCI := proportionCICP(bankrupt, n, 0.95)
		takeProfitHat, takeProfitCI := proportionCICP(takeProfit, n, 0.95)
		stillHat, stillCI := proportionCICP(n-bankrupt-takeProfit, n, 0.95)

		cr.Outcomes = append(cr.Outcomes, StrategyOutcome{
			Name:         name,
			ROIMedian:    PointStat{Hat: quantilePoint(rois, 0.5), CI: CI{Lo: medLo, Hi: medHi}},
			ROIP10:       PointStat{Hat: quantilePoint(rois, 0.10), CI: CI{Lo: p10Lo, Hi: p10Hi}},
			ROIP90:       PointStat{Hat: quantilePoint(rois, 0.90), CI: CI{Lo: p90Lo, Hi: p90Hi}},
			Bankrupt:     PointStat{Hat: bankruptHat, CI: bankruptCI},
			TakeProfit:   PointStat{Hat: takeProfitHat, CI: takeProfitCI},
			StillRunning: PointStat{Hat: stillHat, CI: stillCI},
		})
	}
	return cr
}

// StdOut prints one ASCII table per strategy, in sorted name order.
func (cr *CompareReport) StdOut() {
	for _, o := range cr.Outcomes {
		keys := []string{"Median ROI", "P10 ROI", "P90 ROI", "Bankrupt", "Take-Profit", "Still Running"}
		msg := map[string]string{
			"Median ROI":    fmtHatCIpct(o.ROIMedian.Hat, o.ROIMedian.CI),
			"P10 ROI":       fmtHatCIpct(o.ROIP10.Hat, o.ROIP10.CI),
			"P90 ROI":       fmtHatCIpct(o.ROIP90.Hat, o.ROIP90.CI),
			"Bankrupt":      fmtHatCIpct(o.Bankrupt.Hat, o.Bankrupt.CI),
			"Take-Profit":   fmtHatCIpct(o.TakeProfit.Hat, o.TakeProfit.CI),
			"Still Running": fmtHatCIpct(o.StillRunning.Hat, o.StillRunning.CI),
		}
		fmt.Print(fmtTable(o.Name, keys, msg))
		fmt.Println()
	}
}

func fmtPct(x float64) string { return fmt.Sprintf("%.2f%%", x*100) }

func fmtHatCIpct(hat float64, ci CI) string {
	return fmt.Sprintf("%s [%s, %s]", fmtPct(hat), fmtPct(ci.Lo), fmtPct(ci.Hi))
}

// proportionCICP is the Clopper-Pearson exact confidence interval for a
// binomial proportion of k successes out of n trials.
func proportionCICP(k, n int, confidence float64) (pHat float64, ci CI) {
	if n == 0 {
		return 0, CI{Lo: 0, Hi: 1}
	}
	alpha := 1 - confidence
	pHat = float64(k) / float64(n)

	if k == 0 {
		ci.Lo = 0
	} else {
		b := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
		ci.Lo = b.Quantile(alpha / 2)
	}
	if k == n {
		ci.Hi = 1
	} else {
		b := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
		ci.Hi = b.Quantile(1 - alpha/2)
	}
	return
}

// quantileCI brackets the q-th order statistic's confidence interval by
// mapping its rank through the same Beta/CP machinery proportionCICP uses,
// then reading the bracketing values back off the sorted sample.
func quantileCI(data []float64, q, confidence float64) (float64, float64) {
	n := len(data)
	if n == 0 {
		return 0, 0
	}
	cp := make([]float64, n)
	copy(cp, data)
	sort.Float64s(cp)

	alpha := 1 - confidence
	k := int(q * float64(n))
	if k < 1 {
		k = 1
	} else if k > n-1 {
		k = n - 1
	}

	bLo := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
	bHi := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
	pLo := bLo.Quantile(alpha / 2)
	pHi := bHi.Quantile(1 - alpha/2)

	li := int(pLo * float64(n))
	ui := int(pHi * float64(n))
	if ui > 0 {
		ui--
	}
	li = clampIndex(li, n)
	ui = clampIndex(ui, n)
	return cp[li], cp[ui]
}

// quantilePoint returns the empirical quantile point estimate at q, nearest
// rank.
func quantilePoint(data []float64, q float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	cp := make([]float64, n)
	copy(cp, data)
	sort.Float64s(cp)
	return cp[clampIndex(int(q*float64(n)), n)]
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
