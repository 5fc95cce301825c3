package alerts

import (
	"fmt"
	"math"

	"github.com/opensource-finance/veritas/internal/domain"
)

// Cross-statement rules run only when the analysis covers two or more
// accounts. They compare the per-statement bundles against each other.

// ruleCrossNSFSpread fires MEDIUM when NSF activity is concentrated in
// one account while others are clean.
func (e *Engine) ruleCrossNSFSpread(in *Input) *domain.Alert {
	if len(in.AllMetrics) < 2 {
		return nil
	}

	minNSF, maxNSF := in.AllMetrics[0].NSFCount, in.AllMetrics[0].NSFCount
	for _, m := range in.AllMetrics[1:] {
		if m.NSFCount < minNSF {
			minNSF = m.NSFCount
		}
		if m.NSFCount > maxNSF {
			maxNSF = m.NSFCount
		}
	}
	if maxNSF-minNSF <= e.cfg.NSFSpreadThreshold {
		return nil
	}

	return e.newAlert(
		domain.CodeInconsistentNSF,
		domain.SeverityMedium,
		"Inconsistent NSF activity across accounts",
		fmt.Sprintf("NSF counts range from %d to %d across the submitted accounts.", minNSF, maxNSF),
		"Concentrated NSF activity may indicate a hidden problem account; review each separately.",
		map[string]any{"minNSFCount": minNSF, "maxNSFCount": maxNSF},
	)
}

// ruleCrossBalanceVariance fires MEDIUM when any account's average
// balance deviates from the cross-account mean by more than the
// configured fraction.
func (e *Engine) ruleCrossBalanceVariance(in *Input) *domain.Alert {
	if len(in.AllMetrics) < 2 {
		return nil
	}

	var sum float64
	for _, m := range in.AllMetrics {
		sum += m.AverageDailyBalance
	}
	mean := sum / float64(len(in.AllMetrics))
	if mean == 0 {
		return nil
	}

	var outliers int
	var worst float64
	for _, m := range in.AllMetrics {
		deviation := math.Abs(m.AverageDailyBalance-mean) / math.Abs(mean)
		if deviation > e.cfg.BalanceVarianceDeviation {
			outliers++
			if deviation > worst {
				worst = deviation
			}
		}
	}
	if outliers == 0 {
		return nil
	}

	return e.newAlert(
		domain.CodeBalanceVarianceOutlier,
		domain.SeverityMedium,
		"Balance variance across accounts",
		fmt.Sprintf("%d account(s) deviate more than %.0f%% from the mean balance (worst %.0f%%).", outliers, e.cfg.BalanceVarianceDeviation*100, worst*100),
		"Large balance disparity between accounts can mask where obligations actually clear.",
		map[string]any{"outliers": outliers, "meanBalance": mean, "worstDeviation": worst},
	)
}

// ruleCrossRiskConcentration fires HIGH when more than half of the
// per-account scores fall below the concentration threshold.
func (e *Engine) ruleCrossRiskConcentration(in *Input) *domain.Alert {
	if len(in.AllScores) < 2 {
		return nil
	}

	var below int
	for _, s := range in.AllScores {
		if s.Value < e.cfg.ConcentrationScoreBelow {
			below++
		}
	}
	if 2*below <= len(in.AllScores) {
		return nil
	}

	return e.newAlert(
		domain.CodeHighRiskConcentration,
		domain.SeverityHigh,
		"Risk concentrated across accounts",
		fmt.Sprintf("%d of %d accounts score below %.0f.", below, len(in.AllScores), e.cfg.ConcentrationScoreBelow),
		"The weakness is systemic across the applicant's accounts, not isolated to one.",
		map[string]any{"accountsBelow": below, "totalAccounts": len(in.AllScores)},
	)
}
