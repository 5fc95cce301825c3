// Package score synthesizes a metrics bundle into one bounded
// creditworthiness score on the 300-850 scale (higher = safer), with a
// per-factor breakdown for explainability.
package score

import (
	"math"

	"github.com/opensource-finance/veritas/internal/domain"
)

// Synthesizer combines metrics into a score using fixed weights and
// caps. It holds no mutable state; concurrent use is safe.
type Synthesizer struct {
	cfg domain.ScoreConfig
}

// NewSynthesizer creates a synthesizer with the given weights.
func NewSynthesizer(cfg domain.ScoreConfig) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

// Synthesize computes the score for one metrics bundle. The result is
// always within [ScoreMin, ScoreMax] regardless of input extremity,
// and the factor breakdown is always populated.
func (s *Synthesizer) Synthesize(m *domain.MetricsBundle) domain.Score {
	breakdown := map[string]float64{
		domain.FactorNSF:       s.nsfImpact(m),
		domain.FactorBalance:   s.balanceImpact(m),
		domain.FactorStability: s.stabilityImpact(m),
		domain.FactorVolume:    s.volumeBonus(m),
		domain.FactorBusiness:  s.businessBonus(m),
	}

	value := domain.ScoreBaseline
	for _, contribution := range breakdown {
		value += contribution
	}

	value = clamp(value, domain.ScoreMin, domain.ScoreMax)

	return domain.Score{
		Value:           value,
		RiskLevel:       domain.RiskLevelFor(value),
		FactorBreakdown: breakdown,
	}
}

// nsfImpact is -min(nsfCount * penalty, cap).
func (s *Synthesizer) nsfImpact(m *domain.MetricsBundle) float64 {
	penalty := float64(m.NSFCount) * s.cfg.NSFPenalty
	if penalty > s.cfg.NSFCap {
		penalty = s.cfg.NSFCap
	}
	return -penalty
}

// balanceImpact rewards balances proportionally to the reference
// balance, with hard floors for a non-positive average and for a
// negative minimum balance.
func (s *Synthesizer) balanceImpact(m *domain.MetricsBundle) float64 {
	adb := m.AverageDailyBalance
	if math.IsNaN(adb) || math.IsInf(adb, 0) {
		adb = 0
	}

	var impact float64
	if adb <= 0 {
		impact = -s.cfg.ZeroBalancePenalty
	} else {
		bonus := (adb / s.cfg.ReferenceBalance) * s.cfg.BalanceBonusCap
		impact = clamp(bonus, 0, s.cfg.BalanceBonusCap)
	}

	if m.LowestBalance < 0 {
		impact -= s.cfg.NegativeMinPenalty
	}

	return impact
}

// stabilityImpact is centered so a neutral stability score contributes
// zero; more stable income pushes the score up, less pulls it down.
func (s *Synthesizer) stabilityImpact(m *domain.MetricsBundle) float64 {
	if !m.IncomeStability.Sufficient {
		return 0
	}
	return (m.IncomeStability.StabilityScore - s.cfg.StabilityNeutral) * s.cfg.StabilityWeight
}

// volumeBonus is a small capped bonus for a statistically meaningful
// number of transactions.
func (s *Synthesizer) volumeBonus(m *domain.MetricsBundle) float64 {
	bonus := float64(m.TransactionCount) * s.cfg.VolumeBonusPerTx
	if bonus > s.cfg.VolumeBonusCap {
		bonus = s.cfg.VolumeBonusCap
	}
	return bonus
}

// businessBonus applies only when business activity was detected, and
// only for a positive profit ratio.
func (s *Synthesizer) businessBonus(m *domain.MetricsBundle) float64 {
	if !m.Business.Detected || m.Business.ProfitRatio <= 0 {
		return 0
	}
	bonus := m.Business.ProfitRatio * s.cfg.BusinessBonusCap
	if bonus > s.cfg.BusinessBonusCap {
		bonus = s.cfg.BusinessBonusCap
	}
	return bonus
}

// SynthesizeAll scores several statements and returns the individual
// scores plus a combined score averaged across statements.
func (s *Synthesizer) SynthesizeAll(bundles []domain.MetricsBundle) ([]domain.Score, domain.Score) {
	scores := make([]domain.Score, len(bundles))
	for i := range bundles {
		scores[i] = s.Synthesize(&bundles[i])
	}
	return scores, s.Combine(scores)
}

// Combine blends already-synthesized per-statement scores into one
// overall score: mean value, factor contributions averaged across
// statements. An empty slice yields the baseline.
func (s *Synthesizer) Combine(scores []domain.Score) domain.Score {
	if len(scores) == 0 {
		value := domain.ScoreBaseline
		return domain.Score{
			Value:           value,
			RiskLevel:       domain.RiskLevelFor(value),
			FactorBreakdown: map[string]float64{},
		}
	}

	var sum float64
	combined := map[string]float64{}
	for i := range scores {
		sum += scores[i].Value
		for factor, contribution := range scores[i].FactorBreakdown {
			combined[factor] += contribution / float64(len(scores))
		}
	}

	value := clamp(sum/float64(len(scores)), domain.ScoreMin, domain.ScoreMax)

	return domain.Score{
		Value:           value,
		RiskLevel:       domain.RiskLevelFor(value),
		FactorBreakdown: combined,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
