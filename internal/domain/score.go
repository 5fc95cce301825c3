package domain

// Score scale bounds. Veritas uses a credit-score-like 300-850 scale
// where higher means safer. A Score.Value is always inside these bounds
// regardless of input extremity.
const (
	ScoreMin      = 300.0
	ScoreMax      = 850.0
	ScoreBaseline = 650.0
)

// RiskLevel is the discrete five-tier reading of a score.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "VERY_LOW"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// Factor names used in the score breakdown.
const (
	FactorNSF       = "nsf"
	FactorBalance   = "balance"
	FactorStability = "incomeStability"
	FactorVolume    = "transactionVolume"
	FactorBusiness  = "businessActivity"
)

// Score is the synthesized creditworthiness result.
type Score struct {
	// Value is clamped to [ScoreMin, ScoreMax].
	Value float64 `json:"value"`

	RiskLevel RiskLevel `json:"riskLevel"`

	// FactorBreakdown maps factor name to its signed contribution,
	// always returned for explainability.
	FactorBreakdown map[string]float64 `json:"factorBreakdown"`
}

// RiskLevelFor maps a score value to its risk tier. Cut points are
// monotonic with no gaps and no overlaps.
func RiskLevelFor(value float64) RiskLevel {
	switch {
	case value >= 750:
		return RiskVeryLow
	case value >= 700:
		return RiskLow
	case value >= 640:
		return RiskMedium
	case value >= 580:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}
