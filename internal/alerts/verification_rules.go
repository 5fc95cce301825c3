package alerts

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/veritas/internal/domain"
	"github.com/opensource-finance/veritas/internal/similarity"
)

// Verification rules cross-check the application against the business
// registry lookup and the statement activity. All of them skip when
// the record they need was not supplied.

// ruleRevenueDiscrepancy annualizes statement deposits and compares
// them to the stated annual revenue. Fires MEDIUM only when the two
// differ by more than the configured share of the larger figure.
func (e *Engine) ruleRevenueDiscrepancy(in *Input) *domain.Alert {
	if in.Application == nil || in.Metrics == nil {
		return nil
	}
	if in.Application.StatedAnnualRevenue <= 0 || in.Metrics.PeriodDays == 0 {
		return nil
	}

	annualized := in.Metrics.TotalDeposits / float64(in.Metrics.PeriodDays) * 365
	stated := in.Application.StatedAnnualRevenue

	larger := math.Max(annualized, stated)
	diff := math.Abs(annualized-stated) / larger
	if diff <= e.cfg.RevenueDiscrepancyShare {
		return nil
	}

	direction := "below"
	if annualized > stated {
		direction = "above"
	}

	return e.newAlert(
		domain.CodeRevenueDiscrepancy,
		domain.SeverityHigh,
		"Revenue discrepancy",
		fmt.Sprintf("Annualized deposits of %.0f are %.0f%% %s the stated revenue of %.0f.", annualized, diff*100, direction, stated),
		"Reconcile the stated revenue against bank activity before relying on either figure.",
		map[string]any{
			"annualizedDeposits":  annualized,
			"statedAnnualRevenue": stated,
			"discrepancy":         diff,
		},
	)
}

// ruleBusinessNotFound fires HIGH when the registry lookup found no
// matching business.
func (e *Engine) ruleBusinessNotFound(in *Input) *domain.Alert {
	if in.Verification == nil || in.Verification.Found {
		return nil
	}

	name := ""
	if in.Application != nil {
		name = in.Application.BusinessName
	}

	return e.newAlert(
		domain.CodeBusinessNotFound,
		domain.SeverityHigh,
		"Business not found in registry",
		fmt.Sprintf("No registry record matched the business %q.", name),
		"Request registration documents directly from the applicant.",
		map[string]any{"businessName": name},
	)
}

// ruleBusinessInactive fires CRITICAL when the registry lists the
// business but its status is not active.
func (e *Engine) ruleBusinessInactive(in *Input) *domain.Alert {
	if in.Verification == nil || !in.Verification.Found || in.Verification.IsActive {
		return nil
	}

	return e.newAlert(
		domain.CodeBusinessInactive,
		domain.SeverityCritical,
		"Business registration inactive",
		fmt.Sprintf("The registry lists this business as %q.", in.Verification.Status),
		"Lending to a dissolved or suspended entity is unenforceable; halt underwriting.",
		map[string]any{"status": in.Verification.Status},
	)
}

// ruleBusinessNameMismatch compares the applied name against the
// registry's matched record.
func (e *Engine) ruleBusinessNameMismatch(in *Input) *domain.Alert {
	if in.Verification == nil || !in.Verification.Found || in.Application == nil {
		return nil
	}
	applied := normalizeName(in.Application.BusinessName)
	matched := normalizeName(in.Verification.MatchedBusinessName)
	if applied == "" || matched == "" {
		return nil
	}

	sim := similarity.Ratio(applied, matched)
	if sim >= e.cfg.NameSimilarityMinimum {
		return nil
	}

	return e.newAlert(
		domain.CodeBusinessNameMismatch,
		domain.SeverityMedium,
		"Registry name mismatch",
		fmt.Sprintf("Application name %q differs from the registered name %q (similarity %.2f).", in.Application.BusinessName, in.Verification.MatchedBusinessName, sim),
		"Confirm the registry match refers to the applying entity.",
		map[string]any{"similarity": sim, "registeredName": in.Verification.MatchedBusinessName},
	)
}

// ruleNewlyRegistered fires MEDIUM for businesses registered within the
// new-business window.
func (e *Engine) ruleNewlyRegistered(in *Input) *domain.Alert {
	if in.Verification == nil || !in.Verification.Found || in.Verification.RegistrationDate == nil {
		return nil
	}

	cutoff := e.now().AddDate(0, -e.cfg.NewBusinessMonths, 0)
	registered := *in.Verification.RegistrationDate
	if !registered.After(cutoff) {
		return nil
	}

	return e.newAlert(
		domain.CodeNewlyRegisteredBusiness,
		domain.SeverityMedium,
		"Newly registered business",
		fmt.Sprintf("The business was registered on %s, within the last %d months.", registered.Format("2006-01-02"), e.cfg.NewBusinessMonths),
		"New entities lack track record; weight the statement evidence accordingly.",
		map[string]any{"registrationDate": registered.Format(time.RFC3339)},
	)
}

// ruleTimeInBusiness fires HIGH when the stated start date predates the
// registry's registration date by more than the allowed slack. The
// comparison uses month granularity; registering somewhat after
// starting operations is normal.
func (e *Engine) ruleTimeInBusiness(in *Input) *domain.Alert {
	if in.Application == nil || in.Application.BusinessStartDate == nil {
		return nil
	}
	if in.Verification == nil || !in.Verification.Found || in.Verification.RegistrationDate == nil {
		return nil
	}

	stated := *in.Application.BusinessStartDate
	registered := *in.Verification.RegistrationDate

	gap := monthsBetween(stated, registered)
	if gap <= e.cfg.StartDateSlackMonths {
		return nil
	}

	return e.newAlert(
		domain.CodeTimeInBusinessMismatch,
		domain.SeverityHigh,
		"Time-in-business mismatch",
		fmt.Sprintf("Stated start date %s predates the registration date %s by %d months.", stated.Format("2006-01"), registered.Format("2006-01"), gap),
		"Overstated operating history inflates perceived stability; verify with tax filings.",
		map[string]any{
			"statedStart":      stated.Format("2006-01"),
			"registrationDate": registered.Format("2006-01"),
			"gapMonths":        gap,
		},
	)
}

// monthsBetween returns whole months from a to b at month-and-year
// granularity. Negative when a is after b.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
