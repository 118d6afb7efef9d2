package caps

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/curb-dev/curb/internal/id"
	"github.com/curb-dev/curb/internal/model"
)

// CapParams holds the inputs for ComputeCategoryCap.
type CapParams struct {
	Transactions []model.Transaction
	BadAlerts    []model.HabitAlert
	Category     model.Category
	AsOf         time.Time
}

// ComputeCategoryCap returns the monthly ceiling for a category, or false
// when no bad alert for the category is active in the as-of period.
//
// cap = baseline - savingPotential, floored at zero. The baseline is the
// month spend the alert was derived from; when the alert does not carry one
// it is recomputed from Transactions for the alert period.
func ComputeCategoryCap(params CapParams) (decimal.Decimal, bool) {
	period := id.PeriodOf(params.AsOf)

	var alert *model.HabitAlert
	for i := range params.BadAlerts {
		a := &params.BadAlerts[i]
		if a.Severity != model.SeverityBad || a.Category != params.Category {
			continue
		}
		if a.Period != "" && a.Period != period {
			continue
		}
		alert = a
		break
	}
	if alert == nil {
		return decimal.Zero, false
	}

	baseline := alert.CategorySpend
	if baseline.IsZero() {
		baseline = MonthToDate(params.Transactions, params.Category, params.AsOf)
	}

	limit := baseline.Sub(alert.SavingPotential)
	if limit.IsNegative() {
		limit = decimal.Zero
	}
	return limit, true
}

// MonthToDate sums the category's spend in asOf's month up to asOf.
func MonthToDate(txns []model.Transaction, category model.Category, asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		if t.Category != category || !id.SameMonth(t.Date, asOf) || t.Date.After(asOf) {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total
}

// Outcome is what happens to a transaction under a cap.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeReduced Outcome = "reduced"
	OutcomeBlocked Outcome = "blocked"
)

// Decision is the result of Enforce.
type Decision struct {
	Outcome    Outcome
	Requested  decimal.Decimal
	Committed  decimal.Decimal // zero when blocked
	Saved      decimal.Decimal // Requested - Committed
	SavingType model.SavingType
	Remaining  decimal.Decimal // room left under the cap before this transaction
}

// Enforce decides how much of amount fits under limit given what has
// already been spent this month.
func Enforce(limit, monthToDate, amount decimal.Decimal) Decision {
	remaining := limit.Sub(monthToDate)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	switch {
	case !remaining.IsPositive():
		return Decision{
			Outcome:    OutcomeBlocked,
			Requested:  amount,
			Committed:  decimal.Zero,
			Saved:      amount,
			SavingType: model.SavingPrevented,
			Remaining:  remaining,
		}
	case amount.GreaterThan(remaining):
		return Decision{
			Outcome:    OutcomeReduced,
			Requested:  amount,
			Committed:  remaining,
			Saved:      amount.Sub(remaining),
			SavingType: model.SavingReduced,
			Remaining:  remaining,
		}
	default:
		return Decision{
			Outcome:   OutcomeAllowed,
			Requested: amount,
			Committed: amount,
			Saved:     decimal.Zero,
			Remaining: remaining,
		}
	}
}

// Check computes the cap for txn's category and enforces it. Without an
// active bad alert, or when txn is dated outside the asOf month, the
// transaction is allowed unchanged. Month-to-date spend
// is measured at txn's date when it falls earlier in the asOf month, so a
// backdated entry only competes with what was spent before it.
func Check(txn model.Transaction, history []model.Transaction, bad []model.HabitAlert, asOf time.Time) Decision {
	allowed := Decision{Outcome: OutcomeAllowed, Requested: txn.Amount, Committed: txn.Amount, Saved: decimal.Zero}
	if !id.SameMonth(txn.Date, asOf) {
		return allowed
	}
	limit, ok := ComputeCategoryCap(CapParams{
		Transactions: history,
		BadAlerts:    bad,
		Category:     txn.Category,
		AsOf:         asOf,
	})
	if !ok {
		return allowed
	}
	spentAt := asOf
	if id.SameMonth(txn.Date, asOf) && txn.Date.Before(asOf) {
		spentAt = txn.Date
	}
	return Enforce(limit, MonthToDate(history, txn.Category, spentAt), txn.Amount)
}
