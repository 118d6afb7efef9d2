package model

import "github.com/shopspring/decimal"

// Severity grades a HabitAlert.
type Severity string

const (
	SeverityGood    Severity = "good"
	SeverityWarning Severity = "warning"
	SeverityBad     Severity = "bad"
)

// Rank orders severities bad < warning < good for display.
func (s Severity) Rank() int {
	switch s {
	case SeverityBad:
		return 0
	case SeverityWarning:
		return 1
	case SeverityGood:
		return 2
	default:
		return 3
	}
}

// HabitAlert is a behavioural alert derived from a transaction set. Alerts
// are rebuilt on every recompute and never stored.
type HabitAlert struct {
	Key             string // derived from category, title template and period
	Category        Category
	Title           string
	Description     string
	Suggestion      string
	Severity        Severity
	SavingPotential decimal.Decimal // per month
	Period          string          // YYYY-MM
	CategorySpend   decimal.Decimal // month spend the alert was derived from
}

// SavingsBuckets holds the three saving buckets for one period.
type SavingsBuckets struct {
	Prevented decimal.Decimal `json:"prevented"`
	Reduced   decimal.Decimal `json:"reduced"`
	Optimized decimal.Decimal `json:"optimized"`
}

// Add adds amount to the bucket for st. Unknown types count as optimized.
func (b *SavingsBuckets) Add(st SavingType, amount decimal.Decimal) {
	switch st {
	case SavingPrevented:
		b.Prevented = b.Prevented.Add(amount)
	case SavingReduced:
		b.Reduced = b.Reduced.Add(amount)
	default:
		b.Optimized = b.Optimized.Add(amount)
	}
}

// Total returns the sum of all buckets.
func (b SavingsBuckets) Total() decimal.Decimal {
	return b.Prevented.Add(b.Reduced).Add(b.Optimized)
}

// SavingsSummary is the derived aggregate shown to the user.
// Total always equals Prevented + Reduced + Optimized.
type SavingsSummary struct {
	Total     decimal.Decimal `json:"total"`
	Prevented decimal.Decimal `json:"prevented"`
	Reduced   decimal.Decimal `json:"reduced"`
	Optimized decimal.Decimal `json:"optimized"`
}

// Summarize builds a SavingsSummary from buckets.
func Summarize(b SavingsBuckets) SavingsSummary {
	return SavingsSummary{
		Total:     b.Total(),
		Prevented: b.Prevented,
		Reduced:   b.Reduced,
		Optimized: b.Optimized,
	}
}
