// Package alerts rebuilds behavioural alerts from a transaction set.
//
// Recompute is a pure function: the same transactions and as-of time always
// produce the same alerts, keyed by id.AlertKey. Nothing here is persisted.
package alerts

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curb-dev/curb/internal/classify"
	"github.com/curb-dev/curb/internal/id"
	"github.com/curb-dev/curb/internal/model"
)

// Title templates. They are part of the alert key.
const (
	TemplateHabit       = "habit"
	TemplateImprovement = "improvement"
)

// Policy tunes alert generation.
type Policy struct {
	HabitCount      int             // occurrences in a month that make a habit
	BadSavingAmount decimal.Decimal // saving potential at which a habit is "bad"
	GoodDropRatio   decimal.Decimal // fractional drop vs last month for a "good" alert
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		HabitCount:      classify.DefaultHabitCount,
		BadSavingAmount: decimal.NewFromInt(500),
		GoodDropRatio:   decimal.RequireFromString("0.25"),
	}
}

// Recompute rebuilds all alerts for the month containing asOf.
// Transactions dated after asOf are ignored.
func Recompute(txns []model.Transaction, asOf time.Time, p Policy) []model.HabitAlert {
	period := id.PeriodOf(asOf)
	byKey := make(map[string]model.HabitAlert)

	current := groupByCategory(txns, func(t time.Time) bool {
		return id.SameMonth(t, asOf) && !t.After(asOf)
	})
	habits := make(map[model.Category]bool)
	for cat, group := range current {
		if a, ok := habitAlert(cat, group, period, p); ok {
			byKey[a.Key] = a
			habits[cat] = true
		}
	}

	prevStart := id.MonthStart(asOf).AddDate(0, -1, 0)
	cutoff := asOf.Day()
	if asOf.AddDate(0, 0, 1).Month() != asOf.Month() {
		cutoff = 31
	}
	previous := groupByCategory(txns, func(t time.Time) bool {
		return id.SameMonth(t, prevStart) && t.In(asOf.Location()).Day() <= cutoff
	})
	for cat, group := range previous {
		// A category still flagged as a habit is not also praised.
		if habits[cat] {
			continue
		}
		if a, ok := improvementAlert(cat, sum(current[cat]), sum(group), period, p); ok {
			byKey[a.Key] = a
		}
	}

	out := make([]model.HabitAlert, 0, len(byKey))
	for _, a := range byKey {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank(); ri != rj {
			return ri < rj
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Bad returns only the alerts with bad severity.
func Bad(all []model.HabitAlert) []model.HabitAlert {
	var out []model.HabitAlert
	for _, a := range all {
		if a.Severity == model.SeverityBad {
			out = append(out, a)
		}
	}
	return out
}

// TotalSavingPotential sums SavingPotential over alerts.
func TotalSavingPotential(all []model.HabitAlert) decimal.Decimal {
	total := decimal.Zero
	for _, a := range all {
		total = total.Add(a.SavingPotential)
	}
	return total
}

func habitAlert(cat model.Category, group []model.Transaction, period string, p Policy) (model.HabitAlert, bool) {
	if p.HabitCount <= 0 || len(group) < p.HabitCount {
		return model.HabitAlert{}, false
	}

	// Occurrences up to HabitCount-1 are the baseline; everything after is
	// treated as reducible.
	saving := sum(group[p.HabitCount-1:])
	spend := sum(group)

	severity := model.SeverityWarning
	if saving.GreaterThanOrEqual(p.BadSavingAmount) {
		severity = model.SeverityBad
	}

	return model.HabitAlert{
		Key:      id.AlertKey(string(cat), TemplateHabit, period),
		Category: cat,
		Title:    fmt.Sprintf("Frequent %s spending", cat),
		Description: fmt.Sprintf("%d %s purchases in %s totalling %s.",
			len(group), cat, period, spend.StringFixed(2)),
		Suggestion: fmt.Sprintf("Keep %s to %d purchases a month to save about %s.",
			cat, p.HabitCount-1, saving.StringFixed(2)),
		Severity:        severity,
		SavingPotential: saving,
		Period:          period,
		CategorySpend:   spend,
	}, true
}

func improvementAlert(cat model.Category, current, previous decimal.Decimal, period string, p Policy) (model.HabitAlert, bool) {
	if !previous.IsPositive() {
		return model.HabitAlert{}, false
	}
	limit := previous.Mul(decimal.NewFromInt(1).Sub(p.GoodDropRatio))
	if current.GreaterThan(limit) {
		return model.HabitAlert{}, false
	}

	return model.HabitAlert{
		Key:      id.AlertKey(string(cat), TemplateImprovement, period),
		Category: cat,
		Title:    fmt.Sprintf("%s spending is down", titleCase(string(cat))),
		Description: fmt.Sprintf("%s so far this month against %s by this point last month.",
			current.StringFixed(2), previous.StringFixed(2)),
		Suggestion:      "Nice work, keep it going.",
		Severity:        model.SeverityGood,
		SavingPotential: decimal.Zero,
		Period:          period,
		CategorySpend:   current,
	}, true
}

// groupByCategory buckets transactions whose date passes keep and sorts each
// bucket chronologically.
func groupByCategory(txns []model.Transaction, keep func(time.Time) bool) map[model.Category][]model.Transaction {
	groups := make(map[model.Category][]model.Transaction)
	for _, t := range txns {
		if keep(t.Date) {
			groups[t.Category] = append(groups[t.Category], t)
		}
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			if !g[i].Date.Equal(g[j].Date) {
				return g[i].Date.Before(g[j].Date)
			}
			if g[i].ID != g[j].ID {
				return g[i].ID < g[j].ID
			}
			if g[i].Description != g[j].Description {
				return g[i].Description < g[j].Description
			}
			return g[i].Amount.LessThan(g[j].Amount)
		})
	}
	return groups
}

func sum(txns []model.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.Amount)
	}
	return total
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
