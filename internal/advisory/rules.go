package advisory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curb-dev/curb/internal/alerts"
	"github.com/curb-dev/curb/internal/id"
	"github.com/curb-dev/curb/internal/model"
)

// RuleGateway answers locally from the alert engine. It stands in for a
// remote language model and never fails except on a cancelled context.
type RuleGateway struct {
	Policy alerts.Policy
	Now    func() time.Time
}

// NewRuleGateway returns a RuleGateway using policy and the wall clock.
func NewRuleGateway(policy alerts.Policy) *RuleGateway {
	return &RuleGateway{Policy: policy, Now: time.Now}
}

func (g *RuleGateway) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// Analyze turns the current alerts into suggestions, then adds the largest
// impulse purchase and a no-spend streak on non-essential categories.
func (g *RuleGateway) Analyze(ctx context.Context, txns []model.Transaction) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	asOf := g.now()

	var res Result
	for _, a := range alerts.Recompute(txns, asOf, g.Policy) {
		res.Suggestions = append(res.Suggestions, a.Suggestion)
		res.Explanations = append(res.Explanations, a.Title+": "+a.Description)
	}

	if big, ok := largestImpulse(txns, asOf); ok {
		res.Explanations = append(res.Explanations,
			fmt.Sprintf("Largest impulse purchase this month: %s (%s, %s).",
				big.Description, big.Category, big.Amount.StringFixed(2)))
	}

	if days := daysSinceNonEssential(txns, asOf); days > 2 {
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("No food, shopping or entertainment spending for %d days. Keep the streak going.", days))
	}
	return res, nil
}

// Chat answers a few question shapes: a category name gets that category's
// month summary, anything about saving gets the saving potential, and the
// rest gets the overall month summary.
func (g *RuleGateway) Chat(ctx context.Context, txns []model.Transaction, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	asOf := g.now()
	q := strings.ToLower(question)
	current := alerts.Recompute(txns, asOf, g.Policy)

	for _, c := range model.Categories() {
		if !strings.Contains(q, string(c)) {
			continue
		}
		spend := decimal.Zero
		count := 0
		for _, t := range txns {
			if t.Category == c && id.SameMonth(t.Date, asOf) && !t.Date.After(asOf) {
				spend = spend.Add(t.Amount)
				count++
			}
		}
		reply := fmt.Sprintf("You spent %s on %s across %d transactions in %s.",
			spend.StringFixed(2), c, count, id.PeriodOf(asOf))
		for _, a := range current {
			if a.Category == c {
				reply += " " + a.Suggestion
			}
		}
		return reply, nil
	}

	if strings.Contains(q, "save") || strings.Contains(q, "saving") {
		potential := alerts.TotalSavingPotential(current)
		if potential.IsZero() {
			return "No habits worth cutting this month. Keep doing what you are doing.", nil
		}
		return fmt.Sprintf("Trimming your current habits could save about %s this month.", potential.StringFixed(2)), nil
	}

	total := decimal.Zero
	for _, t := range txns {
		if id.SameMonth(t.Date, asOf) && !t.Date.After(asOf) {
			total = total.Add(t.Amount)
		}
	}
	return fmt.Sprintf("You have spent %s so far in %s and have %d active alerts.",
		total.StringFixed(2), id.PeriodOf(asOf), len(current)), nil
}

func largestImpulse(txns []model.Transaction, asOf time.Time) (model.Transaction, bool) {
	var impulses []model.Transaction
	for _, t := range txns {
		if t.IsImpulse && id.SameMonth(t.Date, asOf) && !t.Date.After(asOf) {
			impulses = append(impulses, t)
		}
	}
	if len(impulses) == 0 {
		return model.Transaction{}, false
	}
	sort.SliceStable(impulses, func(i, j int) bool {
		return impulses[i].Amount.GreaterThan(impulses[j].Amount)
	})
	return impulses[0], true
}

// daysSinceNonEssential counts whole days since the last non-essential
// purchase this month, or since the first of the month when there was none.
func daysSinceNonEssential(txns []model.Transaction, asOf time.Time) int {
	last := id.MonthStart(asOf)
	for _, t := range txns {
		if t.Category.Essential() || !id.SameMonth(t.Date, asOf) || t.Date.After(asOf) {
			continue
		}
		if t.Date.After(last) {
			last = t.Date
		}
	}
	return int(asOf.Sub(last).Hours() / 24)
}
