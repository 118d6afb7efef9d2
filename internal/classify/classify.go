package classify

import (
	"github.com/shopspring/decimal"

	"github.com/curb-dev/curb/internal/id"
	"github.com/curb-dev/curb/internal/model"
)

// Defaults for Thresholds. The source system never named a currency for
// these, so they stay plain numbers.
var (
	DefaultImpulseAmount = decimal.NewFromInt(500)
	DefaultHabitCount    = 4
)

// Thresholds controls the impulse and habit rules.
type Thresholds struct {
	ImpulseAmount decimal.Decimal // impulse when amount is strictly greater
	HabitCount    int             // habit when the month count reaches this
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{ImpulseAmount: DefaultImpulseAmount, HabitCount: DefaultHabitCount}
}

// Flags are the computed tags for one transaction.
type Flags struct {
	Impulse bool
	Habit   bool
}

// IsImpulse reports whether txn is a non-essential purchase above the
// impulse threshold.
func IsImpulse(txn model.Transaction, th Thresholds) bool {
	return !txn.Category.Essential() && txn.Amount.GreaterThan(th.ImpulseAmount)
}

// MonthCount counts transactions in history with txn's category and
// calendar month, plus txn itself. A history row carrying txn's ID is not
// counted twice.
func MonthCount(txn model.Transaction, history []model.Transaction) int {
	n := 1
	for _, h := range history {
		if txn.ID != "" && h.ID == txn.ID {
			continue
		}
		if h.Category == txn.Category && id.SameMonth(h.Date, txn.Date) {
			n++
		}
	}
	return n
}

// Classify tags a candidate transaction against the user's history.
func Classify(txn model.Transaction, history []model.Transaction, th Thresholds) Flags {
	return Flags{
		Impulse: IsImpulse(txn, th),
		Habit:   MonthCount(txn, history) >= th.HabitCount,
	}
}

// Apply sets IsImpulse and IsHabit on txn.
func Apply(txn model.Transaction, history []model.Transaction, th Thresholds) model.Transaction {
	f := Classify(txn, history, th)
	txn.IsImpulse = f.Impulse
	txn.IsHabit = f.Habit
	return txn
}

// ApplyBatch classifies txns in order, each one seeing history plus the
// batch rows before it.
func ApplyBatch(txns, history []model.Transaction, th Thresholds) []model.Transaction {
	seen := make([]model.Transaction, 0, len(history)+len(txns))
	seen = append(seen, history...)
	out := make([]model.Transaction, len(txns))
	for i, txn := range txns {
		out[i] = Apply(txn, seen, th)
		seen = append(seen, out[i])
	}
	return out
}
