package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curb-dev/curb/internal/id"
	"github.com/curb-dev/curb/internal/model"
)

// GuestKey is the user key used when none is given.
const GuestKey = "guest"

const keyPrefix = "savings:"

// Repository is the key/value storage the ledger persists through.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// PreventedEvent is a transaction that a cap blocked entirely. Blocked
// transactions are never stored, so the ledger keeps their evidence.
type PreventedEvent struct {
	ID          string          `json:"id"`
	Period      string          `json:"period"`
	Date        time.Time       `json:"date"`
	Category    model.Category  `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// State is the persisted ledger record for one user.
type State struct {
	Periods   map[string]model.SavingsBuckets `json:"periods"`
	Total     decimal.Decimal                 `json:"total"`
	Prevented map[string]PreventedEvent       `json:"prevented_events"`
	UpdatedAt time.Time                       `json:"updated_at"`
}

func newState() State {
	return State{
		Periods:   make(map[string]model.SavingsBuckets),
		Prevented: make(map[string]PreventedEvent),
	}
}

// Summary aggregates every period in the state.
func (s State) Summary() model.SavingsSummary {
	var all model.SavingsBuckets
	for _, b := range s.Periods {
		all.Prevented = all.Prevented.Add(b.Prevented)
		all.Reduced = all.Reduced.Add(b.Reduced)
		all.Optimized = all.Optimized.Add(b.Optimized)
	}
	return model.Summarize(all)
}

// SummaryFor returns the summary of a single period.
func (s State) SummaryFor(period string) model.SavingsSummary {
	return model.Summarize(s.Periods[period])
}

// PeriodKeys returns the periods with savings, oldest first.
func (s State) PeriodKeys() []string {
	keys := make([]string, 0, len(s.Periods))
	for k := range s.Periods {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeUserKey trims and lower-cases a user key. Empty keys become GuestKey.
func NormalizeUserKey(userKey string) string {
	k := strings.ToLower(strings.TrimSpace(userKey))
	if k == "" {
		return GuestKey
	}
	return k
}

// RecordKey returns the repository key for a user's ledger.
func RecordKey(userKey string) string {
	return keyPrefix + NormalizeUserKey(userKey)
}

// Ledger reconciles savings against a Repository.
type Ledger struct {
	repo Repository
}

// New creates a Ledger.
func New(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Load returns the stored state for userKey, or an empty state.
func (l *Ledger) Load(ctx context.Context, userKey string) (State, error) {
	key := RecordKey(userKey)
	data, ok, err := l.repo.Get(ctx, key)
	if err != nil {
		return State{}, fmt.Errorf("reading ledger %s: %w", key, err)
	}
	if !ok {
		return newState(), nil
	}

	st := newState()
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decoding ledger %s: %w", key, err)
	}
	if st.Periods == nil {
		st.Periods = make(map[string]model.SavingsBuckets)
	}
	if st.Prevented == nil {
		st.Prevented = make(map[string]PreventedEvent)
	}
	return st, nil
}

func (l *Ledger) save(ctx context.Context, userKey string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}
	key := RecordKey(userKey)
	if err := l.repo.Set(ctx, key, data); err != nil {
		return fmt.Errorf("writing ledger %s: %w", key, err)
	}
	return nil
}

// RecordPrevented stores a blocked transaction. Recording an event whose ID
// is already present is a no-op and reports false. An empty ID is filled
// in. The event shows up in the buckets at the next Reconcile.
func (l *Ledger) RecordPrevented(ctx context.Context, userKey string, ev PreventedEvent) (PreventedEvent, bool, error) {
	st, err := l.Load(ctx, userKey)
	if err != nil {
		return ev, false, err
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if _, dup := st.Prevented[ev.ID]; dup {
		return st.Prevented[ev.ID], false, nil
	}
	if ev.Period == "" {
		ev.Period = id.PeriodOf(ev.Date)
	}

	st.Prevented[ev.ID] = ev
	if err := l.save(ctx, userKey, st); err != nil {
		return ev, false, err
	}
	return ev, true, nil
}

// Reconcile rebuilds the per-period buckets from the prevented events and
// the residuals carried by txns, persists the result and returns the
// summary. Buckets are recomputed from scratch on every call, so running it
// twice over the same transactions yields the same state.
func (l *Ledger) Reconcile(ctx context.Context, userKey string, txns []model.Transaction, asOf time.Time) (model.SavingsSummary, State, error) {
	user := NormalizeUserKey(userKey)
	st, err := l.Load(ctx, user)
	if err != nil {
		return model.SavingsSummary{}, State{}, err
	}

	periods := make(map[string]model.SavingsBuckets)
	add := func(period string, stype model.SavingType, amount decimal.Decimal) {
		b := periods[period]
		b.Add(stype, amount)
		periods[period] = b
	}

	for _, ev := range st.Prevented {
		if ev.Date.After(asOf) || !ev.Amount.IsPositive() {
			continue
		}
		add(ev.Period, model.SavingPrevented, ev.Amount)
	}

	for _, t := range txns {
		if t.UserKey != "" && NormalizeUserKey(t.UserKey) != user {
			continue
		}
		if t.Date.After(asOf) {
			continue
		}
		residual := t.Residual()
		if !residual.IsPositive() {
			continue
		}
		stype := model.SavingOptimized
		if t.SavingType == model.SavingReduced {
			stype = model.SavingReduced
		}
		add(id.PeriodOf(t.Date), stype, residual)
	}

	st.Periods = periods
	summary := st.Summary()
	st.Total = summary.Total
	st.UpdatedAt = asOf.UTC()

	if err := l.save(ctx, user, st); err != nil {
		return model.SavingsSummary{}, State{}, err
	}
	return summary, st, nil
}
