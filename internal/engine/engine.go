// Package engine runs curb's control flow: classify on creation, consult the
// cap on manual entry, then rebuild alerts and reconcile the savings ledger
// after every change.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curb-dev/curb/internal/activity"
	"github.com/curb-dev/curb/internal/advisory"
	"github.com/curb-dev/curb/internal/alerts"
	"github.com/curb-dev/curb/internal/caps"
	"github.com/curb-dev/curb/internal/classify"
	"github.com/curb-dev/curb/internal/id"
	"github.com/curb-dev/curb/internal/importer"
	"github.com/curb-dev/curb/internal/ledger"
	"github.com/curb-dev/curb/internal/logging"
	"github.com/curb-dev/curb/internal/model"
	"github.com/curb-dev/curb/internal/store"
)

// ErrImmutable is returned when deleting an imported transaction.
var ErrImmutable = errors.New("imported transactions cannot be deleted")

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Thresholds classify.Thresholds
	Policy     alerts.Policy
	Registry   *importer.Registry
	Activity   *activity.Log
	Advisor    *advisory.Advisor
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service owns the transaction store and the ledger for one process. All
// mutations are serialised.
type Service struct {
	txns       store.Transactions
	ledger     *ledger.Ledger
	thresholds classify.Thresholds
	policy     alerts.Policy
	registry   *importer.Registry
	activity   *activity.Log
	advisor    *advisory.Advisor
	logger     *slog.Logger
	importLog  *slog.Logger
	now        func() time.Time
	dismissals *alerts.Dismissals

	mu   sync.Mutex
	user string
}

// NewService creates an engine Service.
func NewService(txns store.Transactions, repo ledger.Repository, opts Options) *Service {
	if opts.Thresholds.HabitCount == 0 {
		opts.Thresholds = classify.DefaultThresholds()
	}
	if opts.Policy.HabitCount == 0 {
		opts.Policy = alerts.DefaultPolicy()
	}
	if opts.Registry == nil {
		opts.Registry = importer.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		txns:       txns,
		ledger:     ledger.New(repo),
		thresholds: opts.Thresholds,
		policy:     opts.Policy,
		registry:   opts.Registry,
		activity:   opts.Activity,
		advisor:    opts.Advisor,
		logger:     logging.WithComponent(opts.Logger, logging.ComponentEngine),
		importLog:  logging.WithComponent(opts.Logger, logging.ComponentImport),
		now:        opts.Now,
		dismissals: alerts.NewDismissals(),
	}
}

// Snapshot is the derived state after a refresh.
type Snapshot struct {
	UserKey      string
	AsOf         time.Time
	Transactions []model.Transaction // newest first
	Alerts       []model.HabitAlert  // not dismissed
	AllAlerts    []model.HabitAlert
	Summary      model.SavingsSummary
	Ledger       ledger.State
}

// Refresh rebuilds alerts and reconciles the ledger for userKey. Switching
// to a different user clears dismissals and advisory state.
func (s *Service) Refresh(ctx context.Context, userKey string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx, ledger.NormalizeUserKey(userKey))
}

func (s *Service) refreshLocked(ctx context.Context, user string) (Snapshot, error) {
	s.switchUserLocked(user)

	asOf := s.now()
	list, err := s.list(ctx, user, asOf.Location())
	if err != nil {
		return Snapshot{}, err
	}

	// Alerts first: the next cap decision depends on them.
	all := alerts.Recompute(list, asOf, s.policy)

	summary, st, err := s.ledger.Reconcile(ctx, user, list, asOf)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reconciling ledger: %w", err)
	}

	if s.advisor != nil {
		s.advisor.Refresh(ctx, list)
	}

	s.logger.DebugContext(ctx, "refreshed",
		"user", user, "transactions", len(list), "alerts", len(all), "saved", summary.Total.String())

	return Snapshot{
		UserKey:      user,
		AsOf:         asOf,
		Transactions: list,
		Alerts:       s.dismissals.Filter(all),
		AllAlerts:    all,
		Summary:      summary,
		Ledger:       st,
	}, nil
}

func (s *Service) switchUserLocked(user string) {
	if s.user == user {
		return
	}
	if s.user != "" {
		s.logger.Info("active user changed", "from", s.user, "to", user)
	}
	s.user = user
	s.dismissals.Reset()
	if s.advisor != nil {
		s.advisor.Reset()
	}
}

// ManualInput is a transaction typed by the user.
type ManualInput struct {
	Description string
	Amount      decimal.Decimal
	Category    model.Category
	Date        time.Time // zero means now
}

// Notice tells the caller that a cap changed the transaction.
type Notice struct {
	Outcome   caps.Outcome
	Requested decimal.Decimal
	Committed decimal.Decimal
	Saved     decimal.Decimal
	Message   string
}

// AddResult is the outcome of AddManual.
type AddResult struct {
	Transaction model.Transaction // as stored; ID is empty when blocked
	Persisted   bool
	Notice      *Notice // nil when the cap did not intervene
	Snapshot    Snapshot
}

// AddManual classifies and stores a manual transaction. With optimize set,
// the category cap is consulted first: a blocked transaction is not stored
// and its amount is recorded as a prevented saving; a reduced one is stored
// with the committed amount and carries the requested amount as evidence.
func (s *Service) AddManual(ctx context.Context, userKey string, in ManualInput, optimize bool) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := ledger.NormalizeUserKey(userKey)
	s.switchUserLocked(user)
	asOf := s.now()

	txn := model.Transaction{
		UserKey:     user,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Category:    in.Category,
		Date:        in.Date,
		Source:      model.SourceManual,
	}
	if txn.Date.IsZero() {
		txn.Date = asOf
	}
	txn.Date = txn.Date.In(asOf.Location())
	if err := txn.Validate(); err != nil {
		return AddResult{}, fmt.Errorf("validating transaction: %w", err)
	}

	history, err := s.list(ctx, user, asOf.Location())
	if err != nil {
		return AddResult{}, err
	}

	var notice *Notice
	if optimize {
		bad := alerts.Bad(alerts.Recompute(history, asOf, s.policy))
		d := caps.Check(txn, history, bad, asOf)
		switch d.Outcome {
		case caps.OutcomeBlocked:
			return s.blockLocked(ctx, user, txn, d)
		case caps.OutcomeReduced:
			txn.Amount = d.Committed
			txn.RequestedAmount = d.Requested
			txn.SavingType = d.SavingType
			notice = newNotice(txn.Category, d)
		}
	}

	txn = classify.Apply(txn, history, s.thresholds)
	txnID, err := s.txns.Add(ctx, txn)
	if err != nil {
		return AddResult{}, fmt.Errorf("storing transaction: %w", err)
	}
	txn.ID = txnID
	s.logger.InfoContext(ctx, "transaction added",
		"user", user, "id", txnID, "category", txn.Category, "amount", txn.Amount.String(),
		"impulse", txn.IsImpulse, "habit", txn.IsHabit)

	if notice != nil {
		s.logActivity(ctx, activity.Entry{
			Timestamp: asOf,
			User:      user,
			Action:    string(caps.OutcomeReduced),
			Category:  txn.Category,
			Requested: notice.Requested,
			Committed: notice.Committed,
			Saved:     notice.Saved,
			Ref:       txnID,
		})
	}

	snap, err := s.refreshLocked(ctx, user)
	if err != nil {
		return AddResult{}, err
	}
	return AddResult{Transaction: txn, Persisted: true, Notice: notice, Snapshot: snap}, nil
}

func (s *Service) blockLocked(ctx context.Context, user string, txn model.Transaction, d caps.Decision) (AddResult, error) {
	ev, _, err := s.ledger.RecordPrevented(ctx, user, ledger.PreventedEvent{
		Date:        txn.Date,
		Category:    txn.Category,
		Description: txn.Description,
		Amount:      d.Saved,
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("recording prevented saving: %w", err)
	}
	s.logger.InfoContext(ctx, "transaction blocked by cap",
		"user", user, "category", txn.Category, "amount", d.Saved.String(), "event", ev.ID)

	s.logActivity(ctx, activity.Entry{
		Timestamp: s.now(),
		User:      user,
		Action:    string(caps.OutcomeBlocked),
		Category:  txn.Category,
		Requested: d.Requested,
		Committed: decimal.Zero,
		Saved:     d.Saved,
		Ref:       ev.ID,
	})

	snap, err := s.refreshLocked(ctx, user)
	if err != nil {
		return AddResult{}, err
	}
	return AddResult{Transaction: txn, Notice: newNotice(txn.Category, d), Snapshot: snap}, nil
}

func newNotice(cat model.Category, d caps.Decision) *Notice {
	n := &Notice{Outcome: d.Outcome, Requested: d.Requested, Committed: d.Committed, Saved: d.Saved}
	switch d.Outcome {
	case caps.OutcomeBlocked:
		n.Message = fmt.Sprintf("Blocked: this month's %s cap is used up. %s saved.", cat, d.Saved.StringFixed(2))
	case caps.OutcomeReduced:
		n.Message = fmt.Sprintf("Reduced from %s to %s to stay under the %s cap. %s saved.",
			d.Requested.StringFixed(2), d.Committed.StringFixed(2), cat, d.Saved.StringFixed(2))
	}
	return n
}

func (s *Service) logActivity(ctx context.Context, e activity.Entry) {
	if err := s.activity.Append(e); err != nil {
		s.logger.WarnContext(ctx, "writing activity log", "error", err)
	}
}

// Delete removes a manual transaction. Imported transactions are immutable.
func (s *Service) Delete(ctx context.Context, userKey, txnID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := ledger.NormalizeUserKey(userKey)
	txn, err := s.txns.Find(ctx, user, txnID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("finding transaction %s: %w", txnID, err)
	}
	if !txn.Deletable() {
		return Snapshot{}, fmt.Errorf("deleting transaction %s: %w", txnID, ErrImmutable)
	}
	if err := s.txns.Delete(ctx, user, txnID); err != nil {
		return Snapshot{}, fmt.Errorf("deleting transaction %s: %w", txnID, err)
	}
	s.logger.InfoContext(ctx, "transaction deleted", "user", user, "id", txnID)

	return s.refreshLocked(ctx, user)
}

// Dismiss hides an alert until the process exits or the user changes.
func (s *Service) Dismiss(ctx context.Context, userKey, alertKey string) (Snapshot, error) {
	if _, _, _, err := id.SplitAlertKey(alertKey); err != nil {
		return Snapshot{}, fmt.Errorf("dismissing alert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := ledger.NormalizeUserKey(userKey)
	s.switchUserLocked(user)
	s.dismissals.Dismiss(alertKey)
	return s.refreshLocked(ctx, user)
}

// Savings returns the ledger summary for one period ("YYYY-MM") or, with
// an empty period, across all periods. The ledger is reconciled first.
func (s *Service) Savings(ctx context.Context, userKey, period string) (model.SavingsSummary, error) {
	snap, err := s.Refresh(ctx, userKey)
	if err != nil {
		return model.SavingsSummary{}, err
	}
	if period == "" {
		return snap.Summary, nil
	}
	return snap.Ledger.SummaryFor(period), nil
}

// PeriodSavings is one month of a user's savings ledger.
type PeriodSavings struct {
	Period string `json:"period"`
	model.SavingsSummary
}

// SavingsByPeriod returns a summary for every month with savings, oldest
// first. The ledger is reconciled first.
func (s *Service) SavingsByPeriod(ctx context.Context, userKey string) ([]PeriodSavings, error) {
	snap, err := s.Refresh(ctx, userKey)
	if err != nil {
		return nil, err
	}
	periods := snap.Ledger.PeriodKeys()
	out := make([]PeriodSavings, 0, len(periods))
	for _, p := range periods {
		out = append(out, PeriodSavings{Period: p, SavingsSummary: snap.Ledger.SummaryFor(p)})
	}
	return out, nil
}

// Activity returns the cap interventions logged for userKey, oldest first.
func (s *Service) Activity(userKey string) ([]activity.Entry, error) {
	all, err := s.activity.Read()
	if err != nil {
		return nil, fmt.Errorf("reading activity log: %w", err)
	}
	user := ledger.NormalizeUserKey(userKey)
	var out []activity.Entry
	for _, e := range all {
		if e.User == user {
			out = append(out, e)
		}
	}
	return out, nil
}

// Ask forwards a question to the advisor with the user's transactions.
func (s *Service) Ask(ctx context.Context, userKey, question string) (string, error) {
	if s.advisor == nil {
		return advisory.FallbackMessage, nil
	}
	list, err := s.list(ctx, ledger.NormalizeUserKey(userKey), s.now().Location())
	if err != nil {
		return "", err
	}
	return s.advisor.Ask(ctx, list, question), nil
}

// list returns the user's transactions with dates in loc, so every month
// bucket is read in the same location as the clock.
func (s *Service) list(ctx context.Context, user string, loc *time.Location) ([]model.Transaction, error) {
	txns, err := s.txns.List(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	for i := range txns {
		txns[i].Date = txns[i].Date.In(loc)
	}
	return txns, nil
}
