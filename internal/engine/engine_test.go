package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curb-dev/curb/internal/activity"
	"github.com/curb-dev/curb/internal/advisory"
	"github.com/curb-dev/curb/internal/alerts"
	"github.com/curb-dev/curb/internal/caps"
	"github.com/curb-dev/curb/internal/id"
	"github.com/curb-dev/curb/internal/importer"
	"github.com/curb-dev/curb/internal/logging"
	"github.com/curb-dev/curb/internal/model"
	"github.com/curb-dev/curb/internal/store"
)

var now = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

func date(month, day int) time.Time {
	return time.Date(2025, time.Month(month), day, 12, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc *Service
	mem *store.Memory
	dir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := store.NewMemory()
	dir := t.TempDir()
	svc := NewService(mem, mem, Options{
		Activity: activity.New(dir),
		Logger:   logging.Discard(),
		Now:      func() time.Time { return now },
	})
	return fixture{svc: svc, mem: mem, dir: dir}
}

// seedFoodHabit stores five 400 food purchases on March 1-5: a bad habit
// with saving potential 800 over a spend of 2000, so the cap is 1200.
func (f fixture) seedFoodHabit(t *testing.T, user string) {
	t.Helper()
	var txns []model.Transaction
	for day := 1; day <= 5; day++ {
		txns = append(txns, model.Transaction{
			UserKey: user, Description: "Swiggy", Amount: dec("400"),
			Category: model.CategoryFood, Date: date(3, day), Source: model.SourceAuto,
		})
	}
	_, err := f.mem.AddBatch(context.Background(), txns)
	require.NoError(t, err)
}

func manual(desc, amount string, cat model.Category) ManualInput {
	return ManualInput{Description: desc, Amount: dec(amount), Category: cat}
}

func TestAddManual_Impulse(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.AddManual(context.Background(), "Alice", manual("Sneakers", "2400", model.CategoryShopping), false)
	require.NoError(t, err)

	assert.True(t, res.Persisted)
	assert.Nil(t, res.Notice)
	assert.NotEmpty(t, res.Transaction.ID)
	assert.True(t, res.Transaction.IsImpulse)
	assert.False(t, res.Transaction.IsHabit)
	assert.Equal(t, "alice", res.Transaction.UserKey)
	assert.Equal(t, model.SourceManual, res.Transaction.Source)
	assert.True(t, res.Transaction.Date.Equal(now))

	stored, err := f.mem.Find(context.Background(), "alice", res.Transaction.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsImpulse)
}

func TestAddManual_HabitAndAlertsRefreshed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last AddResult
	for i := 1; i <= 4; i++ {
		in := manual("Cafe", "100", model.CategoryFood)
		in.Date = date(3, i)
		res, err := f.svc.AddManual(ctx, "alice", in, false)
		require.NoError(t, err)
		assert.Equal(t, i == 4, res.Transaction.IsHabit, "purchase %d", i)
		last = res
	}

	require.Len(t, last.Snapshot.Alerts, 1)
	a := last.Snapshot.Alerts[0]
	assert.Equal(t, "food:habit:2025-03", a.Key)
	assert.Equal(t, model.SeverityWarning, a.Severity)
	assert.True(t, a.SavingPotential.Equal(dec("100")))
	assert.Len(t, last.Snapshot.Transactions, 4)
}

func TestAddManual_MonthFollowsClockLocationOverSQLite(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	clock := time.Date(2025, 4, 1, 1, 0, 0, 0, ist)

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "curb.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, db, Options{
		Activity: activity.New(t.TempDir()),
		Logger:   logging.Discard(),
		Now:      func() time.Time { return clock },
	})
	ctx := context.Background()

	var last AddResult
	for i := 1; i <= 4; i++ {
		res, err := svc.AddManual(ctx, "alice", manual("Cafe", "100", model.CategoryFood), false)
		require.NoError(t, err)
		assert.Equal(t, i == 4, res.Transaction.IsHabit, "purchase %d", i)
		last = res
	}
	require.Len(t, last.Snapshot.AllAlerts, 1)
	assert.Equal(t, "food:habit:2025-04", last.Snapshot.AllAlerts[0].Key)

	in := manual("Metro", "40", model.CategoryTransport)
	in.Date = time.Date(2025, 4, 1, 0, 0, 0, 0, ist)
	res, err := svc.AddManual(ctx, "alice", in, false)
	require.NoError(t, err)

	require.Len(t, res.Snapshot.Transactions, 5)
	for _, txn := range res.Snapshot.Transactions {
		assert.Equal(t, "2025-04", id.PeriodOf(txn.Date), "%s dated %s", txn.Description, txn.Date)
	}
}

func TestAddManual_InvalidInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddManual(context.Background(), "alice", manual("x", "0", model.CategoryFood), false)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = f.svc.AddManual(context.Background(), "alice", manual("x", "10", "snacks"), false)
	assert.ErrorIs(t, err, model.ErrInvalidCategory)
}

func TestAddManual_CapBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFoodHabit(t, "alice")

	res, err := f.svc.AddManual(ctx, "alice", manual("Pizza", "150", model.CategoryFood), true)
	require.NoError(t, err)

	assert.False(t, res.Persisted)
	assert.Empty(t, res.Transaction.ID)
	require.NotNil(t, res.Notice)
	assert.Equal(t, caps.OutcomeBlocked, res.Notice.Outcome)
	assert.True(t, res.Notice.Saved.Equal(dec("150")))
	assert.Contains(t, res.Notice.Message, "Blocked")

	list, err := f.mem.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 5, "blocked transaction is not stored")

	assert.True(t, res.Snapshot.Summary.Prevented.Equal(dec("150")))
	assert.True(t, res.Snapshot.Summary.Total.Equal(dec("150")))

	entries, err := activity.Read(f.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "blocked", entries[0].Action)
	assert.NotEmpty(t, entries[0].Ref)
}

func TestAddManual_CapReducesBackdatedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFoodHabit(t, "alice")

	in := manual("Dinner", "500", model.CategoryFood)
	in.Date = date(3, 2)
	res, err := f.svc.AddManual(ctx, "alice", in, true)
	require.NoError(t, err)

	require.True(t, res.Persisted)
	require.NotNil(t, res.Notice)
	assert.Equal(t, caps.OutcomeReduced, res.Notice.Outcome)
	assert.True(t, res.Transaction.Amount.Equal(dec("400")))
	assert.True(t, res.Transaction.RequestedAmount.Equal(dec("500")))
	assert.Equal(t, model.SavingReduced, res.Transaction.SavingType)

	assert.True(t, res.Snapshot.Summary.Reduced.Equal(dec("100")))
	assert.True(t, res.Snapshot.Summary.Total.Equal(dec("100")))

	entries, err := activity.Read(f.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "reduced", entries[0].Action)
	assert.Equal(t, res.Transaction.ID, entries[0].Ref)

	// Deleting the evidence drops the saving at the next reconcile.
	snap, err := f.svc.Delete(ctx, "alice", res.Transaction.ID)
	require.NoError(t, err)
	assert.True(t, snap.Summary.Reduced.IsZero())
}

func TestAddManual_OptimizeOffIgnoresCap(t *testing.T) {
	f := newFixture(t)
	f.seedFoodHabit(t, "alice")

	res, err := f.svc.AddManual(context.Background(), "alice", manual("Pizza", "150", model.CategoryFood), false)
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Nil(t, res.Notice)
	assert.True(t, res.Transaction.Amount.Equal(dec("150")))
	assert.True(t, res.Snapshot.Summary.Total.IsZero())
}

func TestAddManual_CapOnlyForItsCategory(t *testing.T) {
	f := newFixture(t)
	f.seedFoodHabit(t, "alice")

	res, err := f.svc.AddManual(context.Background(), "alice", manual("Metro", "60", model.CategoryTransport), true)
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Nil(t, res.Notice)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFoodHabit(t, "alice")

	res, err := f.svc.AddManual(ctx, "alice", manual("Movie", "300", model.CategoryEntertainment), false)
	require.NoError(t, err)

	snap, err := f.svc.Delete(ctx, "ALICE", res.Transaction.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Transactions, 5)

	auto := snap.Transactions[0]
	require.Equal(t, model.SourceAuto, auto.Source)
	_, err = f.svc.Delete(ctx, "alice", auto.ID)
	assert.ErrorIs(t, err, ErrImmutable)

	_, err = f.svc.Delete(ctx, "alice", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Another user's transaction is not found.
	_, err = f.svc.Delete(ctx, "bob", auto.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

const statement = "date,description,amount,type\n" +
	"2025-03-01,SALARY,50000,credit\n" +
	"2025-03-02,Zomato order,450,debit\n" +
	"2025-03-03,Uber trip,120,debit\n"

func TestImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, snap, err := f.svc.Import(ctx, "alice", strings.NewReader(statement), "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, snap.Transactions, 2)
	for _, txn := range snap.Transactions {
		assert.Equal(t, model.SourceAuto, txn.Source)
		assert.False(t, txn.Deletable())
	}
	assert.Equal(t, model.CategoryTransport, snap.Transactions[0].Category)
	assert.Equal(t, model.CategoryFood, snap.Transactions[1].Category)
}

func TestImport_InvalidRowRejectsFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := statement + "2025-03-04,Pharmacy,abc,debit\n"

	_, _, err := f.svc.Import(ctx, "alice", strings.NewReader(bad), "generic")
	require.Error(t, err)
	var re *importer.RowError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 5, re.Line)

	list, err := f.mem.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestImport_UnknownFormat(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Import(context.Background(), "alice", strings.NewReader(statement), "ofx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown import format "ofx"`)
}

func TestImport_HabitAcrossBatch(t *testing.T) {
	f := newFixture(t)
	var b strings.Builder
	b.WriteString("date,description,amount,type\n")
	for day := 1; day <= 4; day++ {
		b.WriteString("2025-03-0" + string(rune('0'+day)) + ",Swiggy,100,debit\n")
	}
	_, snap, err := f.svc.Import(context.Background(), "alice", strings.NewReader(b.String()), "")
	require.NoError(t, err)

	habits := 0
	for _, txn := range snap.Transactions {
		if txn.IsHabit {
			habits++
		}
	}
	assert.Equal(t, 1, habits, "only the fourth purchase reaches the threshold")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportFiles_OrderAndAtomicity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()

	a := writeFile(t, dir, "a.csv", statement)
	b := writeFile(t, dir, "b.csv", "date,description,amount,type\n2025-03-05,Netflix,199,debit\n")
	results, snap, err := f.svc.ImportFiles(ctx, "alice", []string{a, b}, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.csv", results[0].File)
	assert.Equal(t, 2, results[0].Imported)
	assert.Equal(t, "b.csv", results[1].File)
	assert.Len(t, snap.Transactions, 3)

	broken := writeFile(t, dir, "broken.csv", "date,description,amount,type\n2025-03-06,Thing,12,refund\n")
	good := writeFile(t, dir, "good.csv", statement)
	_, _, err = f.svc.ImportFiles(ctx, "alice", []string{good, broken}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.csv")

	list, err := f.mem.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 3, "no file is committed when any file fails to decode")
}

func TestImportDir(t *testing.T) {
	f := newFixture(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "import"), "march.csv", statement)

	results, snap, err := f.svc.ImportDir(context.Background(), "alice", root, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, snap.Transactions, 2)

	_, err = os.Stat(filepath.Join(root, "import", "processed", "march.csv"))
	assert.NoError(t, err)

	results, _, err = f.svc.ImportDir(context.Background(), "alice", root, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDismiss_TransientAndPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFoodHabit(t, "alice")

	snap, err := f.svc.Refresh(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, snap.Alerts, 1)
	key := snap.Alerts[0].Key

	snap, err = f.svc.Dismiss(ctx, "alice", key)
	require.NoError(t, err)
	assert.Empty(t, snap.Alerts)
	assert.Len(t, snap.AllAlerts, 1)

	snap, err = f.svc.Refresh(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, snap.Alerts, "dismissal holds while the user stays active")

	_, err = f.svc.Refresh(ctx, "bob")
	require.NoError(t, err)
	snap, err = f.svc.Refresh(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, snap.Alerts, 1, "switching user clears dismissals")

	// Dismissal does not change the cap.
	res, err := f.svc.AddManual(ctx, "alice", manual("Pizza", "50", model.CategoryFood), true)
	require.NoError(t, err)
	assert.Equal(t, caps.OutcomeBlocked, res.Notice.Outcome)
}

func TestSavings_Period(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFoodHabit(t, "alice")

	_, err := f.svc.AddManual(ctx, "alice", manual("Pizza", "150", model.CategoryFood), true)
	require.NoError(t, err)

	all, err := f.svc.Savings(ctx, "alice", "")
	require.NoError(t, err)
	assert.True(t, all.Total.Equal(dec("150")))

	march, err := f.svc.Savings(ctx, "alice", "2025-03")
	require.NoError(t, err)
	assert.True(t, march.Prevented.Equal(dec("150")))

	feb, err := f.svc.Savings(ctx, "alice", "2025-02")
	require.NoError(t, err)
	assert.True(t, feb.Total.IsZero())

	other, err := f.svc.Savings(ctx, "bob", "")
	require.NoError(t, err)
	assert.True(t, other.Total.IsZero())
}

func TestRefresh_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFoodHabit(t, "alice")
	in := manual("Dinner", "500", model.CategoryFood)
	in.Date = date(3, 2)
	_, err := f.svc.AddManual(ctx, "alice", in, true)
	require.NoError(t, err)

	first, err := f.svc.Refresh(ctx, "alice")
	require.NoError(t, err)
	second, err := f.svc.Refresh(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.AllAlerts, second.AllAlerts)
}

func TestAsk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply, err := f.svc.Ask(ctx, "alice", "how am I doing?")
	require.NoError(t, err)
	assert.Equal(t, advisory.FallbackMessage, reply)

	gw := &advisory.RuleGateway{Policy: alerts.DefaultPolicy(), Now: func() time.Time { return now }}
	adv := advisory.NewAdvisor(gw, time.Second, logging.Discard())
	svc := NewService(f.mem, f.mem, Options{Advisor: adv, Logger: logging.Discard(), Now: func() time.Time { return now }})
	f.seedFoodHabit(t, "alice")

	_, err = svc.Refresh(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, adv.Wait(ctx))
	res, seq := adv.Latest()
	assert.Equal(t, uint64(1), seq)
	assert.NotEmpty(t, res.Suggestions)

	reply, err = svc.Ask(ctx, "alice", "what about food")
	require.NoError(t, err)
	assert.Contains(t, reply, "2000.00")
}

func TestImportDir_EmptyFileStaysInInbox(t *testing.T) {
	f := newFixture(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "import"), "a-march.csv", statement)
	writeFile(t, filepath.Join(root, "import"), "b-blank.csv", "")

	_, _, err := f.svc.ImportDir(context.Background(), "alice", root, "")
	var re *importer.RowError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, 1, re.Line)

	for _, name := range []string{"a-march.csv", "b-blank.csv"} {
		_, err := os.Stat(filepath.Join(root, "import", name))
		assert.NoError(t, err, "%s should stay in the inbox", name)
	}
	list, err := f.mem.List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSavingsByPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFoodHabit(t, "alice")
	_, err := f.mem.Add(ctx, model.Transaction{
		UserKey: "alice", Description: "Groceries", Amount: dec("200"), RequestedAmount: dec("300"),
		SavingType: model.SavingOptimized, Category: model.CategoryGroceries, Date: date(2, 10),
		Source: model.SourceManual,
	})
	require.NoError(t, err)

	_, err = f.svc.AddManual(ctx, "alice", manual("Pizza", "150", model.CategoryFood), true)
	require.NoError(t, err)

	periods, err := f.svc.SavingsByPeriod(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, periods, 2)

	assert.Equal(t, "2025-02", periods[0].Period)
	assert.True(t, periods[0].Optimized.Equal(dec("100")))
	assert.True(t, periods[0].Total.Equal(dec("100")))

	assert.Equal(t, "2025-03", periods[1].Period)
	assert.True(t, periods[1].Prevented.Equal(dec("150")))
	assert.True(t, periods[1].Total.Equal(dec("150")))

	none, err := f.svc.SavingsByPeriod(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestActivity_PerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFoodHabit(t, "alice")
	f.seedFoodHabit(t, "bob")

	_, err := f.svc.AddManual(ctx, "alice", manual("Pizza", "150", model.CategoryFood), true)
	require.NoError(t, err)
	_, err = f.svc.AddManual(ctx, "bob", manual("Burger", "90", model.CategoryFood), true)
	require.NoError(t, err)

	entries, err := f.svc.Activity("Alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "blocked", entries[0].Action)
	assert.True(t, entries[0].Saved.Equal(dec("150")))

	entries, err = f.svc.Activity("bob")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Saved.Equal(dec("90")))

	entries, err = f.svc.Activity("carol")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDismiss_RejectsMalformedKey(t *testing.T) {
	f := newFixture(t)
	for _, key := range []string{"food", "food:habit", "food:habit:2025-13"} {
		_, err := f.svc.Dismiss(context.Background(), "alice", key)
		assert.Error(t, err, key)
	}
}
