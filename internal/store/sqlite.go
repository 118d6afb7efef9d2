package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curb-dev/curb/internal/logging"
	"github.com/curb-dev/curb/internal/model"

	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at dbPath and applies
// migrations.
func OpenSQLite(dbPath string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One writer at a time keeps SQLite out of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &SQLite{db: db, logger: logging.WithComponent(logger, logging.ComponentStore)}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const selectColumns = `id, user_key, description, amount, category, occurred_at,
	is_impulse, is_habit, source, requested_amount, saving_type`

func (s *SQLite) List(ctx context.Context, userKey string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE user_key = ? ORDER BY occurred_at DESC, id ASC`,
		userKey)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return out, nil
}

func (s *SQLite) Find(ctx context.Context, userKey, id string) (model.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE user_key = ? AND id = ?`,
		userKey, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return t, err
}

func (s *SQLite) Add(ctx context.Context, txn model.Transaction) (string, error) {
	ids, err := s.AddBatch(ctx, []model.Transaction{txn})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *SQLite) AddBatch(ctx context.Context, txns []model.Transaction) ([]string, error) {
	for i, t := range txns {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(txns))
	for i, t := range txns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		requested := ""
		if !t.RequestedAmount.IsZero() {
			requested = t.RequestedAmount.String()
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, t.UserKey, t.Description, t.Amount.String(), string(t.Category),
			t.Date.UTC().UnixNano(), boolInt(t.IsImpulse), boolInt(t.IsHabit),
			string(t.Source), requested, string(t.SavingType))
		if err != nil {
			return nil, fmt.Errorf("inserting transaction %d: %w", i, err)
		}
		ids[i] = t.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing insert: %w", err)
	}

	s.logger.DebugContext(ctx, "transactions stored", "count", len(ids))
	return ids, nil
}

func (s *SQLite) Delete(ctx context.Context, userKey, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_key = ? AND id = ?`, userKey, id)
	if err != nil {
		return fmt.Errorf("deleting transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting transaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("writing key %s: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(r rowScanner) (model.Transaction, error) {
	var (
		t                           model.Transaction
		amount, requested           string
		category, source, savingTyp string
		occurred                    int64
		impulse, habit              int
	)
	err := r.Scan(&t.ID, &t.UserKey, &t.Description, &amount, &category, &occurred,
		&impulse, &habit, &source, &requested, &savingTyp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transaction{}, err
		}
		return model.Transaction{}, fmt.Errorf("scanning transaction: %w", err)
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q of %s: %w", amount, t.ID, err)
	}
	if requested != "" {
		t.RequestedAmount, err = decimal.NewFromString(requested)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("parsing requested amount %q of %s: %w", requested, t.ID, err)
		}
	}
	t.Category = model.Category(category)
	t.Source = model.Source(source)
	t.SavingType = model.SavingType(savingTyp)
	t.Date = time.Unix(0, occurred)
	t.IsImpulse = impulse != 0
	t.IsHabit = habit != 0
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
