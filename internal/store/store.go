// Package store persists transactions and the key/value records the
// savings ledger is written through.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/curb-dev/curb/internal/model"
)

// ErrNotFound is returned when a transaction does not exist for the user.
var ErrNotFound = errors.New("not found")

// Transactions is the transaction store.
type Transactions interface {
	// List returns the user's transactions, newest first.
	List(ctx context.Context, userKey string) ([]model.Transaction, error)
	Find(ctx context.Context, userKey, id string) (model.Transaction, error)
	Add(ctx context.Context, txn model.Transaction) (string, error)
	// AddBatch inserts all transactions or none; ids come back in input order.
	AddBatch(ctx context.Context, txns []model.Transaction) ([]string, error)
	Delete(ctx context.Context, userKey, id string) error
}

// KV is a key/value repository. It satisfies ledger.Repository.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store combines both and owns the underlying resources.
type Store interface {
	Transactions
	KV
	Close() error
}

// sortNewestFirst orders by date descending, then id ascending.
func sortNewestFirst(txns []model.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.After(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
)
