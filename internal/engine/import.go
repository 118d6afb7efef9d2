package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/curb-dev/curb/internal/classify"
	"github.com/curb-dev/curb/internal/importer"
	"github.com/curb-dev/curb/internal/ledger"
	"github.com/curb-dev/curb/internal/model"
)

// DefaultFormat is the import format used when none is given.
const DefaultFormat = importer.DefaultFormat

// ImportResult summarises one imported file.
type ImportResult struct {
	File     string
	Records  int // rows decoded
	Imported int // debit rows stored
	IDs      []string
}

// Import decodes one bank CSV and stores its debits as AUTO transactions.
// An invalid row rejects the whole file; the error wraps *importer.RowError.
func (s *Service) Import(ctx context.Context, userKey string, r io.Reader, format string) (ImportResult, Snapshot, error) {
	p, err := s.registry.Lookup(format)
	if err != nil {
		return ImportResult{}, Snapshot{}, err
	}
	recs, err := p.Parse(r)
	if err != nil {
		return ImportResult{}, Snapshot{}, fmt.Errorf("decoding %s CSV: %w", p.Format(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := ledger.NormalizeUserKey(userKey)
	res, err := s.commitLocked(ctx, user, recs)
	if err != nil {
		return ImportResult{}, Snapshot{}, err
	}
	snap, err := s.refreshLocked(ctx, user)
	if err != nil {
		return ImportResult{}, Snapshot{}, err
	}
	return res, snap, nil
}

// ImportFiles decodes the files concurrently, then commits them one by one
// in the given order. Nothing is stored unless every file decodes.
func (s *Service) ImportFiles(ctx context.Context, userKey string, paths []string, format string) ([]ImportResult, Snapshot, error) {
	p, err := s.registry.Lookup(format)
	if err != nil {
		return nil, Snapshot{}, err
	}

	decoded := make([][]model.BankRecord, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer f.Close()

			recs, err := p.Parse(f)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
			}
			decoded[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := ledger.NormalizeUserKey(userKey)
	results := make([]ImportResult, 0, len(paths))
	for i, recs := range decoded {
		res, err := s.commitLocked(ctx, user, recs)
		if err != nil {
			return results, Snapshot{}, fmt.Errorf("importing %s: %w", filepath.Base(paths[i]), err)
		}
		res.File = filepath.Base(paths[i])
		results = append(results, res)
	}
	snap, err := s.refreshLocked(ctx, user)
	if err != nil {
		return results, Snapshot{}, err
	}
	return results, snap, nil
}

// ImportDir imports every CSV in <root>/import and moves each committed file
// to <root>/import/processed.
func (s *Service) ImportDir(ctx context.Context, userKey, root, format string) ([]ImportResult, Snapshot, error) {
	paths, err := importer.Scan(root)
	if err != nil {
		return nil, Snapshot{}, err
	}
	if len(paths) == 0 {
		snap, err := s.Refresh(ctx, userKey)
		return nil, snap, err
	}

	results, snap, err := s.ImportFiles(ctx, userKey, paths, format)
	for _, res := range results {
		if _, mvErr := importer.MarkProcessed(root, res.File); mvErr != nil {
			s.importLog.WarnContext(ctx, "moving imported file", "file", res.File, "error", mvErr)
		}
	}
	return results, snap, err
}

func (s *Service) commitLocked(ctx context.Context, user string, recs []model.BankRecord) (ImportResult, error) {
	res := ImportResult{Records: len(recs)}
	txns := importer.ToTransactions(recs, user)
	if len(txns) == 0 {
		return res, nil
	}

	loc := s.now().Location()
	history, err := s.list(ctx, user, loc)
	if err != nil {
		return res, err
	}
	for i := range txns {
		txns[i].Date = txns[i].Date.In(loc)
	}
	txns = classify.ApplyBatch(txns, history, s.thresholds)

	ids, err := s.txns.AddBatch(ctx, txns)
	if err != nil {
		return res, fmt.Errorf("storing imported transactions: %w", err)
	}
	res.Imported = len(ids)
	res.IDs = ids
	s.importLog.InfoContext(ctx, "transactions imported", "user", user, "records", len(recs), "imported", len(ids))
	return res, nil
}
