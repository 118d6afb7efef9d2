package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/curb-dev/curb/internal/model"
)

// Parser converts a bank CSV file into BankRecords. A parser either returns
// every record of the file or an error; it never returns a partial result.
type Parser interface {
	Parse(r io.Reader) ([]model.BankRecord, error)
	Format() string
}

// RowError is a validation failure tied to a line of the input file.
type RowError struct {
	Line int // 1-based; the header is line 1
	Msg  string
	Err  error
}

func (e *RowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *RowError) Unwrap() error { return e.Err }

// ToTransactions turns debit records into AUTO transactions for userKey.
// Credits and zero-amount debits are dropped.
func ToTransactions(records []model.BankRecord, userKey string) []model.Transaction {
	var txns []model.Transaction
	for _, rec := range records {
		if rec.Type != model.BankDebit || !rec.Amount.IsPositive() {
			continue
		}
		txns = append(txns, model.Transaction{
			UserKey:     userKey,
			Description: strings.TrimSpace(rec.Description),
			Amount:      rec.Amount,
			Category:    model.InferCategory(rec.Description),
			Date:        rec.Date,
			Source:      model.SourceAuto,
		})
	}
	return txns
}

// errNoHeader reports a file without even a header row. Such a file is
// rejected rather than imported as zero rows, so it is never archived.
func errNoHeader() error {
	return &RowError{Line: 1, Msg: "empty file, expected a header row"}
}
