package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curb-dev/curb/internal/model"
)

// GenericParser reads CSVs with a date,description,amount,type header.
// Columns may come in any order; unknown columns are ignored.
type GenericParser struct{}

const (
	colDate   = "date"
	colDesc   = "description"
	colAmount = "amount"
	colType   = "type"
)

var requiredColumns = []string{colDate, colDesc, colAmount, colType}

var genericDateFormats = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

// Format returns the parser name.
func (p *GenericParser) Format() string { return "generic" }

// Parse reads the whole file. Any invalid row rejects the file.
func (p *GenericParser) Parse(r io.Reader) ([]model.BankRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errNoHeader()
	}
	if err != nil {
		return nil, csvError(err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, req := range requiredColumns {
		if _, ok := cols[req]; !ok {
			return nil, &RowError{Line: 1, Msg: fmt.Sprintf("missing required column %q", req)}
		}
	}

	var records []model.BankRecord
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		line, _ := cr.FieldPos(0)

		if len(rec) != len(header) {
			return nil, &RowError{Line: line, Msg: fmt.Sprintf("expected %d columns, got %d", len(header), len(rec))}
		}

		br, err := parseGenericRow(rec, cols)
		if err != nil {
			var re *RowError
			if errors.As(err, &re) {
				re.Line = line
				return nil, re
			}
			return nil, &RowError{Line: line, Msg: "invalid row", Err: err}
		}
		br.Line = line
		records = append(records, br)
	}
	return records, nil
}

func parseGenericRow(rec []string, cols map[string]int) (model.BankRecord, error) {
	rawDate := strings.TrimSpace(rec[cols[colDate]])
	date, err := parseDate(rawDate)
	if err != nil {
		return model.BankRecord{}, &RowError{Msg: fmt.Sprintf("parsing date %q", rawDate)}
	}

	rawAmount := strings.TrimSpace(rec[cols[colAmount]])
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return model.BankRecord{}, &RowError{Msg: fmt.Sprintf("parsing amount %q: not a number", rawAmount)}
	}
	if amount.IsNegative() {
		return model.BankRecord{}, &RowError{Msg: fmt.Sprintf("negative amount %s", rawAmount)}
	}

	rawType := strings.ToLower(strings.TrimSpace(rec[cols[colType]]))
	typ := model.BankRecordType(rawType)
	if typ != model.BankDebit && typ != model.BankCredit {
		return model.BankRecord{}, &RowError{Msg: fmt.Sprintf("type %q is neither debit nor credit", rec[cols[colType]])}
	}

	return model.BankRecord{
		Date:        date,
		Description: rec[cols[colDesc]],
		Amount:      amount,
		Type:        typ,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range genericDateFormats {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// csvError converts encoding/csv failures into RowErrors.
func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &RowError{Line: pe.Line, Msg: "malformed CSV", Err: pe.Err}
	}
	return fmt.Errorf("reading CSV: %w", err)
}
