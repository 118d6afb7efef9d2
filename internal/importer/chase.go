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

// ChaseParser parses Chase bank checking CSV exports. Chase signs amounts:
// negative is money out.
type ChaseParser struct{}

const (
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDetails = 0
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV and returns BankRecords.
func (p *ChaseParser) Parse(r io.Reader) ([]model.BankRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoHeader()
		}
		return nil, csvError(err)
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
		if len(rec) != chaseNumFields {
			return nil, &RowError{Line: line, Msg: fmt.Sprintf("expected %d columns, got %d", chaseNumFields, len(rec))}
		}

		br, err := parseChaseRow(rec)
		if err != nil {
			return nil, &RowError{Line: line, Msg: "invalid row", Err: err}
		}
		br.Line = line
		records = append(records, br)
	}
	return records, nil
}

func parseChaseRow(rec []string) (model.BankRecord, error) {
	date, err := time.ParseInLocation(chaseDateFormat, rec[chaseColDate], time.Local)
	if err != nil {
		return model.BankRecord{}, fmt.Errorf("parsing date %q: %w", rec[chaseColDate], err)
	}

	amount, err := decimal.NewFromString(rec[chaseColAmount])
	if err != nil {
		return model.BankRecord{}, fmt.Errorf("parsing amount %q: %w", rec[chaseColAmount], err)
	}

	typ := model.BankCredit
	switch strings.ToUpper(rec[chaseColDetails]) {
	case "DEBIT", "CHECK":
		typ = model.BankDebit
	case "CREDIT", "DSLIP":
	default:
		if amount.IsNegative() {
			typ = model.BankDebit
		}
	}

	return model.BankRecord{
		Date:        date,
		Description: rec[chaseColDesc],
		Amount:      amount.Abs(),
		Type:        typ,
	}, nil
}
