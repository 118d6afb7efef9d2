// Package activity keeps a CSV trail of cap interventions under logs/.
package activity

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curb-dev/curb/internal/model"
)

// Entry is one row in the activity log.
type Entry struct {
	Timestamp time.Time
	User      string
	Action    string // "blocked" or "reduced"
	Category  model.Category
	Requested decimal.Decimal
	Committed decimal.Decimal
	Saved     decimal.Decimal
	Ref       string // transaction ID, or prevented event ID when blocked
}

// Header is the CSV header for activity.csv.
const Header = "timestamp,user,action,category,requested,committed,saved,ref"

const (
	numFields    = 8
	logDir       = "logs"
	logFile      = "logs/activity.csv"
	colTimestamp = 0
	colUser      = 1
	colAction    = 2
	colCategory  = 3
	colRequested = 4
	colCommitted = 5
	colSaved     = 6
	colRef       = 7
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colUser] = e.User
	row[colAction] = e.Action
	row[colCategory] = string(e.Category)
	row[colRequested] = e.Requested.StringFixed(2)
	row[colCommitted] = e.Committed.StringFixed(2)
	row[colSaved] = e.Saved.StringFixed(2)
	row[colRef] = e.Ref
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	amounts := make([]decimal.Decimal, 3)
	for i, col := range []int{colRequested, colCommitted, colSaved} {
		d, err := decimal.NewFromString(record[col])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing amount %q: %w", record[col], err)
		}
		amounts[i] = d
	}

	return Entry{
		Timestamp: ts,
		User:      record[colUser],
		Action:    record[colAction],
		Category:  model.Category(record[colCategory]),
		Requested: amounts[0],
		Committed: amounts[1],
		Saved:     amounts[2],
		Ref:       record[colRef],
	}, nil
}

// Log appends entries under a curb directory.
type Log struct {
	root string
}

// New returns a Log rooted at dir. An empty dir disables logging.
func New(dir string) *Log {
	return &Log{root: dir}
}

// Append writes entries to <root>/logs/activity.csv, creating the file and
// header if needed.
func (l *Log) Append(entries ...Entry) error {
	if l == nil || l.root == "" || len(entries) == 0 {
		return nil
	}
	return Append(l.root, entries)
}

// Read returns every logged entry.
func (l *Log) Read() ([]Entry, error) {
	if l == nil || l.root == "" {
		return nil, nil
	}
	return Read(l.root)
}

// Append writes entries to <root>/logs/activity.csv, creating the file and header if needed.
func Append(root string, entries []Entry) error {
	dir := filepath.Join(root, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(root, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <root>/logs/activity.csv.
// Returns an empty slice if the file does not exist.
func Read(root string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(root, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading activity log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
