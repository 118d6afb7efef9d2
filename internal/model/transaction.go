package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Source records where a transaction came from.
type Source string

const (
	SourceManual Source = "MANUAL" // typed by the user
	SourceAuto   Source = "AUTO"   // imported from a bank statement
)

// SavingType buckets money that was not spent.
type SavingType string

const (
	SavingPrevented SavingType = "PREVENTED"
	SavingReduced   SavingType = "REDUCED"
	SavingOptimized SavingType = "OPTIMIZED"
)

// Transaction is a single expense owned by a user.
type Transaction struct {
	ID          string // empty until persisted
	UserKey     string
	Description string
	Amount      decimal.Decimal
	Category    Category
	Date        time.Time
	IsImpulse   bool
	IsHabit     bool
	Source      Source

	// RequestedAmount is what the user asked to spend when the committed
	// Amount was cut down; zero when the amount was not altered.
	RequestedAmount decimal.Decimal
	SavingType      SavingType
}

// Deletable reports whether the user may delete the transaction.
func (t Transaction) Deletable() bool {
	return t.Source == SourceManual
}

// Residual returns RequestedAmount - Amount, or zero when nothing was cut.
func (t Transaction) Residual() decimal.Decimal {
	if t.RequestedAmount.GreaterThan(t.Amount) {
		return t.RequestedAmount.Sub(t.Amount)
	}
	return decimal.Zero
}

// BankRecordType is the direction of a bank statement row.
type BankRecordType string

const (
	BankDebit  BankRecordType = "debit"
	BankCredit BankRecordType = "credit"
)

// BankRecord represents a parsed bank CSV row.
type BankRecord struct {
	Line        int // 1-based line in the source file
	Date        time.Time
	Description string
	Amount      decimal.Decimal // always >= 0
	Type        BankRecordType
}

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidSource   = errors.New("invalid source")
	ErrMissingDate     = errors.New("missing date")
)

// Validate checks the fields a store needs before persisting.
func (t Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, t.Amount)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, t.Category)
	}
	if t.Source != SourceManual && t.Source != SourceAuto {
		return fmt.Errorf("%w: %q", ErrInvalidSource, t.Source)
	}
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}
