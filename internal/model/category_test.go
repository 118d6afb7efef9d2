package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryTableComplete(t *testing.T) {
	cats := Categories()
	require.Len(t, cats, 9)
	assert.Equal(t, CategoryOther, cats[len(cats)-1], "other must be the last row")

	for _, c := range cats {
		info, ok := Info(c)
		require.True(t, ok, "category %s missing metadata", c)
		assert.NotEmpty(t, info.Color, "category %s missing color", c)
		if c != CategoryOther {
			assert.NotEmpty(t, info.Keywords, "category %s missing keywords", c)
		}
	}
}

func TestEssential(t *testing.T) {
	nonEssential := map[Category]bool{
		CategoryFood:          true,
		CategoryShopping:      true,
		CategoryEntertainment: true,
	}
	for _, c := range Categories() {
		assert.Equal(t, !nonEssential[c], c.Essential(), "Essential(%s)", c)
	}
	assert.True(t, Category("crypto").Essential(), "unknown categories degrade to essential")
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("  Food ")
	assert.True(t, ok)
	assert.Equal(t, CategoryFood, c)

	_, ok = ParseCategory("crypto")
	assert.False(t, ok)
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		desc string
		want Category
	}{
		{"SWIGGY ORDER 1234", CategoryFood},
		{"Zomato online", CategoryFood},
		{"Corner Restaurant", CategoryFood},
		{"UBER TRIP BLR", CategoryTransport},
		{"Namma Metro card", CategoryTransport},
		{"NETFLIX.COM", CategorySubscriptions},
		{"BigBasket order", CategoryGroceries},
		{"Apollo Pharmacy", CategoryHealth},
		{"NEFT transfer to savings", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferCategory(tt.desc), "InferCategory(%q)", tt.desc)
	}
}

func TestColorFallback(t *testing.T) {
	assert.Equal(t, CategoryOther.Color(), Category("unknown").Color())
	assert.NotEqual(t, CategoryFood.Color(), CategoryOther.Color())
}

func TestTransactionResidual(t *testing.T) {
	txn := Transaction{Amount: decimal.NewFromInt(50), RequestedAmount: decimal.NewFromInt(100)}
	assert.True(t, txn.Residual().Equal(decimal.NewFromInt(50)))

	txn = Transaction{Amount: decimal.NewFromInt(50)}
	assert.True(t, txn.Residual().IsZero())
}

func TestTransactionDeletable(t *testing.T) {
	assert.True(t, Transaction{Source: SourceManual}.Deletable())
	assert.False(t, Transaction{Source: SourceAuto}.Deletable())
}

func TestSavingsBuckets(t *testing.T) {
	var b SavingsBuckets
	b.Add(SavingPrevented, decimal.NewFromInt(100))
	b.Add(SavingReduced, decimal.NewFromInt(50))
	b.Add(SavingOptimized, decimal.NewFromInt(25))
	b.Add("", decimal.NewFromInt(5))

	s := Summarize(b)
	assert.Equal(t, "100", s.Prevented.String())
	assert.Equal(t, "50", s.Reduced.String())
	assert.Equal(t, "30", s.Optimized.String())
	assert.True(t, s.Total.Equal(s.Prevented.Add(s.Reduced).Add(s.Optimized)))
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityBad.Rank(), SeverityWarning.Rank())
	assert.Less(t, SeverityWarning.Rank(), SeverityGood.Rank())
}

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		Amount:   decimal.NewFromInt(120),
		Category: CategoryFood,
		Source:   SourceManual,
		Date:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"zero amount", func(tx *Transaction) { tx.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-1) }, ErrInvalidAmount},
		{"unknown category", func(tx *Transaction) { tx.Category = "crypto" }, ErrInvalidCategory},
		{"unknown source", func(tx *Transaction) { tx.Source = "SYNC" }, ErrInvalidSource},
		{"missing date", func(tx *Transaction) { tx.Date = time.Time{} }, ErrMissingDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid
			tt.mutate(&tx)
			assert.ErrorIs(t, tx.Validate(), tt.want)
		})
	}
}
