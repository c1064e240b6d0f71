package domain

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Sheet names one ledger variant. The value is the sheet title in the spreadsheet.
type Sheet string

const (
	SheetExpenses Sheet = "Expenses"
	SheetIncome   Sheet = "Income"
)

// ParseSheet accepts "expense(s)" or "income", case-insensitively.
func ParseSheet(s string) (Sheet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "expense", "expenses":
		return SheetExpenses, nil
	case "income":
		return SheetIncome, nil
	}
	return "", fmt.Errorf("unknown sheet %q", s)
}

// IsExpense reports whether s is the expense ledger.
func (s Sheet) IsExpense() bool {
	return s != SheetIncome
}

// Transaction is one ledger row. Amounts are signed: negative for outflow,
// positive for inflow.
type Transaction struct {
	Date              civil.Date
	Merchant          string
	Location          string
	Amount            decimal.Decimal
	Description       string
	Category          string
	Subcategory       string
	PaymentAccount    string
	TransactionMethod string

	// Exactly one of these is set for rows read from a ledger. Candidates may
	// leave both nil, in which case the target sheet's columns stay blank.
	Expense *ExpenseDetails
	Income  *IncomeDetails
}

// ExpenseDetails holds the expense-only columns.
type ExpenseDetails struct {
	ReimbursedAmount decimal.Decimal
	UnitCount        *decimal.Decimal // fuel litres, kWh, ...
	UnitType         string
	UnitPrice        *decimal.Decimal
}

// IncomeDetails holds the income-only columns.
type IncomeDetails struct {
	PayPeriodStart *civil.Date
	PayPeriodEnd   *civil.Date
}

// unitPricePlaces is the rounding applied to derived unit prices.
const unitPricePlaces = 4

// EffectiveUnitPrice returns the explicit unit price, or amount/unit_count when
// only the unit count is known. It returns nil when unit_count is absent or zero.
func (e *ExpenseDetails) EffectiveUnitPrice(amount decimal.Decimal) *decimal.Decimal {
	if e == nil {
		return nil
	}
	if e.UnitPrice != nil {
		return e.UnitPrice
	}
	if e.UnitCount == nil || e.UnitCount.IsZero() {
		return nil
	}
	price := amount.Div(*e.UnitCount).Round(unitPricePlaces)
	return &price
}

// AmountTolerance is the largest difference at which two amounts are still
// considered the same transaction.
var AmountTolerance = decimal.New(1, -3)

// SameAmount reports whether a and b differ by less than AmountTolerance.
func SameAmount(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(AmountTolerance)
}
