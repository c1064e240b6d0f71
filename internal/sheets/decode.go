package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// cellDate matches the query endpoint's date encoding, Date(year,month0,day)
// with optional time parts. The month is zero-based.
var cellDate = regexp.MustCompile(`^Date\((\d{1,4}),\s*(\d{1,2}),\s*(\d{1,2})(?:,[^)]*)?\)$`)

var errMissing = errors.New("missing value")

func decodeTransactions(sheet domain.Sheet, rows []Row) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, 0, len(rows))
	for i, row := range rows {
		tx, err := decodeTransaction(sheet, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// decodeTransaction maps a labelled row onto a Transaction. Labels outside the
// sheet's layout are ignored.
func decodeTransaction(sheet domain.Sheet, row Row) (domain.Transaction, error) {
	var tx domain.Transaction
	if sheet.IsExpense() {
		tx.Expense = &domain.ExpenseDetails{}
	} else {
		tx.Income = &domain.IncomeDetails{}
	}

	for label, v := range row {
		field, ok := labelFields[label]
		if !ok {
			continue
		}
		if _, ok := Column(sheet, field); !ok {
			continue
		}
		if err := setField(&tx, field, v); err != nil {
			return domain.Transaction{}, fmt.Errorf("%w: %s: %v", ErrDecode, label, err)
		}
	}
	return tx, nil
}

func setField(tx *domain.Transaction, field Field, v any) error {
	var err error
	switch field {
	case FieldDate:
		var d *civil.Date
		if d, err = cellToDate(v); err == nil {
			if d == nil {
				return errMissing
			}
			tx.Date = *d
		}
	case FieldMerchant:
		tx.Merchant = cellToText(v)
	case FieldLocation:
		tx.Location = cellToText(v)
	case FieldAmount:
		tx.Amount, err = cellToDecimal(v)
	case FieldDescription:
		tx.Description = cellToText(v)
	case FieldCategory:
		tx.Category = cellToText(v)
	case FieldSubcategory:
		tx.Subcategory = cellToText(v)
	case FieldPaymentAccount:
		tx.PaymentAccount = cellToText(v)
	case FieldTransactionMethod:
		tx.TransactionMethod = cellToText(v)
	case FieldReimbursedAmount:
		tx.Expense.ReimbursedAmount, err = cellToDecimal(v)
	case FieldUnitCount:
		tx.Expense.UnitCount, err = cellToOptionalDecimal(v)
	case FieldUnitType:
		tx.Expense.UnitType = cellToText(v)
	case FieldUnitPrice:
		tx.Expense.UnitPrice, err = cellToOptionalDecimal(v)
	case FieldPayPeriodStart:
		tx.Income.PayPeriodStart, err = cellToDate(v)
	case FieldPayPeriodEnd:
		tx.Income.PayPeriodEnd, err = cellToDate(v)
	}
	return err
}

func cellToText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strings.ToUpper(strconv.FormatBool(val))
	}
	return fmt.Sprint(v)
}

// cellToDecimal defaults absent cells to zero. Checkbox cells count as zero.
func cellToDecimal(v any) (decimal.Decimal, error) {
	d, err := cellToOptionalDecimal(v)
	if err != nil || d == nil {
		return decimal.Zero, err
	}
	return *d, nil
}

func cellToOptionalDecimal(v any) (*decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case nil, bool:
		return nil, nil
	case json.Number:
		d, err = decimal.NewFromString(val.String())
	case float64:
		d = decimal.NewFromFloat(val)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(val), ",", "")
		if s == "" {
			return nil, nil
		}
		d, err = decimal.NewFromString(s)
	default:
		return nil, fmt.Errorf("unexpected %T", v)
	}
	if err != nil {
		return nil, fmt.Errorf("not a number: %v", v)
	}
	return &d, nil
}

// cellToDate accepts Date(y,m0,d), YYYY-MM-DD and M/D/YYYY. Absent cells
// decode to nil.
func cellToDate(v any) (*civil.Date, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected %T", v)
	}
	s = strings.TrimSpace(s)

	if m := cellDate.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		d := civil.Date{Year: year, Month: time.Month(month + 1), Day: day}
		if !d.IsValid() {
			return nil, fmt.Errorf("invalid date %q", s)
		}
		return &d, nil
	}
	if d, err := civil.ParseDate(s); err == nil {
		return &d, nil
	}
	if t, err := time.Parse("1/2/2006", s); err == nil {
		d := civil.DateOf(t)
		return &d, nil
	}
	return nil, fmt.Errorf("not a date: %q", s)
}
