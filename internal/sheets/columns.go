package sheets

import (
	"fmt"
	"strings"

	"github.com/dvloznov/sheets-ledger/internal/domain"
)

// Field is a logical transaction field, independent of its physical column.
type Field string

const (
	FieldDate              Field = "date"
	FieldMerchant          Field = "merchant"
	FieldLocation          Field = "location"
	FieldAmount            Field = "amount"
	FieldDescription       Field = "description"
	FieldCategory          Field = "category"
	FieldSubcategory       Field = "subcategory"
	FieldPaymentAccount    Field = "payment_account"
	FieldTransactionMethod Field = "transaction_method"

	FieldReimbursedAmount Field = "reimbursed_amount"
	FieldUnitCount        Field = "unit_count"
	FieldUnitType         Field = "unit_type"
	FieldUnitPrice        Field = "unit_price"

	FieldPayPeriodStart Field = "pay_period_start"
	FieldPayPeriodEnd   Field = "pay_period_end"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindNumber
	kindDate
)

func (f Field) kind() fieldKind {
	switch f {
	case FieldDate, FieldPayPeriodStart, FieldPayPeriodEnd:
		return kindDate
	case FieldAmount, FieldReimbursedAmount, FieldUnitCount, FieldUnitPrice:
		return kindNumber
	}
	return kindText
}

// monthColumn holds a copy of the date that the sheet formats as a month.
const monthColumn = "A"

// rowWidth is the number of columns written per ledger row (A through N).
const rowWidth = 14

var sharedColumns = map[Field]string{
	FieldDate:              "B",
	FieldMerchant:          "C",
	FieldLocation:          "D",
	FieldAmount:            "E",
	FieldDescription:       "F",
	FieldCategory:          "G",
	FieldSubcategory:       "H",
	FieldPaymentAccount:    "I",
	FieldTransactionMethod: "J",
}

var expenseColumns = map[Field]string{
	FieldReimbursedAmount: "K",
	FieldUnitCount:        "L",
	FieldUnitType:         "M",
	FieldUnitPrice:        "N",
}

var incomeColumns = map[Field]string{
	FieldPayPeriodStart: "K",
	FieldPayPeriodEnd:   "L",
}

// Column returns the column letter holding field on sheet.
func Column(sheet domain.Sheet, field Field) (string, bool) {
	if col, ok := sharedColumns[field]; ok {
		return col, true
	}
	if sheet.IsExpense() {
		col, ok := expenseColumns[field]
		return col, ok
	}
	col, ok := incomeColumns[field]
	return col, ok
}

func mustColumn(sheet domain.Sheet, field Field) string {
	col, ok := Column(sheet, field)
	if !ok {
		panic(fmt.Sprintf("sheets: no column for %s on %s", field, sheet))
	}
	return col
}

// columnIndex converts a single column letter to its zero-based index.
func columnIndex(col string) int {
	return int(col[0] - 'A')
}

var fieldAliases = map[string]Field{
	"merchant_company":  FieldMerchant,
	"merchant_or_payee": FieldMerchant,
	"payment_method":    FieldTransactionMethod,
	"reimbursed":        FieldReimbursedAmount,
}

// ParseField resolves a logical field name, accepting a few legacy aliases.
func ParseField(name string) (Field, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if f, ok := fieldAliases[key]; ok {
		return f, nil
	}
	f := Field(key)
	if _, ok := sharedColumns[f]; ok {
		return f, nil
	}
	if _, ok := expenseColumns[f]; ok {
		return f, nil
	}
	if _, ok := incomeColumns[f]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Column labels as they appear in the header row of each ledger sheet.
const (
	LabelDate              = "DATE"
	LabelMerchant          = "MERCHANT/COMPANY"
	LabelLocation          = "LOCATION"
	LabelAmount            = "AMOUNT"
	LabelDescription       = "DESCRIPTION"
	LabelCategory          = "CATEGORY"
	LabelSubcategory       = "SUBCATEGORY"
	LabelPaymentAccount    = "PAYMENT ACCOUNT"
	LabelTransactionMethod = "TRANSACTION METHOD"
	LabelReimbursed        = "REIMBURSED"
	LabelUnitCount         = "UNIT COUNT"
	LabelUnitType          = "UNIT TYPE"
	LabelUnitPrice         = "PRICE/UNIT"
	LabelPayPeriodStart    = "PAY PERIOD START"
	LabelPayPeriodEnd      = "PAY PERIOD END"
	LabelMonth             = "MONTH"
)

var labelFields = map[string]Field{
	LabelDate:              FieldDate,
	LabelMerchant:          FieldMerchant,
	LabelLocation:          FieldLocation,
	LabelAmount:            FieldAmount,
	LabelDescription:       FieldDescription,
	LabelCategory:          FieldCategory,
	LabelSubcategory:       FieldSubcategory,
	LabelPaymentAccount:    FieldPaymentAccount,
	LabelTransactionMethod: FieldTransactionMethod,
	LabelReimbursed:        FieldReimbursedAmount,
	LabelUnitCount:         FieldUnitCount,
	LabelUnitType:          FieldUnitType,
	LabelUnitPrice:         FieldUnitPrice,
	LabelPayPeriodStart:    FieldPayPeriodStart,
	LabelPayPeriodEnd:      FieldPayPeriodEnd,
}

// HeaderRow returns the header labels of sheet in column order.
func HeaderRow(sheet domain.Sheet) []string {
	header := make([]string, rowWidth)
	header[columnIndex(monthColumn)] = LabelMonth

	columns := incomeColumns
	if sheet.IsExpense() {
		columns = expenseColumns
	}
	for label, field := range labelFields {
		if col, ok := sharedColumns[field]; ok {
			header[columnIndex(col)] = label
		} else if col, ok := columns[field]; ok {
			header[columnIndex(col)] = label
		}
	}
	return header[:lastNonEmpty(header)+1]
}

func lastNonEmpty(values []string) int {
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] != "" {
			return i
		}
	}
	return -1
}

// FieldForLabel returns the field stored under a header label.
func FieldForLabel(label string) (Field, bool) {
	f, ok := labelFields[strings.ToUpper(strings.TrimSpace(label))]
	return f, ok
}
