package sheets

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/shopspring/decimal"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// AppendTransactions writes txs to the end of sheet in the given order. It is
// not idempotent; run CompareTransactions first to skip stored rows.
func (c *Client) AppendTransactions(ctx context.Context, sheet domain.Sheet, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	if sheet == "" {
		sheet = domain.SheetExpenses
	}

	values := make([][]interface{}, len(txs))
	for i, tx := range txs {
		values[i] = rowValues(sheet, tx)
	}

	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, quoteSheetName(string(sheet)), &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return apiError("AppendTransactions", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("sheet", string(sheet)).
		Int("rows", len(values)).
		Msg("Appended transactions")
	return nil
}

// SortSheet orders every row below the header by date, oldest first.
func (c *Client) SortSheet(ctx context.Context, sheet domain.Sheet) error {
	if sheet == "" {
		sheet = domain.SheetExpenses
	}

	sheetID, err := c.sheetID(ctx, sheet)
	if err != nil {
		return fmt.Errorf("SortSheet: %w", err)
	}

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			SortRange: &sheetsapi.SortRangeRequest{
				Range: &sheetsapi.GridRange{
					SheetId:       sheetID,
					StartRowIndex: 1,
					// SheetId 0 is the first sheet and must still be sent.
					ForceSendFields: []string{"SheetId"},
				},
				SortSpecs: []*sheetsapi.SortSpec{{
					DimensionIndex:  int64(columnIndex(mustColumn(sheet, FieldDate))),
					SortOrder:       "ASCENDING",
					ForceSendFields: []string{"DimensionIndex"},
				}},
			},
		}},
	}

	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return apiError("SortSheet", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("sheet", string(sheet)).Msg("Sorted sheet by date")
	return nil
}

func (c *Client) sheetID(ctx context.Context, sheet domain.Sheet) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, apiError("sheetID", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == string(sheet) {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheetID: sheet %q not found", sheet)
}

// rowValues lays tx out in the physical column order of sheet. Blank cells are
// empty strings so that positions are preserved.
func rowValues(sheet domain.Sheet, tx domain.Transaction) []interface{} {
	row := make([]interface{}, rowWidth)
	for i := range row {
		row[i] = ""
	}
	row[columnIndex(monthColumn)] = tx.Date.String()

	set := func(f Field, v string) {
		if col, ok := Column(sheet, f); ok {
			row[columnIndex(col)] = v
		}
	}

	set(FieldDate, tx.Date.String())
	set(FieldMerchant, plainText(tx.Merchant))
	set(FieldLocation, plainText(tx.Location))
	set(FieldAmount, tx.Amount.String())
	set(FieldDescription, plainText(tx.Description))
	set(FieldCategory, plainText(tx.Category))
	set(FieldSubcategory, plainText(tx.Subcategory))
	set(FieldPaymentAccount, plainText(tx.PaymentAccount))
	set(FieldTransactionMethod, plainText(tx.TransactionMethod))

	if sheet.IsExpense() && tx.Expense != nil {
		if !tx.Expense.ReimbursedAmount.IsZero() {
			set(FieldReimbursedAmount, tx.Expense.ReimbursedAmount.String())
		}
		set(FieldUnitCount, optionalDecimal(tx.Expense.UnitCount))
		set(FieldUnitType, plainText(tx.Expense.UnitType))
		set(FieldUnitPrice, optionalDecimal(tx.Expense.EffectiveUnitPrice(tx.Amount)))
	}
	if !sheet.IsExpense() && tx.Income != nil {
		set(FieldPayPeriodStart, optionalDate(tx.Income.PayPeriodStart))
		set(FieldPayPeriodEnd, optionalDate(tx.Income.PayPeriodEnd))
	}
	return row
}

// plainText keeps USER_ENTERED from parsing s as a formula. The leading
// apostrophe is not part of the stored value.
func plainText(s string) string {
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		return "'" + s
	}
	return s
}

func optionalDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func optionalDate(d *civil.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
