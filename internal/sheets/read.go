package sheets

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/shopspring/decimal"
)

const (
	// HiddenCategory is never reported by GetCategorySpending. It marks
	// transfers and other rows that should not count as spending.
	HiddenCategory = "hidden"

	// UncategorizedCategory replaces an empty category in spending reports.
	UncategorizedCategory = "Uncategorized"
)

// Lookup range names.
const (
	RangeExpenseCategories = "CONFIG: Categories"
	RangeIncomeCategories  = "CONFIG: Income Categories"
	RangePaymentMethods    = "CONFIG: Payment Methods"
)

const sumAmountLabel = "sum " + LabelAmount

// GetTransactions returns the rows selected by opts, newest first.
func (c *Client) GetTransactions(ctx context.Context, opts QueryOptions) ([]domain.Transaction, error) {
	if opts.Sheet == "" {
		opts.Sheet = domain.SheetExpenses
	}

	query, err := buildSelectQuery(opts)
	if err != nil {
		return nil, fmt.Errorf("GetTransactions: %w", err)
	}

	rows, err := c.Query(ctx, query, opts.Sheet)
	if err != nil {
		return nil, fmt.Errorf("GetTransactions: %w", err)
	}

	txs, err := decodeTransactions(opts.Sheet, rows)
	if err != nil {
		return nil, fmt.Errorf("GetTransactions: %w", err)
	}
	if opts.Limit > 0 && len(txs) > opts.Limit {
		txs = txs[:opts.Limit]
	}
	return txs, nil
}

// GetTotalSpending sums the amount column of the expense sheet. No matching
// rows yields zero.
func (c *Client) GetTotalSpending(ctx context.Context, filter Filter) (decimal.Decimal, error) {
	query, err := buildSumQuery(domain.SheetExpenses, filter, false)
	if err != nil {
		return decimal.Zero, fmt.Errorf("GetTotalSpending: %w", err)
	}

	rows, err := c.Query(ctx, query, domain.SheetExpenses)
	if err != nil {
		return decimal.Zero, fmt.Errorf("GetTotalSpending: %w", err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}

	total, err := cellToDecimal(rows[0][sumAmountLabel])
	if err != nil {
		return decimal.Zero, fmt.Errorf("GetTotalSpending: %w: %s: %v", ErrDecode, sumAmountLabel, err)
	}
	return total, nil
}

// GetCategorySpending sums the expense sheet by category. HiddenCategory is
// left out and rows without a category are reported as UncategorizedCategory.
func (c *Client) GetCategorySpending(ctx context.Context, filter Filter) (map[string]decimal.Decimal, error) {
	query, err := buildSumQuery(domain.SheetExpenses, filter, true)
	if err != nil {
		return nil, fmt.Errorf("GetCategorySpending: %w", err)
	}

	rows, err := c.Query(ctx, query, domain.SheetExpenses)
	if err != nil {
		return nil, fmt.Errorf("GetCategorySpending: %w", err)
	}

	spending := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		category := cellToText(row[LabelCategory])
		if category == "" {
			category = UncategorizedCategory
		}
		if category == HiddenCategory {
			continue
		}
		sum, err := cellToDecimal(row[sumAmountLabel])
		if err != nil {
			return nil, fmt.Errorf("GetCategorySpending: %w: %s: %v", ErrDecode, category, err)
		}
		spending[category] = spending[category].Add(sum)
	}
	return spending, nil
}

// GetCategories returns the category groups of the expense or income sheet,
// keyed by group with subcategories in sheet order.
func (c *Client) GetCategories(ctx context.Context, sheet domain.Sheet) (map[string][]string, error) {
	name := RangeExpenseCategories
	if !sheet.IsExpense() {
		name = RangeIncomeCategories
	}
	groups, err := c.lookup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("GetCategories: %w", err)
	}
	return groups, nil
}

// GetPaymentMethods returns payment methods grouped by their header.
func (c *Client) GetPaymentMethods(ctx context.Context) (map[string][]string, error) {
	groups, err := c.lookup(ctx, RangePaymentMethods)
	if err != nil {
		return nil, fmt.Errorf("GetPaymentMethods: %w", err)
	}
	return groups, nil
}

// lookup reads a header-plus-columns range and pivots it into header -> values.
// A range whose sheet does not exist yields an empty map.
func (c *Client) lookup(ctx context.Context, name string) (map[string][]string, error) {
	log := logger.FromContext(ctx)

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoteSheetName(name)).Context(ctx).Do()
	if err != nil {
		if isRangeNotFound(err) {
			log.Debug().Str("range", name).Msg("Lookup range not found")
			return map[string][]string{}, nil
		}
		return nil, apiError("lookup "+name, err)
	}

	return pivotColumns(resp.Values), nil
}

func pivotColumns(values [][]interface{}) map[string][]string {
	groups := map[string][]string{}
	if len(values) < 2 {
		return groups
	}

	header := values[0]
	for _, row := range values[1:] {
		for i, h := range header {
			key := cellToText(h)
			if key == "" {
				continue
			}
			if _, ok := groups[key]; !ok {
				groups[key] = []string{}
			}
			if i < len(row) {
				if v := cellToText(row[i]); v != "" {
					groups[key] = append(groups[key], v)
				}
			}
		}
	}
	return groups
}

func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
