// Package importer loads candidate transactions from CSV files stored locally
// or in Cloud Storage.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
)

// ErrMissingColumn is returned when a required column is absent from the header.
var ErrMissingColumn = errors.New("importer: missing column")

var requiredColumns = []sheets.Field{sheets.FieldDate, sheets.FieldMerchant, sheets.FieldAmount, sheets.FieldCategory}

// Importer loads a batch of candidates from a source.
type Importer struct {
	source Source
}

// New creates an Importer reading from source.
func New(source Source) *Importer {
	return &Importer{source: source}
}

// Load opens uri and parses it as a CSV batch for sheet.
func (i *Importer) Load(ctx context.Context, uri string, sheet domain.Sheet) ([]domain.Transaction, error) {
	rc, err := i.source.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer rc.Close()

	txs, err := ParseCSV(rc, sheet)
	if err != nil {
		return nil, fmt.Errorf("Load: %s: %w", ObjectName(uri), err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("uri", uri).
		Str("sheet", string(sheet)).
		Int("candidates", len(txs)).
		Msg("Loaded import file")
	return txs, nil
}

// ParseCSV reads a header row followed by one transaction per row. Header cells
// are logical field names (date, merchant, amount, ...) or ledger column labels
// (DATE, MERCHANT/COMPANY, ...); other columns are ignored.
func ParseCSV(r io.Reader, sheet domain.Sheet) ([]domain.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("ParseCSV: %w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("ParseCSV: reading header: %w", err)
	}

	columns := make(map[int]sheets.Field, len(header))
	present := map[sheets.Field]bool{}
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		field, err := sheets.ParseField(h)
		if err != nil {
			var ok bool
			if field, ok = sheets.FieldForLabel(h); !ok {
				continue
			}
		}
		columns[i] = field
		present[field] = true
	}
	for _, f := range requiredColumns {
		if !present[f] {
			return nil, fmt.Errorf("ParseCSV: %w: %s", ErrMissingColumn, f)
		}
	}

	var txs []domain.Transaction
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ParseCSV: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if blank(record) {
			continue
		}

		in := domain.TransactionInput{}
		for i, value := range record {
			if field, ok := columns[i]; ok {
				setInput(&in, field, strings.TrimSpace(value))
			}
		}
		tx, err := in.Transaction(sheet)
		if err != nil {
			return nil, fmt.Errorf("ParseCSV: line %d: %w", line, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func setInput(in *domain.TransactionInput, field sheets.Field, v string) {
	switch field {
	case sheets.FieldDate:
		in.Date = isoDate(v)
	case sheets.FieldMerchant:
		in.Merchant = v
	case sheets.FieldLocation:
		in.Location = v
	case sheets.FieldAmount:
		in.Amount = json.Number(cleanAmount(v))
	case sheets.FieldDescription:
		in.Description = v
	case sheets.FieldCategory:
		in.Category = v
	case sheets.FieldSubcategory:
		in.Subcategory = v
	case sheets.FieldPaymentAccount:
		in.PaymentAccount = v
	case sheets.FieldTransactionMethod:
		in.TransactionMethod = v
	case sheets.FieldReimbursedAmount:
		in.ReimbursedAmount = json.Number(cleanAmount(v))
	case sheets.FieldUnitCount:
		in.UnitCount = json.Number(v)
	case sheets.FieldUnitType:
		in.UnitType = v
	case sheets.FieldUnitPrice:
		in.UnitPrice = json.Number(cleanAmount(v))
	case sheets.FieldPayPeriodStart:
		in.PayPeriodStart = isoDate(v)
	case sheets.FieldPayPeriodEnd:
		in.PayPeriodEnd = isoDate(v)
	}
}

// isoDate rewrites M/D/YYYY as YYYY-MM-DD and leaves anything else alone.
func isoDate(v string) string {
	if t, err := time.Parse("1/2/2006", v); err == nil {
		return t.Format(time.DateOnly)
	}
	return v
}

// cleanAmount strips a currency symbol and thousands separators.
func cleanAmount(v string) string {
	v = strings.ReplaceAll(v, ",", "")
	switch {
	case strings.HasPrefix(v, "-$"):
		return "-" + v[2:]
	case strings.HasPrefix(v, "$"):
		return v[1:]
	}
	return v
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
