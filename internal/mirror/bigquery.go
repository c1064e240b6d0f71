// Package mirror streams appended ledger rows into BigQuery for analysis. The
// spreadsheet stays the system of record.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Row is one mirrored ledger row.
type Row struct {
	InsertID string

	UserIdentity string     `bigquery:"user_identity"` // REQUIRED
	Sheet        string     `bigquery:"sheet"`         // REQUIRED
	Date         civil.Date `bigquery:"transaction_date"`

	Merchant          string          `bigquery:"merchant"`
	Location          string          `bigquery:"location"`
	Amount            decimal.Decimal `bigquery:"amount"` // NUMERIC
	Description       string          `bigquery:"description"`
	Category          string          `bigquery:"category"`
	Subcategory       string          `bigquery:"subcategory"`
	PaymentAccount    string          `bigquery:"payment_account"`
	TransactionMethod string          `bigquery:"transaction_method"`

	ReimbursedAmount *decimal.Decimal `bigquery:"reimbursed_amount"` // NULLABLE
	UnitCount        *decimal.Decimal `bigquery:"unit_count"`        // NULLABLE
	UnitType         string           `bigquery:"unit_type"`
	UnitPrice        *decimal.Decimal `bigquery:"unit_price"`       // NULLABLE
	PayPeriodStart   *civil.Date      `bigquery:"pay_period_start"` // NULLABLE
	PayPeriodEnd     *civil.Date      `bigquery:"pay_period_end"`   // NULLABLE

	IngestedTS time.Time `bigquery:"ingested_ts"`
}

// Schema is the table layout Row is saved into.
var Schema = bigquery.Schema{
	{Name: "user_identity", Type: bigquery.StringFieldType, Required: true},
	{Name: "sheet", Type: bigquery.StringFieldType, Required: true},
	{Name: "transaction_date", Type: bigquery.DateFieldType, Required: true},
	{Name: "merchant", Type: bigquery.StringFieldType},
	{Name: "location", Type: bigquery.StringFieldType},
	{Name: "amount", Type: bigquery.NumericFieldType, Required: true},
	{Name: "description", Type: bigquery.StringFieldType},
	{Name: "category", Type: bigquery.StringFieldType},
	{Name: "subcategory", Type: bigquery.StringFieldType},
	{Name: "payment_account", Type: bigquery.StringFieldType},
	{Name: "transaction_method", Type: bigquery.StringFieldType},
	{Name: "reimbursed_amount", Type: bigquery.NumericFieldType},
	{Name: "unit_count", Type: bigquery.NumericFieldType},
	{Name: "unit_type", Type: bigquery.StringFieldType},
	{Name: "unit_price", Type: bigquery.NumericFieldType},
	{Name: "pay_period_start", Type: bigquery.DateFieldType},
	{Name: "pay_period_end", Type: bigquery.DateFieldType},
	{Name: "ingested_ts", Type: bigquery.TimestampFieldType, Required: true},
}

// Save implements bigquery.ValueSaver.
func (r *Row) Save() (map[string]bigquery.Value, string, error) {
	row := map[string]bigquery.Value{
		"user_identity":      r.UserIdentity,
		"sheet":              r.Sheet,
		"transaction_date":   r.Date.String(),
		"merchant":           nullString(r.Merchant),
		"location":           nullString(r.Location),
		"amount":             r.Amount.String(),
		"description":        nullString(r.Description),
		"category":           nullString(r.Category),
		"subcategory":        nullString(r.Subcategory),
		"payment_account":    nullString(r.PaymentAccount),
		"transaction_method": nullString(r.TransactionMethod),
		"reimbursed_amount":  nullDecimal(r.ReimbursedAmount),
		"unit_count":         nullDecimal(r.UnitCount),
		"unit_type":          nullString(r.UnitType),
		"unit_price":         nullDecimal(r.UnitPrice),
		"pay_period_start":   nullDate(r.PayPeriodStart),
		"pay_period_end":     nullDate(r.PayPeriodEnd),
		"ingested_ts":        r.IngestedTS.UTC().Format(time.RFC3339Nano),
	}
	return row, r.InsertID, nil
}

func nullString(s string) bigquery.Value {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d *decimal.Decimal) bigquery.Value {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullDate(d *civil.Date) bigquery.Value {
	if d == nil {
		return nil
	}
	return d.String()
}

// NewRows converts appended transactions into mirror rows.
func NewRows(user string, sheet domain.Sheet, txs []domain.Transaction, now time.Time) []*Row {
	rows := make([]*Row, len(txs))
	for i, tx := range txs {
		r := &Row{
			InsertID:          uuid.NewString(),
			UserIdentity:      user,
			Sheet:             string(sheet),
			Date:              tx.Date,
			Merchant:          tx.Merchant,
			Location:          tx.Location,
			Amount:            tx.Amount,
			Description:       tx.Description,
			Category:          tx.Category,
			Subcategory:       tx.Subcategory,
			PaymentAccount:    tx.PaymentAccount,
			TransactionMethod: tx.TransactionMethod,
			IngestedTS:        now,
		}
		if e := tx.Expense; e != nil {
			if !e.ReimbursedAmount.IsZero() {
				reimbursed := e.ReimbursedAmount
				r.ReimbursedAmount = &reimbursed
			}
			r.UnitCount = e.UnitCount
			r.UnitType = e.UnitType
			r.UnitPrice = e.EffectiveUnitPrice(tx.Amount)
		}
		if inc := tx.Income; inc != nil {
			r.PayPeriodStart = inc.PayPeriodStart
			r.PayPeriodEnd = inc.PayPeriodEnd
		}
		rows[i] = r
	}
	return rows
}

// BigQueryMirror writes rows to <dataset>.<table> with the streaming API.
type BigQueryMirror struct {
	client  *bigquery.Client
	dataset string
	table   string
	now     func() time.Time
}

// NewBigQueryMirror creates a mirror with its own BigQuery client.
func NewBigQueryMirror(ctx context.Context, project, dataset, table string, opts ...option.ClientOption) (*BigQueryMirror, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryMirror: creating client: %w", err)
	}
	return NewBigQueryMirrorWithClient(client, dataset, table), nil
}

// NewBigQueryMirrorWithClient creates a mirror over an existing client.
func NewBigQueryMirrorWithClient(client *bigquery.Client, dataset, table string) *BigQueryMirror {
	return &BigQueryMirror{client: client, dataset: dataset, table: table, now: time.Now}
}

// Close closes the BigQuery client connection.
func (m *BigQueryMirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Record streams txs into the mirror table.
func (m *BigQueryMirror) Record(ctx context.Context, user string, sheet domain.Sheet, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	rows := NewRows(user, sheet, txs, m.now())
	inserter := m.client.Dataset(m.dataset).Table(m.table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("Record: inserting rows: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("table", m.dataset+"."+m.table).
		Int("rows", len(rows)).
		Msg("Mirrored rows to BigQuery")
	return nil
}

// EnsureTable creates the mirror table, partitioned by transaction date, if it
// does not exist yet.
func (m *BigQueryMirror) EnsureTable(ctx context.Context) error {
	t := m.client.Dataset(m.dataset).Table(m.table)

	_, err := t.Metadata(ctx)
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: reading metadata: %w", err)
	}

	meta := &bigquery.TableMetadata{
		Schema:           Schema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "transaction_date"},
		Clustering:       &bigquery.Clustering{Fields: []string{"user_identity", "sheet"}},
	}
	if err := t.Create(ctx, meta); err != nil {
		return fmt.Errorf("EnsureTable: creating table: %w", err)
	}
	return nil
}
