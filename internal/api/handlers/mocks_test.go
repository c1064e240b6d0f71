package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/importer"
	"github.com/dvloznov/sheets-ledger/internal/ingest"
	"github.com/dvloznov/sheets-ledger/internal/jobs"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
	"github.com/shopspring/decimal"
)

// MockLedger is a mock implementation of sheets.Ledger for testing.
type MockLedger struct {
	GetTransactionsFunc     func(ctx context.Context, opts sheets.QueryOptions) ([]domain.Transaction, error)
	GetCategoriesFunc       func(ctx context.Context, sheet domain.Sheet) (map[string][]string, error)
	GetPaymentMethodsFunc   func(ctx context.Context) (map[string][]string, error)
	GetTotalSpendingFunc    func(ctx context.Context, filter sheets.Filter) (decimal.Decimal, error)
	GetCategorySpendingFunc func(ctx context.Context, filter sheets.Filter) (map[string]decimal.Decimal, error)

	queries []sheets.QueryOptions
}

func (m *MockLedger) GetTransactions(ctx context.Context, opts sheets.QueryOptions) ([]domain.Transaction, error) {
	m.queries = append(m.queries, opts)
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, opts)
	}
	return nil, nil
}

func (m *MockLedger) GetCategories(ctx context.Context, sheet domain.Sheet) (map[string][]string, error) {
	if m.GetCategoriesFunc != nil {
		return m.GetCategoriesFunc(ctx, sheet)
	}
	return map[string][]string{}, nil
}

func (m *MockLedger) GetPaymentMethods(ctx context.Context) (map[string][]string, error) {
	if m.GetPaymentMethodsFunc != nil {
		return m.GetPaymentMethodsFunc(ctx)
	}
	return map[string][]string{}, nil
}

func (m *MockLedger) GetTotalSpending(ctx context.Context, filter sheets.Filter) (decimal.Decimal, error) {
	if m.GetTotalSpendingFunc != nil {
		return m.GetTotalSpendingFunc(ctx, filter)
	}
	return decimal.Zero, nil
}

func (m *MockLedger) GetCategorySpending(ctx context.Context, filter sheets.Filter) (map[string]decimal.Decimal, error) {
	if m.GetCategorySpendingFunc != nil {
		return m.GetCategorySpendingFunc(ctx, filter)
	}
	return map[string]decimal.Decimal{}, nil
}

func (m *MockLedger) CompareTransactions(ctx context.Context, sheet domain.Sheet, candidates []domain.Transaction) ([]domain.Transaction, error) {
	return candidates, nil
}

func (m *MockLedger) AppendTransactions(ctx context.Context, sheet domain.Sheet, txs []domain.Transaction) error {
	return nil
}

func (m *MockLedger) SortSheet(ctx context.Context, sheet domain.Sheet) error {
	return nil
}

// MockOpener is a mock implementation of LedgerOpener for testing.
type MockOpener struct {
	Ledger  sheets.Ledger
	Err     error
	openFor []string
}

func (m *MockOpener) Open(ctx context.Context, creds auth.Credentials) (sheets.Ledger, error) {
	m.openFor = append(m.openFor, creds.UserIdentity)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Ledger, nil
}

// MockIngester is a mock implementation of Ingester for testing.
type MockIngester struct {
	IngestFunc func(ctx context.Context, ledger ingest.Ledger, b ingest.Batch) (ingest.Result, error)
	batches    []ingest.Batch
}

func (m *MockIngester) Ingest(ctx context.Context, ledger ingest.Ledger, b ingest.Batch) (ingest.Result, error) {
	m.batches = append(m.batches, b)
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, ledger, b)
	}
	return ingest.Result{Submitted: len(b.Candidates), Accepted: len(b.Candidates)}, nil
}

// MockPublisher is a mock implementation of jobs.Publisher for testing.
type MockPublisher struct {
	Err       error
	published []*jobs.ImportJob
}

func (m *MockPublisher) PublishImport(ctx context.Context, job *jobs.ImportJob) error {
	if m.Err != nil {
		return m.Err
	}
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	m.published = append(m.published, job)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// MockUploader is a mock implementation of Uploader for testing.
type MockUploader struct {
	bucket, object, body string
}

func (m *MockUploader) Upload(ctx context.Context, bucket, objectName string, r io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.bucket, m.object, m.body = bucket, objectName, string(b)
	return "gs://" + bucket + "/" + objectName, nil
}

var (
	_ sheets.Ledger  = (*MockLedger)(nil)
	_ LedgerOpener   = (*MockOpener)(nil)
	_ Ingester       = (*ingest.Service)(nil)
	_ jobs.Publisher = (*MockPublisher)(nil)
	_ Uploader       = (*importer.GCSSource)(nil)
)

var testCreds = auth.Credentials{BearerToken: "tok", UserIdentity: "someone@example.com"}

// authedRequest builds a request carrying testCreds.
func authedRequest(method, target, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	return req.WithContext(auth.WithCredentials(req.Context(), testCreds))
}
