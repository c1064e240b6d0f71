package jobs

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/importer"
	"github.com/dvloznov/sheets-ledger/internal/ingest"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLoader is a mock implementation of Loader.
type MockLoader struct {
	LoadFunc func(ctx context.Context, uri string, sheet domain.Sheet) ([]domain.Transaction, error)
}

func (m *MockLoader) Load(ctx context.Context, uri string, sheet domain.Sheet) ([]domain.Transaction, error) {
	return m.LoadFunc(ctx, uri, sheet)
}

// MockOpener is a mock implementation of LedgerOpener.
type MockOpener struct {
	OpenFunc func(ctx context.Context, creds auth.Credentials) (sheets.Ledger, error)
	opened   []auth.Credentials
}

func (m *MockOpener) Open(ctx context.Context, creds auth.Credentials) (sheets.Ledger, error) {
	m.opened = append(m.opened, creds)
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, creds)
	}
	return nil, nil
}

// MockIngester is a mock implementation of Ingester.
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

var (
	_ Loader       = (*importer.Importer)(nil)
	_ Ingester     = (*ingest.Service)(nil)
	_ LedgerOpener = (*MockOpener)(nil)
)

func loaded(n int) *MockLoader {
	return &MockLoader{LoadFunc: func(ctx context.Context, uri string, sheet domain.Sheet) ([]domain.Transaction, error) {
		out := make([]domain.Transaction, n)
		for i := range out {
			out[i] = domain.Transaction{Date: civil.Date{Year: 2024, Month: 1, Day: i + 1}, Amount: decimal.NewFromInt(-5)}
		}
		return out, nil
	}}
}

func TestImportHandler_Success(t *testing.T) {
	opener := &MockOpener{}
	ingester := &MockIngester{}
	h := NewImportHandler(loaded(2), opener, ingester)

	job := &ImportJob{
		JobID:       "j1",
		User:        "a@example.com",
		Sheet:       domain.SheetIncome,
		SourceURI:   "gs://b/jan.csv",
		SkipCompare: true,
		Credentials: auth.Credentials{BearerToken: "tok", UserIdentity: "a@example.com"},
	}
	require.NoError(t, h(context.Background(), job))

	require.Len(t, opener.opened, 1)
	assert.Equal(t, "tok", opener.opened[0].BearerToken)
	require.Len(t, ingester.batches, 1)
	b := ingester.batches[0]
	assert.Equal(t, "a@example.com", b.User)
	assert.Equal(t, domain.SheetIncome, b.Sheet)
	assert.True(t, b.SkipCompare)
	assert.Len(t, b.Candidates, 2)
	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.Accepted)
}

func TestImportHandler_EmptyFileSkipsLedger(t *testing.T) {
	opener := &MockOpener{}
	ingester := &MockIngester{}
	job := &ImportJob{JobID: "j1"}

	require.NoError(t, NewImportHandler(loaded(0), opener, ingester)(context.Background(), job))
	assert.Empty(t, opener.opened)
	assert.Empty(t, ingester.batches)
	require.NotNil(t, job.Result)
	assert.Zero(t, job.Result.Submitted)
}

func TestImportHandler_ClassifiesErrors(t *testing.T) {
	transient := errors.New("503 backend")

	tests := []struct {
		name          string
		loader        *MockLoader
		opener        *MockOpener
		ingester      *MockIngester
		wantPermanent bool
	}{
		{
			name: "bad file",
			loader: &MockLoader{LoadFunc: func(ctx context.Context, uri string, sheet domain.Sheet) ([]domain.Transaction, error) {
				return nil, importer.ErrMissingColumn
			}},
			opener:        &MockOpener{},
			ingester:      &MockIngester{},
			wantPermanent: true,
		},
		{
			name:   "expired token",
			loader: loaded(1),
			opener: &MockOpener{OpenFunc: func(ctx context.Context, creds auth.Credentials) (sheets.Ledger, error) {
				return nil, auth.ErrReauthenticate
			}},
			ingester:      &MockIngester{},
			wantPermanent: true,
		},
		{
			name:   "transport failure",
			loader: loaded(1),
			opener: &MockOpener{},
			ingester: &MockIngester{IngestFunc: func(ctx context.Context, ledger ingest.Ledger, b ingest.Batch) (ingest.Result, error) {
				return ingest.Result{}, transient
			}},
			wantPermanent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewImportHandler(tt.loader, tt.opener, tt.ingester)(context.Background(), &ImportJob{JobID: "j"})
			require.Error(t, err)
			assert.Equal(t, tt.wantPermanent, errors.Is(err, ErrPermanent))
		})
	}
}
