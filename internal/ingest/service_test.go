package ingest

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLedger is a mock implementation of Ledger for testing.
type MockLedger struct {
	CompareTransactionsFunc func(ctx context.Context, sheet domain.Sheet, candidates []domain.Transaction) ([]domain.Transaction, error)
	AppendTransactionsFunc  func(ctx context.Context, sheet domain.Sheet, txs []domain.Transaction) error
	SortSheetFunc           func(ctx context.Context, sheet domain.Sheet) error

	calls []string
}

func (m *MockLedger) CompareTransactions(ctx context.Context, sheet domain.Sheet, candidates []domain.Transaction) ([]domain.Transaction, error) {
	m.calls = append(m.calls, "compare")
	if m.CompareTransactionsFunc != nil {
		return m.CompareTransactionsFunc(ctx, sheet, candidates)
	}
	return candidates, nil
}

func (m *MockLedger) AppendTransactions(ctx context.Context, sheet domain.Sheet, txs []domain.Transaction) error {
	m.calls = append(m.calls, "append")
	if m.AppendTransactionsFunc != nil {
		return m.AppendTransactionsFunc(ctx, sheet, txs)
	}
	return nil
}

func (m *MockLedger) SortSheet(ctx context.Context, sheet domain.Sheet) error {
	m.calls = append(m.calls, "sort")
	if m.SortSheetFunc != nil {
		return m.SortSheetFunc(ctx, sheet)
	}
	return nil
}

// MockMirror is a mock implementation of Mirror for testing.
type MockMirror struct {
	RecordFunc func(ctx context.Context, user string, sheet domain.Sheet, txs []domain.Transaction) error
	recorded   int
}

func (m *MockMirror) Record(ctx context.Context, user string, sheet domain.Sheet, txs []domain.Transaction) error {
	m.recorded += len(txs)
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, user, sheet, txs)
	}
	return nil
}

var (
	_ Ledger = (*MockLedger)(nil)
	_ Ledger = (*sheets.Client)(nil)
	_ Mirror = (*MockMirror)(nil)
)

func batch(n int) []domain.Transaction {
	out := make([]domain.Transaction, n)
	for i := range out {
		out[i] = domain.Transaction{
			Date:   civil.Date{Year: 2024, Month: 1, Day: i + 1},
			Amount: decimal.NewFromInt(int64(-10 * (i + 1))),
		}
	}
	return out
}

func TestIngest_ComparesAppendsSortsAndMirrors(t *testing.T) {
	var appended []domain.Transaction
	ledger := &MockLedger{
		CompareTransactionsFunc: func(_ context.Context, _ domain.Sheet, c []domain.Transaction) ([]domain.Transaction, error) {
			return c[:1], nil
		},
		AppendTransactionsFunc: func(_ context.Context, sheet domain.Sheet, txs []domain.Transaction) error {
			assert.Equal(t, domain.SheetIncome, sheet)
			appended = txs
			return nil
		},
	}
	mirror := &MockMirror{}
	svc := NewService(WithMirror(mirror), WithSortAfterAppend(true))

	res, err := svc.Ingest(context.Background(), ledger, Batch{User: "someone@example.com", Sheet: domain.SheetIncome, Candidates: batch(3)})
	require.NoError(t, err)

	assert.Equal(t, Result{Submitted: 3, Accepted: 1, Duplicates: 2}, res)
	assert.Equal(t, []string{"compare", "append", "sort"}, ledger.calls)
	assert.Len(t, appended, 1)
	assert.Equal(t, 1, mirror.recorded)
}

func TestIngest_AllDuplicatesSkipsAppend(t *testing.T) {
	ledger := &MockLedger{
		CompareTransactionsFunc: func(context.Context, domain.Sheet, []domain.Transaction) ([]domain.Transaction, error) {
			return nil, nil
		},
	}
	mirror := &MockMirror{}
	svc := NewService(WithMirror(mirror), WithSortAfterAppend(true))

	res, err := svc.Ingest(context.Background(), ledger, Batch{Sheet: domain.SheetExpenses, Candidates: batch(2)})
	require.NoError(t, err)

	assert.Equal(t, Result{Submitted: 2, Accepted: 0, Duplicates: 2}, res)
	assert.Equal(t, []string{"compare"}, ledger.calls)
	assert.Zero(t, mirror.recorded)
}

func TestIngest_SkipCompare(t *testing.T) {
	ledger := &MockLedger{}
	svc := NewService()

	res, err := svc.Ingest(context.Background(), ledger, Batch{Sheet: domain.SheetExpenses, Candidates: batch(2), SkipCompare: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, []string{"append"}, ledger.calls, "no sort unless enabled")
}

func TestIngest_EmptyBatch(t *testing.T) {
	ledger := &MockLedger{}

	_, err := NewService().Ingest(context.Background(), ledger, Batch{Sheet: domain.SheetExpenses})
	assert.ErrorIs(t, err, sheets.ErrEmptyBatch)
	assert.Empty(t, ledger.calls)
}

func TestIngest_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		ledger    *MockLedger
		wantCalls []string
	}{
		{
			name: "compare fails",
			ledger: &MockLedger{CompareTransactionsFunc: func(context.Context, domain.Sheet, []domain.Transaction) ([]domain.Transaction, error) {
				return nil, boom
			}},
			wantCalls: []string{"compare"},
		},
		{
			name:      "append fails",
			ledger:    &MockLedger{AppendTransactionsFunc: func(context.Context, domain.Sheet, []domain.Transaction) error { return boom }},
			wantCalls: []string{"compare", "append"},
		},
		{
			name:      "sort fails",
			ledger:    &MockLedger{SortSheetFunc: func(context.Context, domain.Sheet) error { return boom }},
			wantCalls: []string{"compare", "append", "sort"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mirror := &MockMirror{}
			svc := NewService(WithMirror(mirror), WithSortAfterAppend(true))

			_, err := svc.Ingest(context.Background(), tt.ledger, Batch{Sheet: domain.SheetExpenses, Candidates: batch(1)})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.wantCalls, tt.ledger.calls)
			assert.Zero(t, mirror.recorded)
		})
	}
}

func TestIngest_MirrorFailureIsNotFatal(t *testing.T) {
	mirror := &MockMirror{RecordFunc: func(context.Context, string, domain.Sheet, []domain.Transaction) error {
		return errors.New("bigquery unavailable")
	}}
	svc := NewService(WithMirror(mirror))

	res, err := svc.Ingest(context.Background(), &MockLedger{}, Batch{Sheet: domain.SheetExpenses, Candidates: batch(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 2, mirror.recorded)
}
