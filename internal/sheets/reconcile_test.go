package sheets

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(date string, amount string, merchant string) domain.Transaction {
	d, err := civil.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return domain.Transaction{Date: d, Amount: decimal.RequireFromString(amount), Merchant: merchant}
}

// cellFor renders a transaction as the stored row the query endpoint returns.
func cellFor(t domain.Transaction) []any {
	date := fmt.Sprintf("Date(%d,%d,%d)", t.Date.Year, int(t.Date.Month)-1, t.Date.Day)
	return storedRow(date, t.Amount.InexactFloat64(), t.Merchant)
}

func keys(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.Date.String() + " " + t.Amount.StringFixed(2) + " " + t.Merchant
	}
	slices.Sort(out)
	return out
}

func compareWithStored(t *testing.T, policy domain.MatchPolicy, stored, candidates []domain.Transaction) []domain.Transaction {
	t.Helper()
	store, srv := newFakeStore(t)
	rows := make([][]any, len(stored))
	for i, s := range stored {
		rows[i] = cellFor(s)
	}
	store.setStored(rows...)
	c := newTestClient(t, srv, WithMatchPolicy(policy))

	got, err := c.CompareTransactions(context.Background(), domain.SheetExpenses, candidates)
	require.NoError(t, err)
	return got
}

func TestCompareTransactions_Cases(t *testing.T) {
	tests := []struct {
		name       string
		stored     []domain.Transaction
		candidates []domain.Transaction
		want       []domain.Transaction
	}{
		{
			name:       "pure duplicate",
			stored:     []domain.Transaction{tx("2024-01-05", "100.00", "")},
			candidates: []domain.Transaction{tx("2024-01-05", "100.00", "")},
			want:       []domain.Transaction{},
		},
		{
			name:       "same date different amount",
			stored:     []domain.Transaction{tx("2024-01-05", "100.00", "")},
			candidates: []domain.Transaction{tx("2024-01-05", "150.00", "")},
			want:       []domain.Transaction{tx("2024-01-05", "150.00", "")},
		},
		{
			name:       "smaller amount on same date",
			stored:     []domain.Transaction{tx("2024-01-05", "100.00", "")},
			candidates: []domain.Transaction{tx("2024-01-05", "20.00", "")},
			want:       []domain.Transaction{tx("2024-01-05", "20.00", "")},
		},
		{
			name:       "within tolerance",
			stored:     []domain.Transaction{tx("2024-01-05", "-4.5", "")},
			candidates: []domain.Transaction{tx("2024-01-05", "-4.5004", "")},
			want:       []domain.Transaction{},
		},
		{
			name:   "empty ledger",
			stored: nil,
			candidates: []domain.Transaction{
				tx("2024-01-03", "1", "a"), tx("2024-01-09", "2", "b"), tx("2024-01-05", "3", "c"),
			},
			want: []domain.Transaction{
				tx("2024-01-09", "2", "b"), tx("2024-01-05", "3", "c"), tx("2024-01-03", "1", "a"),
			},
		},
		{
			name:   "interleaved",
			stored: []domain.Transaction{tx("2024-01-06", "10", ""), tx("2024-01-04", "-7", ""), tx("2024-01-04", "-9", "")},
			candidates: []domain.Transaction{
				tx("2024-01-04", "-9", ""), tx("2024-01-07", "1", ""), tx("2024-01-06", "10", ""),
				tx("2024-01-04", "-8", ""), tx("2024-01-03", "5", ""),
			},
			want: []domain.Transaction{tx("2024-01-07", "1", ""), tx("2024-01-04", "-8", ""), tx("2024-01-03", "5", "")},
		},
		{
			name:       "two identical candidates against one stored row",
			stored:     []domain.Transaction{tx("2024-01-05", "3.20", "")},
			candidates: []domain.Transaction{tx("2024-01-05", "3.20", ""), tx("2024-01-05", "3.20", "")},
			want:       []domain.Transaction{tx("2024-01-05", "3.20", "")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareWithStored(t, domain.MatchDateAmount, tt.stored, tt.candidates)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Date, got[i].Date)
				requireDecimal(t, tt.want[i].Amount.String(), got[i].Amount)
			}
		})
	}
}

func TestCompareTransactions_QueriesCandidateSpan(t *testing.T) {
	store, srv := newFakeStore(t)
	store.setStored()
	c := newTestClient(t, srv)

	candidates := []domain.Transaction{tx("2024-01-09", "1", ""), tx("2024-01-02", "1", ""), tx("2024-01-05", "1", "")}
	_, err := c.CompareTransactions(context.Background(), domain.SheetIncome, candidates)
	require.NoError(t, err)

	q := store.lastQuery(t)
	assert.Equal(t, "select * WHERE B IS NOT NULL AND date '2024-01-02' <= B AND B <= date '2024-01-09' ORDER BY B desc", q.Get("tq"))
	assert.Equal(t, "Income", q.Get("sheet"))
	assert.Equal(t, "2024-01-09", candidates[0].Date.String(), "input is not reordered")
}

func TestCompareTransactions_EmptyBatch(t *testing.T) {
	store, srv := newFakeStore(t)
	c := newTestClient(t, srv)

	_, err := c.CompareTransactions(context.Background(), domain.SheetExpenses, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
	assert.Empty(t, store.queries)
}

func TestCompareTransactions_PropagatesQueryFailure(t *testing.T) {
	store, srv := newFakeStore(t)
	store.gvizBody = "not a query response"
	c := newTestClient(t, srv)

	_, err := c.CompareTransactions(context.Background(), domain.SheetExpenses, []domain.Transaction{tx("2024-01-05", "1", "")})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

// Appending a batch and comparing an overlapping batch accepts exactly the
// members whose date and amount are not in the first batch, whatever the
// input order.
func TestCompareTransactions_OverlappingBatches(t *testing.T) {
	stored := []domain.Transaction{
		tx("2024-03-01", "-12.00", ""), tx("2024-03-01", "-3.50", ""), tx("2024-03-02", "2000", ""),
		tx("2024-03-04", "-60.10", ""), tx("2024-03-07", "-1.99", ""),
	}
	candidates := []domain.Transaction{
		tx("2024-03-01", "-3.50", ""), tx("2024-03-01", "-3.51", ""), tx("2024-03-02", "2000", ""),
		tx("2024-03-03", "-60.10", ""), tx("2024-03-07", "-1.99", ""), tx("2024-03-08", "-1.99", ""),
	}
	want := keys([]domain.Transaction{tx("2024-03-01", "-3.51", ""), tx("2024-03-03", "-60.10", ""), tx("2024-03-08", "-1.99", "")})

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := slices.Clone(candidates)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := compareWithStored(t, domain.MatchDateAmount, stored, shuffled)
		assert.Equal(t, want, keys(got))
	}
}

func TestCompareTransactions_MerchantPolicy(t *testing.T) {
	stored := []domain.Transaction{tx("2024-01-05", "-3.20", "Cafe")}
	candidates := []domain.Transaction{tx("2024-01-05", "-3.20", "cafe "), tx("2024-01-05", "-3.20", "Bakery")}

	got := compareWithStored(t, domain.MatchDateAmount, stored, candidates)
	assert.Len(t, got, 1, "date and amount alone drop the second purchase")

	got = compareWithStored(t, domain.MatchDateAmountMerchant, stored, candidates)
	require.Len(t, got, 1)
	assert.Equal(t, "Bakery", got[0].Merchant)
}

func TestCompareTransactions_MerchantPolicySubCentAmounts(t *testing.T) {
	stored := []domain.Transaction{tx("2024-01-05", "5.0005", "B"), tx("2024-01-05", "5", "A")}
	candidates := []domain.Transaction{tx("2024-01-05", "5", "A")}

	got := compareWithStored(t, domain.MatchDateAmountMerchant, stored, candidates)
	assert.Empty(t, got)

	got = compareWithStored(t, domain.MatchDateAmountMerchant, stored, []domain.Transaction{
		tx("2024-01-05", "5.0001", "b"), tx("2024-01-05", "5", "C"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "C", got[0].Merchant)
}

func TestMergeNew(t *testing.T) {
	candidates := []domain.Transaction{tx("2024-01-05", "50", ""), tx("2024-01-05", "10", "")}
	stored := []domain.Transaction{tx("2024-01-05", "30", ""), tx("2024-01-05", "10", "")}

	got := mergeNew(domain.MatchDateAmount, candidates, stored)
	require.Len(t, got, 1)
	requireDecimal(t, "50", got[0].Amount)

	assert.Empty(t, mergeNew(domain.MatchDateAmount, nil, stored))
	assert.Len(t, mergeNew(domain.MatchDateAmount, candidates, nil), 2)
}
