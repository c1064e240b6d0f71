package sheets

import (
	"context"
	"fmt"
	"slices"

	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/logger"
)

// CompareTransactions returns the candidates not already stored on sheet,
// ordered newest first. Only stored rows within the candidates' date span are
// fetched. The candidates slice is not modified.
func (c *Client) CompareTransactions(ctx context.Context, sheet domain.Sheet, candidates []domain.Transaction) ([]domain.Transaction, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("CompareTransactions: %w", ErrEmptyBatch)
	}
	if sheet == "" {
		sheet = domain.SheetExpenses
	}

	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, c.policy.Order)

	newest, oldest := sorted[0].Date, sorted[len(sorted)-1].Date
	stored, err := c.GetTransactions(ctx, QueryOptions{Sheet: sheet, Filter: Between(oldest, newest)})
	if err != nil {
		return nil, fmt.Errorf("CompareTransactions: fetching stored rows: %w", err)
	}
	slices.SortStableFunc(stored, c.policy.Order)

	fresh := mergeNew(c.policy, sorted, stored)

	log := logger.FromContext(ctx)
	log.Info().
		Str("sheet", string(sheet)).
		Str("policy", string(c.policy)).
		Int("candidates", len(candidates)).
		Int("stored", len(stored)).
		Int("accepted", len(fresh)).
		Msg("Compared candidates with ledger")

	return fresh, nil
}

// mergeNew walks two sequences sorted by policy.Order and returns the
// candidates without a matching stored row. Each stored row absorbs at most
// one candidate.
func mergeNew(policy domain.MatchPolicy, candidates, stored []domain.Transaction) []domain.Transaction {
	fresh := make([]domain.Transaction, 0, len(candidates))
	i, j := 0, 0
	for i < len(candidates) && j < len(stored) {
		switch c := policy.Compare(candidates[i], stored[j]); {
		case c == 0:
			i++
			j++
		case c < 0:
			fresh = append(fresh, candidates[i])
			i++
		default:
			j++
		}
	}
	return append(fresh, candidates[i:]...)
}
