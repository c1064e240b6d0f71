// Package ingest runs a submitted batch through the ledger: compare against
// stored rows, append what is new, re-sort the sheet and mirror the result.
package ingest

import (
	"context"
	"fmt"

	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
)

// Ledger is the part of sheets.Ledger that ingestion writes through.
type Ledger interface {
	CompareTransactions(ctx context.Context, sheet domain.Sheet, candidates []domain.Transaction) ([]domain.Transaction, error)
	AppendTransactions(ctx context.Context, sheet domain.Sheet, txs []domain.Transaction) error
	SortSheet(ctx context.Context, sheet domain.Sheet) error
}

// Mirror receives a copy of every appended batch.
type Mirror interface {
	Record(ctx context.Context, user string, sheet domain.Sheet, txs []domain.Transaction) error
}

// Batch is one submission.
type Batch struct {
	User        string
	Sheet       domain.Sheet
	Candidates  []domain.Transaction
	SkipCompare bool // append every candidate, e.g. for a known-new import
}

// Result summarises an ingested batch.
type Result struct {
	Submitted  int `json:"submitted"`
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// Service orchestrates ingestion. It holds no per-request state.
type Service struct {
	mirror          Mirror
	sortAfterAppend bool
}

// Option configures a Service.
type Option func(*Service)

// WithMirror enables mirroring of appended rows.
func WithMirror(m Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithSortAfterAppend sorts the sheet by date after every non-empty append.
func WithSortAfterAppend(enabled bool) Option {
	return func(s *Service) { s.sortAfterAppend = enabled }
}

// NewService creates a Service.
func NewService(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest appends the new members of b to ledger. Steps run in order and the
// first failure aborts the batch; a failing mirror is only logged.
func (s *Service) Ingest(ctx context.Context, ledger Ledger, b Batch) (Result, error) {
	log := logger.FromContext(ctx).With().
		Str("user", b.User).
		Str("sheet", string(b.Sheet)).
		Logger()

	res := Result{Submitted: len(b.Candidates)}
	if len(b.Candidates) == 0 {
		return res, fmt.Errorf("Ingest: %w", sheets.ErrEmptyBatch)
	}

	accepted := b.Candidates
	if !b.SkipCompare {
		var err error
		accepted, err = ledger.CompareTransactions(ctx, b.Sheet, b.Candidates)
		if err != nil {
			return res, fmt.Errorf("Ingest: comparing: %w", err)
		}
	}
	res.Accepted = len(accepted)
	res.Duplicates = res.Submitted - res.Accepted

	if len(accepted) == 0 {
		log.Info().Int("submitted", res.Submitted).Msg("Nothing new to append")
		return res, nil
	}

	if err := ledger.AppendTransactions(ctx, b.Sheet, accepted); err != nil {
		return res, fmt.Errorf("Ingest: appending: %w", err)
	}

	if s.sortAfterAppend {
		if err := ledger.SortSheet(ctx, b.Sheet); err != nil {
			return res, fmt.Errorf("Ingest: sorting: %w", err)
		}
	}

	if s.mirror != nil {
		if err := s.mirror.Record(ctx, b.User, b.Sheet, accepted); err != nil {
			log.Error().Err(err).Int("rows", len(accepted)).Msg("Mirroring appended rows failed")
		}
	}

	log.Info().
		Int("submitted", res.Submitted).
		Int("accepted", res.Accepted).
		Int("duplicates", res.Duplicates).
		Msg("Ingested batch")
	return res, nil
}
