package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/importer"
	"github.com/dvloznov/sheets-ledger/internal/ingest"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
)

// ErrPermanent marks a failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so the queue does not retry it.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Loader reads candidates from an import file.
type Loader interface {
	Load(ctx context.Context, uri string, sheet domain.Sheet) ([]domain.Transaction, error)
}

// LedgerOpener resolves the ledger owned by creds.
type LedgerOpener interface {
	Open(ctx context.Context, creds auth.Credentials) (sheets.Ledger, error)
}

// Ingester runs a batch through a ledger.
type Ingester interface {
	Ingest(ctx context.Context, ledger ingest.Ledger, b ingest.Batch) (ingest.Result, error)
}

// NewImportHandler returns a handler that loads the job's file, opens the
// owner's ledger and ingests the batch.
func NewImportHandler(loader Loader, opener LedgerOpener, ingester Ingester) JobHandler {
	return func(ctx context.Context, job *ImportJob) error {
		log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
			"job_id": job.JobID,
			"user":   job.User,
			"source": job.SourceURI,
		})
		ctx = logger.WithContext(ctx, log)

		candidates, err := loader.Load(ctx, job.SourceURI, job.Sheet)
		if err != nil {
			return classify(fmt.Errorf("loading %s: %w", job.SourceURI, err))
		}
		if len(candidates) == 0 {
			job.Result = &ingest.Result{}
			log.Info().Msg("Import file has no rows")
			return nil
		}

		ledger, err := opener.Open(ctx, job.Credentials)
		if err != nil {
			return classify(fmt.Errorf("opening ledger: %w", err))
		}

		res, err := ingester.Ingest(ctx, ledger, ingest.Batch{
			User:        job.User,
			Sheet:       job.Sheet,
			Candidates:  candidates,
			SkipCompare: job.SkipCompare,
		})
		if err != nil {
			return classify(err)
		}
		job.Result = &res
		return nil
	}
}

// classify marks errors caused by the input or the credential as permanent.
func classify(err error) error {
	switch {
	case errors.Is(err, auth.ErrReauthenticate),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, importer.ErrMissingColumn),
		errors.Is(err, importer.ErrUnsupportedSource),
		errors.Is(err, sheets.ErrEmptyBatch):
		return Permanent(err)
	}
	return err
}
