// Package handlers implements the HTTP route layer over a user's ledger.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/sheets-ledger/internal/api/middleware"
	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/ingest"
	"github.com/dvloznov/sheets-ledger/internal/jobs"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// LedgerOpener resolves the ledger owned by creds.
type LedgerOpener interface {
	Open(ctx context.Context, creds auth.Credentials) (sheets.Ledger, error)
}

// Ingester runs a batch through a ledger.
type Ingester interface {
	Ingest(ctx context.Context, ledger ingest.Ledger, b ingest.Batch) (ingest.Result, error)
}

var errNoCredentials = errors.New("request carries no credentials")

// statusFor maps a core error to an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	var qerr *sheets.QueryError
	switch {
	case errors.Is(err, auth.ErrReauthenticate), errors.Is(err, errNoCredentials):
		return http.StatusUnauthorized, middleware.ReauthenticateMessage
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, sheets.ErrUnknownField),
		errors.Is(err, sheets.ErrInvalidClause),
		errors.Is(err, sheets.ErrEmptyBatch):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &qerr):
		return http.StatusBadGateway, "ledger rejected the query: " + qerr.Message
	case errors.Is(err, sheets.ErrMalformedResponse),
		errors.Is(err, sheets.ErrTransport),
		errors.Is(err, sheets.ErrDecode):
		return http.StatusBadGateway, "ledger unavailable"
	case errors.Is(err, jobs.ErrQueueClosed):
		return http.StatusServiceUnavailable, "server is shutting down"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// writeFailure logs err and writes the mapped error response.
func writeFailure(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error, msg string) {
	status, body := statusFor(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Int("status", status).
		Msg(msg)
	middleware.WriteError(w, status, body)
}

func credentials(r *http.Request) (auth.Credentials, error) {
	creds, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Credentials{}, errNoCredentials
	}
	return creds, nil
}

// decodeJSON reads a size-limited JSON body, keeping numbers as json.Number.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
