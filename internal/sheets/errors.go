package sheets

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/sheets-ledger/internal/auth"
	"google.golang.org/api/googleapi"
)

var (
	// ErrTransport is a non-success response from the spreadsheet service.
	ErrTransport = errors.New("sheets: transport failure")

	// ErrMalformedResponse means a query response did not have the wrapped JSON
	// shape. It points at a format change rather than a transient failure.
	ErrMalformedResponse = errors.New("sheets: malformed query response")

	// ErrQueryRejected is returned when the service accepted the request but
	// reported an error status for the query itself. See QueryError.
	ErrQueryRejected = errors.New("sheets: query rejected")

	// ErrEmptyBatch is returned by CompareTransactions for an empty batch.
	ErrEmptyBatch = errors.New("sheets: empty candidate batch")

	// ErrUnknownField is returned when a filter names a field the sheet has no
	// column for.
	ErrUnknownField = errors.New("sheets: unknown field")

	// ErrInvalidClause is returned for an unsupported operator or literal.
	ErrInvalidClause = errors.New("sheets: invalid clause")

	// ErrDecode is returned when a stored cell cannot be decoded into its field.
	ErrDecode = errors.New("sheets: cannot decode cell")
)

// QueryError carries the error details embedded in a query response.
type QueryError struct {
	Reason  string
	Message string
	Detail  string
}

func (e *QueryError) Error() string {
	parts := []string{"query rejected"}
	for _, s := range []string{e.Reason, e.Message, e.Detail} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ": ")
}

// Is makes errors.Is(err, ErrQueryRejected) match any *QueryError.
func (e *QueryError) Is(target error) bool {
	return target == ErrQueryRejected
}

// apiError classifies an error returned by the Sheets REST client. A 401 means
// the bearer token is no longer valid.
func apiError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %v", op, auth.ErrReauthenticate, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// isRangeNotFound reports whether err is the 400 the service returns for a
// range whose sheet does not exist.
func isRangeNotFound(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusBadRequest {
		return false
	}
	return strings.Contains(gerr.Message, "Unable to parse range")
}
