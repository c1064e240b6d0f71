package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/sheets-ledger/internal/api/middleware"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/importer"
	"github.com/dvloznov/sheets-ledger/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxUploadBytes caps CSV uploads.
const maxUploadBytes = 10 << 20

// importPrefix is where uploads are written and the only place imports are
// read from. Jobs read objects with the server's storage credentials.
const importPrefix = "imports/"

// Uploader stores an uploaded import file and returns its URI.
type Uploader interface {
	Upload(ctx context.Context, bucket, objectName string, r io.Reader, contentType string) (string, error)
}

// ImportsHandler queues CSV imports.
type ImportsHandler struct {
	publisher jobs.Publisher
	uploader  Uploader
	bucket    string
	log       zerolog.Logger
	now       func() time.Time
}

// NewImportsHandler creates a new imports handler. uploader may be nil when
// no bucket is configured; uploads are then refused.
func NewImportsHandler(publisher jobs.Publisher, uploader Uploader, bucket string, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{
		publisher: publisher,
		uploader:  uploader,
		bucket:    bucket,
		log:       log,
		now:       time.Now,
	}
}

// CreateImport handles POST /api/imports
func (h *ImportsHandler) CreateImport(w http.ResponseWriter, r *http.Request) {
	creds, err := credentials(r)
	if err != nil {
		writeFailure(w, r, h.log, err, "Missing credentials")
		return
	}

	var req struct {
		SourceURI   string `json:"source_uri"`
		Sheet       string `json:"sheet"`
		SkipCompare bool   `json:"skip_compare"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Imports are not configured")
		return
	}

	// Only objects in Cloud Storage can be imported over HTTP.
	bucket, object, err := importer.ParseGCSURI(req.SourceURI)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "source_uri must be a gs://bucket/object URI")
		return
	}
	if bucket != h.bucket || !strings.HasPrefix(object, importPrefix) {
		h.log.Warn().
			Str("user", creds.UserIdentity).
			Str("source_uri", req.SourceURI).
			Msg("Rejected import outside the upload area")
		middleware.WriteError(w, http.StatusForbidden, fmt.Sprintf("source_uri must be under gs://%s/%s", h.bucket, importPrefix))
		return
	}
	sheet, err := domain.ParseSheet(req.Sheet)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid sheet")
		return
	}

	h.enqueue(w, r, &jobs.ImportJob{
		User:        creds.UserIdentity,
		Sheet:       sheet,
		SourceURI:   req.SourceURI,
		SkipCompare: req.SkipCompare,
		Credentials: creds,
	})
}

// UploadImport handles POST /api/imports/upload?sheet=&filename=&skip_compare=
// The request body is the raw CSV file.
func (h *ImportsHandler) UploadImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := credentials(r)
	if err != nil {
		writeFailure(w, r, h.log, err, "Missing credentials")
		return
	}
	if h.uploader == nil || h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Uploads are not configured")
		return
	}

	query := r.URL.Query()
	sheet, err := domain.ParseSheet(query.Get("sheet"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid sheet")
		return
	}

	filename := path.Base(strings.TrimSpace(query.Get("filename")))
	if filename == "" || filename == "." || filename == "/" {
		filename = "import.csv"
	}
	objectName := fmt.Sprintf("%s%s/%s-%s", importPrefix, h.now().Format("2006/01/02"), uuid.New().String(), filename)

	uri, err := h.uploader.Upload(ctx, h.bucket, objectName, http.MaxBytesReader(w, r.Body, maxUploadBytes), "text/csv")
	if err != nil {
		h.log.Error().Err(err).Str("object", objectName).Msg("Failed to upload import file")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}

	h.log.Info().
		Str("user", creds.UserIdentity).
		Str("source_uri", uri).
		Msg("Import file uploaded")

	h.enqueue(w, r, &jobs.ImportJob{
		User:        creds.UserIdentity,
		Sheet:       sheet,
		SourceURI:   uri,
		SkipCompare: query.Get("skip_compare") == "true",
		Credentials: creds,
	})
}

func (h *ImportsHandler) enqueue(w http.ResponseWriter, r *http.Request, job *jobs.ImportJob) {
	if err := h.publisher.PublishImport(r.Context(), job); err != nil {
		writeFailure(w, r, h.log, err, "Failed to enqueue import job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("source_uri", job.SourceURI).Msg("Import job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"source_uri": job.SourceURI,
		"status":     string(job.Status),
	})
}
