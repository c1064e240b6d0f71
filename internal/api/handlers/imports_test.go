package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/jobs"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateImport(t *testing.T) {
	pub := &MockPublisher{}
	h := NewImportsHandler(pub, nil, "ledger-imports", logger.NewWithWriter(discard{}))

	rec := httptest.NewRecorder()
	h.CreateImport(rec, authedRequest(http.MethodPost, "/api/imports", `{"source_uri":"gs://ledger-imports/imports/jan.csv","sheet":"income"}`))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"job_id":"job-1","source_uri":"gs://ledger-imports/imports/jan.csv","status":"pending"}`, rec.Body.String())

	require.Len(t, pub.published, 1)
	job := pub.published[0]
	assert.Equal(t, "someone@example.com", job.User)
	assert.Equal(t, domain.SheetIncome, job.Sheet)
	assert.Equal(t, testCreds, job.Credentials)
}

func TestCreateImport_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"local path", `{"source_uri":"/etc/passwd"}`},
		{"bucket only", `{"source_uri":"gs://ledger-imports"}`},
		{"bad sheet", `{"source_uri":"gs://ledger-imports/imports/o.csv","sheet":"transfers"}`},
		{"bad json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &MockPublisher{}
			h := NewImportsHandler(pub, nil, "ledger-imports", logger.NewWithWriter(discard{}))

			rec := httptest.NewRecorder()
			h.CreateImport(rec, authedRequest(http.MethodPost, "/api/imports", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, pub.published)
		})
	}
}

func TestCreateImport_OnlyFromUploadArea(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"foreign bucket", "gs://service-private/imports/jan.csv"},
		{"outside prefix", "gs://ledger-imports/exports/jan.csv"},
		{"prefix as bucket", "gs://imports/ledger-imports/jan.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &MockPublisher{}
			h := NewImportsHandler(pub, nil, "ledger-imports", logger.NewWithWriter(discard{}))

			rec := httptest.NewRecorder()
			h.CreateImport(rec, authedRequest(http.MethodPost, "/api/imports", `{"source_uri":"`+tt.uri+`"}`))
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Empty(t, pub.published)
		})
	}
}

func TestCreateImport_NotConfigured(t *testing.T) {
	pub := &MockPublisher{}
	h := NewImportsHandler(pub, nil, "", logger.NewWithWriter(discard{}))

	rec := httptest.NewRecorder()
	h.CreateImport(rec, authedRequest(http.MethodPost, "/api/imports", `{"source_uri":"gs://b/imports/o.csv"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, pub.published)
}

func TestCreateImport_QueueClosed(t *testing.T) {
	h := NewImportsHandler(&MockPublisher{Err: jobs.ErrQueueClosed}, nil, "b", logger.NewWithWriter(discard{}))

	rec := httptest.NewRecorder()
	h.CreateImport(rec, authedRequest(http.MethodPost, "/api/imports", `{"source_uri":"gs://b/imports/o.csv"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUploadImport(t *testing.T) {
	pub := &MockPublisher{}
	up := &MockUploader{}
	h := NewImportsHandler(pub, up, "ledger-uploads", logger.NewWithWriter(discard{}))
	h.now = func() time.Time { return time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC) }

	csv := "date,merchant,amount,category\n2024-03-01,Shell,-62,Fuel\n"
	rec := httptest.NewRecorder()
	h.UploadImport(rec, authedRequest(http.MethodPost, "/api/imports/upload?sheet=expenses&filename=../../march.csv", csv))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "ledger-uploads", up.bucket)
	assert.True(t, strings.HasPrefix(up.object, "imports/2024/03/09/"), up.object)
	assert.True(t, strings.HasSuffix(up.object, "-march.csv"), up.object)
	assert.Equal(t, csv, up.body)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "gs://ledger-uploads/"+up.object, pub.published[0].SourceURI)
	assert.Equal(t, domain.SheetExpenses, pub.published[0].Sheet)
}

func TestUploadImport_NotConfigured(t *testing.T) {
	h := NewImportsHandler(&MockPublisher{}, nil, "", logger.NewWithWriter(discard{}))

	rec := httptest.NewRecorder()
	h.UploadImport(rec, authedRequest(http.MethodPost, "/api/imports/upload", "x"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
