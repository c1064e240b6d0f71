package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/stretchr/testify/require"
)

const testSpreadsheetID = "sheet-1"

// fakeStore serves the query endpoint and the subset of the Sheets REST API
// the client uses.
type fakeStore struct {
	mu sync.Mutex

	gvizStatus int
	gvizBody   string

	lookupStatus int
	lookupBody   string

	queries     []url.Values
	authHeaders []string
	appendPath  string
	appendQuery url.Values
	appended    [][]any
	batchBodies []map[string]any
	restCalls   int
}

func newFakeStore(t *testing.T) (*fakeStore, *httptest.Server) {
	t.Helper()
	f := &fakeStore{gvizStatus: http.StatusOK, lookupStatus: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeStore) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	path := r.URL.Path

	if strings.HasSuffix(path, "/gviz/tq") {
		f.queries = append(f.queries, r.URL.Query())
		w.WriteHeader(f.gvizStatus)
		_, _ = io.WriteString(w, f.gvizBody)
		return
	}

	f.restCalls++
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(path, ":append"):
		f.appendPath = path
		f.appendQuery = r.URL.Query()
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.appended = append(f.appended, body.Values...)
		_, _ = io.WriteString(w, `{"spreadsheetId":"`+testSpreadsheetID+`"}`)
	case strings.HasSuffix(path, ":batchUpdate"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.batchBodies = append(f.batchBodies, body)
		_, _ = io.WriteString(w, `{"spreadsheetId":"`+testSpreadsheetID+`"}`)
	case strings.Contains(path, "/values/"):
		w.WriteHeader(f.lookupStatus)
		_, _ = io.WriteString(w, f.lookupBody)
	default:
		_, _ = io.WriteString(w, `{"sheets":[
			{"properties":{"sheetId":0,"title":"Expenses"}},
			{"properties":{"sheetId":7,"title":"Income"}}]}`)
	}
}

func (f *fakeStore) lastQuery(t *testing.T) url.Values {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.queries, "no query was sent")
	return f.queries[len(f.queries)-1]
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithQueryBaseURL(srv.URL), WithSheetsEndpoint(srv.URL + "/")}, opts...)
	c, err := NewClient(context.Background(), auth.Credentials{BearerToken: "tok", UserIdentity: "someone@example.com"}, testSpreadsheetID, opts...)
	require.NoError(t, err)
	return c
}

// gvizResponse renders a query response the way the endpoint wraps it.
func gvizResponse(labels []string, rows ...[]any) string {
	cols := make([]map[string]string, len(labels))
	for i, l := range labels {
		cols[i] = map[string]string{"id": string(rune('A' + i)), "label": l, "type": "string"}
	}
	outRows := make([]map[string]any, len(rows))
	for i, r := range rows {
		cells := make([]any, len(r))
		for j, v := range r {
			if v != nil {
				cells[j] = map[string]any{"v": v}
			}
		}
		outRows[i] = map[string]any{"c": cells}
	}
	payload, _ := json.Marshal(map[string]any{
		"version": "0.6",
		"reqId":   "0",
		"status":  "ok",
		"table":   map[string]any{"cols": cols, "rows": outRows},
	})
	return "/*O_o*/\ngoogle.visualization.Query.setResponse(" + string(payload) + ");"
}

var ledgerLabels = []string{LabelMonth, LabelDate, LabelMerchant, LabelLocation, LabelAmount, LabelDescription, LabelCategory}

func storedRow(date string, amount float64, merchant string) []any {
	return []any{date, date, merchant, nil, amount, nil, "Food"}
}

func (f *fakeStore) setStored(rows ...[]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gvizBody = gvizResponse(ledgerLabels, rows...)
}
