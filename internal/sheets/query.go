package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/logger"
)

// maxQueryResponse caps how much of a query response is read.
const maxQueryResponse = 32 << 20

// Row maps column labels to cell values. Missing and falsy cells are nil.
// Numbers are json.Number.
type Row map[string]any

// QueryOptions selects ledger rows for GetTransactions.
type QueryOptions struct {
	Sheet  domain.Sheet // defaults to the expense sheet
	Filter Filter
	Limit  int // <= 0 means no limit
}

// buildSelectQuery renders opts as a query returning whole rows, newest first.
func buildSelectQuery(opts QueryOptions) (string, error) {
	sheet := opts.Sheet
	date := mustColumn(sheet, FieldDate)

	preds, err := opts.Filter.predicates(sheet)
	if err != nil {
		return "", err
	}
	preds = append([]string{date + " IS NOT NULL"}, preds...)

	var b strings.Builder
	b.WriteString("select * WHERE ")
	b.WriteString(strings.Join(preds, " AND "))
	b.WriteString(" ORDER BY " + date + " desc")
	if opts.Limit > 0 {
		b.WriteString(" limit " + strconv.Itoa(opts.Limit))
	}
	return b.String(), nil
}

// buildSumQuery renders a SUM of the amount column, optionally grouped by
// category.
func buildSumQuery(sheet domain.Sheet, filter Filter, byCategory bool) (string, error) {
	amount := mustColumn(sheet, FieldAmount)
	category := mustColumn(sheet, FieldCategory)

	preds, err := filter.predicates(sheet)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("select ")
	if byCategory {
		b.WriteString(category + ", ")
	}
	b.WriteString("sum(" + amount + ")")
	if len(preds) > 0 {
		b.WriteString(" where " + strings.Join(preds, " and "))
	}
	if byCategory {
		b.WriteString(" group by " + category)
	}
	return b.String(), nil
}

// Query runs a raw query against sheet and returns one Row per result row.
// An empty sheet name queries the first sheet of the spreadsheet.
func (c *Client) Query(ctx context.Context, query string, sheet domain.Sheet) ([]Row, error) {
	log := logger.FromContext(ctx)

	params := url.Values{"tq": {query}}
	if sheet != "" {
		params.Set("sheet", string(sheet))
	}
	endpoint := fmt.Sprintf("%s/d/%s/gviz/tq?%s", c.queryBaseURL, url.PathEscape(c.spreadsheetID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("Query: building request: %w", err)
	}

	log.Debug().Str("sheet", string(sheet)).Str("query", query).Msg("Running ledger query")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Query: %w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("Query: %w: status %d", auth.ErrReauthenticate, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Query: %w: status %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxQueryResponse))
	if err != nil {
		return nil, fmt.Errorf("Query: %w: reading body: %w", ErrTransport, err)
	}

	rows, err := parseQueryResponse(body)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}

	log.Debug().Str("sheet", string(sheet)).Int("rows", len(rows)).Msg("Ledger query completed")
	return rows, nil
}

var responseWrapper = regexp.MustCompile(`(?s)google\.visualization\.Query\.setResponse\((.*)\);`)

type queryResponse struct {
	Status string `json:"status"`
	Errors []struct {
		Reason          string `json:"reason"`
		Message         string `json:"message"`
		DetailedMessage string `json:"detailed_message"`
	} `json:"errors"`
	Table *struct {
		Cols []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
			Type  string `json:"type"`
		} `json:"cols"`
		Rows []struct {
			C []*struct {
				V any `json:"v"`
			} `json:"c"`
		} `json:"rows"`
	} `json:"table"`
}

// parseQueryResponse extracts the JSON embedded in the response wrapper and
// pivots its table into rows keyed by column label.
func parseQueryResponse(body []byte) ([]Row, error) {
	m := responseWrapper.FindSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("%w: response wrapper not found", ErrMalformedResponse)
	}

	dec := json.NewDecoder(bytes.NewReader(m[1]))
	dec.UseNumber()
	var resp queryResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if resp.Status == "error" {
		qerr := &QueryError{}
		if len(resp.Errors) > 0 {
			qerr.Reason = resp.Errors[0].Reason
			qerr.Message = resp.Errors[0].Message
			qerr.Detail = resp.Errors[0].DetailedMessage
		}
		return nil, qerr
	}
	if resp.Table == nil {
		return nil, fmt.Errorf("%w: no table in %q response", ErrMalformedResponse, resp.Status)
	}

	labels := make([]string, len(resp.Table.Cols))
	blank := true
	for i, col := range resp.Table.Cols {
		labels[i] = col.Label
		if col.Label != "" {
			blank = false
		}
	}
	// Only a header row and no data: the labels come back empty.
	if blank {
		return []Row{}, nil
	}

	rows := make([]Row, 0, len(resp.Table.Rows))
	for _, r := range resp.Table.Rows {
		row := make(Row, len(labels))
		for i, label := range labels {
			var v any
			if i < len(r.C) && r.C[i] != nil {
				v = coalesce(r.C[i].V)
			}
			row[label] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// coalesce maps falsy cell values to nil.
func coalesce(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		if !val {
			return nil
		}
	case string:
		if val == "" {
			return nil
		}
	case json.Number:
		if f, err := val.Float64(); err == nil && f == 0 {
			return nil
		}
	}
	return v
}
