// Package sheets reads and writes a spreadsheet-backed transaction ledger.
//
// Reads go through the visualization query endpoint, which accepts a SQL-like
// query and answers with a wrapped JSON table. Writes and lookup ranges go
// through the Sheets v4 REST API. A Client is bound to one user's credentials
// and one spreadsheet and is meant to live for a single request.
package sheets

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// DefaultQueryBaseURL is the root of the visualization query endpoint.
const DefaultQueryBaseURL = "https://docs.google.com/spreadsheets"

// Ledger is the set of ledger operations exposed to callers.
type Ledger interface {
	GetTransactions(ctx context.Context, opts QueryOptions) ([]domain.Transaction, error)
	GetCategories(ctx context.Context, sheet domain.Sheet) (map[string][]string, error)
	GetPaymentMethods(ctx context.Context) (map[string][]string, error)
	GetTotalSpending(ctx context.Context, filter Filter) (decimal.Decimal, error)
	GetCategorySpending(ctx context.Context, filter Filter) (map[string]decimal.Decimal, error)
	CompareTransactions(ctx context.Context, sheet domain.Sheet, candidates []domain.Transaction) ([]domain.Transaction, error)
	AppendTransactions(ctx context.Context, sheet domain.Sheet, txs []domain.Transaction) error
	SortSheet(ctx context.Context, sheet domain.Sheet) error
}

// Client is the Ledger implementation backed by a Google spreadsheet.
type Client struct {
	svc           *sheetsapi.Service
	httpClient    *http.Client
	spreadsheetID string
	queryBaseURL  string
	policy        domain.MatchPolicy
}

type clientConfig struct {
	httpClient   *http.Client
	endpoint     string
	queryBaseURL string
	policy       domain.MatchPolicy
}

// Option configures a Client.
type Option func(*clientConfig)

// WithHTTPClient replaces the credential-bearing HTTP client. The caller is
// then responsible for authorizing requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) { cfg.httpClient = c }
}

// WithSheetsEndpoint overrides the Sheets REST endpoint.
func WithSheetsEndpoint(url string) Option {
	return func(cfg *clientConfig) { cfg.endpoint = url }
}

// WithQueryBaseURL overrides DefaultQueryBaseURL.
func WithQueryBaseURL(url string) Option {
	return func(cfg *clientConfig) { cfg.queryBaseURL = strings.TrimRight(url, "/") }
}

// WithMatchPolicy selects how candidates are matched against stored rows.
func WithMatchPolicy(p domain.MatchPolicy) Option {
	return func(cfg *clientConfig) { cfg.policy = p }
}

// NewClient creates a client for spreadsheetID acting as creds.
func NewClient(ctx context.Context, creds auth.Credentials, spreadsheetID string, opts ...Option) (*Client, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("NewClient: spreadsheet id is required")
	}

	cfg := clientConfig{
		queryBaseURL: DefaultQueryBaseURL,
		policy:       domain.MatchDateAmount,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.policy.Valid() {
		return nil, fmt.Errorf("NewClient: unknown match policy %q", cfg.policy)
	}
	if cfg.httpClient == nil {
		if creds.BearerToken == "" {
			return nil, fmt.Errorf("NewClient: %w: no bearer token", auth.ErrReauthenticate)
		}
		cfg.httpClient = creds.HTTPClient(ctx)
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(cfg.httpClient)}
	if cfg.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(cfg.endpoint))
	}
	svc, err := sheetsapi.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		httpClient:    cfg.httpClient,
		spreadsheetID: spreadsheetID,
		queryBaseURL:  cfg.queryBaseURL,
		policy:        cfg.policy,
	}, nil
}

// SpreadsheetID returns the spreadsheet the client is bound to.
func (c *Client) SpreadsheetID() string {
	return c.spreadsheetID
}

var _ Ledger = (*Client)(nil)
