// Package locator finds the user's ledger spreadsheet, creating it with the
// default layout when it does not exist yet.
package locator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// Locator resolves the spreadsheet id for a user.
type Locator struct {
	title      string
	driveOpts  []option.ClientOption
	sheetsOpts []option.ClientOption
	ledgerOpts []sheets.Option
}

// Option configures a Locator.
type Option func(*Locator)

// WithDriveOptions appends client options for the Drive service.
func WithDriveOptions(opts ...option.ClientOption) Option {
	return func(l *Locator) { l.driveOpts = append(l.driveOpts, opts...) }
}

// WithSheetsOptions appends client options for the Sheets service used to
// create spreadsheets.
func WithSheetsOptions(opts ...option.ClientOption) Option {
	return func(l *Locator) { l.sheetsOpts = append(l.sheetsOpts, opts...) }
}

// WithLedgerOptions sets the options Open passes to sheets.NewClient.
func WithLedgerOptions(opts ...sheets.Option) Option {
	return func(l *Locator) { l.ledgerOpts = append(l.ledgerOpts, opts...) }
}

// New creates a Locator for spreadsheets named title.
func New(title string, opts ...Option) *Locator {
	l := &Locator{title: title}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open locates the user's spreadsheet and returns a ledger client bound to it.
func (l *Locator) Open(ctx context.Context, creds auth.Credentials) (sheets.Ledger, error) {
	id, err := l.FindOrCreate(ctx, creds)
	if err != nil {
		return nil, err
	}
	client, err := sheets.NewClient(ctx, creds, id, l.ledgerOpts...)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	return client, nil
}

// FindOrCreate returns the id of the user's spreadsheet, creating it if needed.
func (l *Locator) FindOrCreate(ctx context.Context, creds auth.Credentials) (string, error) {
	id, found, err := l.Find(ctx, creds)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}
	return l.Create(ctx, creds)
}

// Find looks for a non-trashed spreadsheet with the configured title. The most
// recently modified one wins when there are several.
func (l *Locator) Find(ctx context.Context, creds auth.Credentials) (string, bool, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(creds.HTTPClient(ctx))}, l.driveOpts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return "", false, fmt.Errorf("Find: creating drive service: %w", err)
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(l.title), spreadsheetMimeType)
	list, err := svc.Files.List().
		Q(q).
		Spaces("drive").
		OrderBy("modifiedTime desc").
		PageSize(10).
		Fields("files(id, name, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		return "", false, classify("Find", err)
	}

	for _, f := range list.Files {
		if f.MimeType == spreadsheetMimeType && f.Id != "" {
			return f.Id, true, nil
		}
	}
	return "", false, nil
}

// Create makes a new spreadsheet with the ledger sheets and lookup ranges.
func (l *Locator) Create(ctx context.Context, creds auth.Credentials) (string, error) {
	log := logger.FromContext(ctx)

	opts := append([]option.ClientOption{option.WithHTTPClient(creds.HTTPClient(ctx))}, l.sheetsOpts...)
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("Create: creating sheets service: %w", err)
	}

	ss, err := svc.Spreadsheets.Create(l.template()).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return "", classify("Create", err)
	}

	log.Info().
		Str("user", creds.UserIdentity).
		Str("spreadsheet_id", ss.SpreadsheetId).
		Msg("Created ledger spreadsheet")
	return ss.SpreadsheetId, nil
}

func (l *Locator) template() *sheetsapi.Spreadsheet {
	return &sheetsapi.Spreadsheet{
		Properties: &sheetsapi.SpreadsheetProperties{Title: l.title},
		Sheets: []*sheetsapi.Sheet{
			ledgerSheet(domain.SheetExpenses),
			ledgerSheet(domain.SheetIncome),
			lookupSheet(sheets.RangeExpenseCategories, defaultExpenseCategories),
			lookupSheet(sheets.RangeIncomeCategories, defaultIncomeCategories),
			lookupSheet(sheets.RangePaymentMethods, defaultPaymentMethods),
		},
	}
}

func ledgerSheet(sheet domain.Sheet) *sheetsapi.Sheet {
	return &sheetsapi.Sheet{
		Properties: &sheetsapi.SheetProperties{
			Title:          string(sheet),
			GridProperties: &sheetsapi.GridProperties{FrozenRowCount: 1},
		},
		Data: []*sheetsapi.GridData{{RowData: []*sheetsapi.RowData{textRow(sheets.HeaderRow(sheet))}}},
	}
}

// lookupSheet lays groups out column by column: the group name in the header
// row and its members below.
func lookupSheet(title string, groups []group) *sheetsapi.Sheet {
	depth := 0
	for _, g := range groups {
		depth = max(depth, len(g.members))
	}

	rows := make([][]string, depth+1)
	for i := range rows {
		rows[i] = make([]string, len(groups))
	}
	for col, g := range groups {
		rows[0][col] = g.name
		for i, m := range g.members {
			rows[i+1][col] = m
		}
	}

	data := make([]*sheetsapi.RowData, len(rows))
	for i, r := range rows {
		data[i] = textRow(r)
	}
	return &sheetsapi.Sheet{
		Properties: &sheetsapi.SheetProperties{
			Title:          title,
			GridProperties: &sheetsapi.GridProperties{FrozenRowCount: 1},
		},
		Data: []*sheetsapi.GridData{{RowData: data}},
	}
}

func textRow(values []string) *sheetsapi.RowData {
	cells := make([]*sheetsapi.CellData, len(values))
	for i, v := range values {
		cells[i] = &sheetsapi.CellData{}
		if v != "" {
			s := v
			cells[i].UserEnteredValue = &sheetsapi.ExtendedValue{StringValue: &s}
		}
	}
	return &sheetsapi.RowData{Values: cells}
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %v", op, auth.ErrReauthenticate, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
