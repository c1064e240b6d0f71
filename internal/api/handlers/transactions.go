package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/sheets-ledger/internal/api/middleware"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/ingest"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionsHandler handles ledger reads and writes.
type TransactionsHandler struct {
	opener   LedgerOpener
	ingester Ingester
	log      zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(opener LedgerOpener, ingester Ingester, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		opener:   opener,
		ingester: ingester,
		log:      log,
	}
}

// transactionResponse is the wire form of a ledger row.
type transactionResponse struct {
	Date              civil.Date       `json:"date"`
	Merchant          string           `json:"merchant"`
	Location          string           `json:"location,omitempty"`
	Amount            decimal.Decimal  `json:"amount"`
	Description       string           `json:"description,omitempty"`
	Category          string           `json:"category"`
	Subcategory       string           `json:"subcategory,omitempty"`
	PaymentAccount    string           `json:"payment_account,omitempty"`
	TransactionMethod string           `json:"transaction_method,omitempty"`
	ReimbursedAmount  *decimal.Decimal `json:"reimbursed_amount,omitempty"`
	UnitCount         *decimal.Decimal `json:"unit_count,omitempty"`
	UnitType          string           `json:"unit_type,omitempty"`
	UnitPrice         *decimal.Decimal `json:"unit_price,omitempty"`
	PayPeriodStart    *civil.Date      `json:"pay_period_start,omitempty"`
	PayPeriodEnd      *civil.Date      `json:"pay_period_end,omitempty"`
}

func newTransactionResponses(txs []domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp := transactionResponse{
			Date:              tx.Date,
			Merchant:          tx.Merchant,
			Location:          tx.Location,
			Amount:            tx.Amount,
			Description:       tx.Description,
			Category:          tx.Category,
			Subcategory:       tx.Subcategory,
			PaymentAccount:    tx.PaymentAccount,
			TransactionMethod: tx.TransactionMethod,
		}
		if e := tx.Expense; e != nil {
			if !e.ReimbursedAmount.IsZero() {
				reimbursed := e.ReimbursedAmount
				resp.ReimbursedAmount = &reimbursed
			}
			resp.UnitCount = e.UnitCount
			resp.UnitType = e.UnitType
			resp.UnitPrice = e.UnitPrice
		}
		if in := tx.Income; in != nil {
			resp.PayPeriodStart = in.PayPeriodStart
			resp.PayPeriodEnd = in.PayPeriodEnd
		}
		out[i] = resp
	}
	return out
}

// CreateTransactions handles POST /api/transactions
func (h *TransactionsHandler) CreateTransactions(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.SheetExpenses)
}

// CreateIncome handles POST /api/income
func (h *TransactionsHandler) CreateIncome(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.SheetIncome)
}

// submit validates a JSON array of transactions and ingests the new ones.
func (h *TransactionsHandler) submit(w http.ResponseWriter, r *http.Request, sheet domain.Sheet) {
	ctx := r.Context()

	creds, err := credentials(r)
	if err != nil {
		writeFailure(w, r, h.log, err, "Missing credentials")
		return
	}

	var inputs []domain.TransactionInput
	if err := decodeJSON(w, r, &inputs); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body: expected an array of transactions")
		return
	}

	candidates, err := domain.Transactions(sheet, inputs)
	if err != nil {
		writeFailure(w, r, h.log, err, "Invalid transactions")
		return
	}

	ledger, err := h.opener.Open(ctx, creds)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to open ledger")
		return
	}

	res, err := h.ingester.Ingest(ctx, ledger, ingest.Batch{
		User:        creds.UserIdentity,
		Sheet:       sheet,
		Candidates:  candidates,
		SkipCompare: r.URL.Query().Get("skip_compare") == "true",
	})
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to ingest transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	creds, err := credentials(r)
	if err != nil {
		writeFailure(w, r, h.log, err, "Missing credentials")
		return
	}

	sheet, err := domain.ParseSheet(query.Get("sheet"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid sheet")
		return
	}

	filter, err := dateRange(query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil || limit < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
	}

	ledger, err := h.opener.Open(ctx, creds)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to open ledger")
		return
	}

	txs, err := ledger.GetTransactions(ctx, sheets.QueryOptions{Sheet: sheet, Filter: filter, Limit: limit})
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to query transactions")
		return
	}

	// Return array directly for frontend compatibility
	middleware.WriteJSON(w, http.StatusOK, newTransactionResponses(txs))
}

// clauseRequest is one element of a where list.
type clauseRequest struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// QueryIncome handles POST /api/income/query
//
// The body is {"limit": n, "where": ...} where "where" is either an object of
// field/value equality pairs or a list of {"field", "op", "value"} clauses.
func (h *TransactionsHandler) QueryIncome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := credentials(r)
	if err != nil {
		writeFailure(w, r, h.log, err, "Missing credentials")
		return
	}

	var req struct {
		Limit int             `json:"limit"`
		Where json.RawMessage `json:"where"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Limit < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	clauses, err := parseWhere(req.Where)
	if err != nil {
		writeFailure(w, r, h.log, err, "Invalid where clause")
		return
	}

	ledger, err := h.opener.Open(ctx, creds)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to open ledger")
		return
	}

	txs, err := ledger.GetTransactions(ctx, sheets.QueryOptions{
		Sheet:  domain.SheetIncome,
		Filter: sheets.Matching(clauses...),
		Limit:  req.Limit,
	})
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to query income")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newTransactionResponses(txs))
}

func parseWhere(raw json.RawMessage) ([]sheets.Clause, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var reqs []clauseRequest
	if raw[0] == '{' {
		var eq map[string]any
		if err := unmarshalNumbers(raw, &eq); err != nil {
			return nil, fmt.Errorf("%w: where: %v", sheets.ErrInvalidClause, err)
		}
		for field, value := range eq {
			reqs = append(reqs, clauseRequest{Field: field, Op: string(sheets.OpEq), Value: value})
		}
		slices.SortFunc(reqs, func(a, b clauseRequest) int { return strings.Compare(a.Field, b.Field) })
	} else if err := unmarshalNumbers(raw, &reqs); err != nil {
		return nil, fmt.Errorf("%w: where: %v", sheets.ErrInvalidClause, err)
	}

	clauses := make([]sheets.Clause, 0, len(reqs))
	for _, req := range reqs {
		field, err := sheets.ParseField(req.Field)
		if err != nil {
			return nil, err
		}
		op := sheets.OpEq
		if req.Op != "" {
			if op, err = sheets.ParseOp(req.Op); err != nil {
				return nil, err
			}
		}
		clauses = append(clauses, sheets.Clause{Field: field, Op: op, Value: req.Value})
	}
	return clauses, nil
}

func unmarshalNumbers(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dst)
}

// dateRange parses optional YYYY-MM-DD bounds.
func dateRange(startStr, endStr string) (sheets.Filter, error) {
	var start, end *civil.Date
	if startStr != "" {
		d, err := civil.ParseDate(startStr)
		if err != nil {
			return sheets.Filter{}, errors.New("invalid start_date format")
		}
		start = &d
	}
	if endStr != "" {
		d, err := civil.ParseDate(endStr)
		if err != nil {
			return sheets.Filter{}, errors.New("invalid end_date format")
		}
		end = &d
	}
	return sheets.DateRange(start, end), nil
}
