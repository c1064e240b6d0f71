package handlers

import (
	"net/http"

	"github.com/dvloznov/sheets-ledger/internal/api/middleware"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/rs/zerolog"
)

// LookupsHandler serves the category, payment method and spending summaries.
type LookupsHandler struct {
	opener LedgerOpener
	log    zerolog.Logger
}

// NewLookupsHandler creates a new lookups handler.
func NewLookupsHandler(opener LedgerOpener, log zerolog.Logger) *LookupsHandler {
	return &LookupsHandler{
		opener: opener,
		log:    log,
	}
}

// ListCategories handles GET /api/categories
func (h *LookupsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := credentials(r)
	if err != nil {
		writeFailure(w, r, h.log, err, "Missing credentials")
		return
	}
	ledger, err := h.opener.Open(ctx, creds)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to open ledger")
		return
	}

	expense, err := ledger.GetCategories(ctx, domain.SheetExpenses)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to list expense categories")
		return
	}
	income, err := ledger.GetCategories(ctx, domain.SheetIncome)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to list income categories")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expense": expense,
		"income":  income,
	})
}

// ListPaymentMethods handles GET /api/payment-methods
func (h *LookupsHandler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := credentials(r)
	if err != nil {
		writeFailure(w, r, h.log, err, "Missing credentials")
		return
	}
	ledger, err := h.opener.Open(ctx, creds)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to open ledger")
		return
	}

	methods, err := ledger.GetPaymentMethods(ctx)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to list payment methods")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, methods)
}

// GetSpending handles GET /api/spending
func (h *LookupsHandler) GetSpending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	creds, err := credentials(r)
	if err != nil {
		writeFailure(w, r, h.log, err, "Missing credentials")
		return
	}

	filter, err := dateRange(query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ledger, err := h.opener.Open(ctx, creds)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to open ledger")
		return
	}

	total, err := ledger.GetTotalSpending(ctx, filter)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to sum spending")
		return
	}
	byCategory, err := ledger.GetCategorySpending(ctx, filter)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to sum spending by category")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":       total,
		"by_category": byCategory,
	})
}
