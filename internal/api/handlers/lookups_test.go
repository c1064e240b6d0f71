package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCategories(t *testing.T) {
	ledger := &MockLedger{GetCategoriesFunc: func(ctx context.Context, sheet domain.Sheet) (map[string][]string, error) {
		if sheet == domain.SheetIncome {
			return map[string][]string{"Work": {"Salary"}}, nil
		}
		return map[string][]string{"Food": {"Groceries", "Dining"}}, nil
	}}
	h := NewLookupsHandler(&MockOpener{Ledger: ledger}, logger.NewWithWriter(discard{}))

	rec := httptest.NewRecorder()
	h.ListCategories(rec, authedRequest(http.MethodGet, "/api/categories", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"expense":{"Food":["Groceries","Dining"]},"income":{"Work":["Salary"]}}`, rec.Body.String())
}

func TestListCategories_LookupFails(t *testing.T) {
	ledger := &MockLedger{GetCategoriesFunc: func(ctx context.Context, sheet domain.Sheet) (map[string][]string, error) {
		return nil, fmt.Errorf("lookup: %w", sheets.ErrTransport)
	}}
	h := NewLookupsHandler(&MockOpener{Ledger: ledger}, logger.NewWithWriter(discard{}))

	rec := httptest.NewRecorder()
	h.ListCategories(rec, authedRequest(http.MethodGet, "/api/categories", ""))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListPaymentMethods(t *testing.T) {
	ledger := &MockLedger{GetPaymentMethodsFunc: func(ctx context.Context) (map[string][]string, error) {
		return map[string][]string{"Card": {"Visa"}}, nil
	}}
	h := NewLookupsHandler(&MockOpener{Ledger: ledger}, logger.NewWithWriter(discard{}))

	rec := httptest.NewRecorder()
	h.ListPaymentMethods(rec, authedRequest(http.MethodGet, "/api/payment-methods", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Card":["Visa"]}`, rec.Body.String())
}

func TestGetSpending(t *testing.T) {
	var filters []string
	ledger := &MockLedger{
		GetTotalSpendingFunc: func(ctx context.Context, filter sheets.Filter) (decimal.Decimal, error) {
			filters = append(filters, filter.String())
			return decimal.RequireFromString("-120.50"), nil
		},
		GetCategorySpendingFunc: func(ctx context.Context, filter sheets.Filter) (map[string]decimal.Decimal, error) {
			filters = append(filters, filter.String())
			return map[string]decimal.Decimal{"Food": decimal.RequireFromString("-120.50")}, nil
		},
	}
	h := NewLookupsHandler(&MockOpener{Ledger: ledger}, logger.NewWithWriter(discard{}))

	rec := httptest.NewRecorder()
	h.GetSpending(rec, authedRequest(http.MethodGet, "/api/spending?start_date=2024-01-01", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":"-120.5","by_category":{"Food":"-120.5"}}`, rec.Body.String())
	assert.Equal(t, []string{"since 2024-01-01", "since 2024-01-01"}, filters)
}

func TestGetSpending_BadDate(t *testing.T) {
	opener := &MockOpener{Ledger: &MockLedger{}}
	h := NewLookupsHandler(opener, logger.NewWithWriter(discard{}))

	rec := httptest.NewRecorder()
	h.GetSpending(rec, authedRequest(http.MethodGet, "/api/spending?end_date=soon", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, opener.openFor)
}
