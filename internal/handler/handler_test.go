package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oudhouse/pricing-engine/internal/currency"
	"github.com/oudhouse/pricing-engine/internal/domain/pricing"
	"github.com/oudhouse/pricing-engine/internal/domain/promotion"
	"github.com/oudhouse/pricing-engine/internal/domain/tax"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fakeRepo struct {
	rules map[uuid.UUID]*promotion.Rule
}

func newFakeRepo(rules ...*promotion.Rule) *fakeRepo {
	f := &fakeRepo{rules: make(map[uuid.UUID]*promotion.Rule)}
	for _, r := range rules {
		f.rules[r.ID] = r
	}
	return f
}

func (f *fakeRepo) Active(_ context.Context, storeID string) ([]promotion.Rule, error) {
	var out []promotion.Rule
	for _, r := range f.rules {
		if r.StoreID == "" || r.StoreID == storeID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]promotion.Rule, error) {
	var out []promotion.Rule
	for _, id := range ids {
		if r, ok := f.rules[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) ConsumeUse(_ context.Context, id uuid.UUID) error {
	r, ok := f.rules[id]
	if !ok {
		return promotion.ErrNotFound
	}
	if r.UsageLimit > 0 && r.UsageCount >= r.UsageLimit {
		return promotion.ErrExhausted
	}
	r.UsageCount++
	return nil
}

func newTestServer(t *testing.T, rules ...*promotion.Rule) *httptest.Server {
	t.Helper()
	lg := zap.NewNop()
	engine := promotion.NewEngine(newFakeRepo(rules...), lg)
	rates := currency.NewService(currency.DefaultConfig(), nil, nil, lg)
	svc := pricing.NewService(engine, tax.NewResolver(tax.DefaultResolverConfig()), rates, lg)

	mux := http.NewServeMux()
	NewHandler(svc, engine, rates, lg).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestQuoteEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/quote", `{
		"currency": "AED",
		"country": "AE",
		"items": [
			{"product_id": "oud-royal-12ml", "category": "fragrance", "quantity": 2, "unit_price": 1000}
		]
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AED", body["currency"])
	assert.Equal(t, float64(2000), body["subtotal"])
	assert.Equal(t, float64(100), body["total_vat"])
	assert.Equal(t, float64(2100), body["grand_total"])
	assert.Equal(t, "standard", body["treatment"])

	breakdown, ok := body["vat_breakdown"].([]any)
	require.True(t, ok)
	require.Len(t, breakdown, 1)
}

func TestQuoteEndpointWithPromotion(t *testing.T) {
	rule := &promotion.Rule{
		ID:         uuid.New(),
		Name:       "ten off",
		Kind:       promotion.KindPercentage,
		Percentage: &promotion.PercentagePayload{Percent: d("10")},
	}
	srv := newTestServer(t, rule)

	resp, body := postJSON(t, srv.URL+"/api/quote", `{
		"currency": "AED",
		"country": "AE",
		"promotion_ids": ["`+rule.ID.String()+`"],
		"items": [
			{"product_id": "oud-royal-12ml", "category": "fragrance", "quantity": 2, "unit_price": 1000}
		]
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(200), body["total_discount"])
	assert.Equal(t, float64(1890), body["grand_total"])
}

func TestQuoteEndpointErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"empty cart", `{"currency": "AED", "country": "AE", "items": []}`, http.StatusBadRequest},
		{"unknown currency", `{"currency": "???", "country": "AE",
			"items": [{"product_id": "p", "quantity": 1, "unit_price": 1}]}`, http.StatusBadRequest},
		{"bad promotion id", `{"currency": "AED", "country": "AE", "promotion_ids": ["nope"],
			"items": [{"product_id": "p", "quantity": 1, "unit_price": 1}]}`, http.StatusBadRequest},
		{"missing promotion", `{"currency": "AED", "country": "AE",
			"promotion_ids": ["` + uuid.NewString() + `"],
			"items": [{"product_id": "p", "quantity": 1, "unit_price": 1}]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, srv.URL+"/api/quote", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestApplicablePromotionsEndpoint(t *testing.T) {
	rule := &promotion.Rule{
		ID:         uuid.New(),
		Name:       "season opener",
		Kind:       promotion.KindPercentage,
		Priority:   5,
		Percentage: &promotion.PercentagePayload{Percent: d("15")},
	}
	srv := newTestServer(t, rule)

	resp, body := postJSON(t, srv.URL+"/api/promotions/applicable", `{
		"currency": "AED",
		"items": [{"product_id": "p", "quantity": 1, "unit_price": 200}]
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	promos, ok := body["promotions"].([]any)
	require.True(t, ok)
	require.Len(t, promos, 1)
	first := promos[0].(map[string]any)
	assert.Equal(t, "season opener", first["name"])
	assert.Equal(t, float64(30), first["estimated_discount"])
}

func TestRateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	// No store and no providers wired: the static table answers, degraded.
	resp, err := http.Get(srv.URL + "/api/rates?base=AED&target=USD")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0.2723, body["rate"])
	assert.Equal(t, true, body["degraded"])

	resp, err = http.Get(srv.URL + "/api/rates?base=AED")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/rates?base=AED&target=XXX")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConvertEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/convert", `{"amount": 100, "from": "AED", "to": "USD"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 27.23, body["converted"])

	// Wholesale multiplier applies before conversion, then cash rounding.
	resp, body = postJSON(t, srv.URL+"/api/convert", `{
		"amount": 500, "from": "AED", "to": "USD", "customer_type": "wholesale"
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 115.73, body["converted"])

	resp, body = postJSON(t, srv.URL+"/api/convert", `{"amount": -1, "from": "AED", "to": "USD"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["message"])
}

func TestVATReturnEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/vat/return", `{
		"from": "2026-07-01T00:00:00Z",
		"to": "2026-10-01T00:00:00Z",
		"transactions": [
			{"id": "inv-1", "issued_at": "2026-08-10T12:00:00Z", "treatment": "standard",
				"breakdown": [{"rate": 5, "taxable": 2000, "vat": 100}]},
			{"id": "inv-2", "issued_at": "2026-08-11T12:00:00Z", "treatment": "zero_rated",
				"breakdown": [{"rate": 0, "taxable": 500, "vat": 0}]},
			{"id": "inv-3", "issued_at": "2025-01-01T12:00:00Z", "treatment": "standard",
				"breakdown": [{"rate": 5, "taxable": 999, "vat": 49.95}]}
		]
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2000), body["standard_sales"])
	assert.Equal(t, float64(500), body["zero_rated_sales"])
	assert.Equal(t, float64(100), body["total_output_vat"])
	assert.Equal(t, float64(2), body["transactions"], "out-of-period transaction must be skipped")

	resp, _ = postJSON(t, srv.URL+"/api/vat/return", `{
		"from": "2026-10-01T00:00:00Z", "to": "2026-07-01T00:00:00Z", "transactions": []
	}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateTRNEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/trn/validate", `{"country": "AE", "trn": "100123456789012"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	resp, body = postJSON(t, srv.URL+"/api/trn/validate", `{"country": "AE", "trn": "123"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["reason"])

	resp, _ = postJSON(t, srv.URL+"/api/trn/validate", `{"country": "ZZ", "trn": "123"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
