// Package handler exposes the pricing engine over HTTP: quoting, promotion
// lookup, exchange rates, and TRN validation.
package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oudhouse/pricing-engine/internal/currency"
	"github.com/oudhouse/pricing-engine/internal/domain/pricing"
	"github.com/oudhouse/pricing-engine/internal/domain/promotion"
)

const timeFormat = time.RFC3339

// Handler delegates to the domain services and maps their results and errors
// onto HTTP.
type Handler struct {
	pricing *pricing.Service
	promos  *promotion.Engine
	rates   *currency.Service
	lg      *zap.Logger
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(pricingSvc *pricing.Service, promos *promotion.Engine, rates *currency.Service, lg *zap.Logger) *Handler {
	return &Handler{pricing: pricingSvc, promos: promos, rates: rates, lg: lg}
}

// Register mounts all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quote", h.Quote)
	mux.HandleFunc("POST /api/promotions/applicable", h.ApplicablePromotions)
	mux.HandleFunc("GET /api/rates", h.Rate)
	mux.HandleFunc("POST /api/convert", h.Convert)
	mux.HandleFunc("POST /api/trn/validate", h.ValidateTRN)
	mux.HandleFunc("POST /api/vat/return", h.VATReturn)
}

// writeJSON encodes the response with the given encoder function.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		h.lg.Debug("write response", zap.Error(err))
	}
}

// writeError writes the uniform error body {"code": ..., "message": ...}.
func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// encodeDecimal writes a decimal as a raw JSON number, preserving its exact
// textual representation.
func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.String()))
}
