package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oudhouse/pricing-engine/internal/currency"
)

// Rate resolves the exchange rate for the base/target query pair.
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	target := r.URL.Query().Get("target")
	if base == "" || target == "" {
		h.writeError(w, http.StatusBadRequest, "base and target query parameters are required")
		return
	}

	rate, err := h.rates.Rate(r.Context(), base, target)
	if err != nil {
		h.rateError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeRate(e, rate)
	})
}

type convertRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	CustomerType string          `json:"customer_type,omitempty"`
}

// Convert converts an amount between currencies. When a customer type is
// given the type's price multiplier is applied first and the result is
// snapped to the target currency's cash increment.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Amount.IsNegative() {
		h.writeError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	var (
		converted decimal.Decimal
		rate      currency.Rate
		err       error
	)
	if req.CustomerType != "" {
		converted, rate, err = h.rates.PriceFor(r.Context(), req.Amount, req.CustomerType, req.From, req.To)
	} else {
		converted, rate, err = h.rates.Convert(r.Context(), req.Amount, req.From, req.To)
	}
	if err != nil {
		h.rateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, req.Amount) })
			e.Field("converted", func(e *jx.Encoder) { encodeDecimal(e, converted) })
			e.Field("rate", func(e *jx.Encoder) { encodeRate(e, rate) })
		})
	})
}

func (h *Handler) rateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, currency.ErrUnknownCurrency):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, currency.ErrRateUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "exchange rate unavailable")
	default:
		h.lg.Error("rate lookup failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func encodeRate(e *jx.Encoder, rate currency.Rate) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("base", func(e *jx.Encoder) { e.Str(rate.Base) })
		e.Field("target", func(e *jx.Encoder) { e.Str(rate.Target) })
		e.Field("rate", func(e *jx.Encoder) { encodeDecimal(e, rate.Value) })
		e.Field("source", func(e *jx.Encoder) { e.Str(rate.Source) })
		if !rate.FetchedAt.IsZero() {
			e.Field("fetched_at", func(e *jx.Encoder) { e.Str(rate.FetchedAt.Format(timeFormat)) })
		}
		e.Field("degraded", func(e *jx.Encoder) { e.Bool(rate.Degraded) })
	})
}
