package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

type applicableRequest struct {
	Currency string         `json:"currency"`
	StoreID  string         `json:"store_id"`
	Items    []quoteItem    `json:"items"`
	Customer *quoteCustomer `json:"customer,omitempty"`
}

// ApplicablePromotions returns the active promotions the cart qualifies for,
// each with its estimated discount, best first.
func (h *Handler) ApplicablePromotions(w http.ResponseWriter, r *http.Request) {
	var req applicableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	q := quoteRequest{Currency: req.Currency, StoreID: req.StoreID, Items: req.Items, Customer: req.Customer}
	domainReq, err := q.toDomain()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := domainReq.Cart.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidates, err := h.promos.Applicable(r.Context(), domainReq.Cart, domainReq.Customer, req.StoreID)
	if err != nil {
		h.lg.Error("applicable promotions failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("promotions", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, c := range candidates {
						e.Obj(func(e *jx.Encoder) {
							e.Field("id", func(e *jx.Encoder) { e.Str(c.Rule.ID.String()) })
							e.Field("name", func(e *jx.Encoder) { e.Str(c.Rule.Name) })
							e.Field("kind", func(e *jx.Encoder) { e.Str(string(c.Rule.Kind)) })
							e.Field("priority", func(e *jx.Encoder) { e.Int(c.Rule.Priority) })
							e.Field("estimated_discount", func(e *jx.Encoder) { encodeDecimal(e, c.Estimated) })
						})
					}
				})
			})
		})
	})
}
