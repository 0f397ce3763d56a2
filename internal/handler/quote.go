package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oudhouse/pricing-engine/internal/currency"
	"github.com/oudhouse/pricing-engine/internal/domain/cart"
	"github.com/oudhouse/pricing-engine/internal/domain/money"
	"github.com/oudhouse/pricing-engine/internal/domain/pricing"
	"github.com/oudhouse/pricing-engine/internal/domain/promotion"
	"github.com/oudhouse/pricing-engine/internal/domain/tax"
	"github.com/oudhouse/pricing-engine/pkg/httpmiddleware"
)

type quoteItem struct {
	ProductID    string           `json:"product_id"`
	Category     string           `json:"category"`
	Quantity     int              `json:"quantity"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	LineDiscount decimal.Decimal  `json:"line_discount"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`
	TaxInclusive bool             `json:"tax_inclusive"`
}

type quoteCustomer struct {
	ID    string `json:"id"`
	Group string `json:"group"`
	Type  string `json:"type"`
	TRN   string `json:"trn"`
}

type quoteRequest struct {
	Currency        string         `json:"currency"`
	Country         string         `json:"country"`
	StoreID         string         `json:"store_id"`
	Items           []quoteItem    `json:"items"`
	Customer        *quoteCustomer `json:"customer,omitempty"`
	PromotionIDs    []string       `json:"promotion_ids,omitempty"`
	AutoApply       bool           `json:"auto_apply"`
	DisplayCurrency string         `json:"display_currency,omitempty"`
	CashRounding    bool           `json:"cash_rounding"`
}

func (q *quoteRequest) toDomain() (pricing.QuoteRequest, error) {
	items := make([]cart.Item, len(q.Items))
	for i, it := range q.Items {
		items[i] = cart.Item{
			ProductID:    it.ProductID,
			Category:     it.Category,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			LineDiscount: it.LineDiscount,
			TaxRate:      it.TaxRate,
			TaxInclusive: it.TaxInclusive,
		}
	}

	var customer *cart.Customer
	if q.Customer != nil {
		customer = &cart.Customer{
			ID:    q.Customer.ID,
			Group: q.Customer.Group,
			Type:  q.Customer.Type,
			TRN:   q.Customer.TRN,
		}
	}

	ids := make([]uuid.UUID, 0, len(q.PromotionIDs))
	for _, raw := range q.PromotionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return pricing.QuoteRequest{}, errors.Wrapf(err, "promotion id %q", raw)
		}
		ids = append(ids, id)
	}

	return pricing.QuoteRequest{
		Cart:            cart.Cart{Items: items, Currency: q.Currency},
		Customer:        customer,
		Country:         q.Country,
		StoreID:         q.StoreID,
		PromotionIDs:    ids,
		AutoApply:       q.AutoApply,
		DisplayCurrency: q.DisplayCurrency,
		CashRounding:    q.CashRounding,
	}, nil
}

// Quote prices a cart end to end.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	domainReq, err := req.toDomain()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.pricing.Quote(r.Context(), domainReq)
	if err != nil {
		h.quoteError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeQuoteResult(e, res)
	})
}

// quoteError maps domain errors to HTTP statuses: malformed input is 400,
// missing promotions 404, exhausted usage 409, unavailable rates 503, and a
// violated accounting identity 500.
func (h *Handler) quoteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidItem *cart.InvalidItemError
		validation  *tax.ValidationError
		ruleErr     *promotion.RuleError
		consistency *tax.ConsistencyError
	)
	switch {
	case errors.Is(err, pricing.ErrEmptyCart),
		errors.Is(err, currency.ErrUnknownCurrency),
		errors.As(err, &invalidItem),
		errors.As(err, &validation),
		errors.As(err, &ruleErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, promotion.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "promotion not found")
	case errors.Is(err, promotion.ErrExhausted):
		h.writeError(w, http.StatusConflict, "promotion usage limit reached")
	case isEligibilityError(err):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, currency.ErrRateUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "exchange rate unavailable")
	case errors.As(err, &consistency):
		h.lg.Error("pricing consistency violated",
			zap.Error(err),
			zap.String("request_id", httpmiddleware.RequestIDFromContext(r.Context())),
		)
		h.writeError(w, http.StatusInternalServerError, "internal pricing error")
	default:
		h.lg.Error("quote failed",
			zap.Error(err),
			zap.String("request_id", httpmiddleware.RequestIDFromContext(r.Context())),
		)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isEligibilityError(err error) bool {
	return errors.Is(err, promotion.ErrCustomerGroup) ||
		errors.Is(err, promotion.ErrBelowMinimum) ||
		errors.Is(err, promotion.ErrNoEligibleItems) ||
		errors.Is(err, promotion.ErrNotStarted) ||
		errors.Is(err, promotion.ErrEnded)
}

func encodeQuoteResult(e *jx.Encoder, res *pricing.Result) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("currency", func(e *jx.Encoder) { e.Str(res.Currency) })
		e.Field("treatment", func(e *jx.Encoder) { e.Str(string(res.Treatment())) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range res.Lines {
					encodeLine(e, l)
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, res.Subtotal) })
		e.Field("promotions", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, a := range res.Promotions {
					encodeAllocation(e, a)
				}
			})
		})
		e.Field("total_discount", func(e *jx.Encoder) { encodeDecimal(e, res.TotalDiscount) })
		e.Field("vat_breakdown", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, b := range res.Breakdown {
					e.Obj(func(e *jx.Encoder) {
						e.Field("rate", func(e *jx.Encoder) { encodeDecimal(e, b.Rate) })
						e.Field("taxable", func(e *jx.Encoder) { encodeDecimal(e, b.Taxable) })
						e.Field("vat", func(e *jx.Encoder) { encodeDecimal(e, b.VAT) })
					})
				}
			})
		})
		e.Field("total_vat", func(e *jx.Encoder) { encodeDecimal(e, res.TotalVAT) })
		e.Field("grand_total", func(e *jx.Encoder) { encodeDecimal(e, res.GrandTotal) })
		e.Field("grand_total_display", func(e *jx.Encoder) { e.Str(money.Format(res.GrandTotal, res.Currency)) })
		if res.Converted != nil {
			e.Field("converted", func(e *jx.Encoder) { encodeConverted(e, res.Converted) })
		}
		e.Field("issued_at", func(e *jx.Encoder) { e.Str(res.IssuedAt.Format(timeFormat)) })
	})
}

func encodeLine(e *jx.Encoder, l pricing.LineQuote) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { encodeDecimal(e, l.UnitPrice) })
		e.Field("line_total", func(e *jx.Encoder) { encodeDecimal(e, l.LineTotal) })
		e.Field("rate", func(e *jx.Encoder) { encodeDecimal(e, l.Rate) })
		e.Field("treatment", func(e *jx.Encoder) { e.Str(string(l.Treatment)) })
	})
}

func encodeAllocation(e *jx.Encoder, a promotion.Allocation) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("rule_id", func(e *jx.Encoder) { e.Str(a.RuleID.String()) })
		e.Field("rule_name", func(e *jx.Encoder) { e.Str(a.RuleName) })
		e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, a.Total) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range a.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
						e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, l.Amount) })
					})
				}
			})
		})
	})
}

func encodeConverted(e *jx.Encoder, c *pricing.ConvertedTotals) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("currency", func(e *jx.Encoder) { e.Str(c.Currency) })
		e.Field("rate", func(e *jx.Encoder) { encodeDecimal(e, c.Rate) })
		e.Field("rate_source", func(e *jx.Encoder) { e.Str(c.RateSource) })
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, c.Subtotal) })
		e.Field("total_discount", func(e *jx.Encoder) { encodeDecimal(e, c.TotalDiscount) })
		e.Field("total_vat", func(e *jx.Encoder) { encodeDecimal(e, c.TotalVAT) })
		e.Field("grand_total", func(e *jx.Encoder) { encodeDecimal(e, c.GrandTotal) })
		e.Field("degraded", func(e *jx.Encoder) { e.Bool(c.Degraded) })
	})
}
