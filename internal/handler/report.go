package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/oudhouse/pricing-engine/internal/domain/tax"
)

type reportBreakdown struct {
	Rate    decimal.Decimal `json:"rate"`
	Taxable decimal.Decimal `json:"taxable"`
	VAT     decimal.Decimal `json:"vat"`
}

type reportTransaction struct {
	ID        string            `json:"id"`
	IssuedAt  time.Time         `json:"issued_at"`
	Treatment string            `json:"treatment"`
	Breakdown []reportBreakdown `json:"breakdown"`
}

type vatReturnRequest struct {
	From         time.Time           `json:"from"`
	To           time.Time           `json:"to"`
	Transactions []reportTransaction `json:"transactions"`
}

// VATReturn aggregates the submitted priced transactions into a filing-period
// VAT return.
func (h *Handler) VATReturn(w http.ResponseWriter, r *http.Request) {
	var req vatReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	txns := make([]tax.PricedTransaction, len(req.Transactions))
	for i, t := range req.Transactions {
		entries := make([]tax.BreakdownEntry, len(t.Breakdown))
		for j, b := range t.Breakdown {
			entries[j] = tax.BreakdownEntry{Rate: b.Rate, Taxable: b.Taxable, VAT: b.VAT}
		}
		txns[i] = tax.PricedTransaction{
			ID:        t.ID,
			IssuedAt:  t.IssuedAt,
			Treatment: tax.Treatment(t.Treatment),
			Breakdown: entries,
		}
	}

	ret, err := tax.BuildReturn(tax.Period{From: req.From, To: req.To}, txns)
	if err != nil {
		var validation *tax.ValidationError
		if errors.As(err, &validation) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("from", func(e *jx.Encoder) { e.Str(ret.Period.From.Format(timeFormat)) })
			e.Field("to", func(e *jx.Encoder) { e.Str(ret.Period.To.Format(timeFormat)) })
			e.Field("buckets", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, b := range ret.Buckets {
						e.Obj(func(e *jx.Encoder) {
							e.Field("rate", func(e *jx.Encoder) { encodeDecimal(e, b.Rate) })
							e.Field("taxable", func(e *jx.Encoder) { encodeDecimal(e, b.Taxable) })
							e.Field("vat", func(e *jx.Encoder) { encodeDecimal(e, b.VAT) })
						})
					}
				})
			})
			e.Field("standard_sales", func(e *jx.Encoder) { encodeDecimal(e, ret.StandardSales) })
			e.Field("zero_rated_sales", func(e *jx.Encoder) { encodeDecimal(e, ret.ZeroRatedSales) })
			e.Field("exempt_sales", func(e *jx.Encoder) { encodeDecimal(e, ret.ExemptSales) })
			e.Field("reverse_charged", func(e *jx.Encoder) { encodeDecimal(e, ret.ReverseCharged) })
			e.Field("total_output_vat", func(e *jx.Encoder) { encodeDecimal(e, ret.TotalOutputVAT) })
			e.Field("transactions", func(e *jx.Encoder) { e.Int(ret.Transactions) })
		})
	})
}
