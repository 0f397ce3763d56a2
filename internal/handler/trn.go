package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/oudhouse/pricing-engine/internal/domain/tax"
)

type trnRequest struct {
	Country string `json:"country"`
	TRN     string `json:"trn"`
}

// ValidateTRN checks a tax registration number against the format registered
// for its jurisdiction. Format violations are a 200 with valid=false; an
// unknown jurisdiction is a 400.
func (h *Handler) ValidateTRN(w http.ResponseWriter, r *http.Request) {
	var req trnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Country == "" {
		h.writeError(w, http.StatusBadRequest, "country is required")
		return
	}

	reason := ""
	err := tax.ValidateTRN(req.Country, req.TRN)
	if err != nil {
		var validation *tax.ValidationError
		if errors.As(err, &validation) && validation.Field == "country" {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		reason = err.Error()
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(err == nil) })
			if reason != "" {
				e.Field("reason", func(e *jx.Encoder) { e.Str(reason) })
			}
		})
	})
}
