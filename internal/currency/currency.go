// Package currency resolves exchange rates through a layered fallback chain
// (in-process cache, persisted store, external providers, static table) and
// converts amounts with currency-specific rounding.
package currency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rate sources, in resolution order.
const (
	SourceIdentity = "identity"
	SourceCache    = "cache"
	SourceStore    = "store"
	SourceCross    = "cross"
	SourceFallback = "fallback"
	// Provider-sourced rates use "provider:<name>".
	sourceProviderPrefix = "provider:"
)

// Sentinel errors.
var (
	// ErrUnknownCurrency is returned for a currency code missing from the
	// money registry. Fix-your-input.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrNoStoredRate is the store's miss signal.
	ErrNoStoredRate = errors.New("no stored rate")
	// ErrRateUnavailable is returned only when every layer, including the
	// static fallback table, has no answer for the pair.
	ErrRateUnavailable = errors.New("exchange rate unavailable")
)

// Rate is a resolved exchange rate with its provenance. Degraded marks rates
// served from the static fallback table after every live source failed;
// callers may proceed but should surface the flag.
type Rate struct {
	Base      string
	Target    string
	Value     decimal.Decimal
	Source    string
	FetchedAt time.Time
	Degraded  bool
}

// StoredRate is one persisted exchange-rate row. Superseded rows stay in the
// store for audit, marked inactive.
type StoredRate struct {
	Base       string
	Target     string
	Value      decimal.Decimal
	Source     string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// Store persists provider-fetched rates with bounded validity.
type Store interface {
	// Latest returns the most recent active, non-expired rate for the pair,
	// or ErrNoStoredRate.
	Latest(ctx context.Context, base, target string) (*StoredRate, error)
	// Insert persists a new rate, superseding any active row for the pair.
	Insert(ctx context.Context, rate StoredRate) error
}
