package currency

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Provider fetches a live exchange rate from one external source. Providers
// are tried sequentially in priority order, each attempt individually
// time-bounded by the caller's context.
type Provider interface {
	Name() string
	FetchRate(ctx context.Context, base, target string) (decimal.Decimal, error)
}

// HTTPProvider is a Provider over a JSON rate API of the common
// `{"base":"AED","rates":{"USD":0.2723}}` shape.
type HTTPProvider struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewHTTPProvider creates a provider for the given endpoint. The endpoint is
// queried as `<endpoint>?base=<from>&symbols=<to>`.
func NewHTTPProvider(name, endpoint string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{name: name, endpoint: endpoint, client: client}
}

// Name identifies the provider in rate provenance and logs.
func (p *HTTPProvider) Name() string { return p.name }

// FetchRate requests the pair from the provider and decodes the rate out of
// the response's "rates" object.
func (p *HTTPProvider) FetchRate(ctx context.Context, base, target string) (decimal.Decimal, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse endpoint")
	}
	q := u.Query()
	q.Set("base", base)
	q.Set("symbols", target)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "fetch %s/%s", base, target)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errors.Errorf("provider %s: unexpected status %d", p.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "read response")
	}
	rate, err := decodeRate(body, target)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "provider %s", p.name)
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.Errorf("provider %s: non-positive rate %s", p.name, rate)
	}
	return rate, nil
}

// decodeRate pulls rates[target] out of the response body.
func decodeRate(body []byte, target string) (decimal.Decimal, error) {
	var (
		rate  decimal.Decimal
		found bool
	)
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "rates" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, sym []byte) error {
			if string(sym) != target {
				return d.Skip()
			}
			raw, err := d.Num()
			if err != nil {
				return err
			}
			rate, err = decimal.NewFromString(raw.String())
			if err != nil {
				return err
			}
			found = true
			return nil
		})
	}); err != nil {
		return decimal.Zero, errors.Wrap(err, "decode rates")
	}
	if !found {
		return decimal.Zero, errors.Errorf("no rate for %s in response", target)
	}
	return rate, nil
}
