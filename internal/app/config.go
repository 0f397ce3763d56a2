package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (PRICING_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PRICING_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Country     string `default:"AE" usage:"Home jurisdiction for rate resolution" flag:"country"`
	Rates       RatesConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// RatesConfig controls the exchange-rate resolution chain and the background
// refresher.
type RatesConfig struct {
	BaseCurrency    string        `default:"AED" usage:"Base currency for cross rates and refreshes" flag:"base-currency"`
	CacheTTL        time.Duration `default:"30m" usage:"In-process rate cache TTL" flag:"rate-cache-ttl"`
	ProviderTimeout time.Duration `default:"5s"  usage:"Timeout per external provider attempt" flag:"rate-provider-timeout"`
	StoreValidity   time.Duration `default:"24h" usage:"Validity of persisted rates" flag:"rate-store-validity"`
	RefreshInterval time.Duration `default:"6h"  usage:"Background refresh interval" flag:"rate-refresh-interval"`
	// Targets are the currencies refreshed against the base.
	Targets []string `default:"USD,EUR,GBP,SAR,OMR,BHD,KWD,QAR,INR,JPY" usage:"Currencies refreshed against the base"`
	// Providers are external rate APIs as name=url pairs, tried in order.
	Providers []string `usage:"Rate providers as name=url pairs, in priority order"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PRICING",
		Files:     []string{"config.yaml", "/etc/pricing/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set PRICING_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PRICING_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// ParseProviders splits the name=url provider entries. Entries without a
// name use provider-<index>.
func (c *RatesConfig) ParseProviders() []ProviderSpec {
	specs := make([]ProviderSpec, 0, len(c.Providers))
	for i, raw := range c.Providers {
		name, endpoint, ok := strings.Cut(raw, "=")
		if !ok || endpoint == "" {
			name, endpoint = "", raw
		}
		if name == "" {
			name = "provider-" + strconv.Itoa(i+1)
		}
		if endpoint == "" {
			continue
		}
		specs = append(specs, ProviderSpec{Name: name, Endpoint: endpoint})
	}
	return specs
}

// ProviderSpec names one external rate API endpoint.
type ProviderSpec struct {
	Name     string
	Endpoint string
}
