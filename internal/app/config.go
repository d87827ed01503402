package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Rewards     RewardsConfig
	Reconcile   ReconcileConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RewardsConfig locates the external rewards engine.
type RewardsConfig struct {
	BaseURL string        `usage:"Rewards engine base URL (SHOP_REWARDS_BASE_URL)"`
	APIKey  string        `usage:"Rewards engine API key, sent as a bearer token (SHOP_REWARDS_API_KEY)"`
	Timeout time.Duration `default:"10s" usage:"Timeout of a single rewards engine call"`
	Channel string        `default:"web" usage:"Channel session attribute sent with evaluations"`
}

// ReconcileConfig controls the background job that finishes stuck placements.
// A zero Interval disables it.
type ReconcileConfig struct {
	Interval   time.Duration `default:"1m" usage:"Reconciliation pass interval, 0 disables"`
	StaleAfter time.Duration `default:"5m" usage:"Age after which an unfinished placement is resumed"`
	BatchSize  int           `default:"100" usage:"Orders resumed per pass"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// WriteTimeout bounds a whole API response. Placing an order with server-side
// evaluation makes three sequential rewards engine calls plus database writes.
func (c *Config) WriteTimeout() time.Duration {
	return 3*c.Rewards.Timeout + 10*time.Second
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first missing or out of range setting.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.Rewards.BaseURL == "":
		return errors.New("rewards base URL is required: set SHOP_REWARDS_BASE_URL")
	case c.Rewards.APIKey == "":
		return errors.New("rewards API key is required: set SHOP_REWARDS_API_KEY")
	case c.Reconcile.Interval < 0:
		return errors.New("reconcile interval must not be negative")
	case c.Reconcile.Interval > 0 && c.Reconcile.StaleAfter <= 0:
		return errors.New("reconcile stale-after must be positive")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT onto the SHOP_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
