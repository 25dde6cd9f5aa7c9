// Package conf holds the typed service configuration. Values are loaded
// once at startup; the quota settings are only startup defaults, the
// persisted copies win after the first admin mutation.
package conf

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
)

// Bootstrap is the root configuration.
type Bootstrap struct {
	Server     *Server     `json:"server"`
	Data       *Data       `json:"data"`
	Quota      *Quota      `json:"quota"`
	Moderation *Moderation `json:"moderation"`
	Vision     *Vision     `json:"vision"`
	Admin      *Admin      `json:"admin"`
}

type Server struct {
	HTTP HTTPServer `json:"http"`
}

type HTTPServer struct {
	Addr           string `json:"addr"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type Data struct {
	Database Database `json:"database"`
	Redis    Redis    `json:"redis"`
}

type Database struct {
	Driver     string `json:"driver"`
	Source     string `json:"source"`
	Migrations string `json:"migrations"`
	Pool       Pool   `json:"pool"`
}

type Pool struct {
	MaxOpenConns           int32 `json:"max_open_conns"`
	MinIdleConns           int32 `json:"min_idle_conns"`
	MaxConnLifetimeMinutes int   `json:"max_conn_lifetime_minutes"`
	MaxConnIdleTimeMinutes int   `json:"max_conn_idle_time_minutes"`
}

type Redis struct {
	Addr                string `json:"addr"`
	Network             string `json:"network"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// Quota configures the paid-API ledger.
type Quota struct {
	// AlertChannel is the Redis channel quota alerts are published to.
	AlertChannel string `json:"alert_channel"`
	// AlertSteps are the usage fractions that trigger an alert when
	// crossed, e.g. 0.8, 0.95, 1.0.
	AlertSteps []float64 `json:"alert_steps"`
	// APIs holds the startup defaults per paid API.
	APIs map[string]*QuotaAPI `json:"apis"`
}

type QuotaAPI struct {
	MonthlyLimit int64  `json:"monthly_limit"`
	Enabled      *bool  `json:"enabled"`
	Fallback     string `json:"fallback"` // deny | allow | warn
	// CostPer1000 is the billing rate used for the advisory overage
	// projection, in the deployment's currency.
	CostPer1000 float64 `json:"cost_per_1000"`
}

// EnabledOrDefault treats an unset enabled flag as true.
func (q *QuotaAPI) EnabledOrDefault() bool {
	if q.Enabled == nil {
		return true
	}
	return *q.Enabled
}

type Moderation struct {
	CacheTTLHours   int        `json:"cache_ttl_hours"`
	CacheMaxEntries int        `json:"cache_max_entries"`
	Thresholds      Thresholds `json:"thresholds"`
	ProfanityTerms  []Term     `json:"profanity_terms"`
	SpamTerms       []Term     `json:"spam_terms"`
	BadImage        BadImage   `json:"bad_image"`
}

type Term struct {
	Term     string `json:"term"`
	Category string `json:"category"`
}

type Thresholds struct {
	Adult    float64 `json:"adult"`
	Racy     float64 `json:"racy"`
	Violence float64 `json:"violence"`
}

// BadImage configures the known-bad image registry.
type BadImage struct {
	Enabled     bool   `json:"enabled"`
	BloomKey    string `json:"bloom_key"`
	BloomBits   uint   `json:"bloom_bits"`
	BloomHashes uint   `json:"bloom_hashes"`
	MaxDistance int32  `json:"max_distance"`
}

type Vision struct {
	Endpoint       string `json:"endpoint"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type Admin struct {
	// UIDs is the caller allowlist for administrative operations.
	UIDs []string `json:"uids"`
}

// Load reads, defaults, and validates the bootstrap configuration.
func Load(path string) (*Bootstrap, error) {
	c := config.New(
		config.WithSource(
			file.NewSource(path),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}

	bc.applyDefaults()
	if err := bc.Validate(); err != nil {
		return nil, err
	}
	return &bc, nil
}

func (bc *Bootstrap) applyDefaults() {
	if bc.Server == nil {
		bc.Server = &Server{}
	}
	if bc.Server.HTTP.Addr == "" {
		bc.Server.HTTP.Addr = ":8000"
	}
	if bc.Server.HTTP.TimeoutSeconds <= 0 {
		bc.Server.HTTP.TimeoutSeconds = 30
	}
	if bc.Quota == nil {
		bc.Quota = &Quota{}
	}
	if bc.Quota.AlertChannel == "" {
		bc.Quota.AlertChannel = "forumguard:quota:alerts"
	}
	if len(bc.Quota.AlertSteps) == 0 {
		bc.Quota.AlertSteps = []float64{0.8, 0.95, 1.0}
	}
	for _, api := range bc.Quota.APIs {
		if api.Fallback == "" {
			api.Fallback = "deny"
		}
	}
	if bc.Moderation == nil {
		bc.Moderation = &Moderation{}
	}
	if bc.Moderation.CacheTTLHours <= 0 {
		bc.Moderation.CacheTTLHours = 24
	}
	if bc.Moderation.CacheMaxEntries <= 0 {
		bc.Moderation.CacheMaxEntries = 1000
	}
	if bc.Moderation.Thresholds == (Thresholds{}) {
		bc.Moderation.Thresholds = Thresholds{Adult: 0.6, Racy: 0.7, Violence: 0.7}
	}
	if bc.Moderation.BadImage.BloomKey == "" {
		bc.Moderation.BadImage.BloomKey = "forumguard:bloom:badimages"
	}
	if bc.Moderation.BadImage.BloomBits == 0 {
		bc.Moderation.BadImage.BloomBits = 1 << 20
	}
	if bc.Moderation.BadImage.BloomHashes == 0 {
		bc.Moderation.BadImage.BloomHashes = 7
	}
	if bc.Moderation.BadImage.MaxDistance <= 0 {
		bc.Moderation.BadImage.MaxDistance = 5
	}
	if bc.Vision == nil {
		bc.Vision = &Vision{}
	}
	if bc.Vision.TimeoutSeconds <= 0 {
		bc.Vision.TimeoutSeconds = 10
	}
	if bc.Admin == nil {
		bc.Admin = &Admin{}
	}
}

// Validate rejects malformed configuration before anything is wired.
func (bc *Bootstrap) Validate() error {
	if bc.Data == nil || bc.Data.Database.Source == "" {
		return fmt.Errorf("data.database.source is required")
	}
	if bc.Data.Redis.Addr == "" {
		return fmt.Errorf("data.redis.addr is required")
	}
	if bc.Vision.Endpoint == "" {
		return fmt.Errorf("vision.endpoint is required")
	}
	for name, api := range bc.Quota.APIs {
		if api.MonthlyLimit <= 0 {
			return fmt.Errorf("quota.apis.%s.monthly_limit must be positive", name)
		}
		switch api.Fallback {
		case "deny", "allow", "warn":
		default:
			return fmt.Errorf("quota.apis.%s.fallback must be deny, allow or warn", name)
		}
	}
	t := bc.Moderation.Thresholds
	for name, v := range map[string]float64{"adult": t.Adult, "racy": t.Racy, "violence": t.Violence} {
		if v < 0 || v > 1 {
			return fmt.Errorf("moderation.thresholds.%s must be in [0,1]", name)
		}
	}
	return nil
}
