package redauth

import (
	"fmt"
	"time"

	"github.com/redforge/redauth/internal/pacing"
)

// Config defines a public type used by redauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Platform  PlatformConfig
	Selectors SelectorsConfig
	Probe     ProbeConfig
	Cache     CacheConfig
	Monitor   MonitorConfig
	Pacing    PacingConfig
	Login     LoginConfig
	Storage   StorageConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
PLATFORM CONFIG
====================================
*/

// PlatformConfig addresses the remote platform.
type PlatformConfig struct {
	BaseURL        string
	LoginURL       string
	APIBase        string
	WhoAmIURLs     []string
	ProbePageURL   string
	RequestTimeout time.Duration
	RateEvery      time.Duration
	RateBurst      int
}

/*
====================================
SELECTORS CONFIG
====================================
*/

// SelectorsConfig names the page elements automation and probing rely on.
// Selectors use the supported subset: "tag", ".class" and "[attr=value]".
type SelectorsConfig struct {
	PhoneInput      string
	CodeInput       string
	SubmitButtons   []string
	LoggedInMarkers []string
	Nickname        []string
	Avatar          []string
	ErrorText       []string
}

/*
====================================
PROBE CONFIG
====================================
*/

// ProbeConfig tunes the session validator.
type ProbeConfig struct {
	PageTimeout time.Duration
	// HeuristicFields are token names whose local presence alone counts as a
	// weak logged-in signal.
	HeuristicFields []string
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig tunes the quick-check result cache.
type CacheConfig struct {
	Window time.Duration
	// GateFields must be present in the current tokens before a quick check
	// escalates to the full strategy chain.
	GateFields []string
}

/*
====================================
MONITOR CONFIG
====================================
*/

// MonitorConfig tunes the background session monitor.
type MonitorConfig struct {
	Enabled       bool
	FullInterval  time.Duration
	QuickInterval time.Duration
}

/*
====================================
PACING CONFIG
====================================
*/

// PacingConfig tunes humanized delays and user-agent rotation.
type PacingConfig struct {
	UserAgents   []string
	TypeDelayMin time.Duration
	TypeDelayMax time.Duration
	SettleMin    time.Duration
	SettleMax    time.Duration
	// Seed fixes the random source; zero seeds from the current time.
	Seed int64
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig tunes the login flows.
type LoginConfig struct {
	// CodeTimeout bounds an interactive one-time-code login end to end.
	CodeTimeout time.Duration
	// CodeLength is the minimum entered code length that triggers submit.
	CodeLength int
	// ElementWait bounds how long the surface waits for the phone input.
	ElementWait time.Duration
	// SurfacePoll is the surface polling cadence.
	SurfacePoll time.Duration
	// RequiredFields must appear in stored tokens for pre-flight to pass.
	RequiredFields []string
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig tunes the encrypted account registry.
type StorageConfig struct {
	// Passphrase derives the registry encryption key.
	Passphrase string
	// FilePath is where the file blob lives when no other blob is supplied.
	FilePath string
	// RedisKey names the registry blob when a Redis client is supplied.
	RedisKey string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls async audit dispatching.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// defaultPassphrase keeps an out-of-the-box install working. Hosts that care
// about registry confidentiality must supply their own.
const defaultPassphrase = "xhs_crypto_key_2024"

// DefaultConfig returns the configuration matching the platform's current
// layout and the conservative timing the service was tuned with.
func DefaultConfig() Config {
	return Config{
		Platform: PlatformConfig{
			BaseURL:  "https://www.xiaohongshu.com",
			LoginURL: "https://creator.xiaohongshu.com/login",
			APIBase:  "https://edith.xiaohongshu.com",
			WhoAmIURLs: []string{
				"https://creator.xiaohongshu.com/api/sns/web/v1/user/me",
				"https://www.xiaohongshu.com/api/sns/web/v1/user/me",
				"https://edith.xiaohongshu.com/api/sns/web/v1/user/me",
			},
			ProbePageURL:   "https://creator.xiaohongshu.com",
			RequestTimeout: 15 * time.Second,
			RateEvery:      200 * time.Millisecond,
			RateBurst:      3,
		},
		Selectors: SelectorsConfig{
			PhoneInput:    "[name=phone]",
			CodeInput:     "[name=verifyCode]",
			SubmitButtons: []string{"[type=submit]", ".login-btn", ".submit-btn"},
			LoggedInMarkers: []string{
				".user-info", ".profile", ".avatar", ".user-avatar", "[data-testid=user-info]",
			},
			Nickname:  []string{".name-box", ".username", ".nickname", ".user-name"},
			Avatar:    []string{".user-avatar", ".avatar", ".user-photo", ".profile-avatar"},
			ErrorText: []string{".error-msg", ".login-error"},
		},
		Probe: ProbeConfig{
			PageTimeout:     10 * time.Second,
			HeuristicFields: []string{"web_session", "xhsuid", "sessionid"},
		},
		Cache: CacheConfig{
			Window:     10 * time.Second,
			GateFields: []string{"web_session", "webId", "xhsuid"},
		},
		Monitor: MonitorConfig{
			Enabled:       true,
			FullInterval:  30 * time.Second,
			QuickInterval: 15 * time.Second,
		},
		Pacing: PacingConfig{
			UserAgents:   pacing.DefaultUserAgents,
			TypeDelayMin: 50 * time.Millisecond,
			TypeDelayMax: 150 * time.Millisecond,
			SettleMin:    500 * time.Millisecond,
			SettleMax:    time.Second,
		},
		Login: LoginConfig{
			CodeTimeout:    5 * time.Minute,
			CodeLength:     4,
			ElementWait:    10 * time.Second,
			SurfacePoll:    2 * time.Second,
			RequiredFields: []string{"web_session", "xhsuid", "sessionid"},
		},
		Storage: StorageConfig{
			Passphrase: defaultPassphrase,
			FilePath:   "redauth_accounts.bin",
			RedisKey:   "redauth:accounts",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	switch {
	case c.Platform.BaseURL == "":
		return fmt.Errorf("%w: platform base URL required", ErrInvalidConfig)
	case c.Platform.LoginURL == "":
		return fmt.Errorf("%w: platform login URL required", ErrInvalidConfig)
	case len(c.Platform.WhoAmIURLs) == 0:
		return fmt.Errorf("%w: at least one identity endpoint required", ErrInvalidConfig)
	case c.Storage.Passphrase == "":
		return fmt.Errorf("%w: storage passphrase required", ErrInvalidConfig)
	case c.Cache.Window <= 0:
		return fmt.Errorf("%w: cache window must be positive", ErrInvalidConfig)
	case c.Login.CodeLength <= 0:
		return fmt.Errorf("%w: code length must be positive", ErrInvalidConfig)
	case c.Pacing.TypeDelayMax < c.Pacing.TypeDelayMin:
		return fmt.Errorf("%w: typing delay bounds inverted", ErrInvalidConfig)
	case c.Pacing.SettleMax < c.Pacing.SettleMin:
		return fmt.Errorf("%w: settle delay bounds inverted", ErrInvalidConfig)
	}
	return nil
}

// cloneConfig deep-copies slices so a caller mutating its Config after Build
// cannot affect the service.
func cloneConfig(c Config) Config {
	out := c
	out.Platform.WhoAmIURLs = append([]string(nil), c.Platform.WhoAmIURLs...)
	out.Selectors.SubmitButtons = append([]string(nil), c.Selectors.SubmitButtons...)
	out.Selectors.LoggedInMarkers = append([]string(nil), c.Selectors.LoggedInMarkers...)
	out.Selectors.Nickname = append([]string(nil), c.Selectors.Nickname...)
	out.Selectors.Avatar = append([]string(nil), c.Selectors.Avatar...)
	out.Selectors.ErrorText = append([]string(nil), c.Selectors.ErrorText...)
	out.Probe.HeuristicFields = append([]string(nil), c.Probe.HeuristicFields...)
	out.Cache.GateFields = append([]string(nil), c.Cache.GateFields...)
	out.Pacing.UserAgents = append([]string(nil), c.Pacing.UserAgents...)
	out.Login.RequiredFields = append([]string(nil), c.Login.RequiredFields...)
	return out
}
