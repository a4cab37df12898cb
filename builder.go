package redauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	internalaudit "github.com/redforge/redauth/internal/audit"
	"github.com/redforge/redauth/internal/monitor"
	"github.com/redforge/redauth/internal/pacing"
	"github.com/redforge/redauth/internal/platform"
	"github.com/redforge/redauth/internal/probe"
	"github.com/redforge/redauth/internal/surface"
	"github.com/redforge/redauth/store"
)

// Builder assembles a [Service].
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	blob       store.Blob
	redis      *redis.Client
	httpClient *http.Client
	opener     surface.Opener
	logger     *zap.Logger
	auditSink  AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBlob supplies the registry storage backend directly, overriding the
// file and Redis options.
func (b *Builder) WithBlob(blob store.Blob) *Builder {
	b.blob = blob
	return b
}

// WithRedis stores the registry blob in Redis instead of a file.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient supplies the base HTTP client for platform traffic. Its
// transport is reused; the cookie jar is always service-managed.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithSurfaceOpener supplies the login surface factory the one-time-code
// flow uses. Without one, interactive code login is unavailable.
func (b *Builder) WithSurfaceOpener(opener surface.Opener) *Builder {
	b.opener = opener
	return b
}

// WithLogger supplies the logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.logger = log
	return b
}

// WithAuditSink supplies the audit event consumer and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled toggles metric collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires every component and starts the
// background monitor. The initial session restore for the active account, if
// one is stored, runs on a background goroutine so Build never blocks on the
// network.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}

	seed := cfg.Pacing.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	pacer := pacing.New(seed, cfg.Pacing.UserAgents)

	client, err := platform.New(platform.Config{
		BaseURL:        cfg.Platform.BaseURL,
		LoginURL:       cfg.Platform.LoginURL,
		APIBase:        cfg.Platform.APIBase,
		WhoAmIURLs:     cfg.Platform.WhoAmIURLs,
		RequestTimeout: cfg.Platform.RequestTimeout,
		RateEvery:      cfg.Platform.RateEvery,
		Burst:          cfg.Platform.RateBurst,
	}, b.httpClient, pacer, log.Named("platform"))
	if err != nil {
		return nil, err
	}

	// -------- REGISTRY STORAGE --------
	blob := b.blob
	if blob == nil && b.redis != nil {
		blob = store.NewRedisBlob(b.redis, cfg.Storage.RedisKey)
	}
	if blob == nil {
		blob = store.NewFileBlob(cfg.Storage.FilePath)
	}
	registry := store.New(blob, cfg.Storage.Passphrase, log.Named("store"))

	svc := &Service{
		config:  cfg,
		log:     log,
		store:   registry,
		client:  client,
		pacer:   pacer,
		metrics: NewMetrics(cfg.Metrics),
		opener:  b.opener,
		interp:  surface.NewInterpreter(pacer, log.Named("surface")),
		status:  StatusNotLoggedIn,
		subs:    map[int]Subscriber{},
	}

	// -------- SESSION PROBING --------
	svc.validator = probe.NewValidator(probe.Config{
		PageURL:         cfg.Platform.ProbePageURL,
		PageTimeout:     cfg.Probe.PageTimeout,
		Markers:         svc.markerConfig(),
		HeuristicFields: cfg.Probe.HeuristicFields,
	}, client, log.Named("probe"))
	svc.quick = probe.NewQuick(svc.validator, cfg.Cache.Window, cfg.Cache.GateFields)

	svc.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	svc.buildFlowDeps()

	// -------- BACKGROUND MONITOR --------
	if cfg.Monitor.Enabled {
		svc.monitor = monitor.New(monitor.Config{
			FullInterval:  cfg.Monitor.FullInterval,
			QuickInterval: cfg.Monitor.QuickInterval,
		}, monitor.Deps{
			Check:       svc.CheckSession,
			QuickCheck:  svc.QuickCheck,
			GetActive:   registry.GetActive,
			SaveAccount: registry.Save,
			OnStatus: func(status uint8, account *store.Account) {
				svc.metrics.Inc(MetricMonitorChecks)
				next := SessionStatus(status)
				if next != svc.Status() {
					accountID := ""
					if account != nil {
						accountID = account.ID
					}
					svc.emitAudit(context.Background(), AuditMonitorTransition, next == StatusLoggedIn, accountID, "", nil, func() map[string]string {
						return map[string]string{"status": next.String()}
					})
				}
				svc.setStatus(next, account)
			},
			Statuses: monitor.Statuses{
				LoggedIn:    uint8(StatusLoggedIn),
				NotLoggedIn: uint8(StatusNotLoggedIn),
				LoginFailed: uint8(StatusLoginFailed),
			},
		}, log.Named("monitor"))
		svc.monitor.Start()
	}

	go svc.restoreInitialSession()

	b.built = true
	return svc, nil
}
