// Package probe determines whether the platform session currently loaded in
// the HTTP client is alive. Three strategies run in order, cheapest-trusted
// first, and every strategy fails closed: identity API, authenticated page
// markers, then a local token-presence heuristic.
package probe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/redforge/redauth/internal/markers"
	"github.com/redforge/redauth/internal/platform"
	"github.com/redforge/redauth/token"
)

// Strategy names the check that produced a result.
type Strategy string

const (
	// StrategyAPI means an identity endpoint confirmed the session.
	StrategyAPI Strategy = "API"
	// StrategyPage means logged-in markers were found on an authenticated page.
	StrategyPage Strategy = "PAGE"
	// StrategyTokens means only the local token-presence heuristic fired.
	StrategyTokens Strategy = "TOKENS"
)

// UserInfo is identity captured during a check. The tokens strategy cannot
// produce one.
type UserInfo struct {
	Nickname string
	Avatar   string
}

// Result is the outcome of a session check.
type Result struct {
	LoggedIn bool
	Strategy Strategy
	UserInfo UserInfo
}

// Config tunes the validator.
type Config struct {
	// PageURL is the authenticated page fetched for marker scanning.
	PageURL string
	// PageTimeout bounds the page strategy.
	PageTimeout time.Duration
	// Markers identify a logged-in page.
	Markers markers.Config
	// HeuristicFields are token field names whose presence alone counts as a
	// (weak) logged-in signal.
	HeuristicFields []string
}

// Client is the slice of the platform client the validator needs.
type Client interface {
	WhoAmI(ctx context.Context) (platform.Identity, error)
	FetchPage(ctx context.Context, url string) (string, error)
	CurrentTokens() string
	ApplyTokens(raw string) error
}

// Validator runs the strategy chain.
type Validator struct {
	cfg    Config
	client Client
	log    *zap.Logger
}

// NewValidator creates a Validator. A nil logger disables logging.
func NewValidator(cfg Config, client Client, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{cfg: cfg, client: client, log: log}
}

// Check runs the strategies in order and returns the first positive result.
// When every strategy misses, the returned Result carries LoggedIn false and
// the tokens strategy, the last one consulted.
func (v *Validator) Check(ctx context.Context) Result {
	if res, ok := v.viaAPI(ctx); ok {
		return res
	}
	if ctx.Err() != nil {
		return Result{Strategy: StrategyAPI}
	}
	if res, ok := v.viaPage(ctx); ok {
		return res
	}
	return v.viaTokens()
}

func (v *Validator) viaAPI(ctx context.Context) (Result, bool) {
	id, err := v.client.WhoAmI(ctx)
	if err != nil {
		v.log.Debug("identity check missed", zap.Error(err))
		return Result{}, false
	}
	return Result{
		LoggedIn: true,
		Strategy: StrategyAPI,
		UserInfo: UserInfo{Nickname: id.Nickname, Avatar: id.Avatar},
	}, true
}

func (v *Validator) viaPage(ctx context.Context) (Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.PageTimeout)
	defer cancel()

	doc, err := v.client.FetchPage(ctx, v.cfg.PageURL)
	if err != nil {
		v.log.Debug("page check missed", zap.Error(err))
		return Result{}, false
	}
	scan := markers.Scan(doc, v.cfg.Markers)
	if !scan.LoggedIn {
		return Result{}, false
	}
	return Result{
		LoggedIn: true,
		Strategy: StrategyPage,
		UserInfo: UserInfo{Nickname: scan.Nickname, Avatar: scan.Avatar},
	}, true
}

// viaTokens is the weakest signal: the session fields exist locally, nothing
// confirmed them remotely.
func (v *Validator) viaTokens() Result {
	fields := token.Parse(v.client.CurrentTokens())
	return Result{
		LoggedIn: fields.HasAny(v.cfg.HeuristicFields...),
		Strategy: StrategyTokens,
	}
}

// ValidateTokens loads raw into the client and runs the strategy chain
// against it. Used to verify a stored account's credentials end to end.
func (v *Validator) ValidateTokens(ctx context.Context, raw string) (Result, error) {
	if err := v.client.ApplyTokens(raw); err != nil {
		return Result{}, err
	}
	return v.Check(ctx), nil
}
