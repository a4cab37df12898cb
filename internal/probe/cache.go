package probe

import (
	"context"
	"sync"
	"time"

	"github.com/redforge/redauth/token"
)

// QuickResult is a cached check outcome. FromCache reports whether the result
// was served from the window rather than freshly computed.
type QuickResult struct {
	LoggedIn  bool
	Strategy  Strategy
	UserInfo  UserInfo
	FromCache bool
}

// Quick wraps a Validator with a short result cache and a token pre-gate, so
// UI-frequency polling does not hammer the platform. Safe for concurrent use.
type Quick struct {
	validator *Validator
	window    time.Duration
	gate      []string

	mu     sync.Mutex
	at     time.Time
	cached QuickResult

	now func() time.Time
}

// NewQuick creates a Quick cache over validator. Results younger than window
// are reused; gate names the token fields that must be present before a full
// check is even attempted.
func NewQuick(validator *Validator, window time.Duration, gate []string) *Quick {
	return &Quick{
		validator: validator,
		window:    window,
		gate:      gate,
		now:       time.Now,
	}
}

// Check returns the cached result when fresh, otherwise runs the gate and, if
// it passes, the full strategy chain. Misses are cached too, so a logged-out
// state is not re-probed every call.
func (q *Quick) Check(ctx context.Context) QuickResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if !q.at.IsZero() && now.Sub(q.at) < q.window {
		res := q.cached
		res.FromCache = true
		return res
	}

	res := QuickResult{}
	if q.gatePasses() {
		full := q.validator.Check(ctx)
		res = QuickResult{LoggedIn: full.LoggedIn, Strategy: full.Strategy, UserInfo: full.UserInfo}
	}
	q.at = now
	q.cached = res
	return res
}

// gatePasses reports whether any gate field is present in the client's
// current tokens.
func (q *Quick) gatePasses() bool {
	fields := token.Parse(q.validator.client.CurrentTokens())
	return fields.HasAny(q.gate...)
}

// SyncCheck is the zero-network variant: it reports logged-in only when
// hasActive holds and the token gate passes. Callers that already know
// whether an active account exists pass that in.
func (q *Quick) SyncCheck(hasActive bool) bool {
	return hasActive && q.gatePasses()
}

// Invalidate drops the cached result so the next Check is fresh.
func (q *Quick) Invalidate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.at = time.Time{}
	q.cached = QuickResult{}
}

// SetClock replaces the time source. Tests use it to step the window.
func (q *Quick) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}
