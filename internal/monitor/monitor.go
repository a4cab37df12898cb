// Package monitor watches the live session in the background. Two pollers
// share the work: a full checker on a slow cadence that runs the whole
// strategy chain and refreshes stored user info, and a quick watcher on a
// faster cadence that serves from the probe cache. Poller errors are reported
// and logged, never fatal; the monitor keeps polling until stopped.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/redforge/redauth/internal/probe"
	"github.com/redforge/redauth/store"
)

// Statuses carries the host status values the monitor reports.
type Statuses struct {
	LoggedIn    uint8
	NotLoggedIn uint8
	LoginFailed uint8
}

// Config tunes the polling cadences.
type Config struct {
	FullInterval  time.Duration
	QuickInterval time.Duration
}

// Deps captures monitor dependencies.
type Deps struct {
	Check      func(ctx context.Context) probe.Result
	QuickCheck func(ctx context.Context) probe.QuickResult

	GetActive   func(ctx context.Context) (*store.Account, error)
	SaveAccount func(ctx context.Context, account *store.Account) error

	// OnStatus receives every poll outcome. Called from poller goroutines.
	OnStatus func(status uint8, account *store.Account)

	Statuses Statuses
}

// Monitor runs the pollers. Start and Stop are idempotent.
type Monitor struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	fullBusy  atomic.Bool
	quickBusy atomic.Bool
}

// New creates a Monitor. A nil logger disables logging.
func New(cfg Config, deps Deps, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FullInterval <= 0 {
		cfg.FullInterval = 30 * time.Second
	}
	if cfg.QuickInterval <= 0 {
		cfg.QuickInterval = 15 * time.Second
	}
	return &Monitor{cfg: cfg, deps: deps, log: log}
}

// Start launches both pollers. A second Start while running is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	var wg sync.WaitGroup
	wg.Add(2)
	go m.loop(ctx, &wg, m.cfg.FullInterval, &m.fullBusy, m.fullPoll)
	go m.loop(ctx, &wg, m.cfg.QuickInterval, &m.quickBusy, m.quickPoll)
	go func(done chan struct{}) {
		wg.Wait()
		close(done)
	}(m.done)

	m.log.Info("session monitor started",
		zap.Duration("full_interval", m.cfg.FullInterval),
		zap.Duration("quick_interval", m.cfg.QuickInterval))
}

// Stop halts both pollers and waits for in-flight polls to finish. A Stop
// while not running is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.log.Info("session monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, wg *sync.WaitGroup, every time.Duration, busy *atomic.Bool, poll func(ctx context.Context)) {
	defer wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Skip the tick if the previous poll is still running.
			if !busy.CompareAndSwap(false, true) {
				continue
			}
			poll(ctx)
			busy.Store(false)
		}
	}
}

// fullPoll runs the whole strategy chain and, on a hit, merges freshly
// observed user info into the active account.
func (m *Monitor) fullPoll(ctx context.Context) {
	res := m.deps.Check(ctx)
	if ctx.Err() != nil {
		return
	}
	if !res.LoggedIn {
		m.notify(m.deps.Statuses.NotLoggedIn, nil)
		return
	}

	account, err := m.deps.GetActive(ctx)
	if err != nil {
		m.notify(m.deps.Statuses.LoggedIn, nil)
		return
	}
	if merged := mergeUserInfo(account, res.UserInfo); merged {
		if err := m.deps.SaveAccount(ctx, account); err != nil {
			m.log.Warn("persisting refreshed user info failed", zap.Error(err))
		}
	}
	m.notify(m.deps.Statuses.LoggedIn, account)
}

func (m *Monitor) quickPoll(ctx context.Context) {
	res := m.deps.QuickCheck(ctx)
	if ctx.Err() != nil {
		return
	}
	if !res.LoggedIn {
		m.notify(m.deps.Statuses.NotLoggedIn, nil)
		return
	}
	account, err := m.deps.GetActive(ctx)
	if err != nil {
		account = nil
	}
	m.notify(m.deps.Statuses.LoggedIn, account)
}

func (m *Monitor) notify(status uint8, account *store.Account) {
	if m.deps.OnStatus == nil {
		return
	}
	m.deps.OnStatus(status, account)
}

// mergeUserInfo folds observed identity into the account, reporting whether
// anything changed.
func mergeUserInfo(account *store.Account, info probe.UserInfo) bool {
	changed := false
	if info.Nickname != "" && info.Nickname != account.Nickname {
		account.Nickname = info.Nickname
		changed = true
	}
	if info.Avatar != "" && info.Avatar != account.Avatar {
		account.Avatar = info.Avatar
		changed = true
	}
	return changed
}
