// Package pacing provides humanized timing and request-identity rotation for
// traffic aimed at the platform: randomized settle delays, per-keystroke
// typing cadence, and user-agent selection.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// DefaultUserAgents is the rotation pool used when the host supplies none.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

// Pacer draws randomized delays and user agents. Safe for concurrent use.
type Pacer struct {
	mu         sync.Mutex
	rng        *rand.Rand
	userAgents []string
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a Pacer seeded from seed; pass a fixed seed in tests for
// deterministic sequences. An empty agents slice falls back to
// DefaultUserAgents.
func New(seed int64, agents []string) *Pacer {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return &Pacer{
		rng:        rand.New(rand.NewSource(seed)),
		userAgents: agents,
		sleep:      sleepCtx,
	}
}

// SetSleeper replaces the sleep implementation. Tests use it to make delays
// instantaneous.
func (p *Pacer) SetSleeper(fn func(ctx context.Context, d time.Duration) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sleep = fn
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pacer) duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rng.Int63n(int64(max-min+1)))
}

// Delay blocks for a uniformly random duration in [min, max], or until ctx is
// cancelled.
func (p *Pacer) Delay(ctx context.Context, min, max time.Duration) error {
	p.mu.Lock()
	sleep := p.sleep
	p.mu.Unlock()
	return sleep(ctx, p.duration(min, max))
}

// TypeDelays returns one randomized inter-keystroke delay per rune of text,
// simulating human typing cadence.
func (p *Pacer) TypeDelays(text string, min, max time.Duration) []time.Duration {
	runes := []rune(text)
	delays := make([]time.Duration, len(runes))
	for i := range runes {
		delays[i] = p.duration(min, max)
	}
	return delays
}

// UserAgent returns a random agent from the pool.
func (p *Pacer) UserAgent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userAgents[p.rng.Intn(len(p.userAgents))]
}
