package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redforge/redauth/internal/platform"
)

// stepClock is a manually advanced time source.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newQuickUnderTest(fc *fakeClient) (*Quick, *stepClock) {
	v := NewValidator(testValidatorConfig(), fc, nil)
	q := NewQuick(v, 10*time.Second, []string{"web_session", "webId", "xhsuid"})
	clock := &stepClock{now: time.Unix(1700000000, 0)}
	q.SetClock(clock.Now)
	return q, clock
}

func TestQuickCachesWithinWindow(t *testing.T) {
	fc := &fakeClient{identity: platform.Identity{Nickname: "cached-user"}, tokens: "web_session=x"}
	q, clock := newQuickUnderTest(fc)
	ctx := context.Background()

	first := q.Check(ctx)
	if first.FromCache || !first.LoggedIn {
		t.Fatalf("expected fresh logged-in result, got %+v", first)
	}

	clock.Advance(5 * time.Second)
	second := q.Check(ctx)
	if !second.FromCache {
		t.Fatal("expected cached result within window")
	}
	if fc.whoAmICalls != 1 {
		t.Fatalf("expected exactly one network check, got %d", fc.whoAmICalls)
	}
}

func TestQuickRefreshesAfterWindow(t *testing.T) {
	fc := &fakeClient{identity: platform.Identity{Nickname: "user"}, tokens: "web_session=x"}
	q, clock := newQuickUnderTest(fc)
	ctx := context.Background()

	q.Check(ctx)
	clock.Advance(11 * time.Second)

	res := q.Check(ctx)
	if res.FromCache {
		t.Fatal("expected fresh result after window expiry")
	}
	if fc.whoAmICalls != 2 {
		t.Fatalf("expected second network check, got %d", fc.whoAmICalls)
	}
}

func TestQuickGateBlocksWithoutTokens(t *testing.T) {
	fc := &fakeClient{identity: platform.Identity{Nickname: "user"}, tokens: ""}
	q, _ := newQuickUnderTest(fc)

	res := q.Check(context.Background())
	if res.LoggedIn {
		t.Fatalf("expected logged out without gate tokens, got %+v", res)
	}
	if fc.whoAmICalls != 0 {
		t.Fatal("gate miss must not reach the network")
	}
}

func TestQuickCachesMisses(t *testing.T) {
	fc := &fakeClient{whoAmIErr: errors.New("down"), pageErr: errors.New("down"), tokens: ""}
	q, clock := newQuickUnderTest(fc)
	ctx := context.Background()

	q.Check(ctx)
	clock.Advance(time.Second)

	res := q.Check(ctx)
	if !res.FromCache {
		t.Fatal("expected miss served from cache")
	}
	if res.LoggedIn {
		t.Fatalf("expected cached miss, got %+v", res)
	}
}

func TestQuickInvalidateForcesFreshCheck(t *testing.T) {
	fc := &fakeClient{identity: platform.Identity{Nickname: "user"}, tokens: "web_session=x"}
	q, _ := newQuickUnderTest(fc)
	ctx := context.Background()

	q.Check(ctx)
	q.Invalidate()

	res := q.Check(ctx)
	if res.FromCache {
		t.Fatal("expected fresh check after invalidate")
	}
	if fc.whoAmICalls != 2 {
		t.Fatalf("expected two network checks, got %d", fc.whoAmICalls)
	}
}

func TestSyncCheck(t *testing.T) {
	fc := &fakeClient{tokens: "web_session=x"}
	q, _ := newQuickUnderTest(fc)

	if !q.SyncCheck(true) {
		t.Fatal("expected sync check pass with active account and gate tokens")
	}
	if q.SyncCheck(false) {
		t.Fatal("expected sync check fail without active account")
	}

	fc.tokens = ""
	if q.SyncCheck(true) {
		t.Fatal("expected sync check fail without gate tokens")
	}
}
