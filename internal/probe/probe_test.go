package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redforge/redauth/internal/markers"
	"github.com/redforge/redauth/internal/platform"
)

// fakeClient scripts the three signals the validator consults.
type fakeClient struct {
	identity    platform.Identity
	whoAmIErr   error
	whoAmICalls int

	page      string
	pageErr   error
	pageCalls int

	tokens  string
	applied string
}

func (f *fakeClient) WhoAmI(_ context.Context) (platform.Identity, error) {
	f.whoAmICalls++
	if f.whoAmIErr != nil {
		return platform.Identity{}, f.whoAmIErr
	}
	return f.identity, nil
}

func (f *fakeClient) FetchPage(_ context.Context, _ string) (string, error) {
	f.pageCalls++
	if f.pageErr != nil {
		return "", f.pageErr
	}
	return f.page, nil
}

func (f *fakeClient) CurrentTokens() string { return f.tokens }

func (f *fakeClient) ApplyTokens(raw string) error {
	f.applied = raw
	f.tokens = raw
	return nil
}

func testValidatorConfig() Config {
	return Config{
		PageURL:     "https://creator.example.com",
		PageTimeout: time.Second,
		Markers: markers.Config{
			LoggedIn: []string{".user-info"},
			Nickname: []string{".nickname"},
		},
		HeuristicFields: []string{"web_session", "xhsuid", "sessionid"},
	}
}

func TestCheckAPIStrategyWins(t *testing.T) {
	fc := &fakeClient{identity: platform.Identity{Nickname: "api-user"}}
	v := NewValidator(testValidatorConfig(), fc, nil)

	res := v.Check(context.Background())

	if !res.LoggedIn || res.Strategy != StrategyAPI {
		t.Fatalf("expected API strategy hit, got %+v", res)
	}
	if res.UserInfo.Nickname != "api-user" {
		t.Fatalf("expected identity carried through, got %q", res.UserInfo.Nickname)
	}
	if fc.pageCalls != 0 {
		t.Fatal("page strategy must not run when API succeeds")
	}
}

func TestCheckFallsBackToPageMarkers(t *testing.T) {
	fc := &fakeClient{
		whoAmIErr: errors.New("identity endpoint down"),
		page:      `<div class="user-info"><span class="nickname">page-user</span></div>`,
	}
	v := NewValidator(testValidatorConfig(), fc, nil)

	res := v.Check(context.Background())

	if !res.LoggedIn || res.Strategy != StrategyPage {
		t.Fatalf("expected page strategy hit, got %+v", res)
	}
	if res.UserInfo.Nickname != "page-user" {
		t.Fatalf("expected nickname from markers, got %q", res.UserInfo.Nickname)
	}
}

func TestCheckFallsBackToTokenHeuristic(t *testing.T) {
	fc := &fakeClient{
		whoAmIErr: errors.New("down"),
		pageErr:   errors.New("down"),
		tokens:    "web_session=alive",
	}
	v := NewValidator(testValidatorConfig(), fc, nil)

	res := v.Check(context.Background())

	if !res.LoggedIn || res.Strategy != StrategyTokens {
		t.Fatalf("expected tokens strategy hit, got %+v", res)
	}
	if res.UserInfo.Nickname != "" {
		t.Fatal("tokens strategy cannot produce user info")
	}
}

func TestCheckAllStrategiesMiss(t *testing.T) {
	fc := &fakeClient{
		whoAmIErr: errors.New("down"),
		pageErr:   errors.New("down"),
		tokens:    "unrelated=1",
	}
	v := NewValidator(testValidatorConfig(), fc, nil)

	res := v.Check(context.Background())

	if res.LoggedIn {
		t.Fatalf("expected logged out, got %+v", res)
	}
	if res.Strategy != StrategyTokens {
		t.Fatalf("expected tokens as last consulted strategy, got %s", res.Strategy)
	}
}

func TestCheckLoginPageIsNotLoggedIn(t *testing.T) {
	fc := &fakeClient{
		whoAmIErr: errors.New("down"),
		page:      `<form><input name="phone"></form>`,
	}
	v := NewValidator(testValidatorConfig(), fc, nil)

	if res := v.Check(context.Background()); res.LoggedIn && res.Strategy == StrategyPage {
		t.Fatalf("login page must not count as logged in, got %+v", res)
	}
}

func TestValidateTokensAppliesThenChecks(t *testing.T) {
	fc := &fakeClient{identity: platform.Identity{Nickname: "restored"}}
	v := NewValidator(testValidatorConfig(), fc, nil)

	res, err := v.ValidateTokens(context.Background(), "web_session=stored")
	if err != nil {
		t.Fatalf("validate tokens failed: %v", err)
	}
	if fc.applied != "web_session=stored" {
		t.Fatalf("expected tokens applied before check, got %q", fc.applied)
	}
	if !res.LoggedIn {
		t.Fatalf("expected logged in, got %+v", res)
	}
}
