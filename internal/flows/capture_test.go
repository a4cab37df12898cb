package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redforge/redauth/store"
)

func (h *flowHarness) captureDeps(tokens string) CaptureDeps {
	return CaptureDeps{
		Now:           func() time.Time { return h.now },
		CurrentTokens: func() string { return tokens },
		Check: func(_ context.Context) CheckOutcome {
			h.checkCalls++
			return h.checkResult
		},
		FindByPhone: func(_ context.Context, phone string) (*store.Account, error) {
			for _, a := range h.accounts {
				if a.Phone == phone {
					return a.Clone(), nil
				}
			}
			return nil, store.ErrNotFound
		},
		NewID: func() string { return "captured-id" },
		SaveAccount: func(_ context.Context, a *store.Account) error {
			h.saved = append(h.saved, a.Clone())
			h.accounts[a.ID] = a.Clone()
			return nil
		},
		SetActive: func(_ context.Context, id string) error {
			h.setActive = append(h.setActive, id)
			return nil
		},
		Errors: CaptureErrors{NotLoggedIn: errNotLoggedIn},
	}
}

func TestCaptureSessionNotLoggedIn(t *testing.T) {
	h := newFlowHarness()
	h.checkResult = CheckOutcome{LoggedIn: false}

	_, err := RunCaptureSession(context.Background(), store.Account{}, h.captureDeps("web_session=x"))
	if !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected not-logged-in error, got %v", err)
	}
}

func TestCaptureSessionNoTokens(t *testing.T) {
	h := newFlowHarness()
	h.checkResult = CheckOutcome{LoggedIn: true}

	_, err := RunCaptureSession(context.Background(), store.Account{}, h.captureDeps(""))
	if !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected not-logged-in error for empty tokens, got %v", err)
	}
}

func TestCaptureSessionPersistsCurrentSession(t *testing.T) {
	h := newFlowHarness()
	h.checkResult = CheckOutcome{LoggedIn: true, Nickname: "live-user"}

	account, err := RunCaptureSession(context.Background(), store.Account{
		Phone: "13800138000",
	}, h.captureDeps("web_session=live"))
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	if account.ID != "captured-id" {
		t.Fatalf("expected generated id, got %q", account.ID)
	}
	if account.Phone != "13800138000" {
		t.Fatalf("expected seed phone carried, got %q", account.Phone)
	}
	if account.Nickname != "live-user" {
		t.Fatalf("expected nickname from live check, got %q", account.Nickname)
	}
	if account.SessionTokens != "web_session=live" {
		t.Fatalf("expected current tokens persisted, got %q", account.SessionTokens)
	}
	if account.LoginMethod != store.MethodCredential {
		t.Fatalf("expected credential method default, got %q", account.LoginMethod)
	}
	if len(h.setActive) != 1 || h.setActive[0] != "captured-id" {
		t.Fatalf("expected captured account set active, got %v", h.setActive)
	}
}

func TestCaptureSessionSeedFillsGaps(t *testing.T) {
	h := newFlowHarness()
	h.checkResult = CheckOutcome{LoggedIn: true}

	account, err := RunCaptureSession(context.Background(), store.Account{
		Nickname:    "seed-name",
		Avatar:      "https://cdn.example.com/seed.png",
		LoginMethod: store.MethodOther,
	}, h.captureDeps("web_session=live"))
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	if account.Nickname != "seed-name" {
		t.Fatalf("expected seed nickname fallback, got %q", account.Nickname)
	}
	if account.Avatar != "https://cdn.example.com/seed.png" {
		t.Fatalf("expected seed avatar fallback, got %q", account.Avatar)
	}
	if account.LoginMethod != store.MethodOther {
		t.Fatalf("expected seed method kept, got %q", account.LoginMethod)
	}
}
