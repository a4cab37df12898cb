package flows

import (
	"context"
	"time"

	"github.com/redforge/redauth/store"
)

// CaptureErrors carries host-level sentinel errors used by the capture flow.
type CaptureErrors struct {
	NotLoggedIn error
}

// CaptureDeps captures session capture dependencies.
type CaptureDeps struct {
	Now func() time.Time

	CurrentTokens func() string
	Check         func(ctx context.Context) CheckOutcome

	FindByPhone func(ctx context.Context, phone string) (*store.Account, error)
	NewID       func() string
	SaveAccount func(ctx context.Context, account *store.Account) error
	SetActive   func(ctx context.Context, id string) error

	Warn func(string, ...any)

	Errors CaptureErrors
}

// RunCaptureSession persists whatever session the platform client currently
// holds as an account record. seed supplies fields the live check cannot
// provide, like the phone number. Fails when the client is not logged in or
// holds no tokens.
func RunCaptureSession(ctx context.Context, seed store.Account, deps CaptureDeps) (*store.Account, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	tokens := deps.CurrentTokens()
	outcome := deps.Check(ctx)
	if !outcome.LoggedIn || tokens == "" {
		return nil, deps.Errors.NotLoggedIn
	}

	nickname := outcome.Nickname
	if nickname == "" {
		nickname = seed.Nickname
	}
	avatar := outcome.Avatar
	if avatar == "" {
		avatar = seed.Avatar
	}
	method := seed.LoginMethod
	if method == "" {
		method = store.MethodCredential
	}

	return persistSession(ctx, persistInput{
		Phone:    seed.Phone,
		Tokens:   tokens,
		Nickname: nickname,
		Avatar:   avatar,
		Method:   method,
	}, persistDeps{
		Now:         deps.Now,
		FindByPhone: deps.FindByPhone,
		NewID:       deps.NewID,
		SaveAccount: deps.SaveAccount,
		SetActive:   deps.SetActive,
		Warn:        deps.Warn,
	})
}
