package flows

import (
	"context"
	"time"

	"github.com/redforge/redauth/store"
)

// CredentialMetrics carries metric IDs needed by the credential login flow.
type CredentialMetrics struct {
	LoginSuccess   int
	LoginFailure   int
	SessionExpired int
}

// CredentialEvents carries audit event names used by the credential login flow.
type CredentialEvents struct {
	LoginSuccess string
	LoginFailure string
}

// CredentialStatuses carries the host status values the flow reports.
type CredentialStatuses struct {
	LoggedIn       uint8
	LoginFailed    uint8
	SessionExpired uint8
}

// CredentialErrors carries host-level sentinel errors used by the flow.
type CredentialErrors struct {
	NoCredentials error
}

// CredentialDeps captures credential login dependencies.
type CredentialDeps struct {
	Now func() time.Time

	GetAccount func(ctx context.Context, id string) (*store.Account, error)
	GetActive  func(ctx context.Context) (*store.Account, error)

	Preflight   func(raw string, now time.Time) error
	ApplyTokens func(raw string) error
	SettleDelay func(ctx context.Context) error
	Check       func(ctx context.Context) CheckOutcome

	SaveAccount func(ctx context.Context, account *store.Account) error
	SetActive   func(ctx context.Context, id string) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID, phone string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics  CredentialMetrics
	Events   CredentialEvents
	Statuses CredentialStatuses
	Errors   CredentialErrors
}

// RunCredentialLogin restores a stored account's session: load the account,
// pre-flight its tokens locally, apply them to the platform client and confirm
// with a live check. An empty accountID targets the active account.
//
// Pre-flight failure short-circuits to a session-expired result without any
// network traffic. A live check miss also reports session-expired, since the
// stored tokens were the only credential in play.
func RunCredentialLogin(ctx context.Context, accountID string, deps CredentialDeps) Result {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.GetAccount == nil || deps.GetActive == nil || deps.Preflight == nil ||
		deps.ApplyTokens == nil || deps.Check == nil || deps.SaveAccount == nil || deps.SetActive == nil {
		return Result{Status: deps.Statuses.LoginFailed, Message: "service not ready"}
	}

	var (
		account *store.Account
		err     error
	)
	if accountID != "" {
		account, err = deps.GetAccount(ctx, accountID)
	} else {
		account, err = deps.GetActive(ctx)
	}
	if err != nil || account == nil || account.SessionTokens == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, accountID, "", deps.Errors.NoCredentials, func() map[string]string {
			return map[string]string{"reason": "no_stored_credentials"}
		})
		return Result{Status: deps.Statuses.LoginFailed, Message: "no stored credentials"}
	}

	now := deps.Now()
	if err := deps.Preflight(account.SessionTokens, now); err != nil {
		deps.MetricInc(deps.Metrics.SessionExpired)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, account.ID, account.Phone, err, func() map[string]string {
			return map[string]string{"reason": "preflight"}
		})
		return Result{Status: deps.Statuses.SessionExpired, Message: "stored credentials expired", Account: account}
	}

	if err := deps.ApplyTokens(account.SessionTokens); err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, account.ID, account.Phone, err, nil)
		return Result{Status: deps.Statuses.LoginFailed, Message: "could not apply credentials"}
	}
	if deps.SettleDelay != nil {
		if err := deps.SettleDelay(ctx); err != nil {
			return Result{Status: deps.Statuses.LoginFailed, Message: "login cancelled"}
		}
	}

	outcome := deps.Check(ctx)
	if !outcome.LoggedIn {
		deps.MetricInc(deps.Metrics.SessionExpired)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, account.ID, account.Phone, nil, func() map[string]string {
			return map[string]string{"reason": "live_check_rejected"}
		})
		return Result{Status: deps.Statuses.SessionExpired, Message: "stored credentials rejected", Account: account}
	}

	account.LastLoginAt = now
	account.LoginCount++
	account.Active = true
	if outcome.Nickname != "" {
		account.Nickname = outcome.Nickname
	}
	if outcome.Avatar != "" {
		account.Avatar = outcome.Avatar
	}
	if err := deps.SaveAccount(ctx, account); err != nil {
		deps.Warn("account save after login failed", err)
	}
	if err := deps.SetActive(ctx, account.ID); err != nil {
		deps.Warn("marking account active failed", err)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, account.ID, account.Phone, nil, func() map[string]string {
		return map[string]string{"method": string(account.LoginMethod)}
	})
	return Result{Success: true, Status: deps.Statuses.LoggedIn, Message: "login successful", Account: account}
}
