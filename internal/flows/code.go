package flows

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/redforge/redauth/store"
)

var phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// ValidPhone reports whether phone is an acceptable mobile number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// SurfaceOutcome is what an interactive login surface run produces.
type SurfaceOutcome struct {
	Success  bool
	Tokens   string
	Nickname string
	Avatar   string
	Message  string
}

// CodeMetrics carries metric IDs needed by the one-time-code login flow.
type CodeMetrics struct {
	LoginSuccess int
	LoginFailure int
	CodeSent     int
	CodeSendFail int
}

// CodeEvents carries audit event names used by the one-time-code login flow.
type CodeEvents struct {
	LoginSuccess string
	LoginFailure string
	CodeSent     string
}

// CodeStatuses carries the host status values the flow reports.
type CodeStatuses struct {
	LoggedIn    uint8
	LoginFailed uint8
}

// CodeErrors carries host-level sentinel errors used by the flow.
type CodeErrors struct {
	InvalidPhone error
	Cancelled    error
	Timeout      error
}

// CodeDeps captures one-time-code login dependencies.
type CodeDeps struct {
	Now     func() time.Time
	Timeout time.Duration

	// VerifyCode exchanges phone and code directly against the code API.
	VerifyCode func(ctx context.Context, phone, code string) (CheckOutcome, error)
	// RunSurface drives the interactive login surface for phone.
	RunSurface func(ctx context.Context, phone string) (SurfaceOutcome, error)
	// IsCancelled classifies a RunSurface error as user dismissal.
	IsCancelled func(error) bool

	SendCode      func(ctx context.Context, phone string) error
	CurrentTokens func() string
	ApplyTokens   func(raw string) error

	FindByPhone func(ctx context.Context, phone string) (*store.Account, error)
	NewID       func() string
	SaveAccount func(ctx context.Context, account *store.Account) error
	SetActive   func(ctx context.Context, id string) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID, phone string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics  CodeMetrics
	Events   CodeEvents
	Statuses CodeStatuses
	Errors   CodeErrors
}

// RunSendCode requests a one-time code for phone.
func RunSendCode(ctx context.Context, phone string, deps CodeDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if !ValidPhone(phone) {
		return deps.Errors.InvalidPhone
	}
	if err := deps.SendCode(ctx, phone); err != nil {
		deps.MetricInc(deps.Metrics.CodeSendFail)
		return err
	}
	deps.MetricInc(deps.Metrics.CodeSent)
	deps.EmitAudit(ctx, deps.Events.CodeSent, true, "", phone, nil, nil)
	return nil
}

// RunCodeLogin performs a one-time-code login. With code set, the exchange
// happens directly against the code API. With code empty, the interactive
// surface is opened and the user completes the code entry there. Either path
// is bounded by the flow timeout, and a dismissed surface reports a cancelled
// result rather than an error.
func RunCodeLogin(ctx context.Context, phone, code string, deps CodeDeps) Result {
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
	if deps.IsCancelled == nil {
		deps.IsCancelled = func(error) bool { return false }
	}

	if !ValidPhone(phone) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", phone, deps.Errors.InvalidPhone, func() map[string]string {
			return map[string]string{"reason": "invalid_phone"}
		})
		return Result{Status: deps.Statuses.LoginFailed, Message: "invalid phone number"}
	}

	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		tokens   string
		nickname string
		avatar   string
	)
	if code != "" {
		outcome, err := deps.VerifyCode(ctx, phone, code)
		if err != nil {
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", phone, err, func() map[string]string {
				return map[string]string{"reason": "code_rejected"}
			})
			return Result{Status: deps.Statuses.LoginFailed, Message: "code verification failed"}
		}
		tokens = deps.CurrentTokens()
		nickname, avatar = outcome.Nickname, outcome.Avatar
	} else {
		outcome, err := deps.RunSurface(ctx, phone)
		switch {
		case err != nil && deps.IsCancelled(err):
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", phone, deps.Errors.Cancelled, nil)
			return Result{Status: deps.Statuses.LoginFailed, Message: "login cancelled by user"}
		case err != nil && errors.Is(err, context.DeadlineExceeded):
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", phone, deps.Errors.Timeout, nil)
			return Result{Status: deps.Statuses.LoginFailed, Message: "login timed out"}
		case err != nil:
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", phone, err, nil)
			return Result{Status: deps.Statuses.LoginFailed, Message: "login failed"}
		case !outcome.Success:
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", phone, nil, func() map[string]string {
				return map[string]string{"reason": "surface_reported_failure"}
			})
			msg := outcome.Message
			if msg == "" {
				msg = "login failed"
			}
			return Result{Status: deps.Statuses.LoginFailed, Message: msg}
		}
		tokens = outcome.Tokens
		nickname, avatar = outcome.Nickname, outcome.Avatar
		if deps.ApplyTokens != nil {
			if err := deps.ApplyTokens(tokens); err != nil {
				deps.Warn("applying captured tokens failed", err)
			}
		}
	}

	account, err := persistSession(ctx, persistInput{
		Phone:    phone,
		Tokens:   tokens,
		Nickname: nickname,
		Avatar:   avatar,
		Method:   store.MethodOneTimeCode,
	}, persistDeps{
		Now:         deps.Now,
		FindByPhone: deps.FindByPhone,
		NewID:       deps.NewID,
		SaveAccount: deps.SaveAccount,
		SetActive:   deps.SetActive,
		Warn:        deps.Warn,
	})
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", phone, err, func() map[string]string {
			return map[string]string{"reason": "persist_failed"}
		})
		return Result{Status: deps.Statuses.LoginFailed, Message: "could not save login"}
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, account.ID, phone, nil, func() map[string]string {
		return map[string]string{"method": string(store.MethodOneTimeCode)}
	})
	return Result{Success: true, Status: deps.Statuses.LoggedIn, Message: "login successful", Account: account}
}

type persistInput struct {
	Phone    string
	Tokens   string
	Nickname string
	Avatar   string
	Method   store.LoginMethod
}

type persistDeps struct {
	Now         func() time.Time
	FindByPhone func(ctx context.Context, phone string) (*store.Account, error)
	NewID       func() string
	SaveAccount func(ctx context.Context, account *store.Account) error
	SetActive   func(ctx context.Context, id string) error
	Warn        func(string, ...any)
}

// persistSession upserts the account for a freshly captured session, reusing
// the existing record for the same phone so the login count survives.
func persistSession(ctx context.Context, in persistInput, deps persistDeps) (*store.Account, error) {
	account := &store.Account{
		Phone:       in.Phone,
		Nickname:    in.Nickname,
		Avatar:      in.Avatar,
		LoginMethod: in.Method,
	}
	if in.Phone != "" && deps.FindByPhone != nil {
		if existing, err := deps.FindByPhone(ctx, in.Phone); err == nil && existing != nil {
			account.ID = existing.ID
			account.LoginCount = existing.LoginCount
			if account.Nickname == "" {
				account.Nickname = existing.Nickname
			}
			if account.Avatar == "" {
				account.Avatar = existing.Avatar
			}
		}
	}
	if account.ID == "" {
		account.ID = deps.NewID()
	}
	if account.Nickname == "" {
		account.Nickname = "unknown user"
	}
	account.SessionTokens = in.Tokens
	account.LastLoginAt = deps.Now()
	account.LoginCount++
	account.Active = true

	if err := deps.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	if err := deps.SetActive(ctx, account.ID); err != nil {
		deps.Warn("marking account active failed", err)
	}
	return account, nil
}
