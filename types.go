package redauth

import (
	"io"

	internalaudit "github.com/redforge/redauth/internal/audit"
	"github.com/redforge/redauth/internal/probe"
	"github.com/redforge/redauth/internal/surface"
	"github.com/redforge/redauth/store"
)

// SessionStatus represents the lifecycle state of the platform session.
type SessionStatus uint8

const (
	// StatusNotLoggedIn is an exported constant or variable used by the session service.
	StatusNotLoggedIn SessionStatus = iota
	// StatusLoggingIn is an exported constant or variable used by the session service.
	StatusLoggingIn
	// StatusLoggedIn is an exported constant or variable used by the session service.
	StatusLoggedIn
	// StatusLoginFailed is an exported constant or variable used by the session service.
	StatusLoginFailed
	// StatusSessionExpired is an exported constant or variable used by the session service.
	StatusSessionExpired
)

// String implements fmt.Stringer.
func (s SessionStatus) String() string {
	switch s {
	case StatusNotLoggedIn:
		return "not_logged_in"
	case StatusLoggingIn:
		return "logging_in"
	case StatusLoggedIn:
		return "logged_in"
	case StatusLoginFailed:
		return "login_failed"
	case StatusSessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

// Account is the stored account record.
type Account = store.Account

// LoginMethod records how an account's session was obtained.
type LoginMethod = store.LoginMethod

const (
	// MethodCredential marks sessions restored from stored tokens.
	MethodCredential = store.MethodCredential
	// MethodOneTimeCode marks sessions obtained via a one-time code.
	MethodOneTimeCode = store.MethodOneTimeCode
)

// LoginResult is the outcome of any login operation.
type LoginResult struct {
	Success bool
	Status  SessionStatus
	Message string
	Account *Account
}

// ValidationResult is the outcome of a full session check.
type ValidationResult = probe.Result

// QuickCheckResult is the outcome of a cached session check.
type QuickCheckResult = probe.QuickResult

// ValidationStrategy names the check that produced a validation result.
type ValidationStrategy = probe.Strategy

const (
	// StrategyAPI is an exported constant or variable used by the session service.
	StrategyAPI = probe.StrategyAPI
	// StrategyPage is an exported constant or variable used by the session service.
	StrategyPage = probe.StrategyPage
	// StrategyTokens is an exported constant or variable used by the session service.
	StrategyTokens = probe.StrategyTokens
)

// UserInfo is identity captured during a session check.
type UserInfo = probe.UserInfo

// Subscriber receives session status transitions. Called synchronously from
// the service; a panicking subscriber is recovered and logged.
type Subscriber func(status SessionStatus, account *Account)

// Surface is a browsing context the one-time-code flow can drive.
type Surface = surface.Surface

// SurfaceOpener creates login surfaces on demand.
type SurfaceOpener = surface.Opener

// SurfaceOpenerFunc adapts a function to SurfaceOpener.
type SurfaceOpenerFunc = surface.OpenerFunc

// SurfaceMessage is a typed cross-context message from a surface.
type SurfaceMessage = surface.Message

// AuditEvent is the structured audit record emitted by the service.
type AuditEvent = internalaudit.Event

// AuditSink receives emitted audit events.
type AuditSink = internalaudit.Sink

// AuditChannelSink buffers audit events in a channel.
type AuditChannelSink = internalaudit.ChannelSink

// NewAuditChannelSink creates a channel sink with the given buffer.
func NewAuditChannelSink(buffer int) *AuditChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewAuditJSONWriterSink creates a sink writing one JSON event per line.
func NewAuditJSONWriterSink(w io.Writer) AuditSink {
	return internalaudit.NewJSONWriterSink(w)
}

// Audit event names emitted by the service.
const (
	AuditCredentialLoginSuccess = "credential_login_success"
	AuditCredentialLoginFailure = "credential_login_failure"
	AuditCodeLoginSuccess       = "code_login_success"
	AuditCodeLoginFailure       = "code_login_failure"
	AuditCodeSent               = "code_sent"
	AuditAccountSwitched        = "account_switched"
	AuditAccountDeleted         = "account_deleted"
	AuditLogout                 = "logout"
	AuditMonitorTransition      = "monitor_transition"
	AuditAccountsExported       = "accounts_exported"
)
