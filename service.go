package redauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	internalaudit "github.com/redforge/redauth/internal/audit"
	"github.com/redforge/redauth/internal/flows"
	"github.com/redforge/redauth/internal/markers"
	"github.com/redforge/redauth/internal/monitor"
	"github.com/redforge/redauth/internal/pacing"
	"github.com/redforge/redauth/internal/platform"
	"github.com/redforge/redauth/internal/probe"
	"github.com/redforge/redauth/internal/surface"
	"github.com/redforge/redauth/store"
	"github.com/redforge/redauth/token"

	"github.com/google/uuid"
)

// Service is the account session manager. Construct it through [Builder];
// the zero value is not usable. All methods are safe for concurrent use.
type Service struct {
	config Config
	log    *zap.Logger

	store     *store.Store
	client    *platform.Client
	pacer     *pacing.Pacer
	validator *probe.Validator
	quick     *probe.Quick
	monitor   *monitor.Monitor
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	opener    surface.Opener
	interp    *surface.Interpreter

	flows flows.Deps
	group singleflight.Group

	mu      sync.Mutex
	status  SessionStatus
	subs    map[int]Subscriber
	nextSub int
	closed  bool
}

/*
====================================
LOGIN OPERATIONS
====================================
*/

// LoginWithCredential restores a stored account's session from its saved
// tokens. An empty accountID targets the active account. Concurrent calls
// for the same account share one in-flight attempt and receive its result.
func (s *Service) LoginWithCredential(ctx context.Context, accountID string) (*LoginResult, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	v, err, _ := s.group.Do("credential:"+accountID, func() (interface{}, error) {
		s.setStatus(StatusLoggingIn, nil)
		res := flows.RunCredentialLogin(ctx, accountID, s.flows.Credential)
		out := s.fromFlowResult(res)
		s.quick.Invalidate()
		s.setStatus(out.Status, out.Account)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*LoginResult), nil
}

// LoginWithCode performs a one-time-code login for phone. With code set, the
// exchange goes directly to the code API; with code empty, the configured
// login surface is opened and the user completes code entry there, bounded by
// the code timeout. Concurrent calls for the same phone share one attempt.
func (s *Service) LoginWithCode(ctx context.Context, phone, code string) (*LoginResult, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	v, err, _ := s.group.Do("code:"+phone, func() (interface{}, error) {
		s.setStatus(StatusLoggingIn, nil)
		res := flows.RunCodeLogin(ctx, phone, code, s.flows.Code)
		out := s.fromFlowResult(res)
		s.quick.Invalidate()
		s.setStatus(out.Status, out.Account)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*LoginResult), nil
}

// SendCode requests a one-time code for phone.
func (s *Service) SendCode(ctx context.Context, phone string) error {
	if s.isClosed() {
		return ErrServiceClosed
	}
	return flows.RunSendCode(ctx, phone, s.flows.Code)
}

// SmartLogin picks the cheapest login that can work: the active account's
// stored tokens first, then the stored tokens of the account registered under
// phone, then an interactive one-time-code login. With no phone and no usable
// stored tokens it reports failure without opening a surface.
func (s *Service) SmartLogin(ctx context.Context, phone string) (*LoginResult, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}

	if active, err := s.store.GetActive(ctx); err == nil {
		res, err := s.LoginWithCredential(ctx, active.ID)
		if err != nil {
			return nil, err
		}
		if res.Success {
			return res, nil
		}
		s.log.Debug("active account credential login failed, trying alternatives")
	}

	if phone != "" {
		if byPhone, err := s.store.FindByPhone(ctx, phone); err == nil {
			res, err := s.LoginWithCredential(ctx, byPhone.ID)
			if err != nil {
				return nil, err
			}
			if res.Success {
				return res, nil
			}
		}
		return s.LoginWithCode(ctx, phone, "")
	}

	return &LoginResult{
		Status:  StatusLoginFailed,
		Message: "no usable login method, provide a phone number for code login",
	}, nil
}

// Refresh re-validates the active account's session by re-running the
// credential login. With no active account it reports not-logged-in.
func (s *Service) Refresh(ctx context.Context) (*LoginResult, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	active, err := s.store.GetActive(ctx)
	if err != nil {
		s.setStatus(StatusNotLoggedIn, nil)
		return &LoginResult{Status: StatusNotLoggedIn, Message: "not logged in"}, nil
	}
	return s.LoginWithCredential(ctx, active.ID)
}

/*
====================================
ACCOUNT OPERATIONS
====================================
*/

// SwitchAccount logs the current session out and restores the target
// account's session from its stored tokens.
func (s *Service) SwitchAccount(ctx context.Context, accountID string) (*LoginResult, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	if _, err := s.store.Get(ctx, accountID); err != nil {
		return &LoginResult{Status: StatusLoginFailed, Message: "account not found"}, nil
	}
	if err := s.Logout(ctx); err != nil {
		return nil, err
	}
	res, err := s.LoginWithCredential(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if res.Success {
		s.metrics.Inc(MetricAccountSwitched)
		s.emitAudit(ctx, AuditAccountSwitched, true, accountID, "", nil, nil)
	}
	return res, nil
}

// DeleteAccount removes an account from the registry. Deleting the active
// account logs the session out first.
func (s *Service) DeleteAccount(ctx context.Context, accountID string) error {
	if s.isClosed() {
		return ErrServiceClosed
	}
	if active, err := s.store.GetActive(ctx); err == nil && active.ID == accountID {
		if err := s.Logout(ctx); err != nil {
			return err
		}
	}
	if err := s.store.Delete(ctx, accountID); err != nil {
		return err
	}
	s.metrics.Inc(MetricAccountDeleted)
	s.emitAudit(ctx, AuditAccountDeleted, true, accountID, "", nil, nil)
	return nil
}

// Logout clears the live session's tokens, unmarks the active account and
// reports not-logged-in. The account record itself is kept.
func (s *Service) Logout(ctx context.Context) error {
	if s.isClosed() {
		return ErrServiceClosed
	}
	if err := s.client.ClearTokens(); err != nil {
		return err
	}
	if err := s.store.ClearActive(ctx); err != nil {
		return err
	}
	s.quick.Invalidate()
	s.metrics.Inc(MetricLogout)
	s.emitAudit(ctx, AuditLogout, true, "", "", nil, nil)
	s.setStatus(StatusNotLoggedIn, nil)
	return nil
}

// ActiveAccount returns the account currently marked active.
func (s *Service) ActiveAccount(ctx context.Context) (*Account, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	return s.store.GetActive(ctx)
}

// Accounts returns every stored account.
func (s *Service) Accounts(ctx context.Context) ([]*Account, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	return s.store.GetAll(ctx), nil
}

// CaptureCurrentSession persists whatever session the platform client holds
// right now as an account record. seed supplies fields a live check cannot
// observe, like the phone number.
func (s *Service) CaptureCurrentSession(ctx context.Context, seed Account) (*Account, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	account, err := flows.RunCaptureSession(ctx, seed, s.flows.Capture)
	if err != nil {
		return nil, err
	}
	s.quick.Invalidate()
	s.setStatus(StatusLoggedIn, account)
	return account, nil
}

// exportEnvelope is the account export format. Session tokens are redacted.
type exportEnvelope struct {
	Version    string     `json:"version"`
	ExportTime time.Time  `json:"exportTime"`
	Accounts   []*Account `json:"accounts"`
}

// ExportAccounts serializes all stored accounts as indented JSON with every
// session token replaced by "***".
func (s *Service) ExportAccounts(ctx context.Context) (string, error) {
	if s.isClosed() {
		return "", ErrServiceClosed
	}
	accounts := s.store.GetAll(ctx)
	for _, a := range accounts {
		a.SessionTokens = "***"
	}
	data, err := json.MarshalIndent(exportEnvelope{
		Version:    "1.0",
		ExportTime: time.Now().UTC(),
		Accounts:   accounts,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	s.metrics.Inc(MetricAccountsExported)
	s.emitAudit(ctx, AuditAccountsExported, true, "", "", nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprintf("%d", len(accounts))}
	})
	return string(data), nil
}

/*
====================================
SESSION CHECKS
====================================
*/

// CheckSession runs the full validation strategy chain against the current
// session, bypassing the quick-check cache.
func (s *Service) CheckSession(ctx context.Context) ValidationResult {
	start := time.Now()
	res := s.validator.Check(ctx)
	s.metrics.Observe(MetricCheckLatency, time.Since(start))
	return res
}

// QuickCheck returns the cached session state, refreshing it when the cache
// window has passed.
func (s *Service) QuickCheck(ctx context.Context) QuickCheckResult {
	res := s.quick.Check(ctx)
	if res.FromCache {
		s.metrics.Inc(MetricQuickCacheHits)
	}
	return res
}

// SyncCheck reports the session state using only local data: an active
// account must exist and the gate token fields must be present. No network.
func (s *Service) SyncCheck(ctx context.Context) bool {
	_, err := s.store.GetActive(ctx)
	return s.quick.SyncCheck(err == nil)
}

/*
====================================
STATUS AND SUBSCRIPTIONS
====================================
*/

// Status returns the last observed session status.
func (s *Service) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe registers fn for status transitions and returns its unsubscribe
// function. Subscribers run synchronously on the goroutine that caused the
// transition; panics are recovered and logged.
func (s *Service) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Service) setStatus(status SessionStatus, account *Account) {
	s.mu.Lock()
	s.status = status
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		s.notify(fn, status, account)
	}
}

func (s *Service) notify(fn Subscriber, status SessionStatus, account *Account) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("subscriber panicked", zap.Any("panic", r))
		}
	}()
	if account != nil {
		account = account.Clone()
	}
	fn(status, account)
}

/*
====================================
INTROSPECTION AND LIFECYCLE
====================================
*/

// MetricsSnapshot returns a copy of all counters and histograms.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// MetricValue returns one counter's current value.
func (s *Service) MetricValue(id MetricID) uint64 {
	return s.metrics.Value(id)
}

// AuditDropped reports how many audit events were dropped by the dispatcher.
func (s *Service) AuditDropped() uint64 {
	return s.audit.Dropped()
}

// Close stops the monitor, flushes the audit dispatcher and rejects further
// calls. Idempotent.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.monitor != nil {
		s.monitor.Stop()
	}
	s.audit.Close()
	s.log.Info("session service closed")
	return nil
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

/*
====================================
INTERNAL WIRING
====================================
*/

func (s *Service) fromFlowResult(res flows.Result) *LoginResult {
	return &LoginResult{
		Success: res.Success,
		Status:  SessionStatus(res.Status),
		Message: res.Message,
		Account: res.Account,
	}
}

func (s *Service) emitAudit(ctx context.Context, event string, success bool, accountID, phone string, cause error, meta func() map[string]string) {
	if s.audit == nil {
		return
	}
	e := AuditEvent{
		Timestamp: time.Now(),
		EventType: event,
		AccountID: accountID,
		Phone:     phone,
		Success:   success,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if meta != nil {
		e.Metadata = meta()
	}
	s.audit.Emit(ctx, e)
}

// markerConfig builds the scan config shared by the probe and the surface
// routine.
func (s *Service) markerConfig() markers.Config {
	return markers.Config{
		LoggedIn:  s.config.Selectors.LoggedInMarkers,
		Nickname:  s.config.Selectors.Nickname,
		Avatar:    s.config.Selectors.Avatar,
		ErrorText: s.config.Selectors.ErrorText,
	}
}

// runSurface opens the login surface, drives the automation routine and in
// parallel listens for messages the surface posts itself. The first
// authoritative outcome wins. A dismissed surface surfaces ErrLoginCancelled.
func (s *Service) runSurface(ctx context.Context, phone string) (flows.SurfaceOutcome, error) {
	if s.opener == nil {
		return flows.SurfaceOutcome{}, ErrSurfaceUnavailable
	}
	sf, err := s.opener.Open(ctx)
	if err != nil {
		return flows.SurfaceOutcome{}, err
	}
	defer sf.Close()

	if err := sf.Navigate(ctx, s.config.Platform.LoginURL); err != nil {
		return flows.SurfaceOutcome{}, err
	}

	origin := originOf(s.config.Platform.BaseURL)
	routine := surface.Routine{
		PhoneSelector:   s.config.Selectors.PhoneInput,
		CodeSelector:    s.config.Selectors.CodeInput,
		SubmitSelectors: s.config.Selectors.SubmitButtons,
		Markers:         s.markerConfig(),
		ElementWait:     s.config.Login.ElementWait,
		CodeLength:      s.config.Login.CodeLength,
		PollEvery:       s.config.Login.SurfacePoll,
		TypeDelayMin:    s.config.Pacing.TypeDelayMin,
		TypeDelayMax:    s.config.Pacing.TypeDelayMax,
		SettleMin:       s.config.Pacing.SettleMin,
		SettleMax:       s.config.Pacing.SettleMax,
		Origin:          origin,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type arrival struct {
		msg surface.Message
		err error
	}
	results := make(chan arrival, 2)

	go func() {
		msg, err := s.interp.Run(ctx, sf, routine, phone)
		results <- arrival{msg, err}
	}()
	go func() {
		ch := surface.NewChannel(origin, sf.Messages())
		msg, err := ch.Receive(ctx)
		results <- arrival{msg, err}
	}()

	for i := 0; i < 2; i++ {
		r := <-results
		switch {
		case r.err == nil:
			return outcomeFromMessage(r.msg), nil
		case errors.Is(r.err, surface.ErrSurfaceClosed):
			return flows.SurfaceOutcome{}, ErrLoginCancelled
		case errors.Is(r.err, context.Canceled), errors.Is(r.err, context.DeadlineExceeded):
			return flows.SurfaceOutcome{}, r.err
		default:
			// One path failing is not fatal while the other can still
			// deliver, e.g. the routine lost its element but the user
			// finished logging in by hand.
			s.log.Debug("surface path ended without outcome", zap.Error(r.err))
		}
	}
	if err := ctx.Err(); err != nil {
		return flows.SurfaceOutcome{}, err
	}
	return flows.SurfaceOutcome{Message: "login did not complete"}, nil
}

func outcomeFromMessage(msg surface.Message) flows.SurfaceOutcome {
	if msg.Type == surface.MessageLoginSuccess {
		return flows.SurfaceOutcome{
			Success:  true,
			Tokens:   msg.SessionTokens,
			Nickname: msg.UserInfo.Nickname,
			Avatar:   msg.UserInfo.Avatar,
		}
	}
	return flows.SurfaceOutcome{Message: msg.Text}
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

// buildFlowDeps wires the flow dependency sets against the service's
// components. Called once during Build.
func (s *Service) buildFlowDeps() {
	checkOutcome := func(ctx context.Context) flows.CheckOutcome {
		res := s.CheckSession(ctx)
		return flows.CheckOutcome{
			LoggedIn: res.LoggedIn,
			Nickname: res.UserInfo.Nickname,
			Avatar:   res.UserInfo.Avatar,
		}
	}
	warn := func(msg string, args ...any) {
		s.log.Sugar().Warnw(msg, "details", args)
	}

	s.flows.Credential = flows.CredentialDeps{
		GetAccount: s.store.Get,
		GetActive:  s.store.GetActive,
		Preflight: func(raw string, now time.Time) error {
			return token.Preflight(raw, s.config.Login.RequiredFields, now)
		},
		ApplyTokens: s.client.ApplyTokens,
		SettleDelay: func(ctx context.Context) error {
			return s.pacer.Delay(ctx, s.config.Pacing.SettleMin, s.config.Pacing.SettleMax)
		},
		Check:       checkOutcome,
		SaveAccount: s.store.Save,
		SetActive:   s.store.SetActive,
		MetricInc:   func(id int) { s.metrics.Inc(MetricID(id)) },
		EmitAudit:   s.flowAudit,
		Warn:        warn,
		Metrics: flows.CredentialMetrics{
			LoginSuccess:   int(MetricCredentialLoginSuccess),
			LoginFailure:   int(MetricCredentialLoginFailure),
			SessionExpired: int(MetricSessionExpired),
		},
		Events: flows.CredentialEvents{
			LoginSuccess: AuditCredentialLoginSuccess,
			LoginFailure: AuditCredentialLoginFailure,
		},
		Statuses: flows.CredentialStatuses{
			LoggedIn:       uint8(StatusLoggedIn),
			LoginFailed:    uint8(StatusLoginFailed),
			SessionExpired: uint8(StatusSessionExpired),
		},
		Errors: flows.CredentialErrors{
			NoCredentials: ErrNoCredentials,
		},
	}

	s.flows.Code = flows.CodeDeps{
		Timeout: s.config.Login.CodeTimeout,
		VerifyCode: func(ctx context.Context, phone, code string) (flows.CheckOutcome, error) {
			id, err := s.client.VerifyCode(ctx, phone, code)
			if err != nil {
				return flows.CheckOutcome{}, err
			}
			return flows.CheckOutcome{LoggedIn: true, Nickname: id.Nickname, Avatar: id.Avatar}, nil
		},
		RunSurface: s.runSurface,
		IsCancelled: func(err error) bool {
			return errors.Is(err, ErrLoginCancelled)
		},
		SendCode:      s.client.SendCode,
		CurrentTokens: s.client.CurrentTokens,
		ApplyTokens:   s.client.ApplyTokens,
		FindByPhone:   s.store.FindByPhone,
		NewID:         uuid.NewString,
		SaveAccount:   s.store.Save,
		SetActive:     s.store.SetActive,
		MetricInc:     func(id int) { s.metrics.Inc(MetricID(id)) },
		EmitAudit:     s.flowAudit,
		Warn:          warn,
		Metrics: flows.CodeMetrics{
			LoginSuccess: int(MetricCodeLoginSuccess),
			LoginFailure: int(MetricCodeLoginFailure),
			CodeSent:     int(MetricCodeSent),
			CodeSendFail: int(MetricCodeSendFailure),
		},
		Events: flows.CodeEvents{
			LoginSuccess: AuditCodeLoginSuccess,
			LoginFailure: AuditCodeLoginFailure,
			CodeSent:     AuditCodeSent,
		},
		Statuses: flows.CodeStatuses{
			LoggedIn:    uint8(StatusLoggedIn),
			LoginFailed: uint8(StatusLoginFailed),
		},
		Errors: flows.CodeErrors{
			InvalidPhone: ErrInvalidPhone,
			Cancelled:    ErrLoginCancelled,
			Timeout:      ErrLoginTimeout,
		},
	}

	s.flows.Capture = flows.CaptureDeps{
		CurrentTokens: s.client.CurrentTokens,
		Check:         checkOutcome,
		FindByPhone:   s.store.FindByPhone,
		NewID:         uuid.NewString,
		SaveAccount:   s.store.Save,
		SetActive:     s.store.SetActive,
		Warn:          warn,
		Errors: flows.CaptureErrors{
			NotLoggedIn: ErrNotLoggedIn,
		},
	}
}

func (s *Service) flowAudit(ctx context.Context, event string, success bool, accountID, phone string, cause error, meta func() map[string]string) {
	s.emitAudit(ctx, event, success, accountID, phone, cause, meta)
}

// restoreInitialSession runs the startup credential login for the active
// account, if any. Called from Build on a background goroutine.
func (s *Service) restoreInitialSession() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Platform.RequestTimeout*3)
	defer cancel()

	if _, err := s.store.GetActive(ctx); err != nil {
		s.setStatus(StatusNotLoggedIn, nil)
		return
	}
	res, err := s.LoginWithCredential(ctx, "")
	if err != nil {
		s.log.Warn("initial session restore failed", zap.Error(err))
		return
	}
	if res.Success {
		s.log.Info("initial session restored", zap.String("nickname", res.Account.Nickname))
	} else {
		s.log.Info("stored session no longer valid", zap.String("message", res.Message))
	}
}
