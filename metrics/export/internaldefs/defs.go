package internaldefs

import (
	redauth "github.com/redforge/redauth"
)

// CounterDef defines a public type used by redauth APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   redauth.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by redauth APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   redauth.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the session service.
var CounterDefs = []CounterDef{
	{ID: redauth.MetricCredentialLoginSuccess, Name: "redauth_credential_login_success_total", Help: "Successful credential logins."},
	{ID: redauth.MetricCredentialLoginFailure, Name: "redauth_credential_login_failure_total", Help: "Failed credential logins."},
	{ID: redauth.MetricCodeLoginSuccess, Name: "redauth_code_login_success_total", Help: "Successful one-time-code logins."},
	{ID: redauth.MetricCodeLoginFailure, Name: "redauth_code_login_failure_total", Help: "Failed one-time-code logins."},
	{ID: redauth.MetricCodeSent, Name: "redauth_code_sent_total", Help: "One-time codes requested."},
	{ID: redauth.MetricCodeSendFailure, Name: "redauth_code_send_failure_total", Help: "Failed one-time-code requests."},
	{ID: redauth.MetricSessionExpired, Name: "redauth_session_expired_total", Help: "Stored sessions found expired."},
	{ID: redauth.MetricAccountSwitched, Name: "redauth_account_switched_total", Help: "Account switch operations."},
	{ID: redauth.MetricLogout, Name: "redauth_logout_total", Help: "Logout operations."},
	{ID: redauth.MetricAccountDeleted, Name: "redauth_account_deleted_total", Help: "Account delete operations."},
	{ID: redauth.MetricAccountsExported, Name: "redauth_accounts_exported_total", Help: "Account export operations."},
	{ID: redauth.MetricMonitorChecks, Name: "redauth_monitor_checks_total", Help: "Background monitor poll outcomes."},
	{ID: redauth.MetricQuickCacheHits, Name: "redauth_quick_cache_hits_total", Help: "Quick checks served from the cache window."},
}

// HistogramDefs is an exported constant or variable used by the session service.
var HistogramDefs = []HistogramDef{
	{ID: redauth.MetricCheckLatency, Name: "redauth_check_latency_seconds", Help: "Session check latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the session service.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the session service.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies a raw bucket slice into the fixed bucket layout.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
