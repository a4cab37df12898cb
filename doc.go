// Package redauth manages multi-account sessions against the Xiaohongshu
// creator platform: an encrypted credential registry, a multi-strategy session
// validator with a short-lived quick-check cache, a background session
// monitor, and credential plus one-time-code login flows behind a single
// orchestrating service.
//
// The package is designed for embedding in desktop-style hosts: Service
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// redauth is the public surface. It exposes [Service], [Builder], [Config],
// and value types (LoginResult, MetricsSnapshot, etc.). All internal
// coordination — flow orchestration, platform HTTP, session probing, surface
// automation, audit dispatch — lives under internal/ and is never exported
// directly. The leaf packages store and token are importable on their own.
//
// # What this package must NOT do
//
//   - Expose the platform HTTP client or cookie jar in its public API.
//   - Log or export raw session token material; exports always redact it.
//   - Import any sub-package that re-imports redauth (no import cycles).
//
// # Concurrency contract
//
// Login operations are deduplicated: concurrent calls for the same target
// share a single in-flight attempt and all receive its result, so the
// registry sees at most one write per attempt. Quick checks within the cache
// window never touch the network.
package redauth
