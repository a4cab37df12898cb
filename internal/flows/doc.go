// Package flows contains pure-function orchestrators for the login and
// session-capture operations.
//
// Each flow function (RunCredentialLogin, RunCodeLogin, RunSendCode,
// RunCaptureSession) accepts a typed dependency struct and returns results
// without side-effects beyond those dependencies. This design enables
// exhaustive unit testing with mock dependencies and keeps the Service type
// thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the account registry, platform client,
// login surface, audit dispatcher, and metrics. They do NOT own any of these
// resources — ownership stays with the Service.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import redauth (to avoid import cycles).
//   - Perform I/O directly — all I/O is mediated through dependency functions.
package flows
