// Package prometheus provides Prometheus collectors for redauth metrics.
//
// [NewPrometheusExporter] accepts a [redauth.Service] and exposes an [http.Handler]
// that renders all redauth counters and histograms in Prometheus text exposition format.
// Counter names are prefixed redauth_*_total; the single histogram is
// redauth_check_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate service state.
package prometheus
