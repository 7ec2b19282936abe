// Package prometheus renders goNoPassword engine metrics in Prometheus text
// exposition format.
//
// The exporter does not register anything globally; callers mount
// [Exporter.Handler] wherever they serve metrics. Counter names are prefixed
// nopassword_ and end in _total; the only histogram is
// nopassword_redeem_latency_seconds.
package prometheus
