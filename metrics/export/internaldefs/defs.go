package internaldefs

import (
	nopw "github.com/MrEthical07/goNoPassword"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   nopw.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   nopw.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for dispatcher drops.
const AuditDroppedName = "nopassword_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: nopw.MetricCodeIssued, Name: "nopassword_code_issued_total", Help: "Login codes stored."},
	{ID: nopw.MetricCodeIssueRefused, Name: "nopassword_code_issue_refused_total", Help: "Issue requests refused for inactive or unknown principals."},
	{ID: nopw.MetricCodeCollision, Name: "nopassword_code_collision_total", Help: "Generated codes rejected by the store as duplicates."},
	{ID: nopw.MetricGenerationExhausted, Name: "nopassword_generation_exhausted_total", Help: "Issue calls that ran out of generate attempts."},
	{ID: nopw.MetricDeliverySuccess, Name: "nopassword_delivery_success_total", Help: "Successful per-sink deliveries."},
	{ID: nopw.MetricDeliveryFailure, Name: "nopassword_delivery_failure_total", Help: "Failed or timed out per-sink deliveries."},
	{ID: nopw.MetricRedeemSuccess, Name: "nopassword_redeem_success_total", Help: "Successful redemptions."},
	{ID: nopw.MetricRedeemNotFound, Name: "nopassword_redeem_not_found_total", Help: "Redemptions rejected as unknown or malformed."},
	{ID: nopw.MetricRedeemExpired, Name: "nopassword_redeem_expired_total", Help: "Redemptions rejected as expired."},
	{ID: nopw.MetricRedeemConsumed, Name: "nopassword_redeem_consumed_total", Help: "Redemptions rejected as already consumed."},
	{ID: nopw.MetricRateLimitHit, Name: "nopassword_rate_limit_hit_total", Help: "Calls denied by the rate limiter hook."},
	{ID: nopw.MetricStoreUnavailable, Name: "nopassword_store_unavailable_total", Help: "Code store transport failures."},
	{ID: nopw.MetricCodesPruned, Name: "nopassword_codes_pruned_total", Help: "Records removed by housekeeping."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: nopw.MetricRedeemLatency, Name: "nopassword_redeem_latency_seconds", Help: "Redeem latency histogram."},
	{ID: nopw.MetricIssueLatency, Name: "nopassword_issue_latency_seconds", Help: "IssueCode latency histogram."},
	{ID: nopw.MetricDeliveryLatency, Name: "nopassword_delivery_latency_seconds", Help: "Per-sink delivery latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight latency buckets.
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

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
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

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
