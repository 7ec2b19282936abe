package goNoPassword

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricCodeIssued counts stored login codes.
	MetricCodeIssued MetricID = iota
	// MetricCodeIssueRefused counts issue requests refused for inactive or unknown principals.
	MetricCodeIssueRefused
	// MetricCodeCollision counts generated candidates rejected by the store as duplicates.
	MetricCodeCollision
	// MetricGenerationExhausted counts issue calls that ran out of generate attempts.
	MetricGenerationExhausted
	// MetricDeliverySuccess counts successful per-sink deliveries.
	MetricDeliverySuccess
	// MetricDeliveryFailure counts failed or timed out per-sink deliveries.
	MetricDeliveryFailure
	// MetricRedeemSuccess counts successful redemptions.
	MetricRedeemSuccess
	// MetricRedeemNotFound counts redemptions rejected as unknown or malformed.
	MetricRedeemNotFound
	// MetricRedeemExpired counts redemptions rejected as expired.
	MetricRedeemExpired
	// MetricRedeemConsumed counts redemptions rejected as already consumed, including lost races.
	MetricRedeemConsumed
	// MetricRateLimitHit counts calls denied by the RateLimiter hook.
	MetricRateLimitHit
	// MetricStoreUnavailable counts store transport failures.
	MetricStoreUnavailable
	// MetricCodesPruned counts records removed by Prune.
	MetricCodesPruned
	// MetricRedeemLatency is the redeem latency histogram.
	MetricRedeemLatency
	// MetricIssueLatency is the IssueCode latency histogram, collision retries included.
	MetricIssueLatency
	// MetricDeliveryLatency is the per-sink delivery latency histogram.
	MetricDeliveryLatency
	metricIDCount
)

// histogramIDs are the metrics that carry latency buckets instead of a counter.
var histogramIDs = [...]MetricID{MetricRedeemLatency, MetricIssueLatency, MetricDeliveryLatency}

func isHistogram(id MetricID) bool {
	for _, h := range histogramIDs {
		if h == id {
			return true
		}
	}
	return false
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A nil or disabled Metrics
// ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics does not mutate shared global state and can be used concurrently.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to the counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram id. Counter IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isHistogram(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// A disabled Metrics returns empty, non-nil maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, len(histogramIDs)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range histogramIDs {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
