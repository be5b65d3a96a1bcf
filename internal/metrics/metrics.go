package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	KeysIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnhub_keys_issued_total",
		Help: "Total VPN keys issued, by server kind",
	}, []string{"kind"})

	KeysRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnhub_keys_revoked_total",
		Help: "Total VPN keys revoked",
	})

	QuotaExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnhub_quota_exceeded_total",
		Help: "Total keys that crossed their traffic quota",
	})

	UsageSyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnhub_usage_sync_errors_total",
		Help: "Total usage sync failures",
	})

	UsageSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vpnhub_usage_sweep_duration_seconds",
		Help:    "Time to sweep usage across syncable keys",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	UsageSweepKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vpnhub_usage_sweep_keys",
		Help: "Number of keys synced in the last usage sweep",
	})

	ActiveKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vpnhub_active_keys",
		Help: "Current number of active keys",
	})
)

func IncKeyIssued(kind string) {
	label := strings.TrimSpace(kind)
	if label == "" {
		label = "unknown"
	}
	KeysIssued.WithLabelValues(label).Inc()
}

func IncKeyRevoked() {
	KeysRevoked.Inc()
}

func IncQuotaExceeded() {
	QuotaExceeded.Inc()
}

func IncUsageSyncError() {
	UsageSyncErrors.Inc()
}

func ObserveUsageSweep(duration time.Duration, synced int) {
	UsageSweepDuration.Observe(duration.Seconds())
	if synced < 0 {
		synced = 0
	}
	UsageSweepKeys.Set(float64(synced))
}

func SetActiveKeys(count int64) {
	if count < 0 {
		count = 0
	}
	ActiveKeys.Set(float64(count))
}
