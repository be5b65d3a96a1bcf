package service

import "time"

const bytesPerGB int64 = 1 << 30

// ComputeExpiration derives a key's next expiration. A missing or already
// passed expiration restarts the window from now; a live one is extended in
// place, so renewing early never costs remaining time. Callers must pass a
// freshly sampled now so repeated calls cannot double-count an extension.
func ComputeExpiration(current *time.Time, durationDays int, now time.Time) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.UTC().Add(time.Duration(durationDays) * 24 * time.Hour)
}

// PlanQuotaBytes converts a plan's quota to bytes. Zero means unlimited and
// suppresses the exceeded check entirely.
func PlanQuotaBytes(trafficLimitGB int64) int64 {
	return trafficLimitGB * bytesPerGB
}
