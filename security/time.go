package security

import "time"

// DefaultClockSkewGracePeriod is the grace period applied by retention
// sweeps before discarding expired entities. It absorbs NTP drift between
// the nodes that minted an entity and the node cleaning it up; protocol
// expiry checks remain exact.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpiredWithGracePeriod reports whether expiresAt is more than
// gracePeriod in the past. A zero time never expires.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}

// IsExpired reports expiry with the default grace period.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}
