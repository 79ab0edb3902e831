package guard

import (
	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
)

// DefaultTolerance is the default replay tolerance in seconds. A token
// whose timestamp is more than this far from the current time, in either
// direction, is rejected.
const DefaultTolerance int64 = 300

// CheckReplay rejects timestamps outside the tolerance window around now.
// The window is symmetric and inclusive: a skew of exactly tolerance
// seconds, past or future, is still accepted. Clocks ahead of the gateway
// are as suspect as replayed tokens, so future skew is not privileged.
func CheckReplay(timestamp, now, tolerance int64) error {
	skew := now - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return tgerr.StaleTimestamp("guard: token timestamp is outside the accepted window")
	}
	return nil
}
