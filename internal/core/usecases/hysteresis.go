package usecases

import (
	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// applyDetection feeds one resolved zone detection through the hysteresis
// rule and reports whether the confirmed zone changed.
//
// A detection matching the confirmed zone cancels any in-progress switch.
// A detection matching the pending candidate advances its streak and
// commits at the threshold. Any other detection restarts the streak with
// itself as the new candidate; streaks never accumulate across different
// candidates.
func applyDetection(st *domain.TimezoneState, zone string, threshold int) bool {
	if threshold < 1 {
		threshold = 1
	}

	// Nothing confirmed yet: adopt the first fix outright.
	if st.Confirmed == "" {
		st.Confirmed = zone
		st.Pending = ""
		st.PendingCount = 0
		return true
	}

	if zone == st.Confirmed {
		st.Pending = ""
		st.PendingCount = 0
		return false
	}

	if zone == st.Pending {
		st.PendingCount++
	} else {
		st.Pending = zone
		st.PendingCount = 1
	}

	if st.PendingCount >= threshold {
		st.Confirmed = zone
		st.Pending = ""
		st.PendingCount = 0
		return true
	}
	return false
}
