package service

import (
	"fmt"
	"time"

	"github.com/layer-3/memowallet/core"
)

// schedule holds the pending wakes of a live session. A zero time means no wake.
type schedule struct {
	refreshAt  time.Time
	inactiveAt time.Time
}

// planFor computes the wakes for sess as of now. Wakes that are not in the
// future are not scheduled.
func planFor(sess *core.Session, now time.Time, cfg SessionConfig) schedule {
	var s schedule
	if sess == nil {
		return s
	}
	if at := sess.ExpiresAt.Add(-cfg.RefreshThreshold); at.After(now) {
		s.refreshAt = at
	}
	if at := now.Add(cfg.ActivityThreshold); at.After(now) {
		s.inactiveAt = at
	}
	return s
}

// next returns the earliest pending wake
func (s schedule) next() (time.Time, bool) {
	switch {
	case s.refreshAt.IsZero() && s.inactiveAt.IsZero():
		return time.Time{}, false
	case s.refreshAt.IsZero():
		return s.inactiveAt, true
	case s.inactiveAt.IsZero():
		return s.refreshAt, true
	case s.inactiveAt.Before(s.refreshAt):
		return s.inactiveAt, true
	default:
		return s.refreshAt, true
	}
}

// due reports which wakes have been reached at now
func (s schedule) due(now time.Time) (refresh, inactive bool) {
	refresh = !s.refreshAt.IsZero() && !now.Before(s.refreshAt)
	inactive = !s.inactiveAt.IsZero() && !now.Before(s.inactiveAt)
	return refresh, inactive
}

func inactiveFor(sess *core.Session, now time.Time) time.Duration {
	if sess.LastActivity.IsZero() {
		return 0
	}
	return now.Sub(sess.LastActivity)
}

// detectAnomalies returns the reasons sess looks suspicious. A fingerprint
// is only compared when one was stored.
func detectAnomalies(sess *core.Session, fingerprint string, now time.Time, cfg SessionConfig) []string {
	var reasons []string
	if sess.DeviceFingerprint != "" && sess.DeviceFingerprint != fingerprint {
		reasons = append(reasons, "device fingerprint mismatch")
	}
	if idle := inactiveFor(sess, now); idle > 4*cfg.ActivityThreshold {
		reasons = append(reasons, fmt.Sprintf("inactive for %s", idle.Round(time.Second)))
	}
	return reasons
}
