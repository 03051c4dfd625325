package core

import (
	"encoding/json"
	"time"
)

// Session is the authenticated session record held by the client
type Session struct {
	ID                string          `json:"sessionId"`
	Address           string          `json:"address"`
	Allowances        json.RawMessage `json:"allowances,omitempty"`
	ExpiresAt         time.Time       `json:"expiresAt"`
	RefreshToken      string          `json:"refreshToken,omitempty"`
	DeviceFingerprint string          `json:"deviceFingerprint,omitempty"`
	LastActivity      time.Time       `json:"lastActivity"`
	Mock              bool            `json:"mock,omitempty"`
	Version           uint64          `json:"version"`
}

// Expired reports whether the session is invalid at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Allowances != nil {
		c.Allowances = append(json.RawMessage(nil), s.Allowances...)
	}
	return &c
}

// SessionEventType names a session lifecycle transition
type SessionEventType string

const (
	SessionCreated   SessionEventType = "session.created"
	SessionRefreshed SessionEventType = "session.refreshed"
	SessionCleared   SessionEventType = "session.cleared"
	SessionAnomaly   SessionEventType = "session.anomaly"
	SessionInactive  SessionEventType = "session.inactive"
)

// SessionEvent is published on every session lifecycle transition
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	Address   string           `json:"address"`
	SessionID string           `json:"session_id,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	At        time.Time        `json:"at"`
}
