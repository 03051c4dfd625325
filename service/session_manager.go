package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/internal/eth"
	"github.com/layer-3/memowallet/ports"
)

const (
	DefaultSessionDuration   = 24 * time.Hour
	DefaultRefreshThreshold  = 2 * time.Hour
	DefaultActivityThreshold = 30 * time.Minute
	DefaultRefreshTimeout    = 30 * time.Second
	DefaultSessionKey        = "session.data"
)

// SessionConfig tunes the session lifecycle. Zero durations take the defaults.
type SessionConfig struct {
	Mode              core.AuthMode
	SessionDuration   time.Duration
	RefreshThreshold  time.Duration
	ActivityThreshold time.Duration
	RefreshTimeout    time.Duration
	StorageKey        string
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SessionDuration <= 0 {
		c.SessionDuration = DefaultSessionDuration
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = DefaultRefreshThreshold
	}
	if c.ActivityThreshold <= 0 {
		c.ActivityThreshold = DefaultActivityThreshold
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = DefaultRefreshTimeout
	}
	if c.StorageKey == "" {
		c.StorageKey = DefaultSessionKey
	}
	return c
}

// SessionManager owns the authenticated session of one wallet process
type SessionManager struct {
	store      ports.SecureStore
	handshaker ports.Handshaker
	probe      DeviceProbe
	events     ports.EventPublisher
	clock      clock.Clock
	logger     *slog.Logger
	cfg        SessionConfig

	mu      sync.Mutex
	current *core.Session
	gen     uint64 // bumped on every install, refresh start and teardown
	epoch   uint64 // bumped when the session is replaced other than by refresh
	sched   schedule
	timer   clock.Timer
}

// NewSessionManager creates a session manager. events may be nil.
func NewSessionManager(
	store ports.SecureStore,
	handshaker ports.Handshaker,
	probe DeviceProbe,
	events ports.EventPublisher,
	c clock.Clock,
	logger *slog.Logger,
	cfg SessionConfig,
) *SessionManager {
	if probe == nil {
		probe = HostProbe{}
	}
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:      store,
		handshaker: handshaker,
		probe:      probe,
		events:     events,
		clock:      c,
		logger:     logger.With("component", "session"),
		cfg:        cfg.withDefaults(),
	}
}

// Init restores the persisted session, if any is still valid
func (m *SessionManager) Init(ctx context.Context) *core.Session {
	fingerprint := Fingerprint(m.probe.Probe())

	m.mu.Lock()
	m.gen++
	m.epoch++
	m.cancelTimerLocked()
	m.current = nil

	var sess core.Session
	if err := m.store.GetItem(ctx, m.cfg.StorageKey, &sess); err != nil {
		m.mu.Unlock()
		if !errors.Is(err, core.ErrNotFound) {
			m.logger.Warn("failed to load session, treating as absent", "error", err)
		}
		return nil
	}

	now := m.clock.Now()
	if sess.Expired(now) || sess.ID == "" {
		m.removePersistedLocked(ctx)
		m.mu.Unlock()
		m.logger.Info("persisted session expired", "address", sess.Address)
		return nil
	}
	if sess.Mock && m.cfg.Mode != core.AuthModeDevelopmentFallback {
		m.removePersistedLocked(ctx)
		m.mu.Unlock()
		m.logger.Warn("discarding development session in strict mode", "address", sess.Address)
		return nil
	}

	var events []core.SessionEvent
	for _, reason := range detectAnomalies(&sess, fingerprint, now, m.cfg) {
		m.logger.Warn("session anomaly detected", "address", sess.Address, "reason", reason)
		events = append(events, m.event(core.SessionAnomaly, &sess, reason, now))
	}

	sess.LastActivity = now
	m.installLocked(ctx, &sess, now)
	out := sess.Clone()
	m.mu.Unlock()

	m.publish(ctx, events...)
	return out
}

// CreateSession performs the handshake for address and installs the new session.
// A failed handshake leaves the current session and its timers untouched. A
// create overtaken by another create, init or clear returns
// core.ErrSessionSuperseded.
func (m *SessionManager) CreateSession(ctx context.Context, address string) (*core.Session, error) {
	address, err := eth.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	fingerprint := Fingerprint(m.probe.Probe())

	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	res, err := m.handshake(ctx, address)

	m.mu.Lock()
	now := m.clock.Now()
	var sess *core.Session
	switch {
	case err == nil:
		sess = &core.Session{
			ID:           res.SessionID,
			Address:      address,
			Allowances:   res.Allowances,
			ExpiresAt:    now.Add(m.cfg.SessionDuration),
			RefreshToken: res.SessionID,
		}
	case m.cfg.Mode == core.AuthModeDevelopmentFallback:
		m.logger.Warn("handshake failed, using development session", "address", address, "error", err)
		ms := strconv.FormatInt(now.UnixMilli(), 10)
		sess = &core.Session{
			ID:           "dev-" + address + "-" + ms,
			Address:      address,
			Allowances:   json.RawMessage(`{"mock":true}`),
			ExpiresAt:    now.Add(m.cfg.SessionDuration),
			RefreshToken: "dev-" + ms,
			Mock:         true,
		}
	default:
		m.mu.Unlock()
		m.logger.Warn("handshake failed", "address", address, "error", err)
		return nil, err
	}

	if m.epoch != epoch {
		m.mu.Unlock()
		return nil, core.ErrSessionSuperseded
	}
	if len(sess.Allowances) == 0 {
		sess.Allowances = json.RawMessage(`{}`)
	}
	sess.DeviceFingerprint = fingerprint
	sess.LastActivity = now
	sess.Version = 1
	m.gen++
	m.epoch++
	m.installLocked(ctx, sess, now)
	out := sess.Clone()
	m.mu.Unlock()

	m.logger.Info("session created", "address", address, "mock", sess.Mock)
	m.publish(ctx, m.event(core.SessionCreated, out, "", now))
	return out, nil
}

// RefreshSession re-runs the handshake for the current session's address.
// The session is cleared when the handshake fails. A refresh overtaken by
// another create, init or clear returns core.ErrSessionSuperseded and
// leaves state untouched.
func (m *SessionManager) RefreshSession(ctx context.Context) (*core.Session, error) {
	m.mu.Lock()
	now := m.clock.Now()
	cur := m.current
	if cur == nil {
		m.mu.Unlock()
		return nil, core.ErrNoSession
	}
	if cur.Expired(now) {
		cleared := m.clearLocked(ctx)
		m.mu.Unlock()
		m.publish(ctx, m.event(core.SessionCleared, cleared, "expired", now))
		return nil, core.ErrNoSession
	}

	m.gen++
	gen := m.gen
	m.cancelTimerLocked()
	prev := cur.Clone()

	if prev.Mock && m.cfg.Mode == core.AuthModeDevelopmentFallback {
		next := prev.Clone()
		next.ExpiresAt = now.Add(m.cfg.SessionDuration)
		next.LastActivity = now
		next.RefreshToken = "dev-" + strconv.FormatInt(now.UnixMilli(), 10)
		next.Version++
		m.installLocked(ctx, next, now)
		out := next.Clone()
		m.mu.Unlock()

		m.publish(ctx, m.event(core.SessionRefreshed, out, "development session extended", now))
		return out, nil
	}
	m.mu.Unlock()

	res, err := m.handshake(ctx, prev.Address)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.logger.Info("discarding superseded refresh", "address", prev.Address)
		return nil, core.ErrSessionSuperseded
	}
	now = m.clock.Now()
	if err != nil {
		cleared := m.clearLocked(ctx)
		m.mu.Unlock()
		m.logger.Warn("session refresh failed, session cleared", "address", prev.Address, "error", err)
		m.publish(ctx, m.event(core.SessionCleared, cleared, "refresh failed", now))
		return nil, err
	}

	next := prev.Clone()
	next.ID = res.SessionID
	next.RefreshToken = res.SessionID
	next.Allowances = res.Allowances
	if len(next.Allowances) == 0 {
		next.Allowances = json.RawMessage(`{}`)
	}
	next.ExpiresAt = now.Add(m.cfg.SessionDuration)
	next.LastActivity = now
	next.Mock = false
	next.Version = prev.Version + 1

	if stored := m.newerPersistedLocked(ctx, next, now); stored != nil {
		m.logger.Info("adopting session refreshed by another process",
			"address", stored.Address, "version", stored.Version)
		next = stored
	}
	m.gen++
	m.installLocked(ctx, next, now)
	out := next.Clone()
	m.mu.Unlock()

	m.publish(ctx, m.event(core.SessionRefreshed, out, "", now))
	return out, nil
}

// GetCurrentSession returns the live session, evicting it once expired
func (m *SessionManager) GetCurrentSession() *core.Session {
	ctx := context.Background()

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil
	}
	now := m.clock.Now()
	if m.current.Expired(now) {
		cleared := m.clearLocked(ctx)
		m.mu.Unlock()
		m.logger.Info("session expired", "address", cleared.Address)
		m.publish(ctx, m.event(core.SessionCleared, cleared, "expired", now))
		return nil
	}
	out := m.current.Clone()
	m.mu.Unlock()
	return out
}

// ShouldRefresh reports whether the live session's remaining lifetime is below the refresh threshold
func (m *SessionManager) ShouldRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return false
	}
	return m.current.ExpiresAt.Sub(m.clock.Now()) < m.cfg.RefreshThreshold
}

// ClearSession drops the session from memory and storage and cancels its timers
func (m *SessionManager) ClearSession(ctx context.Context) {
	m.mu.Lock()
	cleared := m.clearLocked(ctx)
	now := m.clock.Now()
	m.mu.Unlock()

	if cleared != nil {
		m.logger.Info("session cleared", "address", cleared.Address)
		m.publish(ctx, m.event(core.SessionCleared, cleared, "logout", now))
	}
}

// UpdateActivity stamps the live session's activity time and persists it
func (m *SessionManager) UpdateActivity(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.current.LastActivity = m.clock.Now()
	m.persistLocked(ctx, m.current)
}

// Stop cancels pending timers and discards in-flight refreshes without clearing the session
func (m *SessionManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.epoch++
	m.cancelTimerLocked()
	m.sched = schedule{}
}

func (m *SessionManager) handshake(ctx context.Context, address string) (*core.HandshakeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RefreshTimeout)
	defer cancel()

	res, err := m.handshaker.Handshake(ctx, address)
	if err != nil {
		if errors.Is(err, core.ErrHandshakeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrHandshakeFailed, err)
	}
	if res == nil || res.SessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", core.ErrHandshakeFailed)
	}
	return res, nil
}

// installLocked makes sess current, persists it and arms its timers
func (m *SessionManager) installLocked(ctx context.Context, sess *core.Session, now time.Time) {
	m.current = sess
	m.persistLocked(ctx, sess)
	m.sched = planFor(sess, now, m.cfg)
	m.armLocked(now)
}

func (m *SessionManager) persistLocked(ctx context.Context, sess *core.Session) {
	ttl := sess.ExpiresAt.Sub(m.clock.Now())
	if ttl <= 0 {
		return
	}
	if err := m.store.SetItem(ctx, m.cfg.StorageKey, sess, ttl); err != nil {
		m.logger.Warn("failed to persist session", "address", sess.Address, "error", err)
	}
}

func (m *SessionManager) removePersistedLocked(ctx context.Context) {
	if err := m.store.RemoveItem(ctx, m.cfg.StorageKey); err != nil {
		m.logger.Warn("failed to remove persisted session", "error", err)
	}
}

// newerPersistedLocked returns the persisted record when another process has
// already stored a version of the same session at least as new as next.
func (m *SessionManager) newerPersistedLocked(ctx context.Context, next *core.Session, now time.Time) *core.Session {
	var stored core.Session
	if err := m.store.GetItem(ctx, m.cfg.StorageKey, &stored); err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			m.logger.Warn("failed to read persisted session", "error", err)
		}
		return nil
	}
	if !eth.SameAddress(stored.Address, next.Address) || stored.Version < next.Version || stored.Expired(now) {
		return nil
	}
	return &stored
}

// clearLocked tears down the session and returns the record that was current
func (m *SessionManager) clearLocked(ctx context.Context) *core.Session {
	cleared := m.current
	m.gen++
	m.epoch++
	m.cancelTimerLocked()
	m.sched = schedule{}
	m.current = nil
	m.removePersistedLocked(ctx)
	return cleared
}

func (m *SessionManager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *SessionManager) armLocked(now time.Time) {
	m.cancelTimerLocked()
	at, ok := m.sched.next()
	if !ok {
		return
	}
	gen := m.gen
	m.timer = m.clock.AfterFunc(at.Sub(now), func() { m.wake(gen) })
}

// wake runs the due scheduled actions for generation gen
func (m *SessionManager) wake(gen uint64) {
	ctx := context.Background()

	m.mu.Lock()
	if m.gen != gen || m.current == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	now := m.clock.Now()
	refresh, inactive := m.sched.due(now)

	var events []core.SessionEvent
	if inactive {
		m.sched.inactiveAt = time.Time{}
		if idle := inactiveFor(m.current, now); idle >= m.cfg.ActivityThreshold {
			m.logger.Warn("session inactive", "address", m.current.Address, "idle", idle.Round(time.Second))
			events = append(events, m.event(core.SessionInactive, m.current, fmt.Sprintf("inactive for %s", idle.Round(time.Second)), now))
		}
	}
	if refresh {
		m.sched.refreshAt = time.Time{}
	} else {
		m.armLocked(now)
	}
	m.mu.Unlock()

	m.publish(ctx, events...)
	if refresh {
		if _, err := m.RefreshSession(ctx); err != nil {
			m.logger.Warn("scheduled refresh failed", "error", err)
		}
	}
}

func (m *SessionManager) event(t core.SessionEventType, sess *core.Session, reason string, at time.Time) core.SessionEvent {
	ev := core.SessionEvent{Type: t, Reason: reason, At: at}
	if sess != nil {
		ev.Address = sess.Address
		ev.SessionID = sess.ID
	}
	return ev
}

func (m *SessionManager) publish(ctx context.Context, events ...core.SessionEvent) {
	if m.events == nil {
		return
	}
	for _, ev := range events {
		if err := m.events.PublishSessionEvent(ctx, ev); err != nil {
			m.logger.Warn("failed to publish session event", "type", ev.Type, "error", err)
		}
	}
}
