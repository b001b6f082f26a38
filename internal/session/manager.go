// Package session holds the bearer token of an authenticated portal session
// and decides when it is still usable.
package session

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	DefaultValidityBuffer = 300 * time.Second
	DefaultRefreshLead    = 120 * time.Second
)

// ErrNoToken is returned when a token is requested before one was set.
var ErrNoToken = errors.New("session: no token")

// Timer is the part of *time.Timer the manager needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

// Manager owns the session token. It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	timer     Timer

	now            func() time.Time
	afterFunc      AfterFunc
	validityBuffer time.Duration
	refreshLead    time.Duration
	logger         *slog.Logger
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithAfterFunc replaces the timer factory used for proactive refresh.
func WithAfterFunc(fn AfterFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.afterFunc = fn
		}
	}
}

func WithValidityBuffer(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.validityBuffer = d
		}
	}
}

func WithRefreshLead(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.refreshLead = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		now: time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		validityBuffer: DefaultValidityBuffer,
		refreshLead:    DefaultRefreshLead,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set stores a new token and decodes its expiry when the token is JWT-shaped.
// An armed refresh timer is left running; callers re-arm via ScheduleRefresh.
func (m *Manager) Set(token string) {
	token = strings.TrimSpace(token)
	exp, _ := expiryOf(token)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.expiresAt = exp
}

// Current returns the held token, or "" when signed out.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// HasToken reports whether a token is held.
func (m *Manager) HasToken() bool {
	return m.Current() != ""
}

// ExpiresAt returns the decoded exp claim, if any.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt, !m.expiresAt.IsZero()
}

// IsValid reports whether the token may still be used. Opaque tokens and
// tokens without an exp claim are assumed valid; the backend has the final word.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return false
	}
	if m.expiresAt.IsZero() {
		return true
	}
	return m.expiresAt.After(m.now().Add(m.validityBuffer))
}

// Token implements oauth2.TokenSource so the held session can drive an
// oauth2.Transport.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return nil, ErrNoToken
	}
	return &oauth2.Token{
		AccessToken: m.token,
		TokenType:   "Bearer",
		Expiry:      m.expiresAt,
	}, nil
}

// ScheduleRefresh arms a one-shot timer that calls onRefresh shortly before
// the token expires. Any earlier timer is cancelled. It is a no-op for tokens
// without a known expiry.
//
// When onRefresh succeeds and the token was rotated meanwhile, the timer is
// re-armed for the new expiry. Failures are logged and not retried.
func (m *Manager) ScheduleRefresh(onRefresh func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()

	if m.token == "" || m.expiresAt.IsZero() || onRefresh == nil {
		m.logger.Debug("session refresh not scheduled", "reason", "no expiry")
		return
	}
	armedFor := m.token
	delay := m.expiresAt.Sub(m.now()) - m.refreshLead
	if delay < 0 {
		delay = 0
	}
	m.logger.Info("session refresh scheduled", "in", delay.Round(time.Second).String())

	var self Timer
	self = m.afterFunc(delay, func() {
		m.mu.Lock()
		if m.timer != self || m.token != armedFor {
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.mu.Unlock()

		if err := onRefresh(); err != nil {
			m.logger.Warn("session refresh failed", "err", err)
			return
		}
		if m.Current() == armedFor {
			m.logger.Info("session refresh kept the same token, not re-arming")
			return
		}
		m.ScheduleRefresh(onRefresh)
	})
	m.timer = self
}

// Cancel stops a pending refresh timer.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Clear drops the token and any pending refresh. It reports whether a token
// was held.
func (m *Manager) Clear() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	had := m.token != ""
	m.token = ""
	m.expiresAt = time.Time{}
	return had
}

func (m *Manager) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// expiryOf reads the exp claim of a JWT-shaped token without verifying it.
// Signature checks belong to the backend.
func expiryOf(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	// An unknown alg still leaves the claims decoded.
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
