package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	typImpersonation  = "impersonation"
	roleImpersonation = "impersonation"
)

// sessionClaims is the payload of a sandbox session token. Subject is the
// identity key, or a staff marker for impersonation sessions.
type sessionClaims struct {
	Typ          string `json:"typ"`
	Role         string `json:"role,omitempty"`
	JID          string `json:"jid,omitempty"`
	AllowApprove bool   `json:"allowApprove,omitempty"`
	jwt.RegisteredClaims
}

func (c *sessionClaims) impersonating() bool {
	return c.Role == roleImpersonation
}

func registered(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: subject}
}

// issue signs c with a fresh nonce and the configured lifetime.
func (s *Sandbox) issue(c sessionClaims) (string, error) {
	now := s.now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(s.fx.SessionTTL))
	c.ID = s.newID()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("handler: sign session: %w", err)
	}
	return token, nil
}

// session authenticates a bearer token.
func (s *Sandbox) session(bearer string) (*sessionClaims, error) {
	if bearer == "" {
		return nil, reject(http.StatusUnauthorized, "Missing session")
	}
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(bearer, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logger.Debug("sandbox rejected session", "err", err)
		return nil, reject(http.StatusUnauthorized, "Invalid session")
	}
	return claims, nil
}

// rotate reissues c once less than half of the lifetime remains. It returns ""
// while the token is still fresh.
func (s *Sandbox) rotate(c *sessionClaims) (string, error) {
	if c.ExpiresAt == nil {
		return "", nil
	}
	remaining := c.ExpiresAt.Sub(s.now())
	if remaining >= s.fx.SessionTTL/2 {
		return "", nil
	}
	next := *c
	next.RegisteredClaims = registered(c.Subject)
	token, err := s.issue(next)
	if err != nil {
		return "", err
	}
	s.logger.Info("sandbox session rotated", "remaining", remaining.Round(time.Second).String())
	return token, nil
}
