// Package auth gates the administrative API: a single configured
// operator account, bcrypt-verified, with a signed session token.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const DefaultSessionTTL = 7 * 24 * time.Hour

var ErrInvalidToken = errors.New("invalid session token")

type Config struct {
	Username     string
	Password     string // plaintext fallback, used only when no hash is set
	PasswordHash string // bcrypt hash, preferred
	SessionSecret string
	SessionTTL   time.Duration
}

type Service struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Service{cfg: cfg, now: time.Now}
}

// VerifyCredentials checks the operator login. The bcrypt hash wins when
// configured; otherwise the plaintext password is compared in constant
// time. An account with neither secret configured never authenticates.
func (s *Service) VerifyCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1

	if s.cfg.PasswordHash != "" {
		err := bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(password))
		return userOK && err == nil
	}
	if s.cfg.Password == "" {
		return false
	}
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) == 1
	return userOK && passOK
}

// IssueToken mints a signed session token for the given user.
func (s *Service) IssueToken(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(s.cfg.SessionSecret))
}

// ParseToken validates a session token and returns the subject.
func (s *Service) ParseToken(raw string) (string, error) {
	tok, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.SessionSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
