package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/icrc_ledger/internal/account"
)

const defaultTokenTTL = time.Hour

// Service issues and verifies caller tokens with a shared secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds a token service. A zero ttl defaults to one hour.
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a token identifying caller and its expiry.
func (s *Service) Issue(caller account.Principal) (string, time.Time, error) {
	now := s.now()
	token, err := SignHS256(caller.String(), s.secret, now, s.ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, now.Add(s.ttl), nil
}

// Verify returns the principal a valid token identifies.
func (s *Service) Verify(token string) (account.Principal, error) {
	claims, err := ParseAndVerifyHS256(token, s.secret)
	if err != nil {
		return "", err
	}
	caller, err := account.ParsePrincipal(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	return caller, nil
}
