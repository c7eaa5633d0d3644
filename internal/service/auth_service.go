package service

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	appErr "github.com/starfire-ai/kbase/internal/pkg/errors"
	"github.com/starfire-ai/kbase/internal/pkg/wsticket"
)

// AuthService checks API keys against their stored bcrypt hashes and issues
// short-lived tickets for socket handshakes, where custom headers are not
// available to browser clients.
type AuthService struct {
	keyHashes []string
	secret    string
	ticketTTL time.Duration
}

func NewAuthService(keyHashes []string, secret string, ticketTTL time.Duration) *AuthService {
	if ticketTTL <= 0 {
		ticketTTL = 5 * time.Minute
	}
	return &AuthService{
		keyHashes: keyHashes,
		secret:    secret,
		ticketTTL: ticketTTL,
	}
}

func (s *AuthService) VerifyAPIKey(key string) error {
	if key == "" {
		return appErr.ErrUnauthorized
	}
	for _, hash := range s.keyHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			return nil
		}
	}
	return appErr.ErrUnauthorized
}

func (s *AuthService) IssueTicket(clientID string) (string, error) {
	if clientID == "" {
		clientID = newID()
	}
	return wsticket.Issue(clientID, []byte(s.secret), s.ticketTTL)
}

func (s *AuthService) VerifyTicket(token string) (string, error) {
	claims, err := wsticket.Verify(token, []byte(s.secret))
	if err != nil {
		return "", appErr.ErrUnauthorized
	}
	return claims.ClientID, nil
}
