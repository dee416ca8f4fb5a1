package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenUnexpectedSignature = errors.New("unexpected signing method")
	ErrTokenInvalid             = errors.New("invalid handshake token")
	ErrTokenTopicMismatch       = errors.New("handshake token topic mismatch")
)

// NewHandshakeToken signs the credential presented when the channel dials.
// It identifies the board instance and its topic, nothing more.
func NewHandshakeToken(secret, clientID, topicKey string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   clientID,
		"topic": topicKey,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenStr, nil
}

// VerifyHandshakeToken returns the client id of a valid token issued for topicKey.
func VerifyHandshakeToken(secret, token, topicKey string) (string, error) {
	claims := jwt.MapClaims{}
	parsedToken, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenUnexpectedSignature
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsedToken.Valid {
		return "", ErrTokenInvalid
	}

	if topic, _ := claims["topic"].(string); topic != topicKey {
		return "", ErrTokenTopicMismatch
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return sub, nil
}
