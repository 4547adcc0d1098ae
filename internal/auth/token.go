// Package auth verifies the bearer credentials presented to the action API.
// User tokens carry the caller's role and department; the scheduler uses a
// token with the service role.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crew-staffing/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token is present
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when a token fails verification
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims are the JWT claims of a caller credential
type Claims struct {
	jwt.RegisteredClaims
	Role       models.CallerRole `json:"role"`
	Department models.Department `json:"department,omitempty"`
}

// Verifier issues and verifies HS256 caller credentials
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier creates a verifier for the shared secret
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// Issue signs a credential for the caller valid for ttl
func (v *Verifier) Issue(caller models.Caller, ttl time.Duration) (string, error) {
	if caller.UserID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:       caller.Role,
		Department: caller.Department,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a credential and returns the caller it identifies
func (v *Verifier) Verify(token string) (models.Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Caller{}, ErrMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Role == "" {
		return models.Caller{}, fmt.Errorf("%w: subject and role are required", ErrInvalidToken)
	}

	return models.Caller{
		UserID:     claims.Subject,
		Role:       claims.Role,
		Department: claims.Department,
	}, nil
}

// FromRequest verifies the request's Authorization bearer token
func (v *Verifier) FromRequest(r *http.Request) (models.Caller, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return models.Caller{}, ErrMissingToken
	}
	return v.Verify(token)
}
