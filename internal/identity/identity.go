// Package identity establishes who the editing session belongs to.
//
// A session is keyed by a stable identity string. It comes either from a
// signed session token (HS256 JWT, subject claim) or, for local use, from a
// plain identity configured by the user.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrNoIdentity is returned when neither a token nor an identity is configured.
	ErrNoIdentity = errors.New("no identity configured")
)

// Claims are the session token claims.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is an established session identity.
type Identity struct {
	Subject   string
	Email     string
	ExpiresAt *time.Time
	// Token is the raw session token, empty for a local identity. It is
	// forwarded to remote services as a bearer token.
	Token string
}

// Verifier checks session tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewVerifier creates a verifier for HS256 tokens signed with secret.
// Empty issuer or audience are not checked.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// Verify parses and validates token and returns the identity it carries.
func (v *Verifier) Verify(token string) (*Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := new(Claims)
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if len(v.secret) == 0 {
			return nil, fmt.Errorf("no token secret configured")
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	id := &Identity{Subject: claims.Subject, Email: claims.Email, Token: token}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		id.ExpiresAt = &exp
	}
	return id, nil
}

// Issue signs a session token for subject. Used for local development and tests.
func Issue(secret, subject, email string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Resolve picks the session identity: a token wins over a plain identity.
func Resolve(v *Verifier, token, plain string) (*Identity, error) {
	if strings.TrimSpace(token) != "" {
		if v == nil {
			return nil, fmt.Errorf("%w: no verifier configured", ErrInvalidToken)
		}
		return v.Verify(token)
	}
	if plain = strings.TrimSpace(plain); plain != "" {
		return &Identity{Subject: plain}, nil
	}
	return nil, ErrNoIdentity
}
