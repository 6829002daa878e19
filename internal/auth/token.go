package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidCredential = errors.New("credential is malformed or tampered")
	ErrCredentialExpired = errors.New("credential has expired")
)

// TokenAuthority issues and verifies signed bearer credentials. Verification
// is stateless: nothing is looked up beyond the token's own signature and
// embedded claims, so there is no server-side revocation before expiry.
// The TTL is kept short to bound that window.
type TokenAuthority struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewTokenAuthority(secret []byte, ttl time.Duration) *TokenAuthority {
	return &TokenAuthority{
		secret: secret,
		ttl:    ttl,
		issuer: "clinic-scheduler",
	}
}

func (a *TokenAuthority) TTL() time.Duration {
	return a.ttl
}

// Issue signs a credential for the given subject and role, expiring at
// now + TTL.
func (a *TokenAuthority) Issue(subject uuid.UUID, role Role, now time.Time) (string, error) {
	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry against the supplied clock and returns
// the embedded identity. It fails with ErrCredentialExpired once
// now >= issue time + TTL, and ErrInvalidCredential for anything else wrong
// with the token.
func (a *TokenAuthority) Verify(token string, now time.Time) (Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)

	var claims tokenClaims
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrCredentialExpired
		}
		return Identity{}, ErrInvalidCredential
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, ErrInvalidCredential
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, ErrInvalidCredential
	}

	return Identity{Subject: subject, Role: role}, nil
}
