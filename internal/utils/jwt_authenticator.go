package utils

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const RoleAdmin = "admin"

// AuthenticatedUser is the identity carried by a validated bearer token.
type AuthenticatedUser struct {
	Sub   string   `json:"sub"`
	Iss   string   `json:"iss"`
	Aud   []string `json:"aud"`
	Roles []string `json:"roles"`
	Exp   int64    `json:"exp"`
	Iat   int64    `json:"iat"`
}

func (u *AuthenticatedUser) HasRole(role string) bool {
	return u != nil && slices.Contains(u.Roles, role)
}

type tokenClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JwtAuthenticator issues and validates HS256 tokens for the admin API.
type JwtAuthenticator struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
}

func NewJwtAuthenticator(secret, issuer string) *JwtAuthenticator {
	return &JwtAuthenticator{Secret: []byte(secret), Issuer: issuer, TokenTTL: time.Hour}
}

func (a *JwtAuthenticator) Sign(subject string, roles ...string) (string, time.Time, error) {
	if len(a.Secret) == 0 {
		return "", time.Time{}, errors.New("JWT secret not configured")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(a.TokenTTL)
	claims := tokenClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (a *JwtAuthenticator) ValidateToken(token string) (*AuthenticatedUser, error) {
	if len(a.Secret) == 0 {
		return nil, errors.New("JWT secret not configured")
	}
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if a.Issuer != "" && claims.Issuer != a.Issuer {
		return nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	return mapClaimsToUser(claims), nil
}

func mapClaimsToUser(claims *tokenClaims) *AuthenticatedUser {
	user := &AuthenticatedUser{
		Sub:   claims.Subject,
		Iss:   claims.Issuer,
		Aud:   claims.Audience,
		Roles: claims.Roles,
	}
	if claims.ExpiresAt != nil {
		user.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		user.Iat = claims.IssuedAt.Unix()
	}
	return user
}

type authenticatedUserKey struct{}

func WithAuthenticatedUser(ctx context.Context, user *AuthenticatedUser) context.Context {
	return context.WithValue(ctx, authenticatedUserKey{}, user)
}

// GetAuthenticatedUser returns the user stored on ctx by the auth middleware.
func GetAuthenticatedUser(ctx context.Context) (*AuthenticatedUser, bool) {
	user, ok := ctx.Value(authenticatedUserKey{}).(*AuthenticatedUser)
	return user, ok && user != nil
}
