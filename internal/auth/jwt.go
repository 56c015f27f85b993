// Package auth issues and validates bearer tokens scoped to a single
// SessionId, so a caller juggling multiple debug sessions cannot address
// another session's DebugSession by guessing or reusing its id.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims for a session-scoped bearer token.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// TokenIssuer mints session-scoped bearer tokens, self-signed with an
// HMAC secret shared by every SessionTokenValidator in the process.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	store  *TokenStore
}

// NewTokenIssuer creates an issuer that signs tokens with secret and
// registers every issued token with store so it can later be revoked.
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration, store *TokenStore) *TokenIssuer {
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl, store: store}
}

// Issue mints a bearer token scoped to sessionID.
func (i *TokenIssuer) Issue(sessionID string) (string, error) {
	now := time.Now()
	expiresAt := now.Add(i.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{"cdp-debugger-session"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	if i.store != nil {
		i.store.Track(signed, sessionID, expiresAt)
	}

	return signed, nil
}

// SessionTokenValidator validates bearer tokens, either against a local
// HMAC secret (the default, for single-process deployments) or against a
// remote JWKS endpoint (for deployments fronted by an external identity
// provider that co-signs session tokens).
type SessionTokenValidator struct {
	secret []byte
	jwks   *keyfunc.Keyfunc
	issuer string
	store  *TokenStore
}

// NewSessionTokenValidator validates tokens signed by a same-process
// TokenIssuer using secret.
func NewSessionTokenValidator(secret []byte, issuer string, store *TokenStore) *SessionTokenValidator {
	return &SessionTokenValidator{secret: secret, issuer: issuer, store: store}
}

// NewJWKSSessionTokenValidator validates tokens against a remote JWKS
// endpoint instead of a local secret, for deployments where an external
// identity provider issues session tokens on this process's behalf.
func NewJWKSSessionTokenValidator(jwksURL, issuer string, store *TokenStore) (*SessionTokenValidator, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("create JWKS keyfunc: %w", err)
	}

	return &SessionTokenValidator{jwks: k, issuer: issuer, store: store}, nil
}

// Validate parses tokenString and checks that it is not expired, was
// issued by this validator's issuer, and is scoped to expectedSessionID.
// A token scoped to a different session is rejected even if otherwise
// valid — that is the whole point of the session-token layer.
func (v *SessionTokenValidator) Validate(tokenString, expectedSessionID string) (*Claims, error) {
	keyFn := v.keyFunc()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyFn)
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("issuer mismatch: expected %s, got %s", v.issuer, claims.Issuer)
	}

	if claims.SessionID != expectedSessionID {
		return nil, fmt.Errorf("session token scoped to %q, not %q", claims.SessionID, expectedSessionID)
	}

	if v.store != nil && v.store.IsRevoked(tokenString) {
		return nil, fmt.Errorf("session token has been revoked")
	}

	return claims, nil
}

func (v *SessionTokenValidator) keyFunc() jwt.Keyfunc {
	if v.jwks != nil {
		return v.jwks.Keyfunc
	}
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}
}
