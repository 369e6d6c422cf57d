package identity

import (
	"context"
	"time"

	pkgerrors "codearena/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// PersistedSource exposes the token a previous process left behind.
type PersistedSource interface {
	Persisted(ctx context.Context) (string, error)
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SnapshotFromToken reads subject, email and expiry from a JWT without
// verifying its signature; the backend verifies every bearer it receives.
func SnapshotFromToken(raw string, now time.Time) (*Snapshot, error) {
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.TokenInvalid, "parse token failed: %v", err)
	}
	if claims.Subject == "" {
		return nil, pkgerrors.Newf(pkgerrors.TokenInvalid, "token has no subject")
	}
	snap := &Snapshot{Subject: claims.Subject, Email: claims.Email, Token: raw}
	if claims.ExpiresAt != nil {
		snap.ExpiresAt = claims.ExpiresAt.Time
		if !snap.ExpiresAt.After(now) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
	}
	return snap, nil
}
