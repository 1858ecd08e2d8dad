// Package token issues and revokes the invite tokens that let a team
// member upload into an admin's session without holding cloud credentials.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
)

// tokenBytes is the entropy budget per token. 24 bytes is 192 bits, well
// past the 128-bit floor, so uniqueness needs no collision retry.
const tokenBytes = 24

// Generate returns a cryptographically random, URL-safe invite token.
func Generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: generating random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RemoteAuthority is the service-side token allow-list. remote.Client
// implements it.
type RemoteAuthority interface {
	IssueToken(ctx context.Context, sessionID, token string) error
	RevokeToken(ctx context.Context, sessionID, token string) error
}

// Store mirrors the session's token list locally. registry.Registry
// implements it against the active account.
type Store interface {
	AddInviteToken(ctx context.Context, token string) error
	RemoveInviteToken(ctx context.Context, token string) error
}

// Authority coordinates the remote allow-list with the local mirror.
type Authority struct {
	remote RemoteAuthority
	store  Store
	logger *slog.Logger
}

// NewAuthority creates a token Authority.
func NewAuthority(remote RemoteAuthority, store Store, logger *slog.Logger) *Authority {
	if logger == nil {
		logger = slog.Default()
	}

	return &Authority{remote: remote, store: store, logger: logger}
}

// Issue generates a token, registers it on the session's remote allow-list,
// and mirrors it into the local account. If the local mirror fails (for
// example the plan limit is reached), the remote registration is rolled
// back best-effort so the allow-list does not accumulate orphans.
func (a *Authority) Issue(ctx context.Context, sessionID string) (string, error) {
	tok, err := Generate()
	if err != nil {
		return "", err
	}

	if err := a.remote.IssueToken(ctx, sessionID, tok); err != nil {
		return "", err
	}

	if err := a.store.AddInviteToken(ctx, tok); err != nil {
		if revokeErr := a.remote.RevokeToken(ctx, sessionID, tok); revokeErr != nil {
			a.logger.Warn("failed to roll back remote token after local mirror failure",
				slog.String("session_id", sessionID),
				slog.String("error", revokeErr.Error()),
			)
		}

		return "", err
	}

	a.logger.Info("invite token issued", slog.String("session_id", sessionID))

	return tok, nil
}

// Revoke removes a token. Two-phase: the remote removal runs first, and the
// local list is mutated only on remote success — a remote failure must not
// leave a locally-listed token that the service already rejects.
func (a *Authority) Revoke(ctx context.Context, sessionID, tok string) error {
	if err := a.remote.RevokeToken(ctx, sessionID, tok); err != nil {
		return err
	}

	if err := a.store.RemoveInviteToken(ctx, tok); err != nil {
		return err
	}

	a.logger.Info("invite token revoked", slog.String("session_id", sessionID))

	return nil
}
