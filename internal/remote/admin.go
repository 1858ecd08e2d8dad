package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// InitSession exchanges a one-time authorization code for a durable session
// bound to the given cloud-storage root folder. The service consumes the
// code on first use, so this call is never retried: a transport failure
// after the service committed the exchange would otherwise burn the code.
// A rejected or already-consumed code surfaces as ErrAuthExchange.
func (c *Client) InitSession(ctx context.Context, folderID, oneTimeCode, clientID string) (string, error) {
	c.logger.Info("exchanging one-time code for session",
		slog.String("folder_id", folderID),
		slog.String("client_id", clientID),
	)

	body, err := json.Marshal(initSessionRequest{
		FolderID:        folderID,
		OneTimeAuthCode: oneTimeCode,
		ClientID:        clientID,
	})
	if err != nil {
		return "", fmt.Errorf("remote: marshaling init request: %w", err)
	}

	resp, err := c.DoOnce(ctx, http.MethodPost, "/admin/init", bytes.NewReader(body))
	if err != nil {
		// The service answers 401 for a bad or consumed code. In this one
		// call that is an exchange failure, not a token problem.
		if errors.Is(err, ErrTokenRejected) || errors.Is(err, ErrValidation) {
			return "", fmt.Errorf("%w: %w", ErrAuthExchange, err)
		}

		return "", err
	}
	defer resp.Body.Close()

	var ir initSessionResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&ir); decErr != nil {
		return "", fmt.Errorf("remote: decoding init response: %w", decErr)
	}

	if ir.SessionID == "" {
		return "", fmt.Errorf("%w: service returned empty session id", ErrAuthExchange)
	}

	c.logger.Info("session established", slog.String("session_id", ir.SessionID))

	return ir.SessionID, nil
}

// IssueToken registers an invite token on the session's allow-list.
// The token value is generated client-side (see token.Generate); the
// service only stores it. Registering the same token twice is harmless.
func (c *Client) IssueToken(ctx context.Context, sessionID, token string) error {
	c.logger.Info("registering invite token", slog.String("session_id", sessionID))

	body, err := json.Marshal(issueTokenRequest{Token: token})
	if err != nil {
		return fmt.Errorf("remote: marshaling token request: %w", err)
	}

	path := "/admin/" + url.PathEscape(sessionID) + "/tokens"

	resp, err := c.DoOnce(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	return drainClose(resp)
}

// RevokeToken removes an invite token from the session's allow-list.
// Callers must only mutate local token state after this returns nil,
// so a failed remote removal never leaves a stale-active local token.
func (c *Client) RevokeToken(ctx context.Context, sessionID, token string) error {
	c.logger.Info("revoking invite token", slog.String("session_id", sessionID))

	path := "/admin/" + url.PathEscape(sessionID) + "/tokens/" + url.PathEscape(token)

	resp, err := c.DoOnce(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	return drainClose(resp)
}

// ValidateSession checks whether a session is still live.
// Returns the service's validity verdict and optional message.
func (c *Client) ValidateSession(ctx context.Context, sessionID string) (bool, string, error) {
	path := "/admin/" + url.PathEscape(sessionID) + "/validate"

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()

	var vr validateResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&vr); decErr != nil {
		return false, "", fmt.Errorf("remote: decoding validate response: %w", decErr)
	}

	return vr.Valid, vr.Message, nil
}

// AdminInfo fetches the display identity of the admin owning a session.
// Team members call this on join so the local account can show whose
// team they uploaded into.
func (c *Client) AdminInfo(ctx context.Context, sessionID string) (*AdminInfo, error) {
	path := "/admin/" + url.PathEscape(sessionID)

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ar adminInfoResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&ar); decErr != nil {
		return nil, fmt.Errorf("remote: decoding admin info response: %w", decErr)
	}

	return &ar.AdminUserInfo, nil
}

// drainClose discards and closes a response body so the connection can be
// reused. Used for ack-only responses.
func drainClose(resp *http.Response) error {
	defer resp.Body.Close()

	if _, err := discardBody(resp); err != nil {
		return fmt.Errorf("remote: draining response body: %w", err)
	}

	return nil
}
