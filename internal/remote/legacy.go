package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Propagation-delay retry bounds: a freshly created deployment can answer
// 404 for a few seconds while the endpoint propagates. Three attempts with
// seconds-scale exponential backoff, then fatal.
const propagationMaxRetries = 3

// propagationBaseDelay is a var so tests can shrink it to avoid real delays.
var propagationBaseDelay = 2 * time.Second

// LegacyUploadRequest is the request body of the legacy one-shot
// folder-creating upload endpoint. Image is base64, optionally a data URL.
type LegacyUploadRequest struct {
	FolderID    string `json:"folderId"`
	Filename    string `json:"filename"`
	AlbumName   string `json:"albumName"`
	Room        string `json:"room,omitempty"`
	Type        string `json:"type,omitempty"`
	Format      string `json:"format,omitempty"`
	Location    string `json:"location,omitempty"`
	CleanerName string `json:"cleanerName,omitempty"`
	Image       string `json:"image"`
}

// LegacyUploadResult is the stable JSON envelope the legacy endpoint
// returns. External callers depend on this exact shape.
type LegacyUploadResult struct {
	Success     bool   `json:"success"`
	FileID      string `json:"fileId,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	AlbumName   string `json:"albumName,omitempty"`
	Room        string `json:"room,omitempty"`
	Type        string `json:"type,omitempty"`
	Format      string `json:"format,omitempty"`
	Location    string `json:"location,omitempty"`
	CleanerName string `json:"cleanerName,omitempty"`
	FolderPath  string `json:"folderPath,omitempty"`
	Message     string `json:"message,omitempty"`
	ErrMessage  string `json:"error,omitempty"`
}

// LegacyUpload calls the legacy one-shot upload endpoint at endpointPath.
// A 404 immediately after (re)deploying the remote endpoint is treated as
// propagation delay and retried with exponential backoff before surfacing
// as fatal. This is the only retry on any upload path; steady-state batch
// items are never retried.
func (c *Client) LegacyUpload(ctx context.Context, endpointPath string, req *LegacyUploadRequest) (*LegacyUploadResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remote: marshaling legacy upload request: %w", err)
	}

	backoff := retry.WithMaxRetries(propagationMaxRetries, retry.NewExponential(propagationBaseDelay))

	var result *LegacyUploadResult

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, doErr := c.DoOnce(ctx, http.MethodPost, endpointPath, bytes.NewReader(body))
		if doErr != nil {
			if errors.Is(doErr, ErrNotFound) {
				c.logger.Warn("legacy endpoint not found, assuming propagation delay",
					slog.String("path", endpointPath),
				)

				return retry.RetryableError(doErr)
			}

			return doErr
		}
		defer resp.Body.Close()

		var lr LegacyUploadResult
		if decErr := json.NewDecoder(resp.Body).Decode(&lr); decErr != nil {
			return fmt.Errorf("remote: decoding legacy upload response: %w", decErr)
		}

		result = &lr

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Success {
		return result, fmt.Errorf("remote: legacy upload failed: %s: %s", result.ErrMessage, result.Message)
	}

	return result, nil
}
