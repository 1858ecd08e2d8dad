package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// PrepareAlbum asks the service to resolve (find-or-create) the album-level
// folder once, up front, so the per-item uploads of a batch skip redundant
// album resolution. Safe to retry: resolution is idempotent server-side.
func (c *Client) PrepareAlbum(ctx context.Context, sessionID, albumName string) (string, error) {
	c.logger.Info("preparing album folder",
		slog.String("session_id", sessionID),
		slog.String("album", albumName),
	)

	body, err := json.Marshal(prepareRequest{AlbumName: albumName})
	if err != nil {
		return "", fmt.Errorf("remote: marshaling prepare request: %w", err)
	}

	path := "/prepare/" + url.PathEscape(sessionID)

	resp, err := c.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var pr prepareResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&pr); decErr != nil {
		return "", fmt.Errorf("remote: decoding prepare response: %w", decErr)
	}

	c.logger.Debug("album folder prepared",
		slog.String("album", albumName),
		slog.String("folder_id", pr.AlbumFolderID),
	)

	return pr.AlbumFolderID, nil
}

// UploadPhoto uploads one photo in admin or token mode. No retry: the batch
// coordinator reports a failed item immediately and moves on, so a slow
// retry loop here would only delay sibling results.
func (c *Client) UploadPhoto(ctx context.Context, sessionID string, req *UploadRequest) (*UploadResult, error) {
	c.logger.Debug("uploading photo",
		slog.String("session_id", sessionID),
		slog.String("album", req.AlbumName),
		slog.String("filename", req.Filename),
		slog.Bool("token_mode", req.Token != ""),
	)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remote: marshaling upload request: %w", err)
	}

	path := "/upload/" + url.PathEscape(sessionID)

	resp, err := c.DoOnce(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ur UploadResult
	if decErr := json.NewDecoder(resp.Body).Decode(&ur); decErr != nil {
		return nil, fmt.Errorf("remote: decoding upload response: %w", decErr)
	}

	c.logger.Debug("photo uploaded",
		slog.String("file_id", ur.FileID),
		slog.String("folder_path", ur.FolderPath),
	)

	return &ur, nil
}

// discardBody drains a response body. Returning the byte count keeps the
// signature useful for debugging without retaining the payload.
func discardBody(resp *http.Response) (int64, error) {
	return io.Copy(io.Discard, resp.Body)
}
