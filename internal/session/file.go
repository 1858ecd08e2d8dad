// Package session exchanges a one-time authorization code for a durable
// server-side session and persists it locally. The session stands in for
// the user's cloud-storage credentials on every later service call.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FilePerms restricts session files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the session directory.
const DirPerms = 0o700

// Session is the durable server-side handle obtained from the one-time
// exchange. Created once per account, never mutated except on explicit
// reset.
type Session struct {
	ID                string    `json:"id"`
	OwnerAccountID    string    `json:"ownerAccountId"`
	DriveRootFolderID string    `json:"driveRootFolderId"`
	CreatedAt         time.Time `json:"createdAt"`
}

// File is the on-disk format for session state. PendingCode holds a not yet
// consumed one-time authorization code; it is cleared the moment an
// exchange succeeds.
type File struct {
	Session     *Session `json:"session,omitempty"`
	PendingCode string   `json:"pendingCode,omitempty"`
}

// Load reads the session file from disk. Returns an empty File (not an
// error) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &File{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("session: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("session: decoding %s: %w", path, err)
	}

	return &f, nil
}

// Save writes the session file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs session or code values.
func Save(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("session: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("session: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: writing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("session: renaming into place: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the session file. Returns nil if it does not exist.
func Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
