// Package service is the reference implementation of the jobproof upload
// service contract: session exchange, invite token allow-lists, idempotent
// album folder resolution under a named lock, and photo storage. The CLI's
// serve command runs it; the client packages are tested against it.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrFolderNotFound is the negative result of an exact-name folder lookup.
var ErrFolderNotFound = errors.New("service: folder not found")

// Drive is the storage backend the resolver and upload handlers write to.
// Folder identifiers are opaque to callers; only the Drive interprets them.
type Drive interface {
	// RootID returns the identifier of the account root folder.
	RootID() string

	// FindChildFolder performs a deterministic exact-name lookup of a
	// direct subfolder. Returns ErrFolderNotFound on a miss.
	FindChildFolder(ctx context.Context, parentID, name string) (string, error)

	// CreateFolder creates a direct subfolder and returns its identifier.
	CreateFolder(ctx context.Context, parentID, name string) (string, error)

	// PutFile stores a file in the given folder and returns its file id.
	PutFile(ctx context.Context, folderID, name string, data []byte) (string, error)
}

// FSDrive stores albums as directories under a local root. Folder ids are
// slash-separated paths relative to the root, which keeps them stable
// across restarts and readable in logs.
type FSDrive struct {
	root string
}

// NewFSDrive creates a filesystem drive rooted at dir, creating it if
// needed.
func NewFSDrive(dir string) (*FSDrive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("service: creating drive root %s: %w", dir, err)
	}

	return &FSDrive{root: dir}, nil
}

// RootID returns ".", the relative path of the root itself.
func (d *FSDrive) RootID() string { return "." }

func (d *FSDrive) abs(folderID string) string {
	return filepath.Join(d.root, filepath.FromSlash(folderID))
}

// FindChildFolder looks for an existing directory with the exact name.
func (d *FSDrive) FindChildFolder(_ context.Context, parentID, name string) (string, error) {
	id := childID(parentID, name)

	info, err := os.Stat(d.abs(id))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrFolderNotFound
	}

	if err != nil {
		return "", fmt.Errorf("service: stat folder %s: %w", id, err)
	}

	if !info.IsDir() {
		return "", ErrFolderNotFound
	}

	return id, nil
}

// CreateFolder creates the directory. Mkdir (not MkdirAll): the resolver
// creates one level at a time, and a missing parent is a logic error worth
// surfacing.
func (d *FSDrive) CreateFolder(_ context.Context, parentID, name string) (string, error) {
	id := childID(parentID, name)

	if err := os.Mkdir(d.abs(id), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("service: creating folder %s: %w", id, err)
	}

	return id, nil
}

// PutFile writes the payload and returns a fresh file id.
func (d *FSDrive) PutFile(_ context.Context, folderID, name string, data []byte) (string, error) {
	if err := os.WriteFile(filepath.Join(d.abs(folderID), name), data, 0o644); err != nil {
		return "", fmt.Errorf("service: writing file %s: %w", name, err)
	}

	return uuid.NewString(), nil
}

func childID(parentID, name string) string {
	if parentID == "." || parentID == "" {
		return name
	}

	return parentID + "/" + name
}
