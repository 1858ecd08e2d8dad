package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// forbiddenNameChars are path-hostile characters stripped from album names
// before they are used as folder names.
const forbiddenNameChars = `<>:"/\|?*`

// SanitizeName normalizes a user-supplied folder name: NFC form, then every
// path-hostile character replaced with an underscore. The sanitized name is
// used consistently for both lookup and creation, so the same input always
// converges on the same folder.
func SanitizeName(name string) string {
	name = norm.NFC.String(name)

	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbiddenNameChars, r) {
			return '_'
		}

		return r
	}, name)
}

// CategoryFor maps an item's type/format pair onto the category subpath:
// "formats/<format>" for a non-default format, else the photo type with
// the legacy "mix" spelling normalized to "combined".
func CategoryFor(photoType, format string) string {
	if format != "" && format != "original" {
		return "formats/" + format
	}

	switch photoType {
	case "", "mix", "combined":
		return "combined"
	default:
		return photoType
	}
}

// Resolver resolves a logical (album, category) path to a concrete folder,
// creating folders on demand. Concurrent resolutions of the same path
// converge on one folder: the named lock covers the whole lookup+create
// sequence, so two callers cannot both miss the lookup and both create.
//
// Each path moves UNRESOLVED -> RESOLVING -> RESOLVED; resolved ids are
// memoized so repeated items of a batch skip the drive entirely.
type Resolver struct {
	drive  Drive
	lock   *FolderLock
	logger *slog.Logger

	mu   sync.Mutex
	memo map[string]string
}

// NewResolver creates a Resolver over the given drive and lock.
func NewResolver(drive Drive, lock *FolderLock, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		drive:  drive,
		lock:   lock,
		logger: logger,
		memo:   make(map[string]string),
	}
}

// Prepare resolves just the album-level folder, paying the lock cost once
// for a whole batch.
func (r *Resolver) Prepare(ctx context.Context, albumName string) (string, error) {
	return r.resolvePath(ctx, r.drive.RootID(), albumName, nil)
}

// Resolve returns the folder id for (albumName, category), creating the
// album folder and up to two category levels as needed. category is either
// "formats/<format>" or a photo type.
func (r *Resolver) Resolve(ctx context.Context, albumName, category string) (string, error) {
	return r.ResolveUnder(ctx, r.drive.RootID(), albumName, category)
}

// ResolveUnder resolves beneath an explicit base folder instead of the
// drive root. The one-shot endpoint carries its storage root folder id in
// the request, so its albums land under the caller's folder.
func (r *Resolver) ResolveUnder(ctx context.Context, baseID, albumName, category string) (string, error) {
	if baseID == "" {
		baseID = r.drive.RootID()
	}

	var levels []string
	if category != "" {
		levels = strings.Split(category, "/")
	}

	return r.resolvePath(ctx, baseID, albumName, levels)
}

func (r *Resolver) resolvePath(ctx context.Context, baseID, albumName string, levels []string) (string, error) {
	album := SanitizeName(albumName)

	names := append([]string{album}, levels...)
	key := strings.Join(append([]string{baseID}, names...), "/")

	r.mu.Lock()
	if id, ok := r.memo[key]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	// The lock must be held across the whole lookup+create sequence.
	// Release is unconditional — a failed resolution must never wedge
	// later requests — and happens before any caller-side payload work.
	release, held := r.lock.Acquire(ctx)
	defer release()

	if !held && ctx.Err() != nil {
		return "", ctx.Err()
	}

	parentID := baseID

	for _, name := range names {
		id, err := r.findOrCreate(ctx, parentID, name)
		if err != nil {
			return "", err
		}

		parentID = id
	}

	r.mu.Lock()
	r.memo[key] = parentID
	r.mu.Unlock()

	r.logger.Debug("folder path resolved",
		slog.String("path", key),
		slog.String("folder_id", parentID),
		slog.Bool("locked", held),
	)

	return parentID, nil
}

// findOrCreate is a deterministic exact-name lookup followed, only on a
// miss, by creation.
func (r *Resolver) findOrCreate(ctx context.Context, parentID, name string) (string, error) {
	id, err := r.drive.FindChildFolder(ctx, parentID, name)
	if err == nil {
		return id, nil
	}

	if !errors.Is(err, ErrFolderNotFound) {
		return "", err
	}

	return r.drive.CreateFolder(ctx, parentID, name)
}
