package batch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jobproof/jobproof-go/internal/remote"
)

// Uploader performs one photo upload. remote.Client implements it.
type Uploader interface {
	UploadPhoto(ctx context.Context, sessionID string, req *remote.UploadRequest) (*remote.UploadResult, error)
}

// Preparer pre-resolves the album folder for a batch. remote.Client
// implements it.
type Preparer interface {
	PrepareAlbum(ctx context.Context, sessionID, albumName string) (string, error)
}

// Options tunes a single batch.
type Options struct {
	// Concurrency bounds simultaneous uploads. Zero means unbounded: every
	// item is dispatched at once, which is the default policy.
	Concurrency int

	// Prepare resolves the album folder once up front so per-item uploads
	// skip redundant album-level resolution. This is the main defense
	// against resolution lock contention when many items upload at once.
	Prepare bool

	// Metadata stamped onto every item of the batch.
	Location    string
	CleanerName string
	Flat        bool
}

// Coordinator runs upload batches.
type Coordinator struct {
	uploader Uploader
	preparer Preparer
	logger   *slog.Logger

	// readFile loads an item payload. Tests override it.
	readFile func(string) ([]byte, error)
}

// NewCoordinator creates a batch coordinator.
func NewCoordinator(uploader Uploader, preparer Preparer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		uploader: uploader,
		preparer: preparer,
		logger:   logger,
		readFile: os.ReadFile,
	}
}

// Upload drives all items of a batch to completion and partitions the
// outcome. The returned error covers batch-level input problems only;
// per-item failures land in Result.Failed and never abort siblings.
//
// Cancellation semantics: ctx is checked before each item is scheduled and
// propagated into every in-flight request. Items that abort after
// cancellation are excluded from both partitions — an intentional cancel
// is not a failure worth surfacing.
func (c *Coordinator) Upload(
	ctx context.Context,
	albumName string,
	items []Item,
	uctx Context,
	onProgress ProgressFunc,
	opts Options,
) (*Result, error) {
	var memberToken string

	switch uc := uctx.(type) {
	case AdminContext:
		// Admin/individual mode: authorization is the session itself.
		_ = uc
	case MemberContext:
		memberToken = uc.Token
	default:
		return nil, ErrUnknownContext
	}

	total := len(items)

	c.logger.Info("starting upload batch",
		slog.String("album", albumName),
		slog.Int("items", total),
		slog.Bool("token_mode", memberToken != ""),
	)

	// Album pre-resolution always finishes — success or explicit fallback —
	// before any per-item upload is dispatched.
	if opts.Prepare && c.preparer != nil {
		if _, err := c.preparer.PrepareAlbum(ctx, uctx.sessionID(), albumName); err != nil {
			if ctx.Err() != nil {
				return &Result{}, nil
			}

			c.logger.Warn("album preparation failed, items will resolve individually",
				slog.String("album", albumName),
				slog.String("error", err.Error()),
			)
		}
	}

	var (
		mu        sync.Mutex
		completed int
		result    Result
	)

	record := func(item Item, res *remote.UploadResult, err error) {
		// Aborts after an intentional cancel are neither success nor
		// failure.
		if err != nil && ctx.Err() != nil && isAbort(err) {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			result.Failed = append(result.Failed, ItemFailure{Item: item, Err: err})
		} else {
			result.Successful = append(result.Successful, ItemResult{
				Item:       item,
				FileID:     res.FileID,
				FolderPath: res.FolderPath,
			})
		}

		completed++

		if onProgress != nil {
			onProgress(completed, total)
		}
	}

	g := &errgroup.Group{}
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	for _, item := range items {
		// Checked before scheduling: items never dispatched after cancel.
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			res, err := c.uploadItem(ctx, albumName, item, uctx.sessionID(), memberToken, opts)
			record(item, res, err)

			return nil
		})
	}

	// Workers return nil always; Wait is only a join point.
	_ = g.Wait() //nolint:errcheck // per-item errors are partitioned, not returned

	c.logger.Info("upload batch finished",
		slog.String("album", albumName),
		slog.Int("succeeded", len(result.Successful)),
		slog.Int("failed", len(result.Failed)),
		slog.Int("total", total),
	)

	return &result, nil
}

// uploadItem reads one payload and sends it.
func (c *Coordinator) uploadItem(
	ctx context.Context,
	albumName string,
	item Item,
	sessionID, memberToken string,
	opts Options,
) (*remote.UploadResult, error) {
	data, err := c.readFile(item.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("batch: reading %s: %w", item.SourceRef, err)
	}

	req := &remote.UploadRequest{
		Token:         memberToken,
		Filename:      item.Filename,
		ContentBase64: base64.StdEncoding.EncodeToString(data),
		AlbumName:     albumName,
		Room:          item.Room,
		Type:          string(item.Type),
		Format:        item.Format,
		Location:      opts.Location,
		CleanerName:   opts.CleanerName,
		Flat:          opts.Flat,
	}

	return c.uploader.UploadPhoto(ctx, sessionID, req)
}

// isAbort reports whether err is a context cancellation rather than a real
// failure.
func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
