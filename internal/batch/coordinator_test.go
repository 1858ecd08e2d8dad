package batch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobproof/jobproof-go/internal/remote"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type uploaderFunc func(ctx context.Context, sessionID string, req *remote.UploadRequest) (*remote.UploadResult, error)

func (f uploaderFunc) UploadPhoto(ctx context.Context, sessionID string, req *remote.UploadRequest) (*remote.UploadResult, error) {
	return f(ctx, sessionID, req)
}

type preparerFunc func(ctx context.Context, sessionID, albumName string) (string, error)

func (f preparerFunc) PrepareAlbum(ctx context.Context, sessionID, albumName string) (string, error) {
	return f(ctx, sessionID, albumName)
}

func newTestCoordinator(u Uploader, p Preparer) *Coordinator {
	c := NewCoordinator(u, p, testLogger())
	c.readFile = func(string) ([]byte, error) { return []byte("jpeg-bytes"), nil }

	return c
}

func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range n {
		items[i] = Item{
			SourceRef: "/photos/p" + string(rune('0'+i)) + ".jpg",
			Filename:  "p" + string(rune('0'+i)) + ".jpg",
			Room:      "kitchen",
			Type:      TypeBefore,
		}
	}

	return items
}

func TestUpload_AllSucceed(t *testing.T) {
	uploader := uploaderFunc(func(_ context.Context, sessionID string, req *remote.UploadRequest) (*remote.UploadResult, error) {
		assert.Equal(t, "sess-1", sessionID)
		assert.NotEmpty(t, req.ContentBase64)

		return &remote.UploadResult{FileID: "f-" + req.Filename, FolderPath: "A/before/"}, nil
	})

	c := newTestCoordinator(uploader, nil)

	result, err := c.Upload(context.Background(), "A", makeItems(4),
		AdminContext{SessionID: "sess-1", FolderID: "root"}, nil, Options{})
	require.NoError(t, err)
	assert.Len(t, result.Successful, 4)
	assert.Empty(t, result.Failed)
	assert.True(t, result.FullySuccessful())
}

func TestUpload_PartialFailure(t *testing.T) {
	// Item 3 of 5 is engineered to fail.
	uploader := uploaderFunc(func(_ context.Context, _ string, req *remote.UploadRequest) (*remote.UploadResult, error) {
		if req.Filename == "p2.jpg" {
			return nil, errors.New("network error")
		}

		return &remote.UploadResult{FileID: "f-" + req.Filename}, nil
	})

	c := newTestCoordinator(uploader, nil)

	var (
		mu          sync.Mutex
		progressLog []int
	)

	onProgress := func(completed, total int) {
		assert.Equal(t, 5, total)

		mu.Lock()
		progressLog = append(progressLog, completed)
		mu.Unlock()
	}

	result, err := c.Upload(context.Background(), "A", makeItems(5),
		AdminContext{SessionID: "sess-1"}, onProgress, Options{})
	require.NoError(t, err)

	assert.Len(t, result.Successful, 4)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "p2.jpg", result.Failed[0].Item.Filename)
	assert.False(t, result.FullySuccessful())

	// Progress fired exactly once per item with monotonically increasing
	// completed counts.
	require.Len(t, progressLog, 5)

	for i, completed := range progressLog {
		assert.Equal(t, i+1, completed)
	}
}

func TestUpload_CancellationExcludesAbortedItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Items p0 and p1 complete immediately; the rest block until canceled.
	uploader := uploaderFunc(func(ctx context.Context, _ string, req *remote.UploadRequest) (*remote.UploadResult, error) {
		if req.Filename == "p0.jpg" || req.Filename == "p1.jpg" {
			return &remote.UploadResult{FileID: "f-" + req.Filename}, nil
		}

		<-ctx.Done()

		return nil, ctx.Err()
	})

	c := newTestCoordinator(uploader, nil)

	onProgress := func(completed, _ int) {
		if completed == 2 {
			cancel()
		}
	}

	result, err := c.Upload(ctx, "A", makeItems(5),
		AdminContext{SessionID: "sess-1"}, onProgress, Options{})
	require.NoError(t, err)

	// Completed items are retained; aborted items are neither successes
	// nor failures.
	assert.Len(t, result.Successful, 2)
	assert.Empty(t, result.Failed)
}

func TestUpload_CancelBeforeDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32

	uploader := uploaderFunc(func(_ context.Context, _ string, _ *remote.UploadRequest) (*remote.UploadResult, error) {
		calls.Add(1)
		return &remote.UploadResult{}, nil
	})

	c := newTestCoordinator(uploader, nil)

	result, err := c.Upload(ctx, "A", makeItems(3),
		AdminContext{SessionID: "sess-1"}, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Successful)
	assert.Empty(t, result.Failed)
	assert.Equal(t, int32(0), calls.Load(), "no items dispatched after cancel")
}

func TestUpload_PrepareRunsBeforeAnyItem(t *testing.T) {
	var (
		prepared  atomic.Bool
		sawUnprep atomic.Bool
	)

	preparer := preparerFunc(func(_ context.Context, _, album string) (string, error) {
		time.Sleep(20 * time.Millisecond)
		prepared.Store(true)

		return "folder-" + album, nil
	})

	uploader := uploaderFunc(func(_ context.Context, _ string, _ *remote.UploadRequest) (*remote.UploadResult, error) {
		if !prepared.Load() {
			sawUnprep.Store(true)
		}

		return &remote.UploadResult{}, nil
	})

	c := newTestCoordinator(uploader, preparer)

	_, err := c.Upload(context.Background(), "A", makeItems(5),
		AdminContext{SessionID: "sess-1"}, nil, Options{Prepare: true})
	require.NoError(t, err)
	assert.False(t, sawUnprep.Load(), "no item dispatched before prepare completed")
}

func TestUpload_PrepareFailureFallsBack(t *testing.T) {
	preparer := preparerFunc(func(_ context.Context, _, _ string) (string, error) {
		return "", errors.New("lock timeout")
	})

	uploader := uploaderFunc(func(_ context.Context, _ string, req *remote.UploadRequest) (*remote.UploadResult, error) {
		return &remote.UploadResult{FileID: "f-" + req.Filename}, nil
	})

	c := newTestCoordinator(uploader, preparer)

	result, err := c.Upload(context.Background(), "A", makeItems(3),
		AdminContext{SessionID: "sess-1"}, nil, Options{Prepare: true})
	require.NoError(t, err)
	assert.Len(t, result.Successful, 3, "items proceed with per-item resolution")
}

func TestUpload_MemberContextCarriesToken(t *testing.T) {
	uploader := uploaderFunc(func(_ context.Context, sessionID string, req *remote.UploadRequest) (*remote.UploadResult, error) {
		assert.Equal(t, "sess-admin", sessionID)
		assert.Equal(t, "tok-9", req.Token)

		return &remote.UploadResult{}, nil
	})

	c := newTestCoordinator(uploader, nil)

	result, err := c.Upload(context.Background(), "A", makeItems(2),
		MemberContext{SessionID: "sess-admin", Token: "tok-9"}, nil, Options{})
	require.NoError(t, err)
	assert.Len(t, result.Successful, 2)
}

func TestUpload_UnknownContext(t *testing.T) {
	c := newTestCoordinator(nil, nil)

	_, err := c.Upload(context.Background(), "A", makeItems(1), nil, nil, Options{})
	assert.ErrorIs(t, err, ErrUnknownContext)
}

func TestUpload_BoundedConcurrency(t *testing.T) {
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)

	uploader := uploaderFunc(func(_ context.Context, _ string, _ *remote.UploadRequest) (*remote.UploadResult, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)

		return &remote.UploadResult{}, nil
	})

	c := newTestCoordinator(uploader, nil)

	_, err := c.Upload(context.Background(), "A", makeItems(8),
		AdminContext{SessionID: "sess-1"}, nil, Options{Concurrency: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestUpload_ReadFailureIsItemFailure(t *testing.T) {
	uploader := uploaderFunc(func(_ context.Context, _ string, _ *remote.UploadRequest) (*remote.UploadResult, error) {
		return &remote.UploadResult{}, nil
	})

	c := NewCoordinator(uploader, nil, testLogger())
	c.readFile = func(path string) ([]byte, error) {
		if strings.Contains(path, "p1") {
			return nil, os.ErrNotExist
		}

		return []byte("x"), nil
	}

	result, err := c.Upload(context.Background(), "A", makeItems(3),
		AdminContext{SessionID: "sess-1"}, nil, Options{})
	require.NoError(t, err)
	assert.Len(t, result.Successful, 2)
	require.Len(t, result.Failed, 1)
	assert.ErrorIs(t, result.Failed[0].Err, os.ErrNotExist)
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, TypeCombined, NormalizeType("mix"))
	assert.Equal(t, TypeBefore, NormalizeType("before"))
	assert.Equal(t, TypeAfter, NormalizeType("after"))
}
