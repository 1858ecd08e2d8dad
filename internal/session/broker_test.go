package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeExchanger counts real exchanges and can delay to widen race windows.
type fakeExchanger struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *fakeExchanger) InitSession(ctx context.Context, folderID, code, clientID string) (string, error) {
	f.calls.Add(1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if f.err != nil {
		return "", f.err
	}

	return "sess-" + code, nil
}

func TestInitialize_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ex := &fakeExchanger{}
	b := NewBroker(ex, "client-1", path, testLogger())

	sess, err := b.Initialize(context.Background(), "root-folder", "code-1", "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-code-1", sess.ID)
	assert.Equal(t, "acct-1", sess.OwnerAccountID)
	assert.Equal(t, "root-folder", sess.DriveRootFolderID)
	assert.False(t, sess.CreatedAt.IsZero())

	// Persisted to disk with the code cleared.
	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f.Session)
	assert.Equal(t, "sess-code-1", f.Session.ID)
	assert.Empty(t, f.PendingCode)
}

func TestInitialize_MissingClientID(t *testing.T) {
	b := NewBroker(&fakeExchanger{}, "", filepath.Join(t.TempDir(), "s.json"), testLogger())

	_, err := b.Initialize(context.Background(), "root", "code", "acct")
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func TestInitialize_ConsumesPendingCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ex := &fakeExchanger{}
	b := NewBroker(ex, "client-1", path, testLogger())

	require.NoError(t, b.StorePendingCode("stored-code"))

	sess, err := b.Initialize(context.Background(), "root", "", "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-stored-code", sess.ID)

	// A reset followed by Initialize without a fresh code fails: the
	// stored code was cleared by the successful exchange.
	require.NoError(t, b.Reset())

	_, err = b.Initialize(context.Background(), "root", "", "acct-1")
	assert.ErrorIs(t, err, ErrNoPendingCode)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestInitialize_SingleFlight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ex := &fakeExchanger{delay: 50 * time.Millisecond}
	b := NewBroker(ex, "client-1", path, testLogger())

	const callers = 10

	var wg sync.WaitGroup

	sessions := make([]*Session, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			sessions[i], errs[i] = b.Initialize(context.Background(), "root", "code-x", "acct-1")
		}()
	}

	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "sess-code-x", sessions[i].ID)
	}

	assert.Equal(t, int32(1), ex.calls.Load(), "exactly one real exchange")
}

func TestInitialize_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ex := &fakeExchanger{}
	b := NewBroker(ex, "client-1", path, testLogger())

	first, err := b.Initialize(context.Background(), "root", "code-1", "acct-1")
	require.NoError(t, err)

	// Second call returns the cached session without another exchange,
	// even with a different code.
	second, err := b.Initialize(context.Background(), "root", "code-2", "acct-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestInitialize_ReloadsPersistedSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ex := &fakeExchanger{}

	b1 := NewBroker(ex, "client-1", path, testLogger())
	_, err := b1.Initialize(context.Background(), "root", "code-1", "acct-1")
	require.NoError(t, err)

	// A fresh broker (new process) sees the persisted session.
	b2 := NewBroker(ex, "client-1", path, testLogger())

	sess, err := b2.Current()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "sess-code-1", sess.ID)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestInitialize_ExchangeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ex := &fakeExchanger{err: context.DeadlineExceeded}
	b := NewBroker(ex, "client-1", path, testLogger())

	_, err := b.Initialize(context.Background(), "root", "bad-code", "acct-1")
	require.Error(t, err)

	// Nothing persisted on failure.
	f, loadErr := Load(path)
	require.NoError(t, loadErr)
	assert.Nil(t, f.Session)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "session.json")

	want := &File{
		Session: &Session{
			ID:                "s-1",
			OwnerAccountID:    "a-1",
			DriveRootFolderID: "f-1",
			CreatedAt:         time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, Save(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.Session, got.Session)
}
