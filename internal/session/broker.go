package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrConfigMissing means no client identity is configured. This is a
	// setup problem, not retryable.
	ErrConfigMissing = errors.New("session: client identity not configured")

	// ErrNoPendingCode means no one-time code was supplied and none is
	// stored. A previous successful exchange clears the stored code, so a
	// replayed Initialize without a fresh code fails here deterministically.
	ErrNoPendingCode = errors.New("session: no one-time authorization code available")
)

// Exchanger performs the remote code-for-session exchange. Defined here per
// "accept interfaces, return structs"; remote.Client implements it.
type Exchanger interface {
	InitSession(ctx context.Context, folderID, oneTimeCode, clientID string) (string, error)
}

// Broker converts a one-time authorization code into a durable session and
// persists it. Initialize is single-flight per process: concurrent callers
// share the one in-flight exchange instead of each burning a code.
type Broker struct {
	exchanger Exchanger
	clientID  string
	path      string
	logger    *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	cached *Session
}

// NewBroker creates a Broker persisting session state at path.
func NewBroker(exchanger Exchanger, clientID, path string, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		exchanger: exchanger,
		clientID:  clientID,
		path:      path,
		logger:    logger,
	}
}

// Current returns the active session, loading it from disk on first use.
// Returns (nil, nil) when no session has been established.
func (b *Broker) Current() (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.currentLocked()
}

func (b *Broker) currentLocked() (*Session, error) {
	if b.cached != nil {
		return b.cached, nil
	}

	f, err := Load(b.path)
	if err != nil {
		return nil, err
	}

	b.cached = f.Session

	return b.cached, nil
}

// StorePendingCode persists a one-time authorization code for a later
// Initialize call. The settings flow hands the code off here so the
// exchange can run when the user picks a destination folder.
func (b *Broker) StorePendingCode(code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := Load(b.path)
	if err != nil {
		return err
	}

	f.PendingCode = code

	return Save(b.path, f)
}

// Initialize exchanges the one-time code for a durable session bound to
// folderID. If oneTimeCode is empty the stored pending code is used. The
// code is cleared from disk immediately after a successful exchange.
//
// Idempotent per process: an existing session is returned as-is, and
// concurrent callers join the single in-flight exchange and receive its
// result rather than triggering a second real exchange.
func (b *Broker) Initialize(ctx context.Context, folderID, oneTimeCode, ownerAccountID string) (*Session, error) {
	if b.clientID == "" {
		return nil, ErrConfigMissing
	}

	// Fast path: session already established.
	b.mu.Lock()
	sess, err := b.currentLocked()
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if sess != nil {
		b.logger.Debug("session already initialized", slog.String("session_id", sess.ID))
		return sess, nil
	}

	v, err, shared := b.group.Do("initialize", func() (any, error) {
		return b.doInitialize(ctx, folderID, oneTimeCode, ownerAccountID)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		b.logger.Debug("joined in-flight session initialization")
	}

	result, ok := v.(*Session)
	if !ok {
		return nil, fmt.Errorf("session: unexpected single-flight result type %T", v)
	}

	return result, nil
}

// doInitialize runs the actual exchange. Only one invocation is in flight
// at a time (singleflight). Re-checks cached state first because a caller
// may have completed the exchange between the fast path and the flight.
func (b *Broker) doInitialize(ctx context.Context, folderID, oneTimeCode, ownerAccountID string) (*Session, error) {
	b.mu.Lock()
	sess, err := b.currentLocked()
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if sess != nil {
		return sess, nil
	}

	f, err := Load(b.path)
	if err != nil {
		return nil, err
	}

	code := oneTimeCode
	if code == "" {
		code = f.PendingCode
	}

	if code == "" {
		return nil, ErrNoPendingCode
	}

	b.logger.Info("initializing session",
		slog.String("folder_id", folderID),
		slog.String("owner_account_id", ownerAccountID),
	)

	sid, err := b.exchanger.InitSession(ctx, folderID, code, b.clientID)
	if err != nil {
		return nil, err
	}

	sess = &Session{
		ID:                sid,
		OwnerAccountID:    ownerAccountID,
		DriveRootFolderID: folderID,
		CreatedAt:         time.Now().UTC(),
	}

	// Persist the session and clear the consumed code in one write.
	f.Session = sess
	f.PendingCode = ""

	if saveErr := Save(b.path, f); saveErr != nil {
		return nil, saveErr
	}

	b.mu.Lock()
	b.cached = sess
	b.mu.Unlock()

	b.logger.Info("session initialized", slog.String("session_id", sess.ID))

	return sess, nil
}

// Reset discards the cached and persisted session. Used on account
// disconnect or explicit re-initialization.
func (b *Broker) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cached = nil

	if err := Remove(b.path); err != nil {
		return fmt.Errorf("session: removing %s: %w", b.path, err)
	}

	b.logger.Info("session reset", slog.String("path", b.path))

	return nil
}
