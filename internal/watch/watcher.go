package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jobproof/jobproof-go/internal/batch"
)

// Watch-loop tuning. The settle window is how long a file must sit
// unchanged before it is considered fully copied; camera imports write
// large files in chunks, so flushing on the first Write event would ship
// truncated photos.
const (
	settleWindow     = 2 * time.Second
	flushPoll        = 500 * time.Millisecond
	rescanInterval   = 5 * time.Minute
	errInitBackoff   = time.Second
	errMaxBackoff    = 30 * time.Second
	errBackoffFactor = 2
)

// FsWatcher abstracts fsnotify for tests.
type FsWatcher interface {
	Add(path string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f *fsnotifyWatcher) Add(path string) error         { return f.w.Add(path) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating watcher: %w", err)
	}

	return &fsnotifyWatcher{w: w}, nil
}

// BatchFunc receives each flushed group of settled items. A non-nil error
// stops the watcher.
type BatchFunc func(ctx context.Context, items []batch.Item) error

// pending tracks one outbox file between its last event and its flush.
type pending struct {
	lastEvent time.Time
	lastSize  int64
}

// flushedFile is the fingerprint of a file at the moment it was emitted.
type flushedFile struct {
	size    int64
	modTime time.Time
}

// Watcher observes a single outbox directory and emits batches of settled
// photos. Files reported by fsnotify wait out the settle window with a
// stable size before they flush; everything settled at the same poll tick
// goes out as one batch.
type Watcher struct {
	outbox string
	emit   BatchFunc
	logger *slog.Logger

	// watcherFactory and settle are swapped in tests.
	watcherFactory func() (FsWatcher, error)
	settle         time.Duration

	pending map[string]*pending

	// flushed remembers emitted files so the periodic rescan does not
	// re-queue them. An entry is evicted when the file is removed or its
	// size or mtime changes, at which point it uploads again.
	flushed map[string]flushedFile
}

// New creates a watcher over the outbox directory.
func New(outbox string, emit BatchFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		outbox:         outbox,
		emit:           emit,
		logger:         logger,
		watcherFactory: newFsnotifyWatcher,
		settle:         settleWindow,
		pending:        make(map[string]*pending),
		flushed:        make(map[string]flushedFile),
	}
}

// Run watches until the context is canceled or the emit callback fails.
// Files already sitting in the outbox at startup are picked up by the
// initial scan, so a watcher started after photos were copied in still
// uploads them.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := w.watcherFactory()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.outbox); err != nil {
		return fmt.Errorf("watch: watching %s: %w", w.outbox, err)
	}

	w.logger.Info("watching outbox", slog.String("dir", w.outbox))

	w.scanOutbox()

	flushTicker := time.NewTicker(flushPoll)
	defer flushTicker.Stop()

	rescanTicker := time.NewTicker(rescanInterval)
	defer rescanTicker.Stop()

	errBackoff := errInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			w.handleEvent(ev)

			errBackoff = errInitBackoff

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			// Backoff prevents a tight loop under sustained errors such
			// as kernel buffer overflow.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errBackoff):
			}

			errBackoff *= errBackoffFactor
			if errBackoff > errMaxBackoff {
				errBackoff = errMaxBackoff
			}

		case <-flushTicker.C:
			if err := w.flushSettled(ctx); err != nil {
				return err
			}

		case <-rescanTicker.C:
			// Safety net for events fsnotify missed.
			w.scanOutbox()
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			delete(w.pending, ev.Name)
			delete(w.flushed, ev.Name)
		}

		return
	}

	w.track(ev.Name)
}

// scanOutbox registers every photo already in the directory as pending.
// Duplicates are harmless: tracking an already-pending path just restarts
// its settle window, and track skips already-flushed paths unless the file
// changed since its upload.
func (w *Watcher) scanOutbox() {
	entries, err := os.ReadDir(w.outbox)
	if err != nil {
		w.logger.Warn("outbox scan failed", slog.String("error", err.Error()))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		w.track(w.outbox + string(os.PathSeparator) + entry.Name())
	}
}

func (w *Watcher) track(path string) {
	if _, err := ParseItem(path); err != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		return
	}

	if f, ok := w.flushed[path]; ok {
		if f.size == info.Size() && f.modTime.Equal(info.ModTime()) {
			return
		}

		delete(w.flushed, path)
	}

	p, ok := w.pending[path]
	if !ok {
		p = &pending{}
		w.pending[path] = p
	}

	p.lastEvent = time.Now()
	p.lastSize = info.Size()
}

// flushSettled emits one batch of every pending file whose settle window
// has passed with a stable size.
func (w *Watcher) flushSettled(ctx context.Context) error {
	now := time.Now()

	var paths []string

	settled := make(map[string]flushedFile)

	for path, p := range w.pending {
		if now.Sub(p.lastEvent) < w.settle {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}

		if info.Size() != p.lastSize {
			// Still growing; restart the window.
			p.lastEvent = now
			p.lastSize = info.Size()

			continue
		}

		paths = append(paths, path)
		settled[path] = flushedFile{size: info.Size(), modTime: info.ModTime()}
	}

	if len(paths) == 0 {
		return nil
	}

	sort.Strings(paths)

	items := make([]batch.Item, 0, len(paths))
	for _, path := range paths {
		item, err := ParseItem(path)
		if err != nil {
			continue
		}

		items = append(items, item)
		delete(w.pending, path)
		w.flushed[path] = settled[path]
	}

	w.logger.Info("flushing settled photos", slog.Int("count", len(items)))

	if err := w.emit(ctx, items); err != nil {
		return fmt.Errorf("watch: batch handler: %w", err)
	}

	return nil
}
