// Package watcher turns filesystem events into catalog reconciliations. Raw
// fsnotify events for a media root are collected into a per-root pending set
// and flushed as one batch after a fixed coalescing window, so a burst of
// writes produces a single reconciliation instead of one per event.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"legato/internal/pathutil"
	"legato/internal/scanner"
)

// DefaultWindow is the event coalescing window.
const DefaultWindow = 2 * time.Second

// Reconciler applies a set of changed paths to the catalog. Implemented by
// the scanner.
type Reconciler interface {
	ReconcilePaths(ctx context.Context, paths []string) (*scanner.Summary, error)
}

// Watcher monitors media roots and dispatches debounced reconciliations.
type Watcher struct {
	fsw        *fsnotify.Watcher
	reconciler Reconciler
	logger     *logrus.Logger
	window     time.Duration

	mu      sync.Mutex
	roots   []string
	pending map[string]map[string]struct{}
	timers  map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher dispatching to the given reconciler. window
// <= 0 selects DefaultWindow.
func NewWatcher(reconciler Reconciler, window time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultWindow
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fsw:        fsw,
		reconciler: reconciler,
		logger:     logger,
		window:     window,
		pending:    make(map[string]map[string]struct{}),
		timers:     make(map[string]*time.Timer),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

// AddRoot registers a media root and every directory below it.
func (w *Watcher) AddRoot(root string) error {
	canonical, err := pathutil.CanonicalizeFile(root)
	if err != nil {
		return err
	}
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.WithError(err).WithField("path", path).Warn("Skipping unwatchable subtree")
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.roots = append(w.roots, canonical)
	w.mu.Unlock()

	w.logger.WithField("root", root).Info("Watching media root")
	return nil
}

// Start begins draining filesystem events.
func (w *Watcher) Start() {
	go w.loop()
}

// Close stops the watcher. Pending windows are cancelled without flushing.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsw.Close()
	<-w.done

	w.mu.Lock()
	for root, timer := range w.timers {
		timer.Stop()
		delete(w.timers, root)
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")

		case <-w.ctx.Done():
			return
		}
	}
}

// handleEvent classifies one raw event. Directory creation extends the watch
// set; everything else lands in the pending set of its root.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.WithError(err).WithField("directory", event.Name).Warn("Could not watch new directory")
			} else {
				w.logger.WithField("directory", event.Name).Debug("Watching new directory")
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	canonical, err := pathutil.CanonicalizeFile(event.Name)
	if err != nil {
		return
	}
	w.enqueue(canonical, event.Name)
}

// enqueue records a changed path under its root and arms the root's window
// timer. Events arriving while a window is open join it; the timer is not
// extended, which bounds flush latency under a steady event stream.
func (w *Watcher) enqueue(canonical, original string) {
	root := w.rootFor(canonical)

	w.mu.Lock()
	defer w.mu.Unlock()

	set, ok := w.pending[root]
	if !ok {
		set = make(map[string]struct{})
		w.pending[root] = set
	}
	set[original] = struct{}{}

	if _, armed := w.timers[root]; !armed {
		w.timers[root] = time.AfterFunc(w.window, func() { w.flush(root) })
	}
}

// rootFor maps a canonical path onto the registered root containing it.
// Paths outside every root are grouped under the empty key.
func (w *Watcher) rootFor(canonical string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, root := range w.roots {
		if canonical == root || strings.HasPrefix(canonical, root+"/") {
			return root
		}
	}
	return ""
}

// flush hands the root's pending set to the reconciler.
func (w *Watcher) flush(root string) {
	w.mu.Lock()
	set := w.pending[root]
	delete(w.pending, root)
	delete(w.timers, root)
	w.mu.Unlock()

	if len(set) == 0 {
		return
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}

	summary, err := w.reconciler.ReconcilePaths(w.ctx, paths)
	if err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"root":  root,
			"paths": len(paths),
		}).Error("Reconciliation failed")
		return
	}
	w.logger.WithFields(logrus.Fields{
		"root":     root,
		"inserted": summary.Inserted,
		"updated":  summary.Updated,
		"removed":  summary.Removed,
	}).Info("Watcher reconciliation applied")
}
