package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/noelzubin/notes_switcher/search"
	"go.uber.org/zap"
)

// DefaultRenameWindow is how long a rename away waits for the matching create.
const DefaultRenameWindow = 100 * time.Millisecond

// Callbacks receive the vault changes seen by a Watcher.
type Callbacks struct {
	OnCreate func(f *search.File)
	OnModify func(f *search.File)
	OnDelete func(path string)
	OnRename func(f *search.File, oldPath string)
}

// Watcher turns fsnotify events below the vault root into vault changes.
// fsnotify reports a rename as a rename of the old path followed by a create
// of the new one, so the two are paired when they arrive within the window.
type Watcher struct {
	watcher   *fsnotify.Watcher
	vault     *Vault
	window    time.Duration
	callbacks Callbacks
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	renamed *pendingRename
}

type pendingRename struct {
	path  string
	timer *time.Timer
}

func NewWatcher(v *Vault, window time.Duration, callbacks Callbacks, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := newWatcher(v, window, callbacks, logger)
	w.watcher = fw
	return w, nil
}

func newWatcher(v *Vault, window time.Duration, callbacks Callbacks, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = DefaultRenameWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{vault: v, window: window, callbacks: callbacks, logger: logger, ctx: ctx, cancel: cancel}
}

// Start watches every folder of the vault.
func (w *Watcher) Start() error {
	root := w.vault.Root()
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if rel, ok := w.vault.RelPath(p); ok && w.vault.Excluded(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			w.logger.Warn("Failed to watch folder", zap.String("path", p), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	w.wg.Add(1)
	go w.processEvents()
	w.logger.Info("Watching vault", zap.String("root", root))
	return nil
}

// Stop ends the watch. A rename still waiting for its create is dropped.
func (w *Watcher) Stop() error {
	w.cancel()
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()

	w.mu.Lock()
	if w.renamed != nil {
		w.renamed.timer.Stop()
		w.renamed = nil
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, ok := w.vault.RelPath(event.Name)
	if !ok || w.vault.Excluded(rel) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		if w.vault.IsDir(rel) {
			if w.watcher != nil {
				if err := w.watcher.Add(event.Name); err != nil {
					w.logger.Warn("Failed to watch folder", zap.String("path", rel), zap.Error(err))
				}
			}
			return
		}
		if !w.vault.Accepts(rel) {
			return
		}
		f := search.NewFile(rel)
		if oldPath, ok := w.takeRename(); ok {
			w.logger.Debug("Renamed", zap.String("from", oldPath), zap.String("to", rel))
			if w.callbacks.OnRename != nil {
				w.callbacks.OnRename(f, oldPath)
			}
			return
		}
		if w.callbacks.OnCreate != nil {
			w.callbacks.OnCreate(f)
		}
	case event.Has(fsnotify.Write):
		if w.vault.Accepts(rel) && w.callbacks.OnModify != nil {
			w.callbacks.OnModify(search.NewFile(rel))
		}
	case event.Has(fsnotify.Rename):
		if w.vault.Accepts(rel) {
			w.holdRename(rel)
		}
	case event.Has(fsnotify.Remove):
		if w.vault.Accepts(rel) && w.callbacks.OnDelete != nil {
			w.callbacks.OnDelete(rel)
		}
	}
}

// holdRename waits for the create of the new name. Without one in time the
// file was moved out of the vault and counts as deleted.
func (w *Watcher) holdRename(p string) {
	w.mu.Lock()
	var expired string
	if w.renamed != nil && w.renamed.timer.Stop() {
		expired = w.renamed.path
	}
	pending := &pendingRename{path: p}
	pending.timer = time.AfterFunc(w.window, func() {
		w.mu.Lock()
		if w.renamed != pending {
			w.mu.Unlock()
			return
		}
		w.renamed = nil
		w.mu.Unlock()
		w.expire(p)
	})
	w.renamed = pending
	w.mu.Unlock()

	if expired != "" {
		w.expire(expired)
	}
}

func (w *Watcher) takeRename() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.renamed == nil || !w.renamed.timer.Stop() {
		return "", false
	}
	p := w.renamed.path
	w.renamed = nil
	return p, true
}

func (w *Watcher) expire(p string) {
	if w.callbacks.OnDelete != nil {
		w.callbacks.OnDelete(p)
	}
}
