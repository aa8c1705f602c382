package main

import (
	"context"
	"sync"

	"github.com/noelzubin/notes_switcher/search"
	"github.com/noelzubin/notes_switcher/search/bleve_indexer"
	"github.com/noelzubin/notes_switcher/search/fuzzy_indexer"
	"github.com/noelzubin/notes_switcher/search/suggester"
	"github.com/noelzubin/notes_switcher/search/synchronizer"
	"github.com/noelzubin/notes_switcher/utils"
	"github.com/noelzubin/notes_switcher/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Index keeps the note and image synchronizers in step with the vault.
// Vault changes are queued on both and applied once the metadata cache is
// clean, so entries are classified with their current aliases.
type Index struct {
	vault    *vault.Vault
	metadata *vault.MetadataCache
	files    *synchronizer.Synchronizer
	images   *synchronizer.Synchronizer
	watcher  *vault.Watcher
	closer   func() error
	logger   *zap.Logger

	mu       sync.Mutex
	lastScan []vault.FileInfo
	resolved sync.Once
}

func NewIndex(v *vault.Vault, config *utils.Config, logger *zap.Logger, reg prometheus.Registerer) *Index {
	metadata := vault.NewMetadataCache(v, logger.Named("metadata"))

	var engine search.Index
	closer := func() error { return nil }
	switch config.Engine {
	case utils.EngineBleve:
		bi := bleve_indexer.NewBleveIndexer(search.DefaultFileOptions(), logger.Named("bleve"))
		engine, closer = bi, bi.Close
	default:
		engine = fuzzy_indexer.New(search.DefaultFileOptions())
	}

	files := synchronizer.New(engine, metadata, synchronizer.Options{
		MarkdownOnly:    config.MarkdownOnly,
		UnresolvedLinks: config.UnresolvedLinks,
	}, logger.Named("synchronizer"), synchronizer.NewMetrics(reg))

	return &Index{
		vault:    v,
		metadata: metadata,
		files:    files,
		images:   suggester.NewImageSynchronizer(metadata, logger.Named("images")),
		closer:   closer,
		logger:   logger,
	}
}

// Load scans the vault and fills both synchronizers.
func (i *Index) Load(ctx context.Context) error {
	infos, err := i.vault.Scan(ctx)
	if err != nil {
		return err
	}
	handles := lo.Map(infos, func(fi vault.FileInfo, _ int) *search.File { return search.NewFile(fi.Path) })
	if err := i.metadata.Scan(ctx, handles); err != nil {
		return err
	}

	entries := lo.Map(handles, func(f *search.File, _ int) search.SearchFile {
		return search.Classify(f, i.metadata.Aliases(f.Path))
	})
	i.files.Load(entries)
	i.images.Load(entries)
	i.files.Resolve()

	i.mu.Lock()
	i.lastScan = infos
	i.mu.Unlock()

	i.resolved.Do(func() {
		i.metadata.OnResolved(func() {
			i.files.Enqueue(synchronizer.ResolveEvent())
			i.metadata.OnCleanCache(i.settle)
		})
	})
	return nil
}

// Watch follows vault changes on disk until Close.
func (i *Index) Watch() error {
	w, err := vault.NewWatcher(i.vault, vault.DefaultRenameWindow, i.Callbacks(), i.logger.Named("watcher"))
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return err
	}
	i.watcher = w
	return nil
}

// Refresh rescans the vault and applies what changed since the last scan.
// It catches up on changes the watcher missed.
func (i *Index) Refresh(ctx context.Context) error {
	current, err := i.vault.Scan(ctx)
	if err != nil {
		return err
	}
	i.mu.Lock()
	deleted, modified, created := vault.CompareFileInfos(i.lastScan, current)
	i.lastScan = current
	i.mu.Unlock()

	for _, fi := range deleted {
		i.Deleted(fi.Path)
	}
	for _, fi := range modified {
		i.Modified(search.NewFile(fi.Path))
	}
	for _, fi := range created {
		i.Created(search.NewFile(fi.Path))
	}
	i.logger.Info("Refreshed index",
		zap.Int("deleted", len(deleted)),
		zap.Int("modified", len(modified)),
		zap.Int("created", len(created)))
	return nil
}

// Callbacks routes watcher events into the index.
func (i *Index) Callbacks() vault.Callbacks {
	return vault.Callbacks{
		OnCreate: i.Created,
		OnModify: i.Modified,
		OnDelete: i.Deleted,
		OnRename: i.Renamed,
	}
}

func (i *Index) Created(f *search.File) {
	i.enqueue(synchronizer.CreateEvent(f))
	if err := i.metadata.Refresh(f); err != nil {
		i.logger.Warn("Failed to read new file", zap.String("path", f.Path), zap.Error(err))
	}
	i.metadata.OnCleanCache(i.settle)
}

// Modified reclassifies f since its aliases may have changed.
func (i *Index) Modified(f *search.File) {
	i.enqueue(synchronizer.RenameEvent(f, f.Path))
	if err := i.metadata.Refresh(f); err != nil {
		i.logger.Warn("Failed to read modified file", zap.String("path", f.Path), zap.Error(err))
	}
	i.metadata.OnCleanCache(i.settle)
}

func (i *Index) Deleted(p string) {
	i.enqueue(synchronizer.DeleteEvent(p))
	i.metadata.Remove(p)
	i.metadata.OnCleanCache(i.settle)
}

func (i *Index) Renamed(f *search.File, oldPath string) {
	i.enqueue(synchronizer.RenameEvent(f, oldPath))
	if err := i.metadata.Rename(f, oldPath); err != nil {
		i.logger.Warn("Failed to read renamed file", zap.String("path", f.Path), zap.Error(err))
	}
	i.metadata.OnCleanCache(i.settle)
}

func (i *Index) enqueue(ev synchronizer.Event) {
	i.logger.Debug("Vault event", zap.Stringer("kind", ev.Kind), zap.String("path", ev.Path))
	i.files.Enqueue(ev)
	if ev.Kind != synchronizer.EventResolve {
		i.images.Enqueue(ev)
	}
}

func (i *Index) settle() {
	applied := i.files.Settle() + i.images.Settle()
	if applied > 0 {
		i.logger.Debug("Applied vault events", zap.Int("applied", applied))
	}
}

// Close stops the watcher and releases the search engine.
func (i *Index) Close() error {
	if i.watcher != nil {
		if err := i.watcher.Stop(); err != nil {
			i.logger.Warn("Failed to stop watcher", zap.Error(err))
		}
	}
	return i.closer()
}
