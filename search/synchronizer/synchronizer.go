package synchronizer

import (
	"sync"
	"time"

	"github.com/noelzubin/notes_switcher/search"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Metadata is the part of the host metadata cache the synchronizer reads.
type Metadata interface {
	Aliases(path string) []string // Alternate names of a stored file
	UnresolvedLinks() []string    // Link targets with no stored file
}

// Options configures which entries reach the index.
type Options struct {
	MarkdownOnly    bool          // Only index markdown entries
	UnresolvedLinks bool          // Offer unresolved link targets
	BaseFilter      search.Filter // Filter that is always applied
}

// Synchronizer keeps the search file collection and its index consistent
// with vault events. Every mutation and the rebuild that follows it run as one
// step with respect to queries.
type Synchronizer struct {
	mu       sync.RWMutex
	index    search.Index
	metadata Metadata
	options  Options
	files    []search.SearchFile
	filter   search.Filter

	queueMu  sync.Mutex
	queue    []Event
	settleMu sync.Mutex // Held while a drained queue is applied

	logger  *zap.Logger
	metrics *Metrics
}

// New returns a synchronizer feeding index. metadata, logger and metrics may be nil.
func New(index search.Index, metadata Metadata, options Options, logger *zap.Logger, metrics *Metrics) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Synchronizer{
		index:    index,
		metadata: metadata,
		options:  options,
		logger:   logger,
		metrics:  metrics,
	}
}

// Load replaces the collection with files, keeping the first entry per path.
func (s *Synchronizer) Load(files []search.SearchFile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = lo.UniqBy(files, func(f search.SearchFile) string { return f.Path })
	s.rebuild()
	s.logger.Info("Loaded search files", zap.Int("files", len(s.files)))
}

// Create adds a stored file. A placeholder for an unresolved link at the same
// path is replaced, an existing stored entry is left alone.
func (s *Synchronizer) Create(file *search.File) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(file.Path)
	switch {
	case i == -1:
		s.files = append(s.files, s.classify(file))
	case s.files[i].IsUnresolved:
		s.files[i] = s.classify(file)
	default:
		s.metrics.event(EventCreate, false)
		return false
	}
	s.metrics.event(EventCreate, true)
	s.rebuild()
	return true
}

// Delete removes the entry at path. Deleting an absent path changes nothing
// and does not rebuild.
func (s *Synchronizer) Delete(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(path)
	if i == -1 {
		s.metrics.event(EventDelete, false)
		s.logger.Debug("Delete of unknown path", zap.String("path", path))
		return false
	}
	s.files = append(s.files[:i], s.files[i+1:]...)
	s.metrics.event(EventDelete, true)
	s.rebuild()
	return true
}

// Rename drops the entry at oldPath and stores a freshly classified entry for
// file, since type and aliases can change with the name.
func (s *Synchronizer) Rename(file *search.File, oldPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(oldPath); i != -1 {
		s.files = append(s.files[:i], s.files[i+1:]...)
	}
	entry := s.classify(file)
	if i := s.indexOf(file.Path); i != -1 {
		s.files[i] = entry
	} else {
		s.files = append(s.files, entry)
	}
	s.metrics.event(EventRename, true)
	s.rebuild()
	return true
}

// Resolve adds entries for unresolved link targets that are not in the
// collection yet. It never removes entries and rebuilds only when something
// was added.
func (s *Synchronizer) Resolve() int {
	if !s.options.UnresolvedLinks || s.metadata == nil {
		return 0
	}
	targets := s.metadata.UnresolvedLinks()

	s.mu.Lock()
	defer s.mu.Unlock()

	known := lo.SliceToMap(s.files, func(f search.SearchFile) (string, struct{}) { return f.Path, struct{}{} })
	added := 0
	for _, path := range targets {
		if _, ok := known[path]; ok {
			continue
		}
		known[path] = struct{}{}
		s.files = append(s.files, search.SynthesizeUnresolved(path))
		added++
	}
	s.metrics.event(EventResolve, added > 0)
	if added > 0 {
		s.rebuild()
		s.logger.Debug("Added unresolved links", zap.Int("added", added))
	}
	return added
}

// Enqueue holds an event until the next Settle.
func (s *Synchronizer) Enqueue(ev Event) {
	s.queueMu.Lock()
	s.queue = append(s.queue, ev)
	s.queueMu.Unlock()
}

// Pending returns the number of queued events.
func (s *Synchronizer) Pending() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.queue)
}

// Settle applies the queued events in the order they were enqueued. The host
// calls it once its metadata cache has caught up with the vault. Concurrent
// calls apply their parts of the queue one after the other.
func (s *Synchronizer) Settle() int {
	s.settleMu.Lock()
	defer s.settleMu.Unlock()

	s.queueMu.Lock()
	queue := s.queue
	s.queue = nil
	s.queueMu.Unlock()

	applied := 0
	for _, ev := range queue {
		if s.Apply(ev) {
			applied++
		}
	}
	return applied
}

// Apply handles one event right away.
func (s *Synchronizer) Apply(ev Event) bool {
	switch ev.Kind {
	case EventCreate:
		return ev.File != nil && s.Create(ev.File)
	case EventDelete:
		return s.Delete(ev.Path)
	case EventRename:
		return ev.File != nil && s.Rename(ev.File, ev.OldPath)
	case EventResolve:
		return s.Resolve() > 0
	}
	return false
}

// SetFilter narrows the index to entries passing f.
func (s *Synchronizer) SetFilter(f search.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	s.rebuild()
}

// ClearFilter restores the unfiltered index.
func (s *Synchronizer) ClearFilter() {
	s.SetFilter(search.NoFilter)
}

// Filter returns the active filter.
func (s *Synchronizer) Filter() search.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// Query runs text against the current index.
func (s *Synchronizer) Query(text string, limit int) []search.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Now()
	results := s.index.Query(text, limit)
	s.metrics.queryDuration.Observe(time.Since(start).Seconds())
	return results
}

// Files returns a copy of the whole collection.
func (s *Synchronizer) Files() []search.SearchFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]search.SearchFile(nil), s.files...)
}

// View returns a copy of the entries currently fed to the index.
func (s *Synchronizer) View() []search.SearchFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]search.SearchFile(nil), s.view()...)
}

// Lookup returns the entry stored at path.
func (s *Synchronizer) Lookup(path string) (search.SearchFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(path); i != -1 {
		return s.files[i], true
	}
	return search.SearchFile{}, false
}

// FindCreated returns the first stored entry of type t named basename.
func (s *Synchronizer) FindCreated(basename string, t search.FileType) (search.SearchFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Find(s.files, func(f search.SearchFile) bool {
		return f.IsCreated && f.File != nil && f.FileType == t && f.Basename == basename
	})
}

func (s *Synchronizer) indexOf(path string) int {
	_, i, ok := lo.FindIndexOf(s.files, func(f search.SearchFile) bool { return f.Path == path })
	if !ok {
		return -1
	}
	return i
}

func (s *Synchronizer) classify(file *search.File) search.SearchFile {
	var aliases []string
	if s.metadata != nil {
		aliases = s.metadata.Aliases(file.Path)
	}
	return search.Classify(file, aliases)
}

// view is the part of the collection fed to the index. MarkdownOnly hides
// other files until a filter asks for them.
func (s *Synchronizer) view() []search.SearchFile {
	files := search.FilterFiles(s.files, s.options.BaseFilter)
	if s.filter != search.NoFilter {
		return search.FilterFiles(files, s.filter)
	}
	if s.options.MarkdownOnly {
		return search.FilterFiles(files, search.Filter(search.FileTypeMarkdown))
	}
	return files
}

// rebuild feeds the current view to the index. Callers hold mu.
func (s *Synchronizer) rebuild() {
	view := s.view()
	s.index.Rebuild(view)
	s.metrics.rebuilds.Inc()
	s.metrics.corpusSize.Set(float64(len(s.files)))
	s.metrics.viewSize.Set(float64(len(view)))
}
