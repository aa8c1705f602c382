package suggester

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/noelzubin/notes_switcher/search"
	"github.com/noelzubin/notes_switcher/search/synchronizer"
	"go.uber.org/zap"
)

// ErrEmptyInput is returned when a note would be created without a name.
var ErrEmptyInput = errors.New("cannot create a note without a name")

// FileSuggester suggests vault files and opens or creates the chosen one.
type FileSuggester struct {
	sync       *synchronizer.Synchronizer
	storage    Storage
	workspace  Workspace
	maxResults int
	logger     *zap.Logger
}

func NewFileSuggester(s *synchronizer.Synchronizer, storage Storage, workspace Workspace, maxResults int, logger *zap.Logger) *FileSuggester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSuggester{sync: s, storage: storage, workspace: workspace, maxResults: maxResults, logger: logger}
}

func (s *FileSuggester) Suggest(input string) []search.Result {
	return s.sync.Query(input, s.maxResults)
}

func (s *FileSuggester) ApplyFilter(f search.Filter) {
	if f == search.NoFilter {
		s.sync.ClearFilter()
		return
	}
	s.sync.SetFilter(f)
}

// NoSuggestion offers a new markdown note named after the input.
func (s *FileSuggester) NoSuggestion(input string, f search.Filter) []search.Result {
	if strings.TrimSpace(input) == "" || !f.IsMarkdown() {
		return nil
	}
	return []search.Result{{Item: search.NewCandidate(input, search.DefaultExtension)}}
}

func (s *FileSuggester) Commit(ctx context.Context, selected *search.Result, input string, newTab bool) (Outcome, error) {
	if selected != nil && selected.Item.IsCreated && selected.Item.File != nil {
		return s.open(ctx, selected.Item.File, false, newTab)
	}
	if selected != nil && selected.Item.IsUnresolved {
		return s.createUnresolved(ctx, selected.Item, newTab)
	}

	if strings.TrimSpace(input) == "" {
		return Outcome{Input: input}, ErrEmptyInput
	}
	if existing, ok := s.sync.FindCreated(input, search.FileTypeMarkdown); ok {
		s.logger.Debug("Switching to existing note", zap.String("path", existing.Path))
		return s.open(ctx, existing.File, false, newTab)
	}

	p := path.Join(s.storage.NewFileParent(), input+"."+search.DefaultExtension)
	file, err := s.storage.Create(ctx, p, "")
	if err != nil {
		return Outcome{Input: input}, fmt.Errorf("failed to create %s: %w", p, err)
	}
	return s.open(ctx, file, true, newTab)
}

func (s *FileSuggester) createUnresolved(ctx context.Context, item search.SearchFile, newTab bool) (Outcome, error) {
	if folder := path.Dir(item.Path); folder != "." && folder != "/" {
		exists, err := s.storage.Exists(ctx, folder)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to check folder %s: %w", folder, err)
		}
		if !exists {
			if err := s.storage.CreateFolder(ctx, folder); err != nil {
				return Outcome{}, fmt.Errorf("failed to create folder %s: %w", folder, err)
			}
		}
	}
	file, err := s.storage.Create(ctx, item.Path, "")
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create %s: %w", item.Path, err)
	}
	return s.open(ctx, file, true, newTab)
}

func (s *FileSuggester) open(ctx context.Context, file *search.File, created, newTab bool) (Outcome, error) {
	if err := s.workspace.Open(ctx, file, newTab); err != nil {
		return Outcome{}, fmt.Errorf("failed to open %s: %w", file.Path, err)
	}
	return Outcome{File: file, Created: created}, nil
}
