package suggester

import (
	"context"

	"github.com/noelzubin/notes_switcher/search"
	"github.com/noelzubin/notes_switcher/search/fuzzy_indexer"
	"github.com/noelzubin/notes_switcher/search/synchronizer"
	"go.uber.org/zap"
)

const imageLimit = 15

// NewImageSynchronizer returns a synchronizer that only indexes images by
// file name.
func NewImageSynchronizer(metadata synchronizer.Metadata, logger *zap.Logger) *synchronizer.Synchronizer {
	index := fuzzy_indexer.New(search.DefaultImageOptions())
	return synchronizer.New(index, metadata, synchronizer.Options{BaseFilter: search.Filter(search.FileTypeImage)}, logger, nil)
}

// ImageSuggester completes image paths inside the search bar.
type ImageSuggester struct {
	sync *synchronizer.Synchronizer
}

func NewImageSuggester(s *synchronizer.Synchronizer) *ImageSuggester {
	return &ImageSuggester{sync: s}
}

func (s *ImageSuggester) Suggest(input string) []search.Result {
	return s.sync.Query(input, imageLimit)
}

// Commit replaces the input with the selected image path.
func (s *ImageSuggester) Commit(_ context.Context, selected *search.Result, input string, _ bool) (Outcome, error) {
	if selected == nil {
		return Outcome{Input: input}, nil
	}
	return Outcome{Input: selected.Item.Path}, nil
}
