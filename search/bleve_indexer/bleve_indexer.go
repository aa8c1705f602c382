package bleve_indexer

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/noelzubin/notes_switcher/search"
	"github.com/samber/lo"
	"go.uber.org/zap"

	_ "github.com/blevesearch/bleve/v2/config"
	bleveSearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Terms shorter than this are matched exactly, longer ones allow one edit.
const minFuzzyRunes = 3

// bleveIndexer is the implementation of search.Index on top of an in memory
// bleve index. It tolerates typos where the default engine does not.
type bleveIndexer struct {
	mu      sync.RWMutex
	options search.Options
	index   bleve.Index
	files   []search.SearchFile
	logger  *zap.Logger
}

// NewBleveIndexer returns an empty index using the given match configuration.
func NewBleveIndexer(options search.Options, logger *zap.Logger) *bleveIndexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &bleveIndexer{options: options, logger: logger}
}

// Rebuild indexes files into a fresh in memory index and swaps it in.
func (s *bleveIndexer) Rebuild(files []search.SearchFile) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		s.logger.Error("Failed to create index", zap.Error(err))
		return
	}

	batch := index.NewBatch()
	for ref, f := range files {
		if err := batch.Index(strconv.Itoa(ref), s.document(f)); err != nil {
			s.logger.Warn("Failed to index file", zap.String("path", f.Path), zap.Error(err))
		}
	}
	if err := index.Batch(batch); err != nil {
		s.logger.Error("Failed to apply index batch", zap.Int("files", len(files)), zap.Error(err))
		index.Close()
		return
	}

	s.mu.Lock()
	old := s.index
	s.index = index
	s.files = append([]search.SearchFile(nil), files...)
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Close releases the current index.
func (s *bleveIndexer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}

// document maps the configured keys of f to bleve fields.
func (s *bleveIndexer) document(f search.SearchFile) map[string]interface{} {
	doc := make(map[string]interface{}, len(s.options.Keys))
	for _, k := range s.options.Keys {
		values := search.FieldValues(f, k.Name)
		if k.Name == search.KeyAliases {
			doc[k.Name] = values
		} else if len(values) > 0 {
			doc[k.Name] = values[0]
		}
	}
	return doc
}

// Query searches every configured key with a fuzzy match and a prefix query
// on the last typed term, boosted by the key weight.
func (s *bleveIndexer) Query(text string, limit int) []search.Result {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil || len(s.files) == 0 {
		return nil
	}

	size := limit
	if size <= 0 || size > len(s.files) {
		size = len(s.files)
	}
	req := bleve.NewSearchRequestOptions(s.buildQuery(text, terms[len(terms)-1]), size, 0, false)
	req.IncludeLocations = true

	res, err := s.index.Search(req)
	if err != nil {
		s.logger.Error("Search failed", zap.String("query", text), zap.Error(err))
		return nil
	}

	results := make([]search.Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ref, err := strconv.Atoi(hit.ID)
		if err != nil || ref < 0 || ref >= len(s.files) {
			continue
		}
		r := search.Result{
			Item:     s.files[ref],
			RefIndex: ref,
			Score:    1 / (1 + hit.Score),
			Matches:  s.matches(s.files[ref], hit.Locations),
		}
		if s.options.Threshold > 0 && r.Score > s.options.Threshold {
			continue
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].RefIndex < results[j].RefIndex
	})
	return results
}

func (s *bleveIndexer) buildQuery(text, last string) query.Query {
	var queries []query.Query
	for _, k := range s.options.Keys {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(k.Name)
		mq.SetBoost(k.Weight)
		if utf8.RuneCountInString(last) >= minFuzzyRunes {
			mq.SetFuzziness(1)
		}

		pq := bleve.NewPrefixQuery(last)
		pq.SetField(k.Name)
		pq.SetBoost(k.Weight)

		queries = append(queries, mq, pq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// matches turns term locations into per field spans.
func (s *bleveIndexer) matches(f search.SearchFile, locations bleveSearch.FieldTermLocationMap) []search.Match {
	var out []search.Match
	for _, k := range s.options.Keys {
		terms, ok := locations[k.Name]
		if !ok {
			continue
		}
		values := search.FieldValues(f, k.Name)
		spansByValue := make(map[int][]search.Span)
		for _, locs := range terms {
			for _, loc := range locs {
				i := 0
				if k.Name == search.KeyAliases && len(loc.ArrayPositions) > 0 {
					i = int(loc.ArrayPositions[0])
				}
				if i >= len(values) {
					continue
				}
				spansByValue[i] = append(spansByValue[i], search.Span{Start: int(loc.Start), End: int(loc.End)})
			}
		}
		for _, i := range lo.Keys(spansByValue) {
			arrayIndex := -1
			if k.Name == search.KeyAliases {
				arrayIndex = i
			}
			spans := mergeSpans(spansByValue[i])
			out = append(out, search.Match{
				Key:        k.Name,
				Value:      values[i],
				ArrayIndex: arrayIndex,
				Score:      uncovered(values[i], spans),
				Spans:      spans,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].ArrayIndex < out[j].ArrayIndex
	})
	return out
}

func mergeSpans(spans []search.Span) []search.Span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	var out []search.Span
	for _, sp := range spans {
		if n := len(out); n > 0 && sp.Start <= out[n-1].End {
			if sp.End > out[n-1].End {
				out[n-1].End = sp.End
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}

// uncovered is the share of value outside the matched spans.
func uncovered(value string, spans []search.Span) float64 {
	if len(value) == 0 {
		return 1
	}
	covered := lo.SumBy(spans, func(sp search.Span) int { return sp.End - sp.Start })
	score := 1 - float64(covered)/float64(len(value))
	if score < 0.001 {
		return 0.001
	}
	return score
}
