package fuzzy_indexer

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/noelzubin/notes_switcher/search"
	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"
)

// Scores are clamped to this so a perfect field still ranks by weight.
const epsilon = 0.001

// fuzzyIndex is the implementation of search.Index backed by sahilm/fuzzy
// subsequence matching and a weighted, length normalized score.
type fuzzyIndex struct {
	mu      sync.RWMutex
	options search.Options
	weights map[string]float64 // Key weights normalized to sum to 1
	corpus  *corpus
}

// corpus is an immutable snapshot swapped in by Rebuild.
type corpus struct {
	files  []search.SearchFile
	fields fieldSource
}

// field is one searchable value of one file.
type field struct {
	ref        int
	key        string
	arrayIndex int
	value      string
	norm       float64
}

// fieldSource implements fuzzy.Source over all fields of a corpus.
type fieldSource []field

func (s fieldSource) Len() int            { return len(s) }
func (s fieldSource) String(i int) string { return s[i].value }

// New returns an empty index using the given match configuration.
func New(options search.Options) *fuzzyIndex {
	total := lo.SumBy(options.Keys, func(k search.Key) float64 { return k.Weight })
	weights := make(map[string]float64, len(options.Keys))
	for _, k := range options.Keys {
		if total > 0 {
			weights[k.Name] = k.Weight / total
		}
	}
	return &fuzzyIndex{options: options, weights: weights, corpus: &corpus{}}
}

// Rebuild replaces the corpus. Queries running concurrently see either the
// old or the new corpus.
func (idx *fuzzyIndex) Rebuild(files []search.SearchFile) {
	c := &corpus{files: append([]search.SearchFile(nil), files...)}
	for ref, f := range c.files {
		for _, k := range idx.options.Keys {
			values := search.FieldValues(f, k.Name)
			for i, v := range values {
				if v == "" {
					continue
				}
				arrayIndex := -1
				if k.Name == search.KeyAliases {
					arrayIndex = i
				}
				c.fields = append(c.fields, field{
					ref:        ref,
					key:        k.Name,
					arrayIndex: arrayIndex,
					value:      v,
					norm:       fieldNorm(v, idx.options.FieldNormWeight),
				})
			}
		}
	}

	idx.mu.Lock()
	idx.corpus = c
	idx.mu.Unlock()
}

// Len returns the number of indexed files.
func (idx *fuzzyIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.corpus.files)
}

// Query matches text against every configured field and returns the best
// limit files, lowest score first. limit <= 0 returns every match.
func (idx *fuzzyIndex) Query(text string, limit int) []search.Result {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	idx.mu.RLock()
	c := idx.corpus
	idx.mu.RUnlock()

	patternLen := utf8.RuneCountInString(text)
	byRef := make(map[int]*search.Result)
	for _, m := range fuzzy.FindFrom(text, c.fields) {
		f := c.fields[m.Index]
		base := idx.baseScore(f.value, m.MatchedIndexes, patternLen)
		weighted := math.Pow(base, idx.weights[f.key]*f.norm)

		r, ok := byRef[f.ref]
		if !ok {
			r = &search.Result{Item: c.files[f.ref], RefIndex: f.ref, Score: 1}
			byRef[f.ref] = r
		}
		r.Score *= weighted
		r.Matches = append(r.Matches, search.Match{
			Key:        f.key,
			Value:      f.value,
			ArrayIndex: f.arrayIndex,
			Score:      base,
			Spans:      spans(f.value, m.MatchedIndexes),
		})
	}

	results := make([]search.Result, 0, len(byRef))
	for _, r := range byRef {
		if idx.options.Threshold > 0 && r.Score > idx.options.Threshold {
			continue
		}
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].RefIndex < results[j].RefIndex
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// baseScore rates one field match in [epsilon, 1]. Compact runs covering most
// of the field score best.
func (idx *fuzzyIndex) baseScore(value string, matched []int, patternLen int) float64 {
	if len(matched) == 0 {
		return 1
	}
	first := matched[0]
	last := matched[len(matched)-1]
	_, size := utf8.DecodeRuneInString(value[last:])
	spanLen := utf8.RuneCountInString(value[first : last+size])
	valueLen := utf8.RuneCountInString(value)

	compactness := float64(patternLen) / float64(spanLen)
	coverage := float64(patternLen) / float64(valueLen)
	score := 1 - (0.75*math.Min(compactness, 1) + 0.25*math.Min(coverage, 1))

	if !idx.options.IgnoreLocation {
		offset := float64(utf8.RuneCountInString(value[:first])) / float64(valueLen)
		score = (score + offset) / 2
	}
	return math.Max(epsilon, math.Min(score, 1))
}

// fieldNorm weights short fields over long ones by their token count.
func fieldNorm(value string, weight float64) float64 {
	tokens := len(strings.Fields(value))
	if tokens == 0 {
		tokens = 1
	}
	norm := 1 / math.Pow(float64(tokens), 0.5*weight)
	return math.Round(norm*1000) / 1000
}

// spans merges matched byte offsets into contiguous ranges.
func spans(value string, matched []int) []search.Span {
	var out []search.Span
	for _, i := range matched {
		_, size := utf8.DecodeRuneInString(value[i:])
		if n := len(out); n > 0 && out[n-1].End == i {
			out[n-1].End = i + size
			continue
		}
		out = append(out, search.Span{Start: i, End: i + size})
	}
	return out
}
