package search

import (
	"strings"

	"github.com/hbollon/go-edlib"
)

// BestDisplayLabel picks the name to show for a result: the field value the
// query matched best, preferring the basename on ties and falling back to it
// when nothing matched.
func BestDisplayLabel(r Result, query string) string {
	label := r.Item.Basename
	var best *Match
	for i := range r.Matches {
		m := &r.Matches[i]
		if m.Key == KeyName {
			continue
		}
		switch {
		case best == nil:
			best = m
		case m.Score < best.Score:
			best = m
		case m.Score == best.Score && best.Key == KeyAliases && m.Key == KeyAliases:
			if similarity(m.Value, query) > similarity(best.Value, query) {
				best = m
			}
		case m.Score == best.Score && m.Key == KeyBasename:
			best = m
		}
	}
	if best != nil && best.Value != "" {
		label = best.Value
	}
	return label
}

func similarity(a, b string) float32 {
	s, err := edlib.StringsSimilarity(strings.ToLower(a), strings.ToLower(b), edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return s
}
