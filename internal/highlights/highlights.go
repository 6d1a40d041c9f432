// Package highlights picks the daily highlight slate: per category, the
// articles whose titles hit a priority keyword first, then the most
// repeated stories.
package highlights

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"headlines/internal/core"
)

// ErrWeightTooSmall is returned when a cluster is at least as large as the
// priority weight, which would let cluster size outrank a keyword hit.
var ErrWeightTooSmall = errors.New("priority weight must exceed every cluster size")

// Selector scores articles and selects the top per category.
type Selector struct {
	patterns    map[string]*regexp.Regexp
	perCategory int
	weight      int
}

// NewSelector compiles one whole-word pattern per category from its
// priority keywords. Keywords are matched case-insensitively; phrases with
// spaces match as a whole.
func NewSelector(keywords map[string][]string, perCategory, weight int) (*Selector, error) {
	if perCategory <= 0 {
		return nil, fmt.Errorf("per-category highlight count must be positive, got %d", perCategory)
	}
	if weight <= 0 {
		return nil, fmt.Errorf("priority weight must be positive, got %d", weight)
	}

	patterns := make(map[string]*regexp.Regexp, len(keywords))
	for category, list := range keywords {
		var quoted []string
		for _, kw := range list {
			kw = strings.TrimSpace(strings.ToLower(kw))
			if kw != "" {
				quoted = append(quoted, regexp.QuoteMeta(kw))
			}
		}
		if len(quoted) == 0 {
			continue
		}
		re, err := regexp.Compile(`\b(` + strings.Join(quoted, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("invalid priority keywords for %s: %w", category, err)
		}
		patterns[strings.ToLower(category)] = re
	}

	return &Selector{patterns: patterns, perCategory: perCategory, weight: weight}, nil
}

// PerCategory returns the slate size per category.
func (s *Selector) PerCategory() int { return s.perCategory }

// IsPriority reports whether the lower-cased title contains one of the
// category's own priority keywords. Category names match in any case.
func (s *Selector) IsPriority(category, titleLC string) bool {
	re, ok := s.patterns[strings.ToLower(category)]
	return ok && re.MatchString(titleLC)
}

// Score returns weight·isPriority + clusterSize.
func (s *Selector) Score(isPriority bool, clusterSize int) int {
	score := clusterSize
	if isPriority {
		score += s.weight
	}
	return score
}

// Annotate fills TitleLC, IsPriority and HighlightScore of every article
// in place. Articles need PredictedCategory and ClusterSize set.
func (s *Selector) Annotate(articles []core.Article) error {
	for i := range articles {
		a := &articles[i]
		if a.ClusterSize >= s.weight {
			return fmt.Errorf("%w: article %s has cluster size %d, weight is %d", ErrWeightTooSmall, a.ID, a.ClusterSize, s.weight)
		}
		a.TitleLC = strings.ToLower(a.Title)
		a.IsPriority = s.IsPriority(a.PredictedCategory, a.TitleLC)
		a.HighlightScore = s.Score(a.IsPriority, a.ClusterSize)
	}
	return nil
}

// Select annotates the articles in place and returns the highlight slate:
// sorted by category ascending then score descending, ties in input order,
// at most PerCategory articles per category.
func (s *Selector) Select(articles []core.Article) ([]core.Article, error) {
	if err := s.Annotate(articles); err != nil {
		return nil, err
	}

	ranked := make([]core.Article, len(articles))
	copy(ranked, articles)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PredictedCategory != ranked[j].PredictedCategory {
			return ranked[i].PredictedCategory < ranked[j].PredictedCategory
		}
		return ranked[i].HighlightScore > ranked[j].HighlightScore
	})

	out := make([]core.Article, 0, len(ranked))
	taken := make(map[string]int)
	for _, a := range ranked {
		if taken[a.PredictedCategory] >= s.perCategory {
			continue
		}
		taken[a.PredictedCategory]++
		out = append(out, a)
	}
	return out, nil
}

// CountByCategory returns how many articles each category holds.
func CountByCategory(articles []core.Article) map[string]int {
	counts := make(map[string]int)
	for _, a := range articles {
		counts[a.PredictedCategory]++
	}
	return counts
}
