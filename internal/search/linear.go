package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/metaindex"
	"github.com/starford/ansuz/internal/vault"
)

// Linear is the baseline strategy: no maintained state, every query scans
// every markdown file line by line.
type Linear struct {
	metaQuery
	store vault.Store
}

var _ Engine = (*Linear)(nil)

// NewLinear creates the linear-scan strategy.
func NewLinear(store vault.Store, idx *metaindex.Engine) *Linear {
	return &Linear{metaQuery: metaQuery{idx: idx}, store: store}
}

// Search scans all markdown files and ranks them with an additive score:
// match count dominates, with bonuses for heading/basename/content hits,
// match density, spread across lines, and an early first match.
func (s *Linear) Search(query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(query))
	lowerQuery := strings.ToLower(query)

	var results []Result
	for _, path := range s.idx.MarkdownPaths() {
		if !s.passFilter(path, opts.Filter) {
			continue
		}
		data, err := s.store.Read(path)
		if err != nil {
			continue
		}
		content := string(data)

		var matches []LineMatch
		distinctLines := 0
		firstLine := -1
		for i, line := range strings.Split(content, "\n") {
			locs := re.FindAllStringIndex(line, -1)
			if len(locs) == 0 {
				continue
			}
			distinctLines++
			if firstLine < 0 {
				firstLine = i
			}
			for _, loc := range locs {
				matches = append(matches, LineMatch{Line: i, Start: loc[0], End: loc[1], Text: line})
			}
		}

		basenameHit := false
		if f := s.idx.FileRefFor(path); f != nil {
			basenameHit = strings.Contains(strings.ToLower(f.Basename), lowerQuery)
		}
		if len(matches) == 0 && !basenameHit {
			continue
		}

		score := 10 * float64(len(matches))
		if s.topHeadingContains(path, lowerQuery) {
			score += 100
		}
		if basenameHit {
			score += 80
		}
		if strings.Contains(strings.ToLower(content), lowerQuery) {
			score += 50
		}
		if len(content) > 0 {
			score += 5 * (float64(len(matches)) * 1000 / float64(len(content)))
		}
		if distinctLines > 1 {
			score += 5 * float64(distinctLines)
		}
		if firstLine >= 0 && firstLine < 5 {
			score += 20
		}

		results = append(results, Result{
			Path:    path,
			Title:   s.docTitle(path),
			Score:   score,
			Matches: matches,
		})
	}

	// Stable sort keeps discovery order for equal scores.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

func (s *Linear) topHeadingContains(path, lowerQuery string) bool {
	meta := s.idx.FileCache(path)
	if meta == nil {
		return false
	}
	for _, h := range meta.Headings {
		if h.Level == 1 && strings.Contains(strings.ToLower(h.Heading), lowerQuery) {
			return true
		}
	}
	return false
}
