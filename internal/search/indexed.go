package search

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/starford/ansuz/internal/metaindex"
	"github.com/starford/ansuz/internal/vault"
)

// Defaults for the indexed strategy.
const (
	DefaultMinTokenLen  = 2
	DefaultCacheTTL     = time.Minute
	DefaultCacheEntries = 100
	prefixFallbackLen   = 3
)

var defaultStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"to": {}, "was": {}, "were": {}, "will": {}, "with": {},
}

type posting struct {
	tf    int
	lines []int
}

type docInfo struct {
	mtime     time.Time
	termCount int
	title     string
	tags      []string
}

// IndexedOptions tunes the indexed strategy.
type IndexedOptions struct {
	MinTokenLen  int
	CacheTTL     time.Duration
	CacheEntries int
	StopWords    map[string]struct{}
}

// Indexed maintains an inverted index over the vault with TF-IDF ranking,
// lazy incremental updates, and a TTL/capacity-bounded result cache.
type Indexed struct {
	metaQuery
	store vault.Store

	minTokenLen int
	stopWords   map[string]struct{}

	mu       sync.Mutex
	postings map[string]map[string]*posting // term -> path -> posting
	docTerms map[string][]string            // path -> distinct terms
	docs     map[string]docInfo
	dirty    map[string]struct{}
	deleted  map[string]struct{}
	built    bool

	cache *expirable.LRU[string, []Result]
}

var _ Engine = (*Indexed)(nil)

// NewIndexed creates the inverted-index strategy. The index is built
// lazily on the first search.
func NewIndexed(store vault.Store, idx *metaindex.Engine, opts IndexedOptions) *Indexed {
	if opts.MinTokenLen <= 0 {
		opts.MinTokenLen = DefaultMinTokenLen
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = DefaultCacheEntries
	}
	if opts.StopWords == nil {
		opts.StopWords = defaultStopWords
	}
	return &Indexed{
		metaQuery:   metaQuery{idx: idx},
		store:       store,
		minTokenLen: opts.MinTokenLen,
		stopWords:   opts.StopWords,
		postings:    make(map[string]map[string]*posting),
		docTerms:    make(map[string][]string),
		docs:        make(map[string]docInfo),
		dirty:       make(map[string]struct{}),
		deleted:     make(map[string]struct{}),
		cache:       expirable.NewLRU[string, []Result](opts.CacheEntries, nil, opts.CacheTTL),
	}
}

// MarkDirty flags a path for lazy re-indexing and drops all cached results.
func (s *Indexed) MarkDirty(path string) {
	s.mu.Lock()
	s.dirty[path] = struct{}{}
	delete(s.deleted, path)
	s.mu.Unlock()
	s.cache.Purge()
}

// MarkDeleted flags a path for removal and drops all cached results.
func (s *Indexed) MarkDeleted(path string) {
	s.mu.Lock()
	s.deleted[path] = struct{}{}
	delete(s.dirty, path)
	s.mu.Unlock()
	s.cache.Purge()
}

// UpdateIndex applies pending dirty/deleted marks, or builds the whole
// index when it has never been built.
func (s *Indexed) UpdateIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.built {
		s.postings = make(map[string]map[string]*posting)
		s.docTerms = make(map[string][]string)
		s.docs = make(map[string]docInfo)
		for _, p := range s.idx.MarkdownPaths() {
			s.indexDocLocked(p)
		}
		s.dirty = make(map[string]struct{})
		s.deleted = make(map[string]struct{})
		s.built = true
		return
	}

	for p := range s.deleted {
		s.removeDocLocked(p)
	}
	for p := range s.dirty {
		s.removeDocLocked(p)
		s.indexDocLocked(p)
	}
	s.dirty = make(map[string]struct{})
	s.deleted = make(map[string]struct{})
}

// removeDocLocked drops every posting for path atomically: the per-doc
// term list makes the reverse walk exact, so no stale entries survive.
func (s *Indexed) removeDocLocked(path string) {
	for _, term := range s.docTerms[path] {
		if row := s.postings[term]; row != nil {
			delete(row, path)
			if len(row) == 0 {
				delete(s.postings, term)
			}
		}
	}
	delete(s.docTerms, path)
	delete(s.docs, path)
}

func (s *Indexed) indexDocLocked(path string) {
	data, err := s.store.Read(path)
	if err != nil {
		return
	}

	perTerm := make(map[string]*posting)
	total := 0
	for i, line := range strings.Split(string(data), "\n") {
		for _, term := range s.tokenize(line) {
			total++
			p := perTerm[term]
			if p == nil {
				p = &posting{}
				perTerm[term] = p
			}
			p.tf++
			if len(p.lines) == 0 || p.lines[len(p.lines)-1] != i {
				p.lines = append(p.lines, i)
			}
		}
	}

	terms := make([]string, 0, len(perTerm))
	for term, p := range perTerm {
		terms = append(terms, term)
		if s.postings[term] == nil {
			s.postings[term] = make(map[string]*posting)
		}
		s.postings[term][path] = p
	}
	sort.Strings(terms)
	s.docTerms[path] = terms

	info := docInfo{termCount: total, title: s.docTitle(path), tags: s.docTags(path)}
	if stat, statErr := s.store.Stat(path); statErr == nil && stat != nil {
		info.mtime = stat.MTime
	}
	s.docs[path] = info
}

// tokenize lowercases and splits on non-alphanumeric boundaries, dropping
// short tokens, stop words, and pure numbers.
func (s *Indexed) tokenize(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if len(tok) < s.minTokenLen {
			return
		}
		if _, stop := s.stopWords[tok]; stop {
			return
		}
		if isNumeric(tok) {
			return
		}
		out = append(out, tok)
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Search ranks documents by TF-IDF over the matched query terms, scaled by
// term coverage, a title-match boost, and the matched-term density of the
// document. Results for unfiltered queries are cached by (query, limit).
func (s *Indexed) Search(query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	s.UpdateIndex()

	cacheKey := fmt.Sprintf("%s|%d", query, opts.Limit)
	cacheable := opts.Filter == nil
	if cacheable {
		if hit, ok := s.cache.Get(cacheKey); ok {
			return hit, nil
		}
	}

	s.mu.Lock()
	qTokens := s.tokenize(query)
	n := len(s.docs)

	type docAccum struct {
		score        float64
		queryMatched map[string]struct{}
		termsMatched map[string]struct{}
		lines        map[int]struct{}
	}
	accum := make(map[string]*docAccum)

	for _, qt := range qTokens {
		terms := s.lookupTermsLocked(qt)
		for _, term := range terms {
			row := s.postings[term]
			idf := math.Log(float64(n+1)/float64(len(row)+1)) + 1
			for path, p := range row {
				a := accum[path]
				if a == nil {
					a = &docAccum{
						queryMatched: make(map[string]struct{}),
						termsMatched: make(map[string]struct{}),
						lines:        make(map[int]struct{}),
					}
					accum[path] = a
				}
				a.score += float64(p.tf) * idf
				a.queryMatched[qt] = struct{}{}
				a.termsMatched[term] = struct{}{}
				for _, l := range p.lines {
					a.lines[l] = struct{}{}
				}
			}
		}
	}

	var results []Result
	for path, a := range accum {
		info := s.docs[path]

		coverage := float64(len(a.queryMatched)) / float64(len(qTokens))
		score := a.score * (0.5 + 0.5*coverage)

		titleLower := strings.ToLower(info.title)
		for term := range a.termsMatched {
			if strings.Contains(titleLower, term) {
				score *= 1.5
				break
			}
		}

		if info.termCount > 0 {
			ratio := float64(len(a.termsMatched)) / float64(info.termCount)
			score *= 1 + ratio*10
		}

		lines := make([]int, 0, len(a.lines))
		for l := range a.lines {
			lines = append(lines, l)
		}
		sort.Ints(lines)
		matches := make([]LineMatch, 0, len(lines))
		for _, l := range lines {
			matches = append(matches, LineMatch{Line: l})
		}

		results = append(results, Result{Path: path, Title: info.title, Score: score, Matches: matches})
	}
	s.mu.Unlock()

	filtered := results[:0]
	for _, r := range results {
		if s.passFilter(r.Path, opts.Filter) {
			filtered = append(filtered, r)
		}
	}
	results = filtered

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Path < results[j].Path
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	if results == nil {
		results = []Result{}
	}

	if cacheable {
		s.cache.Add(cacheKey, results)
	}
	return results, nil
}

// lookupTermsLocked returns the index terms matching a query token: the
// exact term when present, otherwise every term sharing the token as a
// prefix, for tokens of at least three characters.
func (s *Indexed) lookupTermsLocked(token string) []string {
	if _, ok := s.postings[token]; ok {
		return []string{token}
	}
	if len(token) < prefixFallbackLen {
		return nil
	}
	var out []string
	for term := range s.postings {
		if strings.HasPrefix(term, token) {
			out = append(out, term)
		}
	}
	sort.Strings(out)
	return out
}
