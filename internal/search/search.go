// Package search ranks vault files against text queries. Two strategies
// implement the same contract: a linear per-query scan and a maintained
// inverted index with TF-IDF scoring and a result cache.
package search

// Filter narrows a search to a folder subtree and/or a tag set.
type Filter struct {
	Folder string   `json:"folder,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// Options controls a search call.
type Options struct {
	Limit  int     `json:"limit,omitempty"`
	Filter *Filter `json:"filter,omitempty"`
}

// LineMatch locates one match within a file. The linear strategy fills the
// column range; the indexed strategy reports line numbers only.
type LineMatch struct {
	Line  int    `json:"line"`
	Start int    `json:"start,omitempty"`
	End   int    `json:"end,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Result is one ranked hit.
type Result struct {
	Path    string      `json:"path"`
	Title   string      `json:"title"`
	Score   float64     `json:"score"`
	Matches []LineMatch `json:"matches,omitempty"`
}

// Engine is the strategy-independent search contract.
type Engine interface {
	Search(query string, opts Options) ([]Result, error)
	FindByTag(tag string) []string
	FindByProperty(keyPath string, value any) []string
	FindByLink(target string) []string
}
