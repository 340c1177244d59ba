// Package graph answers traversal queries over the metadata engine's link
// graph. It is a stateless read layer: every query works on a snapshot and
// never triggers I/O.
package graph

import (
	"sort"

	"github.com/starford/ansuz/internal/metaindex"
)

// Engine runs graph queries against a metadata index.
type Engine struct {
	idx *metaindex.Engine
}

// New creates a graph engine over the given metadata index.
func New(idx *metaindex.Engine) *Engine {
	return &Engine{idx: idx}
}

// Backlink is one referring file with the link occurrences pointing at the
// queried target, so callers can show context.
type Backlink struct {
	Source string                `json:"source"`
	Links  []metaindex.LinkCache `json:"links"`
}

// Backlinks returns every file whose resolved links reference path,
// sorted by source path.
func (g *Engine) Backlinks(path string) []Backlink {
	resolved := g.idx.ResolvedLinks()
	var sources []string
	for src, targets := range resolved {
		if targets[path] > 0 {
			sources = append(sources, src)
		}
	}
	sort.Strings(sources)

	out := make([]Backlink, 0, len(sources))
	for _, src := range sources {
		bl := Backlink{Source: src}
		if meta := g.idx.FileCache(src); meta != nil {
			for _, l := range meta.Links {
				if f := g.idx.ResolveLink(l.Link, src); f != nil && f.Path == path {
					bl.Links = append(bl.Links, l)
				}
			}
		}
		out = append(out, bl)
	}
	return out
}

// Outlinks returns the resolved link targets of path, sorted.
func (g *Engine) Outlinks(path string) []string {
	row := g.idx.ResolvedLinks()[path]
	out := make([]string, 0, len(row))
	for target := range row {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// Neighbors returns the nodes reachable from path within depth hops over
// the undirected edge set, excluding path itself, de-duplicated. depth 0
// returns an empty slice; limit caps the result size (non-positive means
// unlimited). The visited set bounds traversal even with cycles or a depth
// far beyond the graph diameter.
func (g *Engine) Neighbors(path string, depth, limit int) []string {
	if depth <= 0 {
		return []string{}
	}
	adj := g.adjacency()

	visited := map[string]struct{}{path: {}}
	frontier := []string{path}
	var out []string

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, node := range frontier {
			for _, nb := range adj[node] {
				if _, seen := visited[nb]; seen {
					continue
				}
				visited[nb] = struct{}{}
				out = append(out, nb)
				if limit > 0 && len(out) >= limit {
					return out
				}
				next = append(next, nb)
			}
		}
		frontier = next
	}
	if out == nil {
		return []string{}
	}
	return out
}

// FindPath returns a shortest path from source to target over the
// undirected edge set, or nil when none exists or either node is unknown.
// source == target returns [source] when the node is known, even if it has
// no edges.
func (g *Engine) FindPath(source, target string) []string {
	if source == target {
		if g.idx.FileRefFor(source) != nil {
			return []string{source}
		}
		return nil
	}
	adj := g.adjacency()

	prev := map[string]string{source: ""}
	frontier := []string{source}
	for len(frontier) > 0 {
		var next []string
		for _, node := range frontier {
			for _, nb := range adj[node] {
				if _, seen := prev[nb]; seen {
					continue
				}
				prev[nb] = node
				if nb == target {
					return unwind(prev, source, target)
				}
				next = append(next, nb)
			}
		}
		frontier = next
	}
	return nil
}

func unwind(prev map[string]string, source, target string) []string {
	var rev []string
	for at := target; at != ""; at = prev[at] {
		rev = append(rev, at)
		if at == source {
			break
		}
	}
	out := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out
}

// adjacency builds the undirected adjacency list from the resolved graph,
// with deterministic (sorted) neighbor order.
func (g *Engine) adjacency() map[string][]string {
	resolved := g.idx.ResolvedLinks()
	set := make(map[string]map[string]struct{})
	add := func(a, b string) {
		if set[a] == nil {
			set[a] = make(map[string]struct{})
		}
		set[a][b] = struct{}{}
	}
	for src, targets := range resolved {
		for target := range targets {
			add(src, target)
			add(target, src)
		}
	}
	adj := make(map[string][]string, len(set))
	for node, nbs := range set {
		list := make([]string, 0, len(nbs))
		for nb := range nbs {
			list = append(list, nb)
		}
		sort.Strings(list)
		adj[node] = list
	}
	return adj
}

// Nodes returns every node that appears in the resolved graph plus every
// indexed markdown file, sorted. Orphans are included so the full-graph
// view shows unlinked notes.
func (g *Engine) Nodes() []string {
	seen := make(map[string]struct{})
	for _, p := range g.idx.MarkdownPaths() {
		seen[p] = struct{}{}
	}
	for src, targets := range g.idx.ResolvedLinks() {
		seen[src] = struct{}{}
		for t := range targets {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Edges returns every resolved edge with its occurrence count, sorted by
// source then target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Count  int    `json:"count"`
}

// Edges lists the directed resolved edges.
func (g *Engine) Edges() []Edge {
	resolved := g.idx.ResolvedLinks()
	var out []Edge
	for src, targets := range resolved {
		for target, n := range targets {
			out = append(out, Edge{Source: src, Target: target, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}
