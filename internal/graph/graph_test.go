package graph

import (
	"reflect"
	"testing"

	"github.com/starford/ansuz/internal/testutil"
)

func chainEngine(t *testing.T) *Engine {
	t.Helper()
	idx, _ := testutil.TestEngine(t, map[string]string{
		"a.md": "[[b]]\n",
		"b.md": "[[c]]\n",
		"c.md": "# End\n",
	})
	return New(idx)
}

func TestBacklinks(t *testing.T) {
	idx, _ := testutil.TestEngine(t, map[string]string{
		"a.md": "[[c]] twice: [[c|alias]]\n",
		"b.md": "[[c]]\n",
		"c.md": "",
	})
	g := New(idx)

	bls := g.Backlinks("c.md")
	if len(bls) != 2 {
		t.Fatalf("backlinks = %+v", bls)
	}
	if bls[0].Source != "a.md" || bls[1].Source != "b.md" {
		t.Errorf("sources = %q, %q", bls[0].Source, bls[1].Source)
	}
	if len(bls[0].Links) != 2 {
		t.Errorf("a.md occurrences = %+v", bls[0].Links)
	}
	if bls[0].Links[1].DisplayText != "alias" {
		t.Errorf("second occurrence = %+v", bls[0].Links[1])
	}
}

func TestOutlinks(t *testing.T) {
	g := chainEngine(t)
	if got := g.Outlinks("a.md"); !reflect.DeepEqual(got, []string{"b.md"}) {
		t.Errorf("outlinks = %v", got)
	}
	if got := g.Outlinks("c.md"); len(got) != 0 {
		t.Errorf("outlinks of sink = %v", got)
	}
}

func TestNeighborsDepth(t *testing.T) {
	g := chainEngine(t)

	if got := g.Neighbors("a.md", 0, 0); len(got) != 0 {
		t.Errorf("depth 0 = %v", got)
	}
	if got := g.Neighbors("a.md", 1, 0); !reflect.DeepEqual(got, []string{"b.md"}) {
		t.Errorf("depth 1 = %v", got)
	}
	if got := g.Neighbors("a.md", 2, 0); !reflect.DeepEqual(got, []string{"b.md", "c.md"}) {
		t.Errorf("depth 2 = %v", got)
	}
	// Depth beyond the diameter terminates and adds nothing.
	if got := g.Neighbors("a.md", 100, 0); !reflect.DeepEqual(got, []string{"b.md", "c.md"}) {
		t.Errorf("depth 100 = %v", got)
	}
}

func TestNeighborsMonotonicInDepth(t *testing.T) {
	g := chainEngine(t)
	prev := 0
	for depth := 1; depth <= 4; depth++ {
		n := len(g.Neighbors("a.md", depth, 0))
		if n < prev {
			t.Errorf("neighbor count shrank at depth %d: %d < %d", depth, n, prev)
		}
		prev = n
	}
}

func TestNeighborsUndirected(t *testing.T) {
	g := chainEngine(t)
	// c.md has no outlinks, but a link pointing at it still makes b a neighbor.
	if got := g.Neighbors("c.md", 1, 0); !reflect.DeepEqual(got, []string{"b.md"}) {
		t.Errorf("neighbors of sink = %v", got)
	}
}

func TestNeighborsLimit(t *testing.T) {
	idx, _ := testutil.TestEngine(t, map[string]string{
		"hub.md": "[[s1]] [[s2]] [[s3]]\n",
		"s1.md":  "",
		"s2.md":  "",
		"s3.md":  "",
	})
	g := New(idx)
	if got := g.Neighbors("hub.md", 1, 2); len(got) != 2 {
		t.Errorf("limited neighbors = %v", got)
	}
	if got := g.Neighbors("hub.md", 1, 0); len(got) != 3 {
		t.Errorf("unlimited neighbors = %v", got)
	}
}

func TestFindPath(t *testing.T) {
	g := chainEngine(t)
	want := []string{"a.md", "b.md", "c.md"}
	if got := g.FindPath("a.md", "c.md"); !reflect.DeepEqual(got, want) {
		t.Errorf("path = %v, want %v", got, want)
	}
	// Undirected: the reverse direction works too.
	if got := g.FindPath("c.md", "a.md"); !reflect.DeepEqual(got, []string{"c.md", "b.md", "a.md"}) {
		t.Errorf("reverse path = %v", got)
	}
}

func TestFindPathDisconnected(t *testing.T) {
	idx, _ := testutil.TestEngine(t, map[string]string{
		"a.md":      "[[b]]\n",
		"b.md":      "",
		"island.md": "",
	})
	g := New(idx)
	if got := g.FindPath("a.md", "island.md"); got != nil {
		t.Errorf("path to island = %v", got)
	}
}

func TestFindPathSelf(t *testing.T) {
	g := chainEngine(t)
	if got := g.FindPath("a.md", "a.md"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("self path = %v", got)
	}
	if got := g.FindPath("ghost.md", "ghost.md"); got != nil {
		t.Errorf("self path for unknown node = %v", got)
	}
}

func TestNodesIncludeOrphans(t *testing.T) {
	idx, _ := testutil.TestEngine(t, map[string]string{
		"a.md":      "[[b]]\n",
		"b.md":      "",
		"orphan.md": "",
	})
	g := New(idx)
	want := []string{"a.md", "b.md", "orphan.md"}
	if got := g.Nodes(); !reflect.DeepEqual(got, want) {
		t.Errorf("nodes = %v, want %v", got, want)
	}
}

func TestEdgesCounts(t *testing.T) {
	idx, _ := testutil.TestEngine(t, map[string]string{
		"a.md": "[[b]] and again [[b]]\n",
		"b.md": "[[a]]\n",
	})
	g := New(idx)
	want := []Edge{
		{Source: "a.md", Target: "b.md", Count: 2},
		{Source: "b.md", Target: "a.md", Count: 1},
	}
	if got := g.Edges(); !reflect.DeepEqual(got, want) {
		t.Errorf("edges = %+v, want %+v", got, want)
	}
}
