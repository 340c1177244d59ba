package search

import (
	"reflect"
	"testing"

	"github.com/starford/ansuz/internal/testutil"
)

func metaFixture(t *testing.T, files map[string]string) metaQuery {
	t.Helper()
	idx, _ := testutil.TestEngine(t, files)
	return metaQuery{idx: idx}
}

func TestFindByTag(t *testing.T) {
	m := metaFixture(t, map[string]string{
		"inline.md": "Work on #project today.\n",
		"nested.md": "Planning #project/planning session.\n",
		"fm.md":     "---\ntags:\n  - project\n---\nNo inline tags.\n",
		"other.md":  "Nothing tagged, #unrelated only.\n",
	})

	want := []string{"fm.md", "inline.md", "nested.md"}
	if got := m.FindByTag("project"); !reflect.DeepEqual(got, want) {
		t.Errorf("FindByTag(project) = %v, want %v", got, want)
	}
	// The leading '#' is tolerated.
	if got := m.FindByTag("#project"); !reflect.DeepEqual(got, want) {
		t.Errorf("FindByTag(#project) = %v, want %v", got, want)
	}
	// Parent matching is by tag segment, not string prefix.
	if got := m.FindByTag("proj"); len(got) != 0 {
		t.Errorf("FindByTag(proj) = %v", got)
	}
	if got := m.FindByTag("project/planning"); !reflect.DeepEqual(got, []string{"nested.md"}) {
		t.Errorf("FindByTag(project/planning) = %v", got)
	}
}

func TestFindByProperty(t *testing.T) {
	m := metaFixture(t, map[string]string{
		"active.md": "---\nstatus: active\npriority: 3\n---\n",
		"done.md":   "---\nstatus: done\n---\n",
		"nested.md": "---\nmeta:\n  owner: sam\n---\n",
		"listed.md": "---\naliases: [home, start]\n---\n",
		"bare.md":   "No frontmatter at all.\n",
	})

	if got := m.FindByProperty("status", "active"); !reflect.DeepEqual(got, []string{"active.md"}) {
		t.Errorf("status=active = %v", got)
	}
	if got := m.FindByProperty("meta.owner", "sam"); !reflect.DeepEqual(got, []string{"nested.md"}) {
		t.Errorf("meta.owner=sam = %v", got)
	}
	if got := m.FindByProperty("aliases", "home"); !reflect.DeepEqual(got, []string{"listed.md"}) {
		t.Errorf("array containment = %v", got)
	}
	// Numbers compare across int64 from the parser and float64 from JSON.
	if got := m.FindByProperty("priority", float64(3)); !reflect.DeepEqual(got, []string{"active.md"}) {
		t.Errorf("priority=3 = %v", got)
	}
	// nil matches files where the property is absent.
	got := m.FindByProperty("status", nil)
	want := []string{"bare.md", "listed.md", "nested.md"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("status=nil = %v, want %v", got, want)
	}
}

func TestFindByLink(t *testing.T) {
	m := metaFixture(t, map[string]string{
		"a.md":     "See [[Some Note]] for details.\n",
		"b.md":     "Embedded: ![[some-note.md]]\n",
		"c.md":     "Heading ref [[some_note#Section]].\n",
		"other.md": "Links [[elsewhere]].\n",
	})
	want := []string{"a.md", "b.md", "c.md"}
	if got := m.FindByLink("some-note.md"); !reflect.DeepEqual(got, want) {
		t.Errorf("FindByLink = %v, want %v", got, want)
	}
	if got := m.FindByLink("Some Note"); !reflect.DeepEqual(got, want) {
		t.Errorf("FindByLink by display form = %v, want %v", got, want)
	}
	if got := m.FindByLink("missing"); len(got) != 0 {
		t.Errorf("FindByLink(missing) = %v", got)
	}
}

func TestNormalizeLinkName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Some Note", "somenote"},
		{"folder/Some_Note.md", "somenote"},
		{"some-note#Heading", "somenote"},
		{"some-note^block", "somenote"},
		{"  spaced  ", "spaced"},
	}
	for _, tt := range tests {
		if got := normalizeLinkName(tt.in); got != tt.want {
			t.Errorf("normalizeLinkName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPassFilter(t *testing.T) {
	m := metaFixture(t, map[string]string{
		"work/a.md": "#urgent #review\ncontent\n",
		"work/b.md": "#urgent\ncontent\n",
		"home/c.md": "#urgent #review\ncontent\n",
	})

	if !m.passFilter("work/a.md", nil) {
		t.Error("nil filter must pass")
	}
	f := &Filter{Folder: "work/"}
	if !m.passFilter("work/a.md", f) || m.passFilter("home/c.md", f) {
		t.Error("folder filter mismatch")
	}
	f = &Filter{Tags: []string{"urgent", "review"}}
	if !m.passFilter("work/a.md", f) || m.passFilter("work/b.md", f) {
		t.Error("tag filter must require all tags")
	}
	f = &Filter{Folder: "work", Tags: []string{"review"}}
	if !m.passFilter("work/a.md", f) || m.passFilter("home/c.md", f) {
		t.Error("combined filter mismatch")
	}
}

func TestDocTitle(t *testing.T) {
	m := metaFixture(t, map[string]string{
		"headed.md":   "# Proper Title\nbody\n",
		"headless.md": "just body text\n",
	})
	if got := m.docTitle("headed.md"); got != "Proper Title" {
		t.Errorf("title = %q", got)
	}
	if got := m.docTitle("headless.md"); got != "headless" {
		t.Errorf("fallback title = %q", got)
	}
}
