package search

import (
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/metaindex"
)

// metaQuery implements the metadata-driven lookups shared by both
// strategies; each embeds it.
type metaQuery struct {
	idx *metaindex.Engine
}

// docTags returns the file's tags, inline and frontmatter, without the
// leading '#'.
func (m metaQuery) docTags(path string) []string {
	meta := m.idx.FileCache(path)
	if meta == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, tc := range meta.Tags {
		add(tc.Tag)
	}
	if meta.Frontmatter != nil {
		switch v := meta.Frontmatter["tags"].(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			add(v)
		}
	}
	return out
}

// FindByTag returns the paths carrying tag, either exactly or as a parent
// of a nested tag (project matches project/planning).
func (m metaQuery) FindByTag(tag string) []string {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" {
		return nil
	}
	var out []string
	for _, p := range m.idx.MarkdownPaths() {
		for _, t := range m.docTags(p) {
			if t == tag || strings.HasPrefix(t, tag+"/") {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// FindByProperty returns the paths whose frontmatter property at the
// dot-separated keyPath matches value. A nil value matches files where the
// property is absent or explicitly null; array properties match when they
// contain the value.
func (m metaQuery) FindByProperty(keyPath string, value any) []string {
	segs := strings.Split(keyPath, ".")
	var out []string
	for _, p := range m.idx.MarkdownPaths() {
		meta := m.idx.FileCache(p)
		if meta == nil {
			continue
		}
		stored, found := lookupPath(meta.Frontmatter, segs)
		if value == nil {
			if !found || stored == nil {
				out = append(out, p)
			}
			continue
		}
		if found && matchValue(stored, value) {
			out = append(out, p)
		}
	}
	return out
}

func lookupPath(fm map[string]any, segs []string) (any, bool) {
	if fm == nil {
		return nil, false
	}
	var cur any = fm
	for _, seg := range segs {
		mp, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mp[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func matchValue(stored, want any) bool {
	if arr, ok := stored.([]any); ok {
		for _, item := range arr {
			if scalarEqual(item, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(stored, want)
}

// scalarEqual compares loosely: YAML gives int64/float64/bool/string while
// callers (JSON, CLI) supply float64 or string, so values are compared by
// their canonical text form.
func scalarEqual(a, b any) bool {
	if a == b {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// FindByLink returns the paths whose links or embeds point at target,
// matched by normalized basename.
func (m metaQuery) FindByLink(target string) []string {
	want := normalizeLinkName(target)
	if want == "" {
		return nil
	}
	var out []string
	for _, p := range m.idx.MarkdownPaths() {
		meta := m.idx.FileCache(p)
		if meta == nil {
			continue
		}
		found := false
		for _, l := range meta.Links {
			if normalizeLinkName(l.Link) == want {
				found = true
				break
			}
		}
		if !found {
			for _, l := range meta.Embeds {
				if normalizeLinkName(l.Link) == want {
					found = true
					break
				}
			}
		}
		if found {
			out = append(out, p)
		}
	}
	return out
}

// normalizeLinkName reduces a raw link target or path to a comparable
// basename: subpath stripped, last segment, extension dropped, lowercased,
// spaces/underscores/hyphens removed.
func normalizeLinkName(raw string) string {
	if i := strings.IndexAny(raw, "#^"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndexByte(raw, '/'); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.LastIndexByte(raw, '.'); i > 0 {
		raw = raw[:i]
	}
	raw = strings.ToLower(raw)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, raw)
}

// passFilter applies folder and tag filters to a path.
func (m metaQuery) passFilter(path string, f *Filter) bool {
	if f == nil {
		return true
	}
	if f.Folder != "" {
		folder := strings.TrimSuffix(f.Folder, "/")
		if !strings.HasPrefix(path, folder+"/") {
			return false
		}
	}
	if len(f.Tags) > 0 {
		have := make(map[string]struct{})
		for _, t := range m.docTags(path) {
			have[t] = struct{}{}
		}
		for _, want := range f.Tags {
			want = strings.TrimPrefix(want, "#")
			if _, ok := have[want]; !ok {
				return false
			}
		}
	}
	return true
}

// docTitle is the first heading, falling back to the file basename.
func (m metaQuery) docTitle(path string) string {
	if meta := m.idx.FileCache(path); meta != nil && len(meta.Headings) > 0 {
		return meta.Headings[0].Heading
	}
	if f := m.idx.FileRefFor(path); f != nil {
		return f.Basename
	}
	return path
}
