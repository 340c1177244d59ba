package metaindex

import (
	"path"
	"sort"
	"strings"
)

// ResolveLink resolves a raw wikilink target written in source to an indexed
// file, or nil when unresolved. The lookup order is part of the contract:
// exact path, then source-relative, then normalized-basename fallback, with
// fully-qualified links (folder segment plus extension) never falling back
// to basename matching.
func (e *Engine) ResolveLink(raw, source string) *FileRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(raw, source)
}

// FirstLinkpathDest is ResolveLink under the name adapter layers expect.
func (e *Engine) FirstLinkpathDest(linkpath, source string) *FileRef {
	return e.ResolveLink(linkpath, source)
}

func (e *Engine) resolveLocked(raw, source string) *FileRef {
	cleaned := stripSubpath(raw)
	if cleaned == "" || strings.HasSuffix(cleaned, "/") {
		return nil
	}
	srcDir := parentDir(source)

	// Relative traversal: literal segment arithmetic against the source dir.
	if strings.Contains(cleaned, "..") {
		if rel := resolveSegments(srcDir, cleaned); rel != "" {
			if f := e.files[rel]; f != nil {
				return f
			}
			if f := e.files[rel+".md"]; f != nil {
				return f
			}
		}
	}

	hasExt := path.Ext(cleaned) != ""

	// Exact path, with .md appended when the link has no extension.
	if f := e.files[cleaned]; f != nil {
		return f
	}
	if !hasExt {
		if f := e.files[cleaned+".md"]; f != nil {
			return f
		}
	}

	// Relative to the source file's directory.
	if srcDir != "" {
		joined := srcDir + "/" + cleaned
		if f := e.files[joined]; f != nil {
			return f
		}
		if !hasExt {
			if f := e.files[joined+".md"]; f != nil {
				return f
			}
		}
	}

	// Bare basename fallback. Same-directory files win; fully-qualified
	// links (folder and extension both present) never reach the global
	// fallback.
	base := path.Base(cleaned)
	base = strings.TrimSuffix(base, path.Ext(base))
	norm := normalizeName(base)

	for _, p := range e.sortedPathsLocked() {
		f := e.files[p]
		if parentDir(p) == srcDir && normalizeName(f.Basename) == norm {
			return f
		}
	}
	if strings.Contains(cleaned, "/") && hasExt {
		return nil
	}
	for _, p := range e.sortedPathsLocked() {
		f := e.files[p]
		if f.Extension == "md" && normalizeName(f.Basename) == norm {
			return f
		}
	}
	return nil
}

// LinktextFor returns the shortest link text that resolves back to target
// from source: bare basename when unique vault-wide, the basename when both
// files share a directory, otherwise the shortest trailing path fragment
// that disambiguates, falling back to the full path.
func (e *Engine) LinktextFor(target, source string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := e.files[target]
	if f == nil {
		return trimMD(target)
	}

	var sameBase []string
	for p, other := range e.files {
		if other.Basename == f.Basename {
			sameBase = append(sameBase, p)
		}
	}
	if len(sameBase) == 1 {
		return f.Basename
	}
	if parentDir(target) == parentDir(source) {
		return f.Basename
	}

	segs := strings.Split(target, "/")
	for n := 2; n <= len(segs); n++ {
		frag := strings.Join(segs[len(segs)-n:], "/")
		matches := 0
		for _, p := range sameBase {
			if p == frag || strings.HasSuffix(p, "/"+frag) {
				matches++
			}
		}
		if matches == 1 {
			return trimMD(frag)
		}
	}
	return trimMD(target)
}

// FileToLinktext is LinktextFor under the name adapter layers expect.
func (e *Engine) FileToLinktext(target, source string) string {
	return e.LinktextFor(target, source)
}

func (e *Engine) sortedPathsLocked() []string {
	out := make([]string, 0, len(e.files))
	for p := range e.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// stripSubpath removes a trailing #heading or ^block reference.
func stripSubpath(raw string) string {
	cut := len(raw)
	if i := strings.IndexByte(raw, '#'); i >= 0 && i < cut {
		cut = i
	}
	if i := strings.IndexByte(raw, '^'); i >= 0 && i < cut {
		cut = i
	}
	return strings.TrimSpace(raw[:cut])
}

// resolveSegments applies "" / "." / ".." segment arithmetic of link against
// dir. Returns "" when the link escapes the root.
func resolveSegments(dir, link string) string {
	var out []string
	if dir != "" {
		out = strings.Split(dir, "/")
	}
	for _, seg := range strings.Split(link, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return ""
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}
	return strings.Join(out, "/")
}

// normalizeName lowercases a basename and strips spaces, underscores and
// hyphens so loosely written links still match.
func normalizeName(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, name)
}

func parentDir(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}

func trimMD(p string) string {
	return strings.TrimSuffix(p, ".md")
}
