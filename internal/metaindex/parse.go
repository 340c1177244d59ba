package metaindex

import (
	"regexp"
	"sort"
	"strings"
)

var (
	fmCloseRe  = regexp.MustCompile(`\n---(\n|$)`)
	linkRe     = regexp.MustCompile(`(!?)\[\[([^\[\]\n]+)\]\]`)
	tagRe      = regexp.MustCompile(`#([A-Za-z0-9_/-]+)`)
	headingRe  = regexp.MustCompile(`(?m)^(#{1,6}) (.*)$`)
	blockRe    = regexp.MustCompile(`(?m)(?:^|[ \t])\^([A-Za-z0-9-]+)$`)
	fmWikilink = regexp.MustCompile(`\[\[([^\[\]\n]+)\]\]`)
)

// ParseContent runs the full extraction pipeline over raw markdown.
// It is a pure function, deterministic, and never fails: malformed
// frontmatter degrades to "no frontmatter", everything else is best-effort
// regex extraction with fenced and inline code spans masked out.
func ParseContent(content string) *CachedMetadata {
	meta := &CachedMetadata{}

	lines := lineStarts(content)
	locAt := func(offset int) Loc {
		// Binary search for the line containing offset.
		lo, hi := 0, len(lines)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if lines[mid] <= offset {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return Loc{Line: lo, Col: offset - lines[lo], Offset: offset}
	}
	posAt := func(start, end int) Position {
		return Position{Start: locAt(start), End: locAt(end)}
	}

	// Frontmatter.
	bodyStart := 0
	if strings.HasPrefix(content, "---\n") || content == "---" {
		if m := fmCloseRe.FindStringIndex(content[3:]); m != nil {
			yamlBlock := content[4 : 3+m[0]]
			end := 3 + m[0] + 4 // past the closing ---
			if fm, err := parseFrontmatterYAML(yamlBlock); err == nil {
				meta.Frontmatter = fm
				p := posAt(0, end)
				meta.FrontmatterPosition = &p
				meta.FrontmatterLinks = collectFrontmatterLinks(fm)
				bodyStart = end
			}
		}
	}

	code := codeRanges(content)
	masked := func(offset int) bool {
		if offset < bodyStart {
			return true
		}
		for _, r := range code {
			if offset >= r[0] && offset < r[1] {
				return true
			}
		}
		return false
	}

	// Links and embeds. The same regex serves both: a leading '!' makes
	// the occurrence an embed, so a plain link never matches inside one.
	for _, m := range linkRe.FindAllStringSubmatchIndex(content, -1) {
		if masked(m[0]) {
			continue
		}
		inner := content[m[4]:m[5]]
		target, display, hasDisplay := strings.Cut(inner, "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		lc := LinkCache{
			Link:     target,
			Original: content[m[0]:m[1]],
			Position: posAt(m[0], m[1]),
		}
		if hasDisplay {
			lc.DisplayText = strings.TrimSpace(display)
		}
		if m[2] != m[3] { // '!' present
			meta.Embeds = append(meta.Embeds, lc)
		} else {
			meta.Links = append(meta.Links, lc)
		}
	}

	// Inline tags.
	for _, m := range tagRe.FindAllStringSubmatchIndex(content, -1) {
		if masked(m[0]) {
			continue
		}
		if m[0] > 0 && isWordByte(content[m[0]-1]) {
			continue
		}
		if lineLooksLikeURL(content, lines, m[0]) {
			continue
		}
		meta.Tags = append(meta.Tags, TagCache{
			Tag:      content[m[0]:m[1]],
			Position: posAt(m[0], m[1]),
		})
	}

	// ATX headings.
	for _, m := range headingRe.FindAllStringSubmatchIndex(content, -1) {
		if masked(m[0]) {
			continue
		}
		meta.Headings = append(meta.Headings, HeadingCache{
			Heading:  strings.TrimSpace(content[m[4]:m[5]]),
			Level:    m[3] - m[2],
			Position: posAt(m[0], m[1]),
		})
	}

	// Block anchors.
	for _, m := range blockRe.FindAllStringSubmatchIndex(content, -1) {
		caret := m[2] - 1 // position of '^'
		if masked(caret) {
			continue
		}
		id := content[m[2]:m[3]]
		if meta.Blocks == nil {
			meta.Blocks = make(map[string]BlockCache)
		}
		meta.Blocks[id] = BlockCache{ID: id, Position: posAt(caret, m[3])}
	}

	return meta
}

// lineStarts returns the byte offset of the start of every line.
func lineStarts(content string) []int {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// lineLooksLikeURL reports whether the text before offset on the same line
// contains a URL marker, which disqualifies a '#' from being a tag
// (anchors like https://example.com/page#section).
func lineLooksLikeURL(content string, starts []int, offset int) bool {
	lineStart := 0
	for _, s := range starts {
		if s > offset {
			break
		}
		lineStart = s
	}
	before := content[lineStart:offset]
	return strings.Contains(before, "://") ||
		strings.Contains(before, ".com/") ||
		strings.Contains(before, ".org/")
}

// codeRanges returns the byte ranges of fenced code blocks and inline code
// spans. Extractors skip any match whose start falls inside one.
func codeRanges(content string) [][2]int {
	var ranges [][2]int
	inFence := false
	fenceStart := 0

	offset := 0
	for offset <= len(content) {
		lineEnd := strings.IndexByte(content[offset:], '\n')
		var line string
		var next int
		if lineEnd < 0 {
			line = content[offset:]
			next = len(content) + 1
		} else {
			line = content[offset : offset+lineEnd]
			next = offset + lineEnd + 1
		}

		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				ranges = append(ranges, [2]int{fenceStart, next})
				inFence = false
			} else {
				inFence = true
				fenceStart = offset
			}
			offset = next
			continue
		}

		if !inFence {
			// Inline spans: pair single backticks within the line.
			for i := 0; i < len(line); {
				open := strings.IndexByte(line[i:], '`')
				if open < 0 {
					break
				}
				open += i
				end := strings.IndexByte(line[open+1:], '`')
				if end < 0 {
					break
				}
				end += open + 1
				ranges = append(ranges, [2]int{offset + open, offset + end + 1})
				i = end + 1
			}
		}
		offset = next
	}
	if inFence {
		ranges = append(ranges, [2]int{fenceStart, len(content)})
	}
	return ranges
}

// collectFrontmatterLinks finds wikilinks inside frontmatter values.
// Nested keys are joined with dots; array elements keep their parent key.
func collectFrontmatterLinks(fm map[string]any) []FrontmatterLink {
	var out []FrontmatterLink
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch val := v.(type) {
		case string:
			m := fmWikilink.FindStringSubmatch(val)
			if m == nil {
				return
			}
			target, display, hasDisplay := strings.Cut(m[1], "|")
			fl := FrontmatterLink{
				Key:      prefix,
				Link:     strings.TrimSpace(target),
				Original: m[0],
			}
			if hasDisplay {
				fl.DisplayText = strings.TrimSpace(display)
			}
			if fl.Link != "" {
				out = append(out, fl)
			}
		case []any:
			for _, item := range val {
				walk(prefix, item)
			}
		case map[string]any:
			keys := make([]string, 0, len(val))
			for k := range val {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				walk(key, val[k])
			}
		}
	}
	walk("", fm)
	return out
}
