package metaindex

import (
	"fmt"
	"strconv"
	"strings"
)

// The frontmatter grammar is a deliberately narrow YAML subset parsed by
// recursive descent: scalar values (booleans, null, numbers, quoted and
// bare strings), inline arrays, block arrays, nested maps by indentation,
// and block scalars (|, |-, >). Anchors, aliases, multi-document streams
// and flow maps are not supported. Any parse error makes the caller treat
// the whole frontmatter as absent.

type yamlParser struct {
	lines []string
	pos   int
}

func parseFrontmatterYAML(src string) (map[string]any, error) {
	p := &yamlParser{lines: strings.Split(src, "\n")}
	m, err := p.parseMap(0)
	if err != nil {
		return nil, err
	}
	p.skipBlank()
	if p.pos < len(p.lines) {
		return nil, fmt.Errorf("frontmatter: unexpected content at line %d", p.pos+1)
	}
	return m, nil
}

func (p *yamlParser) skipBlank() {
	for p.pos < len(p.lines) && strings.TrimSpace(p.lines[p.pos]) == "" {
		p.pos++
	}
}

func indentOf(line string) (int, error) {
	n := 0
	for _, r := range line {
		if r == ' ' {
			n++
			continue
		}
		if r == '\t' {
			return 0, fmt.Errorf("frontmatter: tab indentation")
		}
		break
	}
	return n, nil
}

// parseMap consumes key/value entries at exactly the given indent.
// A line indented less than indent terminates the block.
func (p *yamlParser) parseMap(indent int) (map[string]any, error) {
	m := make(map[string]any)
	for {
		p.skipBlank()
		if p.pos >= len(p.lines) {
			break
		}
		line := p.lines[p.pos]
		ind, err := indentOf(line)
		if err != nil {
			return nil, err
		}
		if ind < indent {
			break
		}
		if ind > indent {
			return nil, fmt.Errorf("frontmatter: unexpected indent at line %d", p.pos+1)
		}
		content := line[ind:]
		if content == "-" || strings.HasPrefix(content, "- ") {
			return nil, fmt.Errorf("frontmatter: list item where key expected at line %d", p.pos+1)
		}

		key, rest, err := splitKey(content)
		if err != nil {
			return nil, fmt.Errorf("frontmatter: line %d: %w", p.pos+1, err)
		}
		p.pos++
		rest = strings.TrimSpace(rest)

		var val any
		switch {
		case rest == "|" || rest == "|-" || rest == ">":
			val = p.parseBlockScalar(ind, rest)

		case rest == "":
			val, err = p.parseNested(ind)
			if err != nil {
				return nil, err
			}

		default:
			val, err = parseValue(rest)
			if err != nil {
				return nil, fmt.Errorf("frontmatter: line %d: %w", p.pos, err)
			}
		}
		m[key] = val
	}
	return m, nil
}

// parseNested handles a key with no inline value: the value is a nested
// map, a block array, or null when nothing more indented follows.
func (p *yamlParser) parseNested(keyIndent int) (any, error) {
	p.skipBlank()
	if p.pos >= len(p.lines) {
		return nil, nil
	}
	ind, err := indentOf(p.lines[p.pos])
	if err != nil {
		return nil, err
	}
	if ind <= keyIndent {
		return nil, nil
	}
	content := p.lines[p.pos][ind:]
	if content == "-" || strings.HasPrefix(content, "- ") {
		return p.parseBlockArray(ind)
	}
	return p.parseMap(ind)
}

// parseBlockArray consumes "- item" lines at exactly itemIndent.
func (p *yamlParser) parseBlockArray(itemIndent int) ([]any, error) {
	var out []any
	for {
		p.skipBlank()
		if p.pos >= len(p.lines) {
			break
		}
		line := p.lines[p.pos]
		ind, err := indentOf(line)
		if err != nil {
			return nil, err
		}
		if ind != itemIndent {
			break
		}
		content := line[ind:]
		if content != "-" && !strings.HasPrefix(content, "- ") {
			break
		}
		p.pos++
		item := strings.TrimSpace(strings.TrimPrefix(content, "-"))
		if item == "" {
			out = append(out, nil)
			continue
		}
		val, err := parseValue(item)
		if err != nil {
			return nil, fmt.Errorf("frontmatter: line %d: %w", p.pos, err)
		}
		out = append(out, val)
	}
	return out, nil
}

// parseBlockScalar consumes lines more indented than the key, verbatim.
func (p *yamlParser) parseBlockScalar(keyIndent int, marker string) string {
	var raw []string
	bodyIndent := -1
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		if strings.TrimSpace(line) == "" {
			raw = append(raw, "")
			p.pos++
			continue
		}
		ind, err := indentOf(line)
		if err != nil || ind <= keyIndent {
			break
		}
		if bodyIndent < 0 {
			bodyIndent = ind
		}
		if ind < bodyIndent {
			bodyIndent = ind
		}
		raw = append(raw, line)
		p.pos++
	}
	// Drop trailing blank lines picked up before the terminator.
	for len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	body := make([]string, len(raw))
	for i, l := range raw {
		if l == "" {
			continue
		}
		body[i] = l[bodyIndent:]
	}
	switch marker {
	case "|":
		return strings.Join(body, "\n") + "\n"
	case "|-":
		return strings.Join(body, "\n")
	default: // ">"
		return strings.Join(body, " ")
	}
}

// splitKey splits "key: value" (or "key:") into key and the raw remainder.
func splitKey(content string) (string, string, error) {
	if strings.HasPrefix(content, `"`) || strings.HasPrefix(content, "'") {
		key, rest, err := parseQuoted(content)
		if err != nil {
			return "", "", err
		}
		rest = strings.TrimLeft(rest, " ")
		if !strings.HasPrefix(rest, ":") {
			return "", "", fmt.Errorf("missing ':' after quoted key")
		}
		return key, rest[1:], nil
	}
	for i := 0; i < len(content); i++ {
		if content[i] != ':' {
			continue
		}
		if i+1 == len(content) || content[i+1] == ' ' {
			key := strings.TrimSpace(content[:i])
			if key == "" {
				return "", "", fmt.Errorf("empty key")
			}
			return key, content[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("missing ':' separator")
}

// parseValue parses an inline value: scalar or inline array.
func parseValue(s string) (any, error) {
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("unterminated inline array")
		}
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []any{}, nil
		}
		parts, err := splitInline(inner)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			v, err := parseScalar(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return parseScalar(s)
}

// splitInline splits inline-array content on top-level commas,
// respecting quoted strings and nested brackets.
func splitInline(s string) ([]string, error) {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in array")
	}
	parts = append(parts, s[start:])
	return parts, nil
}

// parseScalar parses a single scalar value.
func parseScalar(s string) (any, error) {
	switch s {
	case "", "null", "~":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if s[0] == '"' || s[0] == '\'' {
		str, rest, err := parseQuoted(s)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(rest) != "" {
			return nil, fmt.Errorf("trailing content after quoted scalar")
		}
		return str, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}

// parseQuoted parses a leading quoted string and returns the remainder.
// Double quotes support backslash escapes; single quotes escape by doubling.
func parseQuoted(s string) (string, string, error) {
	quote := s[0]
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		if quote == '"' && c == '\\' {
			if i+1 >= len(s) {
				return "", "", fmt.Errorf("dangling escape")
			}
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\', '\'':
				b.WriteByte(s[i+1])
			default:
				b.WriteByte(s[i+1])
			}
			i += 2
			continue
		}
		if c == quote {
			if quote == '\'' && i+1 < len(s) && s[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			return b.String(), s[i+1:], nil
		}
		b.WriteByte(c)
		i++
	}
	return "", "", fmt.Errorf("unterminated quoted string")
}
