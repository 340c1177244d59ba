// Package metaindex maintains per-file markdown metadata and the derived
// link graph for a vault, updating both incrementally as the store changes.
package metaindex

import (
	"path"
	"strings"

	"github.com/starford/ansuz/internal/vault"
)

// Loc is a point in a file: zero-based line and column plus byte offset.
type Loc struct {
	Line   int `json:"line"`
	Col    int `json:"col"`
	Offset int `json:"offset"`
}

// Position is the extent of an extracted element in the raw content.
type Position struct {
	Start Loc `json:"start"`
	End   Loc `json:"end"`
}

// LinkCache is one wikilink or embed occurrence as written.
type LinkCache struct {
	Link        string   `json:"link"`
	Original    string   `json:"original"`
	DisplayText string   `json:"displayText,omitempty"`
	Position    Position `json:"position"`
}

// TagCache is one inline tag occurrence. Tag always includes the leading '#'.
type TagCache struct {
	Tag      string   `json:"tag"`
	Position Position `json:"position"`
}

// HeadingCache is one ATX heading occurrence.
type HeadingCache struct {
	Heading  string   `json:"heading"`
	Level    int      `json:"level"`
	Position Position `json:"position"`
}

// BlockCache is one ^blockid anchor occurrence.
type BlockCache struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

// FrontmatterLink is a wikilink found inside a frontmatter value.
type FrontmatterLink struct {
	Key         string `json:"key"`
	Link        string `json:"link"`
	Original    string `json:"original"`
	DisplayText string `json:"displayText,omitempty"`
}

// CachedMetadata is the full per-file record. It is replaced wholesale on
// every re-index, never patched.
type CachedMetadata struct {
	Frontmatter         map[string]any    `json:"frontmatter,omitempty"`
	FrontmatterPosition *Position         `json:"frontmatterPosition,omitempty"`
	FrontmatterLinks    []FrontmatterLink `json:"frontmatterLinks,omitempty"`
	Links               []LinkCache       `json:"links,omitempty"`
	Embeds              []LinkCache       `json:"embeds,omitempty"`
	Tags                []TagCache        `json:"tags,omitempty"`
	Headings            []HeadingCache    `json:"headings,omitempty"`
	Blocks              map[string]BlockCache `json:"blocks,omitempty"`
}

// FileRef identifies an indexed file. Identity is Path.
type FileRef struct {
	Path      string          `json:"path"`
	Name      string          `json:"name"`
	Basename  string          `json:"basename"`
	Extension string          `json:"extension"`
	Stat      vault.FileStat  `json:"stat"`
}

// NewFileRef builds a FileRef for a store path and stat.
func NewFileRef(p string, stat vault.FileStat) *FileRef {
	name := path.Base(p)
	ext := strings.TrimPrefix(path.Ext(name), ".")
	base := strings.TrimSuffix(name, path.Ext(name))
	return &FileRef{Path: p, Name: name, Basename: base, Extension: ext, Stat: stat}
}

// Dir returns the directory part of the file's path, "" for the root.
func (f *FileRef) Dir() string {
	d := path.Dir(f.Path)
	if d == "." {
		return ""
	}
	return d
}
