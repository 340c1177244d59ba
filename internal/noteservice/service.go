// Package noteservice coordinates note CRUD across the vault store and the
// metadata engine, keeping the index synchronous with every write.
package noteservice

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/metaindex"
	"github.com/starford/ansuz/internal/vault"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service coordinates vault and index operations.
type Service struct {
	store vault.Store
	idx   *metaindex.Engine
	graph *graph.Engine
}

// NewService creates a new note service.
func NewService(store vault.Store, idx *metaindex.Engine, g *graph.Engine) *Service {
	return &Service{store: store, idx: idx, graph: g}
}

// GetNote reads a note from the vault and enriches it with indexed
// metadata and backlinks.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data), nil
}

// CreateNote writes a new note and indexes it synchronously. The echoed
// vault event is suppressed so the file is not indexed twice.
func (s *Service) CreateNote(_ context.Context, path string, content []byte) (*NoteDetail, error) {
	cleaned, err := vault.CleanPath(path)
	if err != nil {
		return nil, apperr.ErrInvalidPath
	}
	if s.store.Exists(cleaned) {
		return nil, apperr.ErrAlreadyExists
	}
	s.idx.NoteSelfOp(cleaned)
	if err := s.store.Write(cleaned, content); err != nil {
		return nil, err
	}
	s.idx.HandleCreate(cleaned)
	return s.buildNoteDetail(cleaned, content), nil
}

// UpdateNote writes updated content with optimistic concurrency: a
// non-empty ifMatch must equal the checksum of the current content.
func (s *Service) UpdateNote(_ context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	cleaned, err := vault.CleanPath(path)
	if err != nil {
		return nil, apperr.ErrInvalidPath
	}
	existing, err := s.store.Read(cleaned)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	s.idx.NoteSelfOp(cleaned)
	if err := s.store.Write(cleaned, content); err != nil {
		return nil, err
	}
	s.idx.IndexFile(cleaned)
	return s.buildNoteDetail(cleaned, content), nil
}

// DeleteNote removes a note from the vault and the index.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	cleaned, err := vault.CleanPath(path)
	if err != nil {
		return apperr.ErrInvalidPath
	}
	if !s.store.Exists(cleaned) {
		return apperr.ErrNotFound
	}
	s.idx.NoteSelfOp(cleaned)
	if err := s.store.Delete(cleaned); err != nil {
		return err
	}
	s.idx.HandleDelete(cleaned)
	return nil
}

// RenameNote moves a note. Links elsewhere are re-resolved against the new
// path; the note's own links are re-resolved relative to its new folder.
func (s *Service) RenameNote(_ context.Context, oldPath, newPath string) (*NoteDetail, error) {
	oldClean, err := vault.CleanPath(oldPath)
	if err != nil {
		return nil, apperr.ErrInvalidPath
	}
	newClean, err := vault.CleanPath(newPath)
	if err != nil {
		return nil, apperr.ErrInvalidPath
	}
	if !s.store.Exists(oldClean) {
		return nil, apperr.ErrNotFound
	}
	if s.store.Exists(newClean) {
		return nil, apperr.ErrAlreadyExists
	}
	s.idx.NoteSelfOp(newClean)
	if err := s.store.Rename(oldClean, newClean); err != nil {
		return nil, err
	}
	s.idx.HandleRename(oldClean, newClean)
	data, err := s.store.Read(newClean)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(newClean, data), nil
}

// ListNotes returns paginated notes with an optional tag filter, sorted by
// path.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag string) ([]NoteListItem, int, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	paths := s.idx.MarkdownPaths()
	sort.Strings(paths)

	var all []NoteListItem
	for _, p := range paths {
		tags := s.noteTags(p)
		if tag != "" && !hasTag(tags, tag) {
			continue
		}
		item := NoteListItem{Path: p, Title: s.noteTitle(p), Tags: nonNilSlice(tags)}
		if stat, err := s.store.Stat(p); err == nil && stat != nil {
			item.UpdatedAt = stat.MTime
		}
		if data, err := s.store.Read(p); err == nil {
			item.Checksum = checksum.Sum(data)
		}
		all = append(all, item)
	}

	total := len(all)
	if offset >= total {
		return []NoteListItem{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

// TagCount is one vault tag with the number of notes carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Tags aggregates every tag across the vault, sorted by tag name.
func (s *Service) Tags(_ context.Context) []TagCount {
	counts := make(map[string]int)
	for _, p := range s.idx.MarkdownPaths() {
		for _, t := range s.noteTags(p) {
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TagCount{Tag: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (s *Service) buildNoteDetail(path string, data []byte) *NoteDetail {
	detail := &NoteDetail{
		Path:      path,
		Title:     s.noteTitle(path),
		Content:   string(data),
		Checksum:  checksum.Sum(data),
		Tags:      nonNilSlice(s.noteTags(path)),
		Backlinks: []string{},
		UpdatedAt: time.Now(),
	}
	if meta := s.idx.FileCache(path); meta != nil {
		detail.Frontmatter = meta.Frontmatter
	}
	for _, bl := range s.graph.Backlinks(path) {
		detail.Backlinks = append(detail.Backlinks, bl.Source)
	}
	if stat, err := s.store.Stat(path); err == nil && stat != nil {
		detail.UpdatedAt = stat.MTime
	}
	return detail
}

// noteTitle is the first heading, falling back to the file basename.
func (s *Service) noteTitle(path string) string {
	if meta := s.idx.FileCache(path); meta != nil && len(meta.Headings) > 0 {
		return meta.Headings[0].Heading
	}
	if f := s.idx.FileRefFor(path); f != nil {
		return f.Basename
	}
	return path
}

// noteTags merges inline and frontmatter tags, deduplicated, without the
// leading '#'.
func (s *Service) noteTags(path string) []string {
	meta := s.idx.FileCache(path)
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
				if str, ok := item.(string); ok {
					add(str)
				}
			}
		case string:
			add(v)
		}
	}
	return out
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want || strings.HasPrefix(t, want+"/") {
			return true
		}
	}
	return false
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
