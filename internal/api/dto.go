package api

import (
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/search"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content"`
}

// RenameNoteRequest is the request body for moving a note.
type RenameNoteRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes"`
	Total int            `json:"total"`
}

// SearchResponse wraps ranked search results.
type SearchResponse struct {
	Results []search.Result `json:"results"`
}

// FindResponse wraps metadata lookups that return bare paths.
type FindResponse struct {
	Paths []string `json:"paths"`
}

// GraphResponse wraps the full knowledge graph.
type GraphResponse struct {
	Nodes []string     `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

// BacklinksResponse wraps the referrers of a note.
type BacklinksResponse struct {
	Backlinks []graph.Backlink `json:"backlinks"`
}

// NeighborsResponse wraps a bounded neighborhood query.
type NeighborsResponse struct {
	Neighbors []string `json:"neighbors"`
}

// PathResponse wraps a shortest-path query. Path is null when the notes
// are not connected.
type PathResponse struct {
	Path []string `json:"path"`
}

// TagsResponse wraps the vault-wide tag aggregation.
type TagsResponse struct {
	Tags []noteservice.TagCount `json:"tags"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}
