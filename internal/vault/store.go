// Package vault defines the content store abstraction over a folder of
// markdown files, with filesystem and in-memory backends.
package vault

import (
	"fmt"
	"strings"
	"time"
)

// FileStat holds timestamps and size for a stored file.
type FileStat struct {
	CTime time.Time `json:"ctime"`
	MTime time.Time `json:"mtime"`
	Size  int64     `json:"size"`
}

// FileInfo is a lightweight listing entry.
type FileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// EventKind enumerates store change notifications.
type EventKind int

const (
	EventCreate EventKind = iota
	EventModify
	EventDelete
	EventRename
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	}
	return "unknown"
}

// Event is a change notification emitted by a store.
// For renames, Path is the new path and OldPath the previous one.
type Event struct {
	Kind    EventKind
	Path    string
	OldPath string
}

// Store is the contract the engines depend on. Paths are '/'-separated,
// relative to the vault root, with no ".." segments.
type Store interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// ReadBinary is Read for non-text blobs (attachments).
	ReadBinary(path string) ([]byte, error)
	// Write atomically replaces the content at path, creating parents.
	Write(path string, content []byte) error
	// Exists reports whether a file exists at path.
	Exists(path string) bool
	// Stat returns timestamps and size, or nil (no error) when missing.
	Stat(path string) (*FileStat, error)
	// List returns the entry names directly under dir.
	List(dir string) ([]string, error)
	// ListAll returns every file under the root with its size.
	ListAll() ([]FileInfo, error)
	// Delete removes the file at path.
	Delete(path string) error
	// Rename moves oldPath to newPath.
	Rename(oldPath, newPath string) error
	// Copy duplicates src at dst.
	Copy(src, dst string) error
	// Subscribe returns a channel of change events and a cancel func.
	Subscribe() (<-chan Event, func())
}

// CleanPath normalizes a store path: forward slashes, no leading slash,
// no "." or ".." segments. It rejects paths that escape the root.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("vault: absolute paths not allowed: %s", p)
	}
	var out []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return "", fmt.Errorf("vault: path escapes root: %s", p)
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "", fmt.Errorf("vault: empty path")
	}
	return strings.Join(out, "/"), nil
}
