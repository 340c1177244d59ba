package vault

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"
)

type memFile struct {
	data  []byte
	ctime time.Time
	mtime time.Time
}

// Mem implements Store entirely in memory. It backs tests and hosts that
// feed content from somewhere other than a local directory.
type Mem struct {
	bus
	mu    sync.Mutex
	files map[string]*memFile
	now   func() time.Time
}

var _ Store = (*Mem)(nil)

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{files: make(map[string]*memFile), now: time.Now}
}

// Read returns the stored bytes at path.
func (m *Mem) Read(path string) ([]byte, error) {
	cleaned, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[cleaned]
	if !ok {
		return nil, fmt.Errorf("vault: read %s: %w", cleaned, fs.ErrNotExist)
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

// ReadBinary is identical to Read for the in-memory store.
func (m *Mem) ReadBinary(path string) ([]byte, error) {
	return m.Read(path)
}

// Write replaces the content at path.
func (m *Mem) Write(path string, content []byte) error {
	cleaned, err := CleanPath(path)
	if err != nil {
		return err
	}
	data := make([]byte, len(content))
	copy(data, content)

	m.mu.Lock()
	f, existed := m.files[cleaned]
	ts := m.now()
	if existed {
		f.data = data
		f.mtime = ts
	} else {
		m.files[cleaned] = &memFile{data: data, ctime: ts, mtime: ts}
	}
	m.mu.Unlock()

	kind := EventCreate
	if existed {
		kind = EventModify
	}
	m.publish(Event{Kind: kind, Path: cleaned})
	return nil
}

// Exists reports whether path holds a file.
func (m *Mem) Exists(path string) bool {
	cleaned, err := CleanPath(path)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[cleaned]
	return ok
}

// Stat returns timestamps and size, or nil when missing.
func (m *Mem) Stat(path string) (*FileStat, error) {
	cleaned, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[cleaned]
	if !ok {
		return nil, nil
	}
	return &FileStat{CTime: f.ctime, MTime: f.mtime, Size: int64(len(f.data))}, nil
}

// List returns the entry names directly under dir.
func (m *Mem) List(dir string) ([]string, error) {
	prefix := ""
	if dir != "" {
		cleaned, err := CleanPath(dir)
		if err != nil {
			return nil, err
		}
		prefix = cleaned + "/"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var names []string
	for p := range m.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name, _, _ := strings.Cut(rest, "/")
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListAll returns every stored file with its size, sorted by path.
func (m *Mem) ListAll() ([]FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FileInfo, 0, len(m.files))
	for p, f := range m.files {
		out = append(out, FileInfo{Path: p, Size: int64(len(f.data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Delete removes the file at path.
func (m *Mem) Delete(path string) error {
	cleaned, err := CleanPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	_, ok := m.files[cleaned]
	delete(m.files, cleaned)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("vault: delete %s: %w", cleaned, fs.ErrNotExist)
	}
	m.publish(Event{Kind: EventDelete, Path: cleaned})
	return nil
}

// Rename moves oldPath to newPath.
func (m *Mem) Rename(oldPath, newPath string) error {
	oldClean, err := CleanPath(oldPath)
	if err != nil {
		return err
	}
	newClean, err := CleanPath(newPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	f, ok := m.files[oldClean]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("vault: rename %s: %w", oldClean, fs.ErrNotExist)
	}
	delete(m.files, oldClean)
	f.mtime = m.now()
	m.files[newClean] = f
	m.mu.Unlock()

	m.publish(Event{Kind: EventRename, Path: newClean, OldPath: oldClean})
	return nil
}

// Copy duplicates src at dst.
func (m *Mem) Copy(src, dst string) error {
	data, err := m.Read(src)
	if err != nil {
		return err
	}
	return m.Write(dst, data)
}
