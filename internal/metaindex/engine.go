package metaindex

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/vault"
)

// DefaultBatchWindow is the rolling debounce window for batched
// change notifications.
const DefaultBatchWindow = 100 * time.Millisecond

// Engine owns the per-file metadata cache and the derived link graph.
// All mutation funnels through IndexFile and the store event loop; reads
// are safe from any goroutine.
type Engine struct {
	store  vault.Store
	logger *slog.Logger

	mu         sync.Mutex
	files      map[string]*FileRef
	cache      map[string]*CachedMetadata
	hashes     map[string]string
	resolved   map[string]map[string]int
	unresolved map[string]map[string]int
	selfOps    map[string]int

	events emitter

	batchMu     sync.Mutex
	batchWindow time.Duration
	batchTimer  *time.Timer
	batchFiles  []string
	batchStart  time.Time
}

// NewEngine creates an engine over the given store. Call Initialize to run
// the first full pass and Run to consume store events.
func NewEngine(store vault.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       store,
		logger:      logger,
		files:       make(map[string]*FileRef),
		cache:       make(map[string]*CachedMetadata),
		hashes:      make(map[string]string),
		resolved:    make(map[string]map[string]int),
		unresolved:  make(map[string]map[string]int),
		selfOps:     make(map[string]int),
		batchWindow: DefaultBatchWindow,
	}
}

// On subscribes fn to events of the given kind and returns a cancel handle.
func (e *Engine) On(k Kind, fn func(Event)) Handle {
	return e.events.on(k, fn)
}

// SetBatchWindow changes the debounce window for batched notifications.
func (e *Engine) SetBatchWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultBatchWindow
	}
	e.batchMu.Lock()
	e.batchWindow = d
	e.batchMu.Unlock()
}

// Initialize registers every stored file and indexes all markdown content.
// Files are registered before any content is parsed so links between files
// indexed in the same pass resolve regardless of order.
func (e *Engine) Initialize(ctx context.Context) error {
	infos, err := e.store.ListAll()
	if err != nil {
		return err
	}

	e.mu.Lock()
	for _, info := range infos {
		stat := vault.FileStat{Size: info.Size}
		if s, statErr := e.store.Stat(info.Path); statErr == nil && s != nil {
			stat = *s
		}
		e.files[info.Path] = NewFileRef(info.Path, stat)
	}
	e.mu.Unlock()

	for _, info := range infos {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if strings.HasSuffix(info.Path, ".md") {
			e.IndexFile(info.Path)
		}
	}
	e.logger.Info("metaindex: initialized", slog.Int("files", len(infos)))
	e.FlushBatch()
	return nil
}

// Run consumes store change events until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ch, cancel := e.store.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if e.consumeSelfOp(ev.Path) {
				continue
			}
			switch ev.Kind {
			case vault.EventCreate:
				e.HandleCreate(ev.Path)
			case vault.EventModify:
				e.handleModify(ev.Path)
			case vault.EventDelete:
				e.HandleDelete(ev.Path)
			case vault.EventRename:
				e.HandleRename(ev.OldPath, ev.Path)
			}
		}
	}
}

// NoteSelfOp suppresses the next store event for path. Adapters that write
// through the store and index synchronously call this first so the echoed
// notification does not trigger a second pass.
func (e *Engine) NoteSelfOp(path string) {
	if cleaned, err := vault.CleanPath(path); err == nil {
		path = cleaned
	}
	e.mu.Lock()
	e.selfOps[path]++
	e.mu.Unlock()
}

func (e *Engine) consumeSelfOp(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selfOps[path] > 0 {
		e.selfOps[path]--
		if e.selfOps[path] == 0 {
			delete(e.selfOps, path)
		}
		return true
	}
	return false
}

// IndexFile reads, parses and caches metadata for path, updating the link
// graph and emitting change events when the parsed record differs from the
// cached one. A failed read returns nil and leaves the prior cache intact.
// Equality is structural over the whole record, positions included, so a
// whitespace shift re-triggers notifications even when the extracted
// elements are unchanged.
func (e *Engine) IndexFile(path string) *CachedMetadata {
	cleaned, err := vault.CleanPath(path)
	if err != nil {
		return nil
	}
	data, err := e.store.Read(cleaned)
	if err != nil {
		e.logger.Debug("metaindex: read failed", slog.String("path", cleaned), slog.String("error", err.Error()))
		return nil
	}
	stat, _ := e.store.Stat(cleaned)

	meta := ParseContent(string(data))
	hash := checksum.Sum(data)

	e.mu.Lock()
	fs := vault.FileStat{Size: int64(len(data))}
	if stat != nil {
		fs = *stat
	}
	file := NewFileRef(cleaned, fs)
	e.files[cleaned] = file

	old := e.cache[cleaned]
	oldHash := e.hashes[cleaned]
	if old != nil && reflect.DeepEqual(old, meta) {
		// Content is unchanged, but resolution may not be: files appearing
		// or disappearing elsewhere shift where these links land.
		e.hashes[cleaned] = hash
		e.rebuildLinksLocked(cleaned, meta)
		e.mu.Unlock()
		e.noteBatch(cleaned)
		return meta
	}

	e.cache[cleaned] = meta
	e.hashes[cleaned] = hash
	e.rebuildLinksLocked(cleaned, meta)

	evs := []Event{
		CacheUpdateEvent{File: file, Meta: meta, OldMeta: old},
		ChangedEvent{File: file, Meta: meta, OldHash: oldHash},
	}
	oldCount := 0
	if old != nil {
		oldCount = len(old.Links)
	}
	if len(meta.Links) != oldCount {
		evs = append(evs, LinksChangedEvent{File: file})
	}
	if len(meta.Links) > 0 {
		evs = append(evs, ResolveEvent{File: file})
	}
	e.mu.Unlock()

	e.noteBatch(cleaned)
	e.dispatch(evs)
	return meta
}

// rebuildLinksLocked replaces the resolved/unresolved rows for path. Each
// link occurrence lands in exactly one of the two maps; empty rows are
// removed rather than kept as empty maps.
func (e *Engine) rebuildLinksLocked(path string, meta *CachedMetadata) {
	res := make(map[string]int)
	unres := make(map[string]int)
	for _, l := range meta.Links {
		if f := e.resolveLocked(l.Link, path); f != nil {
			res[f.Path]++
		} else {
			unres[l.Link]++
		}
	}
	if len(res) > 0 {
		e.resolved[path] = res
	} else {
		delete(e.resolved, path)
	}
	if len(unres) > 0 {
		e.unresolved[path] = unres
	} else {
		delete(e.unresolved, path)
	}
}

// HandleCreate registers a new file and, for markdown, indexes it and
// re-checks links that failed to resolve before it existed.
func (e *Engine) HandleCreate(path string) {
	stat, err := e.store.Stat(path)
	if err != nil || stat == nil {
		return
	}
	e.mu.Lock()
	e.files[path] = NewFileRef(path, *stat)
	e.mu.Unlock()

	if strings.HasSuffix(path, ".md") {
		e.IndexFile(path)
	}
	// A new file may satisfy previously unresolved links.
	e.recheckUnresolved()
}

func (e *Engine) handleModify(path string) {
	if strings.HasSuffix(path, ".md") {
		e.IndexFile(path)
		return
	}
	if stat, err := e.store.Stat(path); err == nil && stat != nil {
		e.mu.Lock()
		e.files[path] = NewFileRef(path, *stat)
		e.mu.Unlock()
	}
}

// HandleDelete drops path from the index and re-indexes every file whose
// resolved links referenced it, turning those links unresolved.
func (e *Engine) HandleDelete(path string) {
	e.mu.Lock()
	old := e.cache[path]
	_, known := e.files[path]
	delete(e.files, path)
	delete(e.cache, path)
	delete(e.hashes, path)
	delete(e.resolved, path)
	delete(e.unresolved, path)
	referrers := e.referrersLocked(path)
	e.mu.Unlock()

	if !known {
		return
	}
	e.dispatch([]Event{DeletedEvent{Path: path, OldMeta: old}})
	for _, src := range referrers {
		e.IndexFile(src)
	}
}

// HandleRename moves a file: the old path is dropped, the new one indexed,
// referrers of the old path re-indexed, and unresolved links re-checked in
// case any now match the new file.
func (e *Engine) HandleRename(oldPath, newPath string) {
	e.HandleDelete(oldPath)
	e.HandleCreate(newPath)
}

// referrersLocked returns the sources whose resolved links point at target.
func (e *Engine) referrersLocked(target string) []string {
	var out []string
	for src, targets := range e.resolved {
		if targets[target] > 0 {
			out = append(out, src)
		}
	}
	return out
}

// recheckUnresolved re-indexes every file holding an unresolved link that
// now resolves.
func (e *Engine) recheckUnresolved() {
	e.mu.Lock()
	var stale []string
	for src, raws := range e.unresolved {
		for raw := range raws {
			if e.resolveLocked(raw, src) != nil {
				stale = append(stale, src)
				break
			}
		}
	}
	e.mu.Unlock()
	for _, src := range stale {
		e.IndexFile(src)
	}
}

// FileCache returns the cached metadata for path, or nil. The record is
// shared: callers must not mutate it.
func (e *Engine) FileCache(path string) *CachedMetadata {
	if cleaned, err := vault.CleanPath(path); err == nil {
		path = cleaned
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache[path]
}

// FileRefFor returns the registered FileRef for path, or nil.
func (e *Engine) FileRefFor(path string) *FileRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.files[path]
}

// AllFiles returns every registered file sorted by path.
func (e *Engine) AllFiles() []*FileRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*FileRef, 0, len(e.files))
	for _, p := range e.sortedPathsLocked() {
		out = append(out, e.files[p])
	}
	return out
}

// MarkdownPaths returns every registered markdown path sorted.
func (e *Engine) MarkdownPaths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, p := range e.sortedPathsLocked() {
		if strings.HasSuffix(p, ".md") {
			out = append(out, p)
		}
	}
	return out
}

// ResolvedLinks returns a deep copy of the resolved link graph:
// source path to target path to occurrence count.
func (e *Engine) ResolvedLinks() map[string]map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyGraph(e.resolved)
}

// UnresolvedLinks returns a deep copy of the unresolved link map:
// source path to raw link text to occurrence count.
func (e *Engine) UnresolvedLinks() map[string]map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyGraph(e.unresolved)
}

func copyGraph(g map[string]map[string]int) map[string]map[string]int {
	out := make(map[string]map[string]int, len(g))
	for k, row := range g {
		cp := make(map[string]int, len(row))
		for t, n := range row {
			cp[t] = n
		}
		out[k] = cp
	}
	return out
}

// Clear discards every cached record and the link graph.
func (e *Engine) Clear() {
	e.mu.Lock()
	var evs []Event
	for _, f := range e.files {
		evs = append(evs, CacheClearEvent{File: f})
	}
	e.files = make(map[string]*FileRef)
	e.cache = make(map[string]*CachedMetadata)
	e.hashes = make(map[string]string)
	e.resolved = make(map[string]map[string]int)
	e.unresolved = make(map[string]map[string]int)
	e.mu.Unlock()
	e.dispatch(evs)
}

// noteBatch records an indexing operation and resets the debounce window.
func (e *Engine) noteBatch(path string) {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	if len(e.batchFiles) == 0 {
		e.batchStart = time.Now()
	}
	e.batchFiles = append(e.batchFiles, path)
	if e.batchTimer == nil {
		e.batchTimer = time.AfterFunc(e.batchWindow, func() { e.flush(false) })
	} else {
		e.batchTimer.Reset(e.batchWindow)
	}
}

// FlushBatch emits the pending batch summary immediately, plus the
// resolution-settled signal.
func (e *Engine) FlushBatch() {
	e.batchMu.Lock()
	if e.batchTimer != nil {
		e.batchTimer.Stop()
	}
	e.batchMu.Unlock()
	e.flush(true)
}

func (e *Engine) flush(force bool) {
	e.batchMu.Lock()
	files := e.batchFiles
	e.batchFiles = nil
	start := e.batchStart
	e.batchMu.Unlock()

	if len(files) == 0 && !force {
		return
	}

	var evs []Event
	if len(files) > 0 {
		dur := time.Since(start)
		evs = append(evs, BatchCompleteEvent{
			FilesProcessed: len(files),
			Duration:       dur,
			AverageTime:    dur / time.Duration(len(files)),
			Files:          files,
		})
	}
	evs = append(evs, ResolvedEvent{})
	e.dispatch(evs)
}

// dispatch fires events outside the engine lock so handlers may call back in.
func (e *Engine) dispatch(evs []Event) {
	for _, ev := range evs {
		e.events.emit(ev)
	}
}
