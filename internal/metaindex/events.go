package metaindex

import (
	"sync"
	"time"
)

// Kind tags the closed set of engine events.
type Kind int

const (
	KindCacheUpdate Kind = iota
	KindChanged
	KindCacheClear
	KindDeleted
	KindLinksChanged
	KindResolve
	KindResolved
	KindBatchComplete
)

// Event is one engine notification. The set of implementations is closed;
// consumers switch on the concrete type for the payload.
type Event interface {
	Kind() Kind
}

// CacheUpdateEvent fires when a file's metadata record is replaced.
type CacheUpdateEvent struct {
	File    *FileRef
	Meta    *CachedMetadata
	OldMeta *CachedMetadata
}

func (CacheUpdateEvent) Kind() Kind { return KindCacheUpdate }

// ChangedEvent fires alongside CacheUpdateEvent with the previous content hash.
type ChangedEvent struct {
	File    *FileRef
	Meta    *CachedMetadata
	OldHash string
}

func (ChangedEvent) Kind() Kind { return KindChanged }

// CacheClearEvent fires per file when the engine cache is cleared wholesale.
type CacheClearEvent struct {
	File *FileRef
}

func (CacheClearEvent) Kind() Kind { return KindCacheClear }

// DeletedEvent fires when a file leaves the index.
type DeletedEvent struct {
	Path    string
	OldMeta *CachedMetadata
}

func (DeletedEvent) Kind() Kind { return KindDeleted }

// LinksChangedEvent fires only when a re-index changes the link count.
type LinksChangedEvent struct {
	File *FileRef
}

func (LinksChangedEvent) Kind() Kind { return KindLinksChanged }

// ResolveEvent fires for a re-indexed file that has at least one link.
type ResolveEvent struct {
	File *FileRef
}

func (ResolveEvent) Kind() Kind { return KindResolve }

// ResolvedEvent fires after a full initialization pass or a batch flush.
type ResolvedEvent struct{}

func (ResolvedEvent) Kind() Kind { return KindResolved }

// BatchCompleteEvent summarizes a debounced burst of indexing activity.
type BatchCompleteEvent struct {
	FilesProcessed int
	Duration       time.Duration
	AverageTime    time.Duration
	Files          []string
}

func (BatchCompleteEvent) Kind() Kind { return KindBatchComplete }

// Handle cancels a subscription. The zero value is a no-op.
type Handle struct {
	em *emitter
	id int
}

// Cancel removes the subscription. Safe to call more than once.
func (h Handle) Cancel() {
	if h.em == nil {
		return
	}
	h.em.mu.Lock()
	defer h.em.mu.Unlock()
	for _, subs := range h.em.subs {
		delete(subs, h.id)
	}
}

// emitter dispatches events to per-kind subscriber lists.
type emitter struct {
	mu   sync.Mutex
	next int
	subs map[Kind]map[int]func(Event)
}

func (e *emitter) on(k Kind, fn func(Event)) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[Kind]map[int]func(Event))
	}
	if e.subs[k] == nil {
		e.subs[k] = make(map[int]func(Event))
	}
	id := e.next
	e.next++
	e.subs[k][id] = fn
	return Handle{em: e, id: id}
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	subs := e.subs[ev.Kind()]
	fns := make([]func(Event), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
