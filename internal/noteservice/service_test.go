package noteservice

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/vault"
)

func testService(t *testing.T, files map[string]string) (*Service, *vault.Mem) {
	t.Helper()
	idx, store := testutil.TestEngine(t, files)
	return NewService(store, idx, graph.New(idx)), store
}

func TestGetNote(t *testing.T) {
	svc, _ := testService(t, map[string]string{
		"note.md":     "---\nstatus: active\ntags: [work]\n---\n# A Note\n\nSome #extra content.\n",
		"referrer.md": "Points at [[note]].\n",
	})
	ctx := context.Background()

	detail, err := svc.GetNote(ctx, "note.md")
	if err != nil {
		t.Fatal(err)
	}
	if detail.Title != "A Note" {
		t.Errorf("title = %q", detail.Title)
	}
	if detail.Checksum == "" {
		t.Error("checksum missing")
	}
	if detail.Frontmatter["status"] != "active" {
		t.Errorf("frontmatter = %+v", detail.Frontmatter)
	}
	if len(detail.Tags) != 2 || detail.Tags[0] != "extra" || detail.Tags[1] != "work" {
		t.Errorf("tags = %v", detail.Tags)
	}
	if len(detail.Backlinks) != 1 || detail.Backlinks[0] != "referrer.md" {
		t.Errorf("backlinks = %v", detail.Backlinks)
	}
}

func TestGetNoteMissing(t *testing.T) {
	svc, _ := testService(t, map[string]string{})
	if _, err := svc.GetNote(context.Background(), "ghost.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateNote(t *testing.T) {
	svc, store := testService(t, map[string]string{
		"waiting.md": "Link to [[new-note]].\n",
	})
	ctx := context.Background()

	detail, err := svc.CreateNote(ctx, "new-note.md", []byte("# Fresh\n"))
	if err != nil {
		t.Fatal(err)
	}
	if detail.Path != "new-note.md" || detail.Title != "Fresh" {
		t.Errorf("detail = %+v", detail)
	}
	if !store.Exists("new-note.md") {
		t.Error("note not written")
	}
	// Creation resolves the previously dangling link immediately.
	if len(detail.Backlinks) != 1 || detail.Backlinks[0] != "waiting.md" {
		t.Errorf("backlinks = %v", detail.Backlinks)
	}

	if _, err := svc.CreateNote(ctx, "new-note.md", []byte("again")); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}
	if _, err := svc.CreateNote(ctx, "../escape.md", []byte("x")); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("traversal create err = %v", err)
	}
}

func TestUpdateNoteIfMatch(t *testing.T) {
	svc, _ := testService(t, map[string]string{
		"note.md": "version one\n",
	})
	ctx := context.Background()

	current := checksum.Sum([]byte("version one\n"))
	detail, err := svc.UpdateNote(ctx, "note.md", []byte("# Version Two\n"), current)
	if err != nil {
		t.Fatal(err)
	}
	if detail.Title != "Version Two" {
		t.Errorf("title after update = %q", detail.Title)
	}

	// The old checksum no longer matches.
	if _, err := svc.UpdateNote(ctx, "note.md", []byte("three"), current); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale update err = %v", err)
	}
	// An empty precondition always writes.
	if _, err := svc.UpdateNote(ctx, "note.md", []byte("three"), ""); err != nil {
		t.Errorf("unconditional update err = %v", err)
	}
	if _, err := svc.UpdateNote(ctx, "ghost.md", []byte("x"), ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing update err = %v", err)
	}
}

func TestDeleteNote(t *testing.T) {
	svc, store := testService(t, map[string]string{
		"note.md":     "# Note\n",
		"referrer.md": "[[note]]\n",
	})
	ctx := context.Background()

	if err := svc.DeleteNote(ctx, "note.md"); err != nil {
		t.Fatal(err)
	}
	if store.Exists("note.md") {
		t.Error("note still in store")
	}
	if err := svc.DeleteNote(ctx, "note.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}

	// Re-creating the note picks the dangling referrer link back up.
	detail, err := svc.CreateNote(ctx, "note.md", []byte("# Back\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Backlinks) != 1 || detail.Backlinks[0] != "referrer.md" {
		t.Errorf("backlinks = %v", detail.Backlinks)
	}
}

func TestRenameNote(t *testing.T) {
	svc, store := testService(t, map[string]string{
		"old.md":      "# Movable\n",
		"referrer.md": "[[old.md]]\n",
	})
	ctx := context.Background()

	detail, err := svc.RenameNote(ctx, "old.md", "sub/new.md")
	if err != nil {
		t.Fatal(err)
	}
	if detail.Path != "sub/new.md" || detail.Title != "Movable" {
		t.Errorf("detail = %+v", detail)
	}
	if store.Exists("old.md") || !store.Exists("sub/new.md") {
		t.Error("store paths wrong after rename")
	}

	if _, err := svc.RenameNote(ctx, "ghost.md", "x.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing rename err = %v", err)
	}
	if _, err := svc.RenameNote(ctx, "sub/new.md", "referrer.md"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("clobbering rename err = %v", err)
	}
}

func TestListNotes(t *testing.T) {
	svc, _ := testService(t, map[string]string{
		"b.md":    "#work note b\n",
		"a.md":    "note a\n",
		"c.md":    "---\ntags: [work]\n---\nnote c\n",
		"img.png": "not markdown",
		"d/e.md":  "nested note\n",
	})
	ctx := context.Background()

	items, total, err := svc.ListNotes(ctx, 0, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 || len(items) != 4 {
		t.Fatalf("total = %d, items = %d", total, len(items))
	}
	if items[0].Path != "a.md" || items[3].Path != "d/e.md" {
		t.Errorf("order = %+v", items)
	}

	items, total, err = svc.ListNotes(ctx, 2, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 || len(items) != 2 || items[0].Path != "b.md" {
		t.Errorf("page = %+v (total %d)", items, total)
	}

	items, total, err = svc.ListNotes(ctx, 0, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 || len(items) != 0 {
		t.Errorf("overshoot page = %+v (total %d)", items, total)
	}

	items, total, err = svc.ListNotes(ctx, 0, 0, "work")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || items[0].Path != "b.md" || items[1].Path != "c.md" {
		t.Errorf("tag filter = %+v (total %d)", items, total)
	}
}

func TestTags(t *testing.T) {
	svc, _ := testService(t, map[string]string{
		"a.md": "#work and #home\n",
		"b.md": "---\ntags: [work]\n---\n",
		"c.md": "#work again\n",
	})
	got := svc.Tags(context.Background())
	want := []TagCount{{Tag: "home", Count: 1}, {Tag: "work", Count: 3}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("tags = %+v, want %+v", got, want)
	}
}
