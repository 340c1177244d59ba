package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempVault(t)
	if err := s.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("del.md", []byte("bye"))
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestRename(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("old.md", []byte("content"))
	if err := s.Rename("old.md", "sub/new.md"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if s.Exists("old.md") {
		t.Error("old path should be gone")
	}
	got, err := s.Read("sub/new.md")
	if err != nil {
		t.Fatalf("Read new path: %v", err)
	}
	if string(got) != "content" {
		t.Errorf("content = %q", got)
	}
}

func TestStatMissingReturnsNil(t *testing.T) {
	s := tempVault(t)
	stat, err := s.Stat("nope.md")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat != nil {
		t.Errorf("stat = %+v, want nil", stat)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	s := tempVault(t)
	for _, p := range []string{"../escape.md", "/abs.md", "a/../../b.md"} {
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("Write(%q) should fail", p)
		}
		if _, err := s.Read(p); err == nil {
			t.Errorf("Read(%q) should fail", p)
		}
	}
}

func TestListAllSkipsDotfiles(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("visible.md", []byte("a"))
	if err := os.MkdirAll(filepath.Join(s.Root(), ".obsidian"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), ".obsidian", "config"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), ".hidden.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	infos, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(infos) != 1 || infos[0].Path != "visible.md" {
		t.Errorf("ListAll = %+v, want only visible.md", infos)
	}
}

func TestWriteEmitsEvents(t *testing.T) {
	s := tempVault(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	if err := s.Write("ev.md", []byte("one")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ev := <-ch
	if ev.Kind != EventCreate || ev.Path != "ev.md" {
		t.Errorf("event = %+v, want create ev.md", ev)
	}

	if err := s.Write("ev.md", []byte("two")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ev = <-ch
	if ev.Kind != EventModify || ev.Path != "ev.md" {
		t.Errorf("event = %+v, want modify ev.md", ev)
	}

	if err := s.Delete("ev.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ev = <-ch
	if ev.Kind != EventDelete || ev.Path != "ev.md" {
		t.Errorf("event = %+v, want delete ev.md", ev)
	}
}

func TestCopy(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("src.md", []byte("payload"))
	if err := s.Copy("src.md", "dst.md"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, err := s.Read("dst.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("content = %q", got)
	}
	if !s.Exists("src.md") {
		t.Error("source should survive a copy")
	}
}
