package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/vault"
)

// testEnv sets up an in-memory vault, engine stack, and router.
// authToken="" means auth disabled; a non-empty token enables Bearer auth.
func testEnv(t *testing.T, authToken string) (http.Handler, *vault.Mem) {
	t.Helper()
	idx, store := testutil.TestEngine(t, nil)
	g := graph.New(idx)
	svc := noteservice.NewService(store, idx, g)
	searcher := search.NewLinear(store, idx)
	router := NewRouter(svc, g, searcher, store, authToken != "", authToken, nil)
	return router, store
}

func createNote(t *testing.T, router http.Handler, path, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"path": path, "content": content})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetNote(t *testing.T) {
	router, _ := testEnv(t, "")

	if w := createNote(t, router, "hello.md", "# Hello\nWorld"); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/notes/hello.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Path != "hello.md" {
		t.Errorf("path = %q", note.Path)
	}
	if note.Title != "Hello" {
		t.Errorf("title = %q, want Hello", note.Title)
	}
	if note.Checksum == "" {
		t.Error("checksum missing")
	}
}

func TestCreateDuplicate(t *testing.T) {
	router, _ := testEnv(t, "")

	if w := createNote(t, router, "dup.md", "a"); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	if w := createNote(t, router, "dup.md", "a"); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestCreateInvalidPath(t *testing.T) {
	router, _ := testEnv(t, "")
	if w := createNote(t, router, "../escape.md", "x"); w.Code != http.StatusBadRequest {
		t.Errorf("traversal create = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	router, _ := testEnv(t, "")

	w := createNote(t, router, "lock.md", "v1")
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var created NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	updateBody, _ := json.Marshal(map[string]string{"content": "v2"})
	req := httptest.NewRequest(http.MethodPut, "/notes/lock.md", bytes.NewReader(updateBody))
	req.Header.Set("If-Match", created.Checksum)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	// The checksum from the create is stale now.
	req = httptest.NewRequest(http.MethodPut, "/notes/lock.md", bytes.NewReader(updateBody))
	req.Header.Set("If-Match", created.Checksum)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestUpdateWithoutIfMatch(t *testing.T) {
	router, _ := testEnv(t, "")
	createNote(t, router, "nolock.md", "v1")

	updateBody, _ := json.Marshal(map[string]string{"content": "v2"})
	req := httptest.NewRequest(http.MethodPut, "/notes/nolock.md", bytes.NewReader(updateBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	router, _ := testEnv(t, "")
	createNote(t, router, "bye.md", "gone")

	req := httptest.NewRequest(http.MethodDelete, "/notes/bye.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes/bye.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestRenameNote(t *testing.T) {
	router, _ := testEnv(t, "")
	createNote(t, router, "old.md", "# Movable")

	body, _ := json.Marshal(map[string]string{"from": "old.md", "to": "sub/new.md"})
	req := httptest.NewRequest(http.MethodPost, "/notes/rename", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Path != "sub/new.md" {
		t.Errorf("path = %q", note.Path)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes/sub/new.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get renamed = %d", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	router, _ := testEnv(t, "")
	createNote(t, router, "a.md", "# a\n#work")
	createNote(t, router, "b.md", "# b")

	req := httptest.NewRequest(http.MethodGet, "/notes?limit=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Notes) != 2 {
		t.Errorf("total = %d, notes = %d", resp.Total, len(resp.Notes))
	}

	req = httptest.NewRequest(http.MethodGet, "/notes?tag=work", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Notes[0].Path != "a.md" {
		t.Errorf("tag filter = %+v", resp)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, _ := testEnv(t, "")
	createNote(t, router, "find.md", "uniquetoken here")
	createNote(t, router, "other.md", "nothing relevant")

	req := httptest.NewRequest(http.MethodGet, "/search?q=uniquetoken", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Path != "find.md" {
		t.Errorf("search results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	router, _ := testEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestFindEndpoints(t *testing.T) {
	router, _ := testEnv(t, "")
	createNote(t, router, "a.md", "---\nstatus: active\n---\n#work and [[b]]\n")
	createNote(t, router, "b.md", "plain")

	cases := []struct {
		url  string
		want []string
	}{
		{"/find/tag?tag=work", []string{"a.md"}},
		{"/find/property?key=status&value=active", []string{"a.md"}},
		{"/find/property?key=status", []string{"b.md"}},
		{"/find/link?target=b", []string{"a.md"}},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.url, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d", tc.url, w.Code)
			continue
		}
		var resp FindResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if len(resp.Paths) != len(tc.want) || (len(tc.want) > 0 && resp.Paths[0] != tc.want[0]) {
			t.Errorf("%s paths = %v, want %v", tc.url, resp.Paths, tc.want)
		}
	}
}

func TestGraphEndpoints(t *testing.T) {
	router, _ := testEnv(t, "")
	createNote(t, router, "a.md", "links to [[b]]")
	createNote(t, router, "b.md", "links to [[c]]")
	createNote(t, router, "c.md", "end")

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	var gresp GraphResponse
	_ = json.Unmarshal(w.Body.Bytes(), &gresp)
	if len(gresp.Nodes) != 3 || len(gresp.Edges) != 2 {
		t.Errorf("graph = %d nodes, %d edges", len(gresp.Nodes), len(gresp.Edges))
	}

	req = httptest.NewRequest(http.MethodGet, "/backlinks/b.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var bresp BacklinksResponse
	_ = json.Unmarshal(w.Body.Bytes(), &bresp)
	if len(bresp.Backlinks) != 1 || bresp.Backlinks[0].Source != "a.md" {
		t.Errorf("backlinks = %+v", bresp.Backlinks)
	}

	req = httptest.NewRequest(http.MethodGet, "/neighbors/a.md?depth=2", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var nresp NeighborsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &nresp)
	if len(nresp.Neighbors) != 2 {
		t.Errorf("neighbors = %v", nresp.Neighbors)
	}

	req = httptest.NewRequest(http.MethodGet, "/path?from=a.md&to=c.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var presp PathResponse
	_ = json.Unmarshal(w.Body.Bytes(), &presp)
	if len(presp.Path) != 3 {
		t.Errorf("path = %v", presp.Path)
	}
}

func TestTagsEndpoint(t *testing.T) {
	router, _ := testEnv(t, "")
	createNote(t, router, "a.md", "#work #home")
	createNote(t, router, "b.md", "#work")

	req := httptest.NewRequest(http.MethodGet, "/tags", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("tags = %d", w.Code)
	}
	var resp TagsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Tags) != 2 || resp.Tags[1].Tag != "work" || resp.Tags[1].Count != 2 {
		t.Errorf("tags = %+v", resp.Tags)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	body, _ := json.Marshal(map[string]string{"path": "auth.md", "content": "test"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router, _ := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// Attachment tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAndServeAttachment(t *testing.T) {
	router, store := testEnv(t, "")

	w := uploadFile(t, router, "test.png", []byte("fake-png-data"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp AttachmentUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Filename != "test.png" || resp.Size != int64(len("fake-png-data")) {
		t.Errorf("upload response = %+v", resp)
	}

	if !store.Exists("attachments/test.png") {
		t.Fatal("attachment not in store")
	}

	req := httptest.NewRequest(http.MethodGet, "/attachments/test.png", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("serve = %d", w.Code)
	}
	if w.Body.String() != "fake-png-data" {
		t.Error("served content mismatch")
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
}

func TestServeAttachment_NotFound(t *testing.T) {
	router, _ := testEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/attachments/nope.png", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing attachment = %d, want 404", w.Code)
	}
}

func TestUploadAttachment_InvalidFilename(t *testing.T) {
	router, store := testEnv(t, "")
	w := uploadFile(t, router, "../escape.txt", []byte("bad"))
	// Either rejected outright or the cleaned name lands inside attachments.
	if w.Code == http.StatusCreated && !store.Exists("attachments/escape.txt") {
		t.Error("upload accepted but file not in attachments")
	}
	if store.Exists("escape.txt") {
		t.Error("file escaped the attachments folder")
	}
}

func TestUploadAttachment_MissingFileField(t *testing.T) {
	router, _ := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestWSRouteAuthProtected(t *testing.T) {
	idx, store := testutil.TestEngine(t, nil)
	g := graph.New(idx)
	svc := noteservice.NewService(store, idx, g)
	searcher := search.NewLinear(store, idx)
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router := NewRouter(svc, g, searcher, store, true, "secret", ws)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("ws no auth = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("ws with token = %d, want 200", w.Code)
	}
}
