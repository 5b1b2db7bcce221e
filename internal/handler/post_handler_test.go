package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sitelog/internal/service"
)

func TestCreatePostDerivesSlugFromTitle(t *testing.T) {
	env := setupTestAPI(t, Options{})
	env.mustCreateCategory(t, "tech")

	payload := map[string]any{
		"category": "tech",
		"title":    "Hello World",
		"date":     "2024-03-05",
		"tags":     []string{"go", " sqlite "},
		"content":  "# Hello World\n\nFirst paragraph.",
	}

	w := serve(env.api.CreatePost, http.MethodPost, "/api/blog/posts", payload, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	post := decodeBody(t, w)["post"].(map[string]any)
	if post["slug"] != "hello-world" || post["contentPath"] != "tech/hello-world/index.md" {
		t.Fatalf("unexpected post: %+v", post)
	}
	if post["summary"] != "First paragraph." {
		t.Fatalf("expected derived summary, got %v", post["summary"])
	}
	if tags := post["tags"].([]any); len(tags) != 2 || tags[1] != "sqlite" {
		t.Fatalf("unexpected tags %v", tags)
	}

	again := serve(env.api.CreatePost, http.MethodPost, "/api/blog/posts", payload, nil)
	if again.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for existing slug, got %d", again.Code)
	}
}

func TestCreatePostValidation(t *testing.T) {
	env := setupTestAPI(t, Options{})
	env.mustCreateCategory(t, "tech")

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{name: "no title or slug", body: map[string]any{"category": "tech", "content": "plain text"}, status: http.StatusBadRequest},
		{name: "unknown category", body: map[string]any{"category": "ghost", "title": "Hi"}, status: http.StatusNotFound},
		{name: "bad date", body: map[string]any{"category": "tech", "title": "Hi", "date": "someday"}, status: http.StatusBadRequest},
		{name: "title from heading", body: map[string]any{"category": "tech", "content": "# From Heading\n\ntext"}, status: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(env.api.CreatePost, http.MethodPost, "/api/blog/posts", tt.body, nil)
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestSavePostKeepsUnsentFields(t *testing.T) {
	env := setupTestAPI(t, Options{})
	env.mustCreateCategory(t, "tech")
	env.mustSavePost(t, "tech", "hello", "Hello", "# Hello\n\nbody")

	if w := serve(env.api.SavePost, http.MethodPut, "/api/blog/posts", map[string]any{"category": "tech"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without slug, got %d", w.Code)
	}

	w := serve(env.api.SavePost, http.MethodPut, "/api/blog/posts",
		map[string]any{"category": "tech", "slug": "hello", "author": "Ada"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	post := decodeBody(t, w)["post"].(map[string]any)
	if post["title"] != "Hello" || post["author"] != "Ada" {
		t.Fatalf("expected title kept and author updated, got %+v", post)
	}
}

func TestListPostsPagination(t *testing.T) {
	env := setupTestAPI(t, Options{PageSize: 5})
	env.mustCreateCategory(t, "tech")
	for i := 0; i < 12; i++ {
		env.mustSavePost(t, "tech", fmt.Sprintf("post-%02d", i), fmt.Sprintf("Post %02d", i), "body")
	}

	w := serve(env.api.ListPosts, http.MethodGet, "/api/blog/posts?page=3", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	page := decodeBody(t, w)
	if page["total"].(float64) != 12 || page["totalPages"].(float64) != 3 || page["pageSize"].(float64) != 5 {
		t.Fatalf("unexpected page metadata: %+v", page)
	}
	if posts := page["posts"].([]any); len(posts) != 2 {
		t.Fatalf("expected 2 posts on the last page, got %d", len(posts))
	}

	for _, target := range []string{"/api/blog/posts?page=0", "/api/blog/posts?pageSize=abc"} {
		if w := serve(env.api.ListPosts, http.MethodGet, target, nil, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, w.Code)
		}
	}

	search := serve(env.api.ListPosts, http.MethodGet, "/api/blog/posts?q=post%2011", nil, nil)
	if total := decodeBody(t, search)["total"].(float64); total != 1 {
		t.Fatalf("expected one search hit, got %v", total)
	}

	unknown := serve(env.api.ListCategoryPosts, http.MethodGet, "/api/blog/categories/ghost/posts", nil, postParams("ghost", ""))
	if unknown.Code != http.StatusOK || decodeBody(t, unknown)["total"].(float64) != 0 {
		t.Fatalf("expected empty page for unknown category, got %d %s", unknown.Code, unknown.Body.String())
	}
}

func TestGetPost(t *testing.T) {
	env := setupTestAPI(t, Options{})
	env.mustCreateCategory(t, "tech")
	env.mustSavePost(t, "tech", "hello", "Hello", "---\ntitle: Hello\n---\n# Hello\n\nbody")

	w := serve(env.api.GetPost, http.MethodGet, "/api/blog/posts/tech/hello", nil, postParams("tech", "hello"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	post := decodeBody(t, w)["post"].(map[string]any)
	if post["content"] != "# Hello\n\nbody" {
		t.Fatalf("expected front matter stripped, got %q", post["content"])
	}

	missing := serve(env.api.GetPost, http.MethodGet, "/api/blog/posts/tech/ghost", nil, postParams("tech", "ghost"))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", missing.Code)
	}
}

func TestRecordViewDeduplicatesVisitor(t *testing.T) {
	env := setupTestAPI(t, Options{Deduper: service.NewViewDeduper(time.Hour, nil)})
	env.mustCreateCategory(t, "tech")
	env.mustSavePost(t, "tech", "hello", "Hello", "body")

	first := serve(env.api.RecordView, http.MethodPost, "/api/blog/posts/tech/hello/views", nil, postParams("tech", "hello"))
	if first.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", first.Code)
	}
	cookies := first.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != visitorCookieName {
		t.Fatalf("expected visitor cookie, got %+v", cookies)
	}

	second := serve(env.api.RecordView, http.MethodPost, "/api/blog/posts/tech/hello/views", nil, postParams("tech", "hello"), cookies[0])
	body := decodeBody(t, second)
	if body["counted"] != false || body["views"].(float64) != 1 {
		t.Fatalf("expected repeated view ignored, got %+v", body)
	}

	other := serve(env.api.RecordView, http.MethodPost, "/api/blog/posts/tech/hello/views", nil, postParams("tech", "hello"))
	if views := decodeBody(t, other)["views"].(float64); views != 2 {
		t.Fatalf("expected a new visitor to count, got %v", views)
	}

	missing := serve(env.api.RecordView, http.MethodPost, "/api/blog/posts/tech/ghost/views", nil, postParams("tech", "ghost"))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", missing.Code)
	}
}

func TestRecordViewMissingPostLeavesWindowUntouched(t *testing.T) {
	env := setupTestAPI(t, Options{Deduper: service.NewViewDeduper(time.Hour, nil)})
	env.mustCreateCategory(t, "tech")
	env.mustSavePost(t, "tech", "hello", "Hello", "body")

	first := serve(env.api.RecordView, http.MethodPost, "/api/blog/posts/tech/hello/views", nil, postParams("tech", "hello"))
	cookies := first.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected visitor cookie, got %+v", cookies)
	}
	visitor := cookies[0]

	tests := []struct {
		name    string
		cookies []*http.Cookie
	}{
		{name: "known visitor", cookies: []*http.Cookie{visitor}},
		{name: "new visitor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(env.api.RecordView, http.MethodPost, "/api/blog/posts/tech/late/views", nil, postParams("tech", "late"), tt.cookies...)
			if w.Code != http.StatusNotFound {
				t.Fatalf("expected status 404, got %d", w.Code)
			}
			if got := w.Result().Cookies(); len(got) != 0 {
				t.Fatalf("expected no visitor cookie for a missing post, got %+v", got)
			}
		})
	}

	env.mustSavePost(t, "tech", "late", "Late", "body")
	w := serve(env.api.RecordView, http.MethodPost, "/api/blog/posts/tech/late/views", nil, postParams("tech", "late"), visitor)
	body := decodeBody(t, w)
	if body["counted"] != true || body["views"].(float64) != 1 {
		t.Fatalf("expected first view after creation to count, got %+v", body)
	}
}

func TestRecordLike(t *testing.T) {
	env := setupTestAPI(t, Options{})
	env.mustCreateCategory(t, "tech")
	env.mustSavePost(t, "tech", "hello", "Hello", "body")

	for want := 1.0; want <= 2; want++ {
		w := serve(env.api.RecordLike, http.MethodPost, "/api/blog/posts/tech/hello/likes", nil, postParams("tech", "hello"))
		if likes := decodeBody(t, w)["likes"].(float64); likes != want {
			t.Fatalf("expected %v likes, got %v", want, likes)
		}
	}
}

func TestDeletePost(t *testing.T) {
	env := setupTestAPI(t, Options{})
	env.mustCreateCategory(t, "tech")
	env.mustSavePost(t, "tech", "hello", "Hello", "body")

	if w := serve(env.api.DeletePost, http.MethodDelete, "/api/blog/posts?category=tech", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without slug, got %d", w.Code)
	}

	w := serve(env.api.DeletePost, http.MethodDelete, "/api/blog/posts?category=tech&slug=hello", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(env.store.Root(), "tech", "hello")); !os.IsNotExist(err) {
		t.Fatalf("expected post directory removed, got %v", err)
	}
}

func TestServeAsset(t *testing.T) {
	env := setupTestAPI(t, Options{})
	env.mustCreateCategory(t, "tech")
	env.mustSavePost(t, "tech", "hello", "Hello", "![cover](./cover.png)")

	png := []byte("\x89PNG\r\n\x1a\nfake")
	if err := os.WriteFile(filepath.Join(env.store.Root(), "tech", "hello", "cover.png"), png, 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	params := append(postParams("tech", "hello"), gin.Param{Key: "filename", Value: "cover.png"})
	w := serve(env.api.ServeAsset, http.MethodGet, "/blog/assets/tech/hello/cover.png", nil, params)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}

	meta := append(postParams("tech", "hello"), gin.Param{Key: "filename", Value: "_index.json"})
	if w := serve(env.api.ServeAsset, http.MethodGet, "/blog/assets/tech/hello/_index.json", nil, meta); w.Code != http.StatusNotFound {
		t.Fatalf("expected metadata file hidden, got %d", w.Code)
	}
}
