package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"feedwatch/internal/fetcher"
	"feedwatch/internal/model"
)

// boardAPI serves canned JSON documents by path and records request paths.
type boardAPI struct {
	mu       sync.Mutex
	docs     map[string]any
	requests []string
}

func (a *boardAPI) set(path string, doc any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.docs[path] = doc
}

func (a *boardAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.requests = append(a.requests, r.URL.Path)
	doc, ok := a.docs[r.URL.Path]
	a.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func newBoardAPI(t *testing.T) (*boardAPI, BoardURLs, *fetcher.Fetcher) {
	t.Helper()
	api := &boardAPI{docs: make(map[string]any)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	urls := BoardURLs{API: srv.URL, Web: "https://boards.example.org", Media: "https://media.example.org"}
	return api, urls, fetcher.New(srv.Client(), "test", 0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

func TestCatalogList(t *testing.T) {
	api, urls, f := newBoardAPI(t)
	api.set("/b/catalog.json", []map[string]any{
		{"page": 1, "threads": []map[string]any{{"no": 100}, {"no": 200}}},
		{"page": 2, "threads": []map[string]any{{"no": 300}}},
	})
	api.set("/b/thread/100.json", map[string]any{"posts": []map[string]any{
		{"no": 100, "name": "Anonymous", "sub": "Big SALE today", "com": "Everything &amp; more<br>see below",
			"filename": "flyer", "ext": ".png", "tim": 1700000000123, "time": 1700000000},
		{"no": 101, "name": "Anonymous", "com": `<a href="#p100" class="quotelink">&gt;&gt;100</a><br>nice`, "time": 1700000010},
		{"no": 102, "name": "Seller", "trip": "!abc", "com": `<a href="#p100" class="quotelink">&gt;&gt;100</a> <a href="#p100" class="quotelink">&gt;&gt;100</a><br><a href="#p101" class="quotelink">&gt;&gt;101</a>`, "time": 1700000020},
	}})
	// Thread 200 was pruned between the catalog and thread requests.
	api.set("/b/thread/300.json", map[string]any{"posts": []map[string]any{
		{"no": 300, "name": "Anonymous", "com": "quiet thread", "time": 1700000030},
	}})

	c := NewCatalog(f, urls, discardLogger())
	got, err := c.List(context.Background(), "b")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []model.Item{
		{
			ID: "b/100", Kind: model.KindBoard, SourceID: "b",
			URL:   "https://boards.example.org/b/thread/100#p100",
			Title: "Big SALE today", Content: "Everything & more\nsee below", Author: "Anonymous",
			Filename: "flyer.png", FileURL: "https://media.example.org/b/1700000000123.png",
			ThreadSubject: "Big SALE today", Engagement: intPtr(2), IsRoot: true,
		},
		{
			ID: "b/101", Kind: model.KindBoard, SourceID: "b",
			URL:     "https://boards.example.org/b/thread/100#p101",
			Content: ">>100\nnice", Author: "Anonymous",
			ThreadSubject: "Big SALE today", Engagement: intPtr(1),
		},
		{
			ID: "b/102", Kind: model.KindBoard, SourceID: "b",
			URL:     "https://boards.example.org/b/thread/100#p102",
			Content: ">>100 >>100\n>>101", Author: "Seller", Tripcode: "!abc",
			ThreadSubject: "Big SALE today", Engagement: intPtr(0),
		},
		{
			ID: "b/300", Kind: model.KindBoard, SourceID: "b",
			URL:     "https://boards.example.org/b/thread/300#p300",
			Content: "quiet thread", Author: "Anonymous",
			Engagement: intPtr(0), IsRoot: true,
		},
	}
	ignoreTime := cmp.FilterPath(func(p cmp.Path) bool { return p.Last().String() == ".PublishedAt" }, cmp.Ignore())
	if diff := cmp.Diff(want, got, ignoreTime); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogListCatalogFailure(t *testing.T) {
	_, urls, f := newBoardAPI(t)

	c := NewCatalog(f, urls, discardLogger())
	_, err := c.List(context.Background(), "nope")
	var fetchErr *fetcher.Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *fetcher.Error, got %v", err)
	}
}

func TestFrontPageList(t *testing.T) {
	api, urls, f := newBoardAPI(t)
	api.set("/g/1.json", map[string]any{"threads": []map[string]any{
		{"posts": []map[string]any{
			{"no": 10, "name": "Anonymous", "sub": "desktop thread", "com": "post yours", "time": 1},
			{"no": 15, "name": "Anonymous", "com": `<a href="#p10" class="quotelink">&gt;&gt;10</a>`, "ext": ".jpg", "filename": "rice", "tim": 5, "time": 2},
		}},
		{"posts": []map[string]any{}},
	}})

	p := NewFrontPage(f, urls)
	got, err := p.List(context.Background(), "g")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if diff := cmp.Diff(2, len(got)); diff != "" {
		t.Fatalf("item count mismatch (-want +got):\n%s", diff)
	}
	for _, item := range got {
		if item.Engagement != nil {
			t.Errorf("item %s: front page must not compute engagement", item.ID)
		}
		if diff := cmp.Diff(model.KindFrontPage, item.Kind); diff != "" {
			t.Errorf("kind mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff("desktop thread", item.ThreadSubject); diff != "" {
			t.Errorf("thread subject mismatch (-want +got):\n%s", diff)
		}
	}
	if diff := cmp.Diff("https://media.example.org/g/5.jpg", got[1].FileURL); diff != "" {
		t.Errorf("file URL mismatch (-want +got):\n%s", diff)
	}
	if got[1].IsRoot {
		t.Error("reply reported as root")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if diff := cmp.Diff([]string{"/g/1.json"}, api.requests); diff != "" {
		t.Errorf("front page should need a single request (-want +got):\n%s", diff)
	}
}

func TestBoards(t *testing.T) {
	api, urls, f := newBoardAPI(t)
	api.set("/boards.json", map[string]any{"boards": []map[string]any{{"board": "a"}, {"board": "g"}}})

	got, err := NewCatalog(f, urls, discardLogger()).Boards(context.Background())
	if err != nil {
		t.Fatalf("boards: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "g"}, got); diff != "" {
		t.Errorf("boards mismatch (-want +got):\n%s", diff)
	}
}

func TestCountReferences(t *testing.T) {
	items := []model.Item{
		{ID: "b/1", Content: "op"},
		{ID: "b/2", Content: ">>1 agreed"},
		{ID: "b/3", Content: ">>1 >>2 >>2 >>999"},
		{ID: "b/4", Content: ">>4 talking to myself"},
	}
	want := map[string]int{"b/1": 2, "b/2": 1}
	if diff := cmp.Diff(want, CountReferences(items, "b")); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

type fileTransport struct{ body string }

func (f fileTransport) Do(_ *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestRSSList(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	r := NewRSS(fetcher.New(fileTransport{body: xml}, "test", 0))

	got, err := r.List(context.Background(), "https://devops.example.com/rss")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(5, len(got)); diff != "" {
		t.Fatalf("item count mismatch (-want +got):\n%s", diff)
	}

	first := got[0]
	if diff := cmp.Diff("https://devops.example.com/k8s-1-32", first.ID); diff != "" {
		t.Errorf("identity mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("The new Kubernetes release adds sidecar support.", first.Content); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"https://devops.example.com/img/k8s.png"}, first.Images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Jane Editor", first.Author); diff != "" {
		t.Errorf("author mismatch (-want +got):\n%s", diff)
	}
	if first.Engagement != nil {
		t.Error("rss items must not carry engagement")
	}

	second := got[1]
	if diff := cmp.Diff("Faster builds & screenshot docs", second.Content); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"https://devops.example.com/img/docker.jpg"}, second.Images); diff != "" {
		t.Errorf("linked images mismatch (-want +got):\n%s", diff)
	}
}

func TestRSSListYouTube(t *testing.T) {
	xml := loadFixture(t, "../../testdata/youtube.xml")
	r := NewRSS(fetcher.New(fileTransport{body: xml}, "test", 0))

	got, err := r.List(context.Background(), "https://www.youtube.com/feeds/videos.xml?channel_id=x")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(1, len(got)); diff != "" {
		t.Fatalf("item count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Part one of the series.", got[0].Content); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"https://i1.ytimg.com/vi/abc123/hqdefault.jpg"}, got[0].Images); diff != "" {
		t.Errorf("thumbnail mismatch (-want +got):\n%s", diff)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "  hello  ", want: "hello"},
		{name: "entities", in: "a &gt; b &amp; c", want: "a > b & c"},
		{name: "line breaks", in: "one<br>two<br/>three", want: "one\ntwo\nthree"},
		{name: "paragraphs", in: "<p>one</p><p>two</p>", want: "one\ntwo"},
		{name: "script dropped", in: "safe<script>alert(1)</script>", want: "safe"},
		{name: "word break", in: "https://exam<wbr>ple.com", want: "https://example.com"},
		{name: "blank lines collapsed", in: "a<br><br><br><br>b", want: "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, PlainText(tt.in)); diff != "" {
				t.Errorf("PlainText() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeBoard(t *testing.T) {
	for in, want := range map[string]string{"g": "g", "/g/": "g", " /vg/ ": "vg"} {
		if diff := cmp.Diff(want, NormalizeBoard(in)); diff != "" {
			t.Errorf("NormalizeBoard(%q) mismatch (-want +got):\n%s", in, diff)
		}
	}
}
