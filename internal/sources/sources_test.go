package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"bloghub/internal/config"
	"bloghub/internal/fetch"
	"bloghub/internal/model"
	"bloghub/internal/store"
)

const homepage = `<html><head>
<meta name="description" content="  Notes on Go  ">
<link rel="shortcut icon" href="/favicon.ico">
<meta property="og:image" content="https://cdn.example/og.png">
</head><body><h1 class="title">Blog</h1></body></html>`

func TestGetVal(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(homepage))
	require.NoError(t, err)
	s := doc.Selection

	require.Equal(t, "Notes on Go", getVal(s, DescriptionExpr))
	require.Equal(t, "/favicon.ico", getVal(s, LogoExpr))
	require.Equal(t, "https://cdn.example/og.png", getVal(s, `link[rel=apple]@href||meta[property="og:image"]@content`))
	require.Equal(t, "Blog", getVal(s, ".title"))
	require.Equal(t, "", getVal(s, ".missing||.also-missing@href"))
}

func TestAbs(t *testing.T) {
	require.Equal(t, "https://a.example/favicon.ico", abs("https://a.example/blog/", "/favicon.ico"))
	require.Equal(t, "https://a.example/blog/i.png", abs("https://a.example/blog/", "i.png"))
	require.Equal(t, "https://cdn.example/x.png", abs("https://a.example/", "https://cdn.example/x.png"))
	require.Equal(t, "", abs("https://a.example/", " "))
}

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/broken" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(homepage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newEnricher(t *testing.T) *Enricher {
	cl, err := fetch.New(fetch.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	return NewEnricher(cl)
}

func TestEnrich(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	e := newEnricher(t)
	ctx := context.Background()

	got, err := e.Enrich(ctx, model.BlogSource{HomepageURL: srv.URL + "/"})
	require.NoError(t, err)
	require.Equal(t, "Notes on Go", got.Description)
	require.Equal(t, srv.URL+"/favicon.ico", got.LogoURL)

	got, err = e.Enrich(ctx, model.BlogSource{HomepageURL: srv.URL + "/", Description: "mine"})
	require.NoError(t, err)
	require.Equal(t, "mine", got.Description)

	full := model.BlogSource{HomepageURL: srv.URL + "/", Description: "d", LogoURL: "l"}
	before := hits.Load()
	got, err = e.Enrich(ctx, full)
	require.NoError(t, err)
	require.Equal(t, full, got)
	require.Equal(t, before, hits.Load())

	_, err = e.Enrich(ctx, model.BlogSource{HomepageURL: srv.URL + "/broken"})
	require.Error(t, err)
}

func TestSync(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	ctx := context.Background()
	repo := store.NewMemory()
	off := false
	cfg := &config.Config{
		Categories: []config.Category{{Name: "Tech", Slug: "tech"}},
		Sources: []config.Source{
			{Name: "A", FeedURL: "https://a.example/feed", HomepageURL: srv.URL + "/", Category: "tech", Tags: " go, ,web "},
			{Name: "B", FeedURL: "https://b.example/feed", Active: &off},
			{Name: "C", FeedURL: "https://c.example/feed", HomepageURL: srv.URL + "/broken"},
		},
	}

	res, err := Sync(ctx, repo, cfg, newEnricher(t))
	require.NoError(t, err)
	require.Equal(t, SyncResult{Categories: 1, Sources: 3, Enriched: 1}, res)

	all, err := repo.ListSources(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	a := all[0]
	require.Equal(t, "A", a.Name)
	require.Equal(t, "go,web", a.Tags)
	require.NotNil(t, a.CategoryID)
	require.Equal(t, "Notes on Go", a.Description)
	require.Equal(t, srv.URL+"/favicon.ico", a.LogoURL)
	require.False(t, all[1].Active)

	// a second sync keeps ids and does not refetch enriched homepages
	before := hits.Load()
	cfg.Sources = cfg.Sources[:1]
	_, err = Sync(ctx, repo, cfg, newEnricher(t))
	require.NoError(t, err)
	require.Equal(t, before, hits.Load())
	again, err := repo.ListSources(ctx, false)
	require.NoError(t, err)
	require.Len(t, again, 3)
	require.Equal(t, a.ID, again[0].ID)
}

func TestSync_UnknownCategory(t *testing.T) {
	cfg := &config.Config{Sources: []config.Source{{Name: "A", FeedURL: "https://a.example/feed", Category: "nope"}}}
	_, err := Sync(context.Background(), store.NewMemory(), cfg, nil)
	require.Error(t, err)
}

func TestEnrich_CustomRules(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	e := newEnricher(t).WithRules(".title", `meta[property="og:image"]@content`)

	got, err := e.Enrich(context.Background(), model.BlogSource{HomepageURL: srv.URL + "/"})
	require.NoError(t, err)
	require.Equal(t, "Blog", got.Description)
	require.Equal(t, "https://cdn.example/og.png", got.LogoURL)
}
