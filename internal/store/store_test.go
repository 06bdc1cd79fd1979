package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bloghub/internal/model"
)

// eachRepo runs fn against a fresh sqlite file and a fresh Memory store.
func eachRepo(t *testing.T, fn func(t *testing.T, r Repository)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
}

func addSource(t *testing.T, r Repository, name, feed string, active bool) model.BlogSource {
	t.Helper()
	src, err := r.UpsertSource(context.Background(), model.BlogSource{Name: name, FeedURL: feed, Active: active})
	require.NoError(t, err)
	require.NotZero(t, src.ID)
	return src
}

func post(src model.BlogSource, link string, published time.Time) model.Post {
	return model.Post{Title: "t " + link, Link: link, BlogSourceID: src.ID, PublishedDate: published}
}

func TestInsertPost_LinkIsUnique(t *testing.T) {
	eachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		src := addSource(t, r, "A", "https://a.example/feed", true)

		ok, err := r.InsertPost(ctx, post(src, "https://a.example/1", time.Now()))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = r.InsertPost(ctx, post(src, "https://a.example/1", time.Now()))
		require.NoError(t, err)
		require.False(t, ok)

		got, err := r.FindPostByLink(ctx, "https://a.example/1")
		require.NoError(t, err)
		require.Equal(t, src.ID, got.BlogSourceID)

		_, err = r.FindPostByLink(ctx, "https://a.example/missing")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = r.InsertPost(ctx, model.Post{BlogSourceID: src.ID})
		require.Error(t, err)
	})
}

func TestActiveSources(t *testing.T) {
	eachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		on := addSource(t, r, "On", "https://on.example/feed", true)
		off := addSource(t, r, "Off", "https://off.example/feed", false)

		list, err := r.ListActiveSources(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, on.ID, list[0].ID)

		all, err := r.ListSources(ctx, false)
		require.NoError(t, err)
		require.Len(t, all, 2)

		_, err = r.GetActiveSource(ctx, off.ID)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = r.GetActiveSource(ctx, 999)
		require.ErrorIs(t, err, ErrNotFound)
		got, err := r.GetActiveSource(ctx, on.ID)
		require.NoError(t, err)
		require.Equal(t, "On", got.Name)
		require.Nil(t, got.LastFetched)
	})
}

func TestUpdateLastFetched(t *testing.T) {
	eachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		src := addSource(t, r, "A", "https://a.example/feed", true)
		at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
		require.NoError(t, r.UpdateLastFetched(ctx, src.ID, at))

		got, err := r.GetActiveSource(ctx, src.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastFetched)
		require.True(t, got.LastFetched.Equal(at))

		require.ErrorIs(t, r.UpdateLastFetched(ctx, 999, at), ErrNotFound)
	})
}

func TestUpsertSource_KeepsEnrichedFields(t *testing.T) {
	eachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		first, err := r.UpsertSource(ctx, model.BlogSource{
			Name: "A", FeedURL: "https://a.example/feed", Active: true,
			Description: "about", LogoURL: "https://a.example/logo.png",
		})
		require.NoError(t, err)
		require.NoError(t, r.UpdateLastFetched(ctx, first.ID, time.Now()))

		second, err := r.UpsertSource(ctx, model.BlogSource{Name: "A2", FeedURL: "https://a.example/feed", Active: true})
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, "A2", second.Name)
		require.Equal(t, "about", second.Description)
		require.Equal(t, "https://a.example/logo.png", second.LogoURL)

		got, err := r.GetActiveSource(ctx, first.ID)
		require.NoError(t, err)
		require.Equal(t, "A2", got.Name)
		require.NotNil(t, got.LastFetched)
	})
}

func TestDeleteSource_Cascades(t *testing.T) {
	eachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		a := addSource(t, r, "A", "https://a.example/feed", true)
		b := addSource(t, r, "B", "https://b.example/feed", true)
		for _, l := range []string{"https://a.example/1", "https://a.example/2"} {
			_, err := r.InsertPost(ctx, post(a, l, time.Now()))
			require.NoError(t, err)
		}
		_, err := r.InsertPost(ctx, post(b, "https://b.example/1", time.Now()))
		require.NoError(t, err)

		require.NoError(t, r.DeleteSource(ctx, a.ID))
		_, err = r.FindPostByLink(ctx, "https://a.example/1")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = r.FindPostByLink(ctx, "https://b.example/1")
		require.NoError(t, err)

		err = r.DeleteSource(ctx, a.ID)
		require.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestListPosts(t *testing.T) {
	eachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		a := addSource(t, r, "A", "https://a.example/feed", true)
		off := addSource(t, r, "Off", "https://off.example/feed", false)
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		p1 := post(a, "https://a.example/1", base)
		p1.Title = "Go generics"
		p2 := post(a, "https://a.example/2", base.Add(time.Hour))
		p2.Excerpt = "about GO channels"
		p3 := post(a, "https://a.example/3", base.Add(2*time.Hour))
		for _, p := range []model.Post{p1, p2, p3, post(off, "https://off.example/1", base)} {
			_, err := r.InsertPost(ctx, p)
			require.NoError(t, err)
		}

		all, err := r.ListPosts(ctx, model.PostFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, "https://a.example/3", all[0].Link)
		require.Equal(t, "https://a.example/1", all[2].Link)

		found, err := r.ListPosts(ctx, model.PostFilter{Search: "go"})
		require.NoError(t, err)
		require.Len(t, found, 2)

		page, err := r.ListPosts(ctx, model.PostFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, "https://a.example/2", page[0].Link)

		bySource, err := r.ListPosts(ctx, model.PostFilter{SourceID: off.ID})
		require.NoError(t, err)
		require.Empty(t, bySource)
	})
}

func TestStats(t *testing.T) {
	eachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		a := addSource(t, r, "A", "https://a.example/feed", true)
		b := addSource(t, r, "B", "https://b.example/feed", true)
		addSource(t, r, "C", "https://c.example/feed", false)
		for _, l := range []string{"https://b.example/1", "https://b.example/2"} {
			_, err := r.InsertPost(ctx, post(b, l, time.Now()))
			require.NoError(t, err)
		}
		_, err := r.InsertPost(ctx, post(a, "https://a.example/1", time.Now()))
		require.NoError(t, err)

		st, err := r.Stats(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, st.TotalPosts)
		require.Equal(t, 2, st.TotalSources)
		require.Len(t, st.TopSources, 2)
		require.Equal(t, "B", st.TopSources[0].Name)
		require.Equal(t, 2, st.TopSources[0].PostsCount)
		require.False(t, st.UpdatedAt.IsZero())
	})
}

func TestUpsertCategory(t *testing.T) {
	eachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		c1, err := r.UpsertCategory(ctx, model.Category{Name: "Tech", Slug: "tech"})
		require.NoError(t, err)
		c2, err := r.UpsertCategory(ctx, model.Category{Name: "Technology", Slug: "tech"})
		require.NoError(t, err)
		require.Equal(t, c1.ID, c2.ID)

		_, err = r.UpsertCategory(ctx, model.Category{Name: "x"})
		require.Error(t, err)
	})
}

func TestSQLRebind(t *testing.T) {
	pg := &SQL{dialect: DialectPostgres}
	require.Equal(t, "a = $1 AND b = $2", pg.q("a = ? AND b = ?"))
	lite := &SQL{dialect: DialectSQLite}
	require.Equal(t, "a = ?", lite.q("a = ?"))
}

func TestSQLiteDSN(t *testing.T) {
	require.Equal(t, "x.db?_pragma=foreign_keys(1)", sqliteDSN("x.db"))
	require.Equal(t, "file:x.db?mode=rwc&_pragma=foreign_keys(1)", sqliteDSN("file:x.db?mode=rwc"))
}
