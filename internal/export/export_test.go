package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bloghub/internal/model"
	"bloghub/internal/store"
)

func TestToJSON_WithCap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := store.OpenSQLite(filepath.Join(dir, "t.db"))
	require.NoError(t, err)
	defer s.Close()

	src, err := s.UpsertSource(ctx, model.BlogSource{Name: "A", FeedURL: "https://a.example/feed", Active: true})
	require.NoError(t, err)
	_, err = s.UpsertSource(ctx, model.BlogSource{Name: "Off", FeedURL: "https://off.example/feed"})
	require.NoError(t, err)
	now := time.Now().UTC()
	for i := 0; i < 20; i++ {
		_, err := s.InsertPost(ctx, model.Post{
			Title:         fmt.Sprintf("t%d", i),
			Link:          fmt.Sprintf("https://a.example/%d", i),
			BlogSourceID:  src.ID,
			PublishedDate: now.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	out := filepath.Join(dir, "out.json")
	require.NoError(t, ToJSON(ctx, s, out, 15))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var e model.Export
	require.NoError(t, json.Unmarshal(b, &e))

	require.Len(t, e.Posts, 15)
	require.Equal(t, "https://a.example/19", e.Posts[0].Link)
	require.True(t, e.Posts[0].PublishedDate.After(e.Posts[14].PublishedDate))
	require.Equal(t, 20, e.Stats.TotalPosts)
	require.Equal(t, 1, e.Stats.TotalSources)
	require.Len(t, e.Sources, 1)
	require.Equal(t, 20, e.Stats.TopSources[0].PostsCount)
}

func TestSnapshot_EmptyStore(t *testing.T) {
	e, err := Snapshot(context.Background(), store.NewMemory(), 0)
	require.NoError(t, err)
	require.NotNil(t, e.Sources)
	require.NotNil(t, e.Posts)
	require.Zero(t, e.Stats.TotalPosts)
}
