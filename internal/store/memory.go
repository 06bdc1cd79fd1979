package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"bloghub/internal/model"
)

// Memory 在进程内保存全部数据，链接唯一与级联删除规则与 SQL 相同。
type Memory struct {
	mu         sync.Mutex
	nextID     int64
	sources    map[int64]model.BlogSource
	categories map[string]model.Category // 键为 slug
	posts      map[string]model.Post     // 键为 link
}

func NewMemory() *Memory {
	return &Memory{
		sources:    make(map[int64]model.BlogSource),
		categories: make(map[string]model.Category),
		posts:      make(map[string]model.Post),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) Close() error { return nil }

func (m *Memory) FindPostByLink(_ context.Context, link string) (model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[link]
	if !ok {
		return model.Post{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) InsertPost(_ context.Context, p model.Post) (bool, error) {
	if p.Link == "" {
		return false, errors.New("post.link required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[p.BlogSourceID]; !ok {
		return false, errors.New("post.blog_source_id references no source")
	}
	if _, ok := m.posts[p.Link]; ok {
		return false, nil
	}
	p.ID = m.id()
	p.CreatedAt = nowOr(p.CreatedAt)
	m.posts[p.Link] = p
	return true, nil
}

func (m *Memory) UpdateLastFetched(_ context.Context, sourceID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[sourceID]
	if !ok {
		return ErrNotFound
	}
	src.LastFetched = &at
	m.sources[sourceID] = src
	return nil
}

func (m *Memory) ListActiveSources(ctx context.Context) ([]model.BlogSource, error) {
	return m.ListSources(ctx, true)
}

func (m *Memory) GetActiveSource(_ context.Context, id int64) (model.BlogSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[id]
	if !ok || !src.Active {
		return model.BlogSource{}, ErrNotFound
	}
	return src, nil
}

func (m *Memory) ListSources(_ context.Context, activeOnly bool) ([]model.BlogSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.BlogSource, 0, len(m.sources))
	for _, src := range m.sources {
		if activeOnly && !src.Active {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpsertSource(_ context.Context, in model.BlogSource) (model.BlogSource, error) {
	if in.FeedURL == "" {
		return in, errors.New("source.feed_url required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		old   model.BlogSource
		found bool
	)
	for _, src := range m.sources {
		if src.FeedURL == in.FeedURL && (!found || src.ID < old.ID) {
			old, found = src, true
		}
	}
	if !found {
		out := in
		out.ID = m.id()
		out.CreatedAt, out.UpdatedAt, out.LastFetched = nowOr(in.CreatedAt), time.Now(), nil
		m.sources[out.ID] = out
		return out, nil
	}
	out := mergeSource(old, in)
	m.sources[out.ID] = out
	return out, nil
}

func (m *Memory) UpsertCategory(_ context.Context, c model.Category) (model.Category, error) {
	if c.Slug == "" {
		return c, errors.New("category.slug required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.categories[c.Slug]; ok {
		c.ID = old.ID
	} else {
		c.ID = m.id()
	}
	m.categories[c.Slug] = c
	return c, nil
}

func (m *Memory) DeleteSource(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return ErrNotFound
	}
	delete(m.sources, id)
	for link, p := range m.posts {
		if p.BlogSourceID == id {
			delete(m.posts, link)
		}
	}
	return nil
}

func (m *Memory) ListPosts(_ context.Context, f model.PostFilter) ([]model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.Post, 0, len(m.posts))
	for _, p := range m.posts {
		if src, ok := m.sources[p.BlogSourceID]; !ok || !src.Active {
			continue
		}
		if f.SourceID > 0 && p.BlogSourceID != f.SourceID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) &&
			!strings.Contains(strings.ToLower(p.Excerpt), q) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedDate.Equal(out[j].PublishedDate) {
			return out[i].PublishedDate.After(out[j].PublishedDate)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []model.Post{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context) (model.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := model.Stats{TotalPosts: len(m.posts), TopSources: []model.SourceCount{}}
	counts := make(map[int64]int)
	for _, p := range m.posts {
		counts[p.BlogSourceID]++
	}
	var ranked []model.SourceCount
	for _, src := range m.sources {
		if !src.Active {
			continue
		}
		st.TotalSources++
		ranked = append(ranked, model.SourceCount{ID: src.ID, Name: src.Name, PostsCount: counts[src.ID]})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].PostsCount != ranked[j].PostsCount {
			return ranked[i].PostsCount > ranked[j].PostsCount
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > DefaultTopSources {
		ranked = ranked[:DefaultTopSources]
	}
	st.TopSources = append(st.TopSources, ranked...)
	st.UpdatedAt = time.Now()
	return st, nil
}
