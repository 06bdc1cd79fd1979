// 包 export 将存储导出为 JSON 快照（统计、启用来源、最新文章）。
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"bloghub/internal/model"
)

// Reader 为生成快照所需的 store.Repository 只读部分。
type Reader interface {
	Stats(ctx context.Context) (model.Stats, error)
	ListSources(ctx context.Context, activeOnly bool) ([]model.BlogSource, error)
	ListPosts(ctx context.Context, f model.PostFilter) ([]model.Post, error)
}

// Snapshot 组装导出文档：文章按时间倒序，最多 maxPosts 篇；maxPosts <= 0 时不限。
func Snapshot(ctx context.Context, r Reader, maxPosts int) (model.Export, error) {
	var out model.Export
	stats, err := r.Stats(ctx)
	if err != nil {
		return out, fmt.Errorf("stats: %w", err)
	}
	sources, err := r.ListSources(ctx, true)
	if err != nil {
		return out, fmt.Errorf("list sources: %w", err)
	}
	posts, err := r.ListPosts(ctx, model.PostFilter{Limit: maxPosts})
	if err != nil {
		return out, fmt.Errorf("list posts: %w", err)
	}
	if sources == nil {
		sources = []model.BlogSource{}
	}
	if posts == nil {
		posts = []model.Post{}
	}
	return model.Export{Stats: stats, Sources: sources, Posts: posts}, nil
}

// Write 以缩进 JSON 编码 e。
func Write(w io.Writer, e model.Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// ToJSON 将快照写入 path。文章列表被截断时 stats.total_posts 仍统计全部文章。
func ToJSON(ctx context.Context, r Reader, path string, maxPosts int) error {
	e, err := Snapshot(ctx, r, maxPosts)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := Write(f, e); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return f.Close()
}
