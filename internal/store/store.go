// 包 store 负责持久化博客来源、分类与文章。
//
// Repository 有两个实现：
// - SQL：database/sql，驱动为 modernc sqlite（默认）或 lib/pq postgres
// - Memory：进程内 map，用于极简模式与测试
//
// 两者都保证文章链接唯一，删除来源时一并删除其文章。
package store

import (
	"context"
	"errors"
	"time"

	"bloghub/internal/model"
)

// ErrNotFound 为单行查询无结果时返回的错误。
var ErrNotFound = errors.New("not found")

// DefaultTopSources 为 Stats 排名的来源数。
const DefaultTopSources = 5

// Repository 为入库、来源同步与读取方（命令行列表、导出）共用的存储接口。
type Repository interface {
	// FindPostByLink 无完全匹配的链接时返回 ErrNotFound。
	FindPostByLink(ctx context.Context, link string) (model.Post, error)
	// InsertPost 写入 p；链接已存在时 inserted 为 false，不视为错误。
	InsertPost(ctx context.Context, p model.Post) (inserted bool, err error)
	UpdateLastFetched(ctx context.Context, sourceID int64, at time.Time) error
	ListActiveSources(ctx context.Context) ([]model.BlogSource, error)
	// GetActiveSource 对不存在或未启用的来源返回 ErrNotFound。
	GetActiveSource(ctx context.Context, id int64) (model.BlogSource, error)

	// UpsertSource 按订阅地址匹配；空的描述与 logo 不覆盖已有值，不修改 last_fetched。
	UpsertSource(ctx context.Context, s model.BlogSource) (model.BlogSource, error)
	UpsertCategory(ctx context.Context, c model.Category) (model.Category, error)
	ListSources(ctx context.Context, activeOnly bool) ([]model.BlogSource, error)
	// DeleteSource 删除来源及其全部文章。
	DeleteSource(ctx context.Context, id int64) error

	// ListPosts 返回启用来源的文章，按时间倒序。
	ListPosts(ctx context.Context, f model.PostFilter) ([]model.Post, error)
	Stats(ctx context.Context) (model.Stats, error)

	Close() error
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// mergeSource 按 UpsertSource 的覆盖规则合并已有记录。
func mergeSource(old, in model.BlogSource) model.BlogSource {
	out := old
	out.Name = in.Name
	out.HomepageURL = in.HomepageURL
	out.Active = in.Active
	out.Author = in.Author
	out.Language = in.Language
	out.Tags = in.Tags
	out.CategoryID = in.CategoryID
	if in.Description != "" {
		out.Description = in.Description
	}
	if in.LogoURL != "" {
		out.LogoURL = in.LogoURL
	}
	out.UpdatedAt = time.Now()
	return out
}
