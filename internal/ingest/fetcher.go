package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bloghub/internal/feeds"
	"bloghub/internal/logx"
	"bloghub/internal/model"
	"bloghub/internal/normalize"
	"bloghub/internal/store"
)

// FeedFetcher 下载并解析单个订阅，由 *feeds.Parser 实现。
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (*feeds.Feed, error)
}

// SourceResult 统计单个来源各条目的处理结果。
type SourceResult struct {
	Examined   int `json:"examined"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	// Skipped 为没有链接的条目数。
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
	DateFallbacks int    `json:"date_fallbacks"`
	DateErrors    int    `json:"date_errors"`
	Malformed     bool   `json:"malformed"`
	Warning       string `json:"warning,omitempty"`
	// EntryErrors 每个失败条目对应一个 *EntryPersistError。
	EntryErrors []error `json:"-"`
}

// SourceFetcher 处理单个来源：下载→查重→归一化→写入。
type SourceFetcher struct {
	feeds FeedFetcher
	repo  store.Repository
	gate  *Gate
	loc   *time.Location
	now   func() time.Time
}

// NewSourceFetcher 创建 SourceFetcher。无时区的日期按 loc 解释（nil 为 time.Local），now 默认 time.Now。
func NewSourceFetcher(ff FeedFetcher, repo store.Repository, loc *time.Location, now func() time.Time) *SourceFetcher {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &SourceFetcher{feeds: ff, repo: repo, gate: NewGate(repo), loc: loc, now: now}
}

// Fetch 按订阅顺序最多处理 limit 个条目：
// - 整个订阅失败返回 *FeedFetchError
// - 单个条目失败记录日志并计数，继续处理后续条目
func (f *SourceFetcher) Fetch(ctx context.Context, src model.BlogSource, limit int) (SourceResult, error) {
	var res SourceResult
	if limit <= 0 {
		return res, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	feed, err := f.feeds.Fetch(ctx, src.FeedURL)
	if err != nil {
		return res, &FeedFetchError{SourceID: src.ID, URL: src.FeedURL, Err: err}
	}
	if feed.Malformed {
		res.Malformed, res.Warning = true, feed.Warning
		logx.Warnf("订阅可能存在问题：%s 原因=%s", src.FeedURL, feed.Warning)
	}
	entries := feed.Entries
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, &FeedFetchError{SourceID: src.ID, URL: src.FeedURL, Err: err}
		}
		res.Examined++
		link := strings.TrimSpace(e.Link)
		exists, err := f.gate.Exists(ctx, link)
		if err != nil {
			f.entryFailed(&res, src, link, err)
			continue
		}
		if exists {
			if link == "" {
				res.Skipped++
			} else {
				res.Duplicates++
			}
			continue
		}

		fields := normalize.Entry(e, f.loc, f.now())
		if fields.DateFallback {
			res.DateFallbacks++
		}
		for _, de := range fields.DateErrors {
			res.DateErrors++
			logx.Debugf("[%s] 日期解析失败：%s 错误=%v", src.Name, link, de)
		}
		inserted, err := f.repo.InsertPost(ctx, model.Post{
			Title:         fields.Title,
			Link:          link,
			Excerpt:       fields.Excerpt,
			ThumbnailURL:  fields.ThumbnailURL,
			PublishedDate: fields.Published,
			BlogSourceID:  src.ID,
			CategoryID:    src.CategoryID,
			CreatedAt:     f.now(),
		})
		if err != nil {
			f.entryFailed(&res, src, link, err)
			continue
		}
		if !inserted {
			// 查重与写入之间链接已被其他运行写入
			res.Duplicates++
			continue
		}
		res.Created++
	}
	logx.Infof("[%s] 处理条目=%d 新增文章=%d", src.Name, res.Examined, res.Created)
	return res, nil
}

func (f *SourceFetcher) entryFailed(res *SourceResult, src model.BlogSource, link string, err error) {
	perr := &EntryPersistError{Link: link, Err: err}
	res.Failed++
	res.EntryErrors = append(res.EntryErrors, perr)
	logx.Warnf("[%s] 写入条目失败：%v", src.Name, perr)
}
