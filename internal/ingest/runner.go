// 包 ingest 负责订阅入库流程：
// - Gate 按链接精确去重
// - SourceFetcher 处理单个来源
// - Runner 以有界并发处理指定来源或全部启用来源
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"bloghub/internal/logx"
	"bloghub/internal/model"
	"bloghub/internal/store"
)

// DefaultLimit 为未配置时每个来源处理的条目上限。
const DefaultLimit = 50

// State 为来源在一次运行中的状态。
type State string

const (
	StatePending   State = "pending"
	StateFetching  State = "fetching"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Options 为 Runner 的配置。
type Options struct {
	// Workers 为并发来源数，1 表示顺序处理。
	Workers int
	// Timeout 为单个来源的抓取超时，0 表示不限。
	Timeout time.Duration
	// Limit 为每个来源默认处理的条目数。
	Limit int
	Now   func() time.Time
}

// RunOptions 为单次运行的参数。
type RunOptions struct {
	SourceID int64 // >0 时只处理该来源
	Limit    int   // >0 时覆盖 Options.Limit
}

// Outcome 为单个来源的结构化结果。
type Outcome struct {
	Source   model.BlogSource
	State    State
	Result   SourceResult
	Err      error
	Duration time.Duration
}

// Report 为一次运行的结果，Outcomes 保持来源的列出顺序。
type Report struct {
	Outcomes  []Outcome
	TotalNew  int
	Succeeded int
	Failed    int
	StartedAt time.Time
	Duration  time.Duration
}

// Runner 持有所有来源共用的仓库与抓取器。
type Runner struct {
	repo    store.Repository
	fetcher *SourceFetcher
	opts    Options
}

func New(repo store.Repository, fetcher *SourceFetcher, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{repo: repo, fetcher: fetcher, opts: opts}
}

// Run 处理指定来源或全部启用来源：
// - SourceID 不存在或未启用时，抓取前返回 ErrSourceNotFound
// - 单个来源失败只记录在报告中，不中断运行
func (r *Runner) Run(ctx context.Context, ro RunOptions) (Report, error) {
	rep := Report{StartedAt: r.opts.Now()}
	limit := ro.Limit
	if limit <= 0 {
		limit = r.opts.Limit
	}

	var sources []model.BlogSource
	if ro.SourceID > 0 {
		src, err := r.repo.GetActiveSource(ctx, ro.SourceID)
		if errors.Is(err, store.ErrNotFound) {
			return rep, fmt.Errorf("%w: id %d", ErrSourceNotFound, ro.SourceID)
		}
		if err != nil {
			return rep, fmt.Errorf("load source %d: %w", ro.SourceID, err)
		}
		logx.Infof("抓取指定来源：%s", src.Name)
		sources = []model.BlogSource{src}
	} else {
		list, err := r.repo.ListActiveSources(ctx)
		if err != nil {
			return rep, fmt.Errorf("list active sources: %w", err)
		}
		logx.Infof("抓取 %d 个启用的博客来源", len(list))
		sources = list
	}

	rep.Outcomes = make([]Outcome, len(sources))
	for i, src := range sources {
		rep.Outcomes[i] = Outcome{Source: src, State: StatePending}
	}

	sem := make(chan struct{}, r.opts.Workers)
	var wg sync.WaitGroup
	for i := range rep.Outcomes {
		out := &rep.Outcomes[i]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			out.State, out.Err = StateFailed, ctx.Err()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r.processSource(ctx, out, limit)
		}()
	}
	wg.Wait()

	for _, o := range rep.Outcomes {
		if o.State == StateSucceeded {
			rep.Succeeded++
			rep.TotalNew += o.Result.Created
		} else {
			rep.Failed++
		}
	}
	rep.Duration = r.opts.Now().Sub(rep.StartedAt)
	logx.Infof("抓取完成：新增文章=%d 成功来源=%d 失败来源=%d", rep.TotalNew, rep.Succeeded, rep.Failed)
	return rep, nil
}

// processSource 处理单个来源：fetching → succeeded/failed。
func (r *Runner) processSource(ctx context.Context, out *Outcome, limit int) {
	src := out.Source
	lg := logx.With("source", src.Name, "host", hostOf(src.FeedURL))
	out.State = StateFetching
	start := time.Now()
	lg.Debug(fmt.Sprintf("开始抓取：%s", src.FeedURL))

	fctx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	res, err := r.fetcher.Fetch(fctx, src, limit)
	out.Result, out.Duration = res, time.Since(start)
	if err != nil {
		out.State, out.Err = StateFailed, err
		if res.Created > 0 {
			lg.Error(fmt.Sprintf("处理来源失败（失败前已写入 %d 篇）：%v", res.Created, err))
		} else {
			lg.Error(fmt.Sprintf("处理来源失败：%v", err))
		}
		return
	}
	if err := r.repo.UpdateLastFetched(ctx, src.ID, r.opts.Now()); err != nil {
		lg.Warn(fmt.Sprintf("更新 last_fetched 失败：%v", err))
	}
	out.State = StateSucceeded
	lg.Info(fmt.Sprintf("新增 %d 篇文章，耗时 %s", res.Created, out.Duration.Round(time.Millisecond)))
}

// hostOf 提取链接的主机名，失败时做字符串兜底，便于日志定位。
func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if j := strings.IndexAny(s, "/?#"); j >= 0 {
		s = s[:j]
	}
	return s
}
