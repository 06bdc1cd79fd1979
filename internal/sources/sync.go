package sources

import (
	"context"
	"fmt"
	"strings"

	"bloghub/internal/config"
	"bloghub/internal/logx"
	"bloghub/internal/model"
	"bloghub/internal/store"
)

// SyncResult 统计 Sync 写入的数量。
type SyncResult struct {
	Categories int
	Sources    int
	Enriched   int
}

// Sync 先写入分类，再按订阅地址写入来源：
// - 已从配置移除的来源保留在存储中
// - enricher 可为 nil，补全失败只记录日志
func Sync(ctx context.Context, repo store.Repository, cfg *config.Config, enricher *Enricher) (SyncResult, error) {
	var res SyncResult
	slugIDs := make(map[string]int64, len(cfg.Categories))
	for _, c := range cfg.Categories {
		name := c.Name
		if name == "" {
			name = c.Slug
		}
		saved, err := repo.UpsertCategory(ctx, model.Category{Name: name, Slug: c.Slug, Color: c.Color, Icon: c.Icon})
		if err != nil {
			return res, fmt.Errorf("sync category %s: %w", c.Slug, err)
		}
		slugIDs[c.Slug] = saved.ID
		res.Categories++
	}

	for _, s := range cfg.Sources {
		src := fromConfig(s)
		if s.Category != "" {
			id, ok := slugIDs[s.Category]
			if !ok {
				return res, fmt.Errorf("source %q: unknown category %q", s.Name, s.Category)
			}
			src.CategoryID = &id
		}
		saved, err := repo.UpsertSource(ctx, src)
		if err != nil {
			return res, fmt.Errorf("sync source %s: %w", s.FeedURL, err)
		}
		res.Sources++
		if enricher == nil || (saved.Description != "" && saved.LogoURL != "") {
			continue
		}
		enriched, err := enricher.Enrich(ctx, saved)
		if err != nil {
			logx.Warnf("[%s] 读取主页元数据失败：%v", saved.Name, err)
			continue
		}
		if enriched.Description == saved.Description && enriched.LogoURL == saved.LogoURL {
			continue
		}
		if _, err := repo.UpsertSource(ctx, enriched); err != nil {
			return res, fmt.Errorf("save enriched source %s: %w", s.FeedURL, err)
		}
		res.Enriched++
	}
	logx.Infof("已同步分类=%d 来源=%d 补全=%d", res.Categories, res.Sources, res.Enriched)
	return res, nil
}

func fromConfig(s config.Source) model.BlogSource {
	return model.BlogSource{
		Name:        strings.TrimSpace(s.Name),
		Description: strings.TrimSpace(s.Description),
		FeedURL:     strings.TrimSpace(s.FeedURL),
		HomepageURL: strings.TrimSpace(s.HomepageURL),
		LogoURL:     strings.TrimSpace(s.LogoURL),
		Active:      s.IsActive(),
		Author:      s.Author,
		Language:    s.Language,
		Tags:        normalizeTags(s.Tags),
	}
}

// normalizeTags 去除每个标签的空白并丢弃空标签。
func normalizeTags(raw string) string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, ",")
}
