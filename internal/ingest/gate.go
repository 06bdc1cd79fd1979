package ingest

import (
	"context"
	"errors"
	"strings"

	"bloghub/internal/store"
)

// Gate 判断链接是否已存储，不做缓存，每次查询仓库。
// 查询与随后的写入不是原子的，唯一性由 InsertPost 的冲突处理保证。
type Gate struct {
	repo store.Repository
}

func NewGate(repo store.Repository) *Gate { return &Gate{repo: repo} }

// Exists 对空链接返回 true，空链接无法标识文章。
func (g *Gate) Exists(ctx context.Context, link string) (bool, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return true, nil
	}
	_, err := g.repo.FindPostByLink(ctx, link)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
