// 包 model 定义持久化记录（来源/文章/分类）与导出结构。
package model

import "time"

// BlogSource 表示一个被抓取的外部订阅。
type BlogSource struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	FeedURL     string     `json:"feed_url"`
	HomepageURL string     `json:"homepage_url"`
	LogoURL     string     `json:"logo_url"`
	Active      bool       `json:"is_active"`
	Author      string     `json:"author"`
	Language    string     `json:"language"`
	Tags        string     `json:"tags"` // 逗号分隔
	CategoryID  *int64     `json:"category_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastFetched *time.Time `json:"last_fetched"` // nil 表示从未抓取
}

// Post 为入库的文章条目，Link 为去重键。
type Post struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Link          string    `json:"link"`
	Excerpt       string    `json:"excerpt"`
	ThumbnailURL  string    `json:"thumbnail_url"`
	PublishedDate time.Time `json:"published_date"`
	BlogSourceID  int64     `json:"blog_source_id"`
	CategoryID    *int64    `json:"category_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Category 为文章所属分类。
type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// PostFilter 为文章列表的过滤条件，零值表示不限。
type PostFilter struct {
	SourceID int64
	Search   string // 匹配标题与摘要
	Limit    int
	Offset   int
}

// SourceCount 为来源及其文章数。
type SourceCount struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PostsCount int    `json:"posts_count"`
}

// Stats 为存储的聚合统计。
type Stats struct {
	TotalPosts   int           `json:"total_posts"`
	TotalSources int           `json:"total_sources"`
	TopSources   []SourceCount `json:"top_sources"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Export 为 JSON 快照的顶层结构。
type Export struct {
	Stats   Stats        `json:"stats"`
	Sources []BlogSource `json:"sources"`
	Posts   []Post       `json:"posts"`
}
