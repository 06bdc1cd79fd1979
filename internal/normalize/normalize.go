// 包 normalize 将单个原始条目转换为文章字段（标题/摘要/缩略图/发布时间）。
//
// 所有函数均无副作用，日期解析失败以 DateError 返回给调用方。
package normalize

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"bloghub/internal/feeds"
)

const (
	MaxTitleRunes   = 500
	MaxExcerptRunes = 500
	Ellipsis        = "..."
	NoTitle         = "No Title"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Fields 为条目归一化后的字段。
type Fields struct {
	Title        string
	Excerpt      string
	ThumbnailURL string
	Published    time.Time
	// DateFallback 为 true 表示没有可解析的日期，Published 为入库时间。
	DateFallback bool
	DateErrors   []DateError
}

// DateError 记录存在但无法解析的日期字段。
type DateError struct {
	Field string
	Value string
	Err   error
}

func (e DateError) Error() string {
	return fmt.Sprintf("%s date %q: %v", e.Field, e.Value, e.Err)
}

func (e DateError) Unwrap() error { return e.Err }

// Entry 归一化 e 的全部字段。无时区的时间按 loc 解释（nil 为 time.Local），now 为兜底发布时间。
func Entry(e feeds.Entry, loc *time.Location, now time.Time) Fields {
	pub, fallback, errs := Published(e, loc, now)
	return Fields{
		Title:        Title(e),
		Excerpt:      Excerpt(e),
		ThumbnailURL: Thumbnail(e),
		Published:    pub,
		DateFallback: fallback,
		DateErrors:   errs,
	}
}

// Title 解码 HTML 实体并去除首尾空白，空标题返回 NoTitle，最多保留 MaxTitleRunes 个字符。
func Title(e feeds.Entry) string {
	t := strings.TrimSpace(html.UnescapeString(e.Title))
	if t == "" {
		t = NoTitle
	}
	return truncateRunes(t, MaxTitleRunes)
}

// Excerpt 优先使用 summary，其次 description，去除标签并合并空白。
// 超长时截断，正文加 Ellipsis 不超过 MaxExcerptRunes。
func Excerpt(e feeds.Entry) string {
	raw := e.Summary
	if strings.TrimSpace(raw) == "" {
		raw = e.Description
	}
	return CleanText(raw, MaxExcerptRunes)
}

// CleanText 去除标签、解码实体、合并空白，再截断到 max 个字符（含省略号）。
func CleanText(s string, max int) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(Ellipsis)
	if keep < 0 {
		keep = 0
	}
	return strings.TrimRight(truncateRunes(s, keep), " ") + Ellipsis
}

// Thumbnail 依次取第一个媒体缩略图、第一个图片 enclosure、第一个图片链接。
func Thumbnail(e feeds.Entry) string {
	if len(e.MediaThumbnails) > 0 {
		if u := strings.TrimSpace(e.MediaThumbnails[0]); u != "" {
			return u
		}
	}
	if u := firstImage(e.Enclosures); u != "" {
		return u
	}
	return firstImage(e.Links)
}

func firstImage(links []feeds.Link) string {
	for _, l := range links {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(l.Type)), "image/") {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}

// Published 依次尝试 published/updated/created：
// - 空字段直接跳过，无法解析的字段记入 errs
// - 全部失败时返回 now 且 fallback=true
func Published(e feeds.Entry, loc *time.Location, now time.Time) (t time.Time, fallback bool, errs []DateError) {
	if loc == nil {
		loc = time.Local
	}
	candidates := []struct{ field, value string }{
		{"published", e.Published},
		{"updated", e.Updated},
		{"created", e.Created},
	}
	for _, c := range candidates {
		v := strings.TrimSpace(c.value)
		if v == "" {
			continue
		}
		parsed, err := dateparse.ParseIn(v, loc)
		if err != nil {
			errs = append(errs, DateError{Field: c.field, Value: v, Err: err})
			continue
		}
		return parsed, false, errs
	}
	return now, true, errs
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
