// 包 feeds 负责单个订阅的下载与宽松解析，产出未归一化的 Entry：
// - 使用 gofeed 解析 RSS/Atom/JSON Feed
// - XML 损坏时先做字符级修复，仍失败则保留已完整的条目（Feed.Malformed）
// - 保留带类型的链接与媒体缩略图，供缩略图解析使用
package feeds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"

	"bloghub/internal/fetch"
)

// maxFeedBytes 为单个响应体读取上限。
const maxFeedBytes = 10 << 20

// Link 为条目携带的带类型引用（enclosure 或 link 元素）。
type Link struct {
	Href string
	Type string
	Rel  string
}

// Entry 为归一化之前的单个条目，所有字段均可为空。
type Entry struct {
	Title           string
	Summary         string
	Description     string
	Link            string
	Published       string
	Updated         string
	Created         string
	MediaThumbnails []string
	Enclosures      []Link
	Links           []Link
}

// Feed 为单个订阅的解析结果。
type Feed struct {
	Title   string
	Entries []Entry
	// Malformed 表示原文需修复或截断后才能解析，Warning 记录原因。
	Malformed bool
	Warning   string
}

// Parser 通过共享 HTTP 客户端下载并解析订阅。
type Parser struct {
	client   *fetch.Client
	maxBytes int64
}

func NewParser(cl *fetch.Client) *Parser { return &Parser{client: cl, maxBytes: maxFeedBytes} }

// Fetch 下载 feedURL 并解析。网络错误与无法解析的文档以 error 返回；
// 超过读取上限的响应体会被截断并标记为 Malformed。
func (p *Parser) Fetch(ctx context.Context, feedURL string) (*Feed, error) {
	resp, err := p.client.Get(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("GET feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", feedURL, err)
	}
	truncated := int64(len(b)) > p.maxBytes
	if truncated {
		b = b[:p.maxBytes]
	}
	f, err := Parse(b)
	if err != nil {
		if truncated {
			err = fmt.Errorf("%w (body cut at %d bytes)", err, p.maxBytes)
		}
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	if truncated {
		markMalformed(f, fmt.Sprintf("body exceeds %d bytes and was truncated", p.maxBytes))
	}
	return f, nil
}

// Parse 宽松解析订阅文档，依次尝试：
// - 原文
// - 字符级修复后的文本（非法 UTF-8、XML 不允许的控制字符）
// - 截断到最后一个完整 </item> 或 </entry> 并补齐闭合标签
// 后两种成功时 Feed.Malformed 为 true。
func Parse(b []byte) (*Feed, error) {
	gf, err := parseBytes(b)
	if err == nil {
		return fromGofeed(gf, b), nil
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return nil, err
	}
	fixed := sanitize(b)
	if gf, err2 := parseBytes(fixed); err2 == nil {
		f := fromGofeed(gf, fixed)
		markMalformed(f, err.Error())
		return f, nil
	}
	if cut, ok := salvage(fixed); ok {
		if gf, err3 := parseBytes(cut); err3 == nil {
			f := fromGofeed(gf, cut)
			markMalformed(f, fmt.Sprintf("%v; kept %d complete entries", err, len(f.Entries)))
			return f, nil
		}
	}
	return nil, err
}

func markMalformed(f *Feed, warning string) {
	f.Malformed = true
	if f.Warning == "" {
		f.Warning = warning
		return
	}
	f.Warning += "; " + warning
}

func parseBytes(b []byte) (*gofeed.Feed, error) {
	p := gofeed.NewParser()
	p.AtomTranslator = &atomTranslator{}
	return p.Parse(bytes.NewReader(b))
}

// 通过 gofeed.Item.Custom 传递 Atom 带类型链接所用的键前缀。
const (
	customLinkHref = "bloghub_link_href_"
	customLinkType = "bloghub_link_type_"
	customLinkRel  = "bloghub_link_rel_"
)

// atomTranslator 保留每个 Atom entry 的带类型链接；默认翻译器只留 href。
type atomTranslator struct {
	gofeed.DefaultAtomTranslator
}

func (t *atomTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	f, err := t.DefaultAtomTranslator.Translate(feed)
	if err != nil {
		return nil, err
	}
	af, ok := feed.(*atom.Feed)
	if !ok || len(af.Entries) != len(f.Items) {
		return f, nil
	}
	for i, e := range af.Entries {
		it := f.Items[i]
		if it.Custom == nil {
			it.Custom = map[string]string{}
		}
		for j, l := range e.Links {
			if l == nil {
				continue
			}
			it.Custom[fmt.Sprintf("%s%03d", customLinkHref, j)] = l.Href
			it.Custom[fmt.Sprintf("%s%03d", customLinkType, j)] = l.Type
			it.Custom[fmt.Sprintf("%s%03d", customLinkRel, j)] = l.Rel
		}
	}
	return f, nil
}

// fromGofeed 转换解析结果；raw 为成功解析的原文，用于读取 gofeed 丢弃的 guid 属性。
func fromGofeed(gf *gofeed.Feed, raw []byte) *Feed {
	f := &Feed{Title: strings.TrimSpace(gf.Title), Entries: make([]Entry, 0, len(gf.Items))}
	var notPermalink map[int]bool
	for i, it := range gf.Items {
		if it == nil {
			continue
		}
		e := entryFromItem(it)
		// RSS 的 guid 默认即永久链接，条目无 <link> 时用它作为链接
		if e.Link == "" && gf.FeedType == "rss" && isHTTPURL(it.GUID) {
			if notPermalink == nil {
				notPermalink = nonPermalinkGUIDs(raw)
			}
			if !notPermalink[i] {
				e.Link = strings.TrimSpace(it.GUID)
			}
		}
		f.Entries = append(f.Entries, e)
	}
	return f
}

func entryFromItem(it *gofeed.Item) Entry {
	e := Entry{
		Title:       it.Title,
		Summary:     it.Description,
		Description: it.Content,
		Link:        strings.TrimSpace(it.Link),
		Published:   strings.TrimSpace(it.Published),
		Updated:     strings.TrimSpace(it.Updated),
		Created:     createdOf(it),
	}
	if e.Link == "" && len(it.Links) > 0 {
		e.Link = strings.TrimSpace(it.Links[0])
	}
	e.MediaThumbnails = mediaThumbnails(it.Extensions)
	for _, enc := range it.Enclosures {
		if enc == nil {
			continue
		}
		e.Enclosures = append(e.Enclosures, Link{Href: enc.URL, Type: enc.Type, Rel: "enclosure"})
	}
	e.Links = typedLinks(it)
	return e
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// typedLinks 优先使用 atomTranslator 记录的带类型链接，否则回退到 gofeed 的无类型列表。
func typedLinks(it *gofeed.Item) []Link {
	var out []Link
	for j := 0; ; j++ {
		href, ok := it.Custom[fmt.Sprintf("%s%03d", customLinkHref, j)]
		if !ok {
			break
		}
		out = append(out, Link{
			Href: href,
			Type: it.Custom[fmt.Sprintf("%s%03d", customLinkType, j)],
			Rel:  it.Custom[fmt.Sprintf("%s%03d", customLinkRel, j)],
		})
	}
	if len(out) > 0 {
		return out
	}
	for _, l := range it.Links {
		out = append(out, Link{Href: l})
	}
	return out
}

// createdOf 读取 dcterms:created 或 dc:created。
func createdOf(it *gofeed.Item) string {
	if v := firstExtValue(it.Extensions, "dcterms", "created"); v != "" {
		return v
	}
	return firstExtValue(it.Extensions, "dc", "created")
}

// mediaThumbnails 收集 media:thumbnail 的 url，包括 media:group 内的。
func mediaThumbnails(exts ext.Extensions) []string {
	media, ok := exts["media"]
	if !ok {
		return nil
	}
	var out []string
	for _, th := range media["thumbnail"] {
		out = append(out, strings.TrimSpace(th.Attrs["url"]))
	}
	for _, g := range media["group"] {
		for _, th := range g.Children["thumbnail"] {
			out = append(out, strings.TrimSpace(th.Attrs["url"]))
		}
	}
	return out
}

func firstExtValue(exts ext.Extensions, prefix, name string) string {
	if exts == nil {
		return ""
	}
	ns, ok := exts[prefix]
	if !ok {
		return ""
	}
	for _, e := range ns[name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}
