// 包 sources 负责将配置中的来源与分类同步到存储，并从主页补全元数据：
// - 选择器表达式支持 "sel@attr" 与 "||" 备选
// - 相对地址基于主页解析
package sources

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bloghub/internal/fetch"
	"bloghub/internal/model"
)

const maxPageBytes = 4 << 20

// 主页元数据的默认表达式。
const (
	DescriptionExpr = `meta[name=description]@content||meta[property="og:description"]@content`
	LogoExpr        = `link[rel~=icon]@href||link[rel="apple-touch-icon"]@href||meta[property="og:image"]@content`
)

// Enricher 读取来源主页，补全空的描述或 logo。
type Enricher struct {
	client          *fetch.Client
	descriptionExpr string
	logoExpr        string
}

func NewEnricher(cl *fetch.Client) *Enricher {
	return &Enricher{client: cl, descriptionExpr: DescriptionExpr, logoExpr: LogoExpr}
}

// WithRules 替换默认表达式，空参数保留默认值。
func (e *Enricher) WithRules(description, logo string) *Enricher {
	if description = strings.TrimSpace(description); description != "" {
		e.descriptionExpr = description
	}
	if logo = strings.TrimSpace(logo); logo != "" {
		e.logoExpr = logo
	}
	return e
}

// Enrich 补全 src 中为空的 Description 与 LogoURL。
// 没有主页或两者都已填写时直接返回，不发请求。
func (e *Enricher) Enrich(ctx context.Context, src model.BlogSource) (model.BlogSource, error) {
	if src.HomepageURL == "" || (src.Description != "" && src.LogoURL != "") {
		return src, nil
	}
	resp, err := e.client.Get(ctx, src.HomepageURL)
	if err != nil {
		return src, fmt.Errorf("GET homepage %s: %w", src.HomepageURL, err)
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return src, fmt.Errorf("parse homepage html: %w", err)
	}
	head := doc.Selection
	if src.Description == "" {
		src.Description = getVal(head, e.descriptionExpr)
	}
	if src.LogoURL == "" {
		src.LogoURL = abs(src.HomepageURL, getVal(head, e.logoExpr))
	}
	return src, nil
}

// getVal 在 scope 上按顺序尝试 "||" 分隔的表达式，
// 如 "link[rel~=icon]@href||meta[property='og:image']@content"。
func getVal(scope *goquery.Selection, expr string) string {
	for _, p := range strings.Split(expr, "||") {
		if v := getValSingle(scope, strings.TrimSpace(p)); v != "" {
			return v
		}
	}
	return ""
}

// getValSingle 读取文本（"sel"，"." 为 scope 本身）或属性（"sel@attr"，"@attr" 取 scope 的属性）。
func getValSingle(scope *goquery.Selection, expr string) string {
	if expr == "" {
		return ""
	}
	if expr == "." {
		return strings.TrimSpace(scope.Text())
	}
	if at := strings.LastIndex(expr, "@"); at != -1 {
		sel := strings.TrimSpace(expr[:at])
		attr := strings.TrimSpace(expr[at+1:])
		target := scope
		if sel != "" {
			target = scope.Find(sel).First()
		}
		val, _ := target.Attr(attr)
		return strings.TrimSpace(val)
	}
	return strings.TrimSpace(scope.Find(expr).First().Text())
}

// abs 基于 base 解析 ref，无法解析时原样返回。
func abs(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return bu.ResolveReference(ru).String()
}
