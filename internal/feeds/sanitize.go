package feeds

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"unicode/utf8"
)

// sanitize 修复导致 XML 解析失败的字符级问题：非法 UTF-8 替换为 U+FFFD，
// XML 1.0 不允许的控制字符直接丢弃。
func sanitize(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		switch {
		case r == utf8.RuneError && size == 1:
			out = append(out, "�"...)
		case !xmlChar(r):
		default:
			out = append(out, b[:size]...)
		}
		b = b[size:]
	}
	return out
}

// xmlChar 判断 r 是否属于 XML 1.0 的 Char 产生式。
func xmlChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}

var entryEnds = [][]byte{[]byte("</item>"), []byte("</entry>")}

// salvage 将中途断开的文档截到最后一个完整条目之后，并按打开顺序补齐闭合标签。
// 找不到完整条目或前缀无法分词时返回 false。
func salvage(b []byte) ([]byte, bool) {
	end := -1
	for _, tag := range entryEnds {
		if i := bytes.LastIndex(b, tag); i >= 0 && i+len(tag) > end {
			end = i + len(tag)
		}
	}
	if end < 0 {
		return nil, false
	}
	head := b[:end]
	open, ok := openElements(head)
	if !ok {
		return nil, false
	}
	out := make([]byte, 0, len(head)+64)
	out = append(out, head...)
	for i := len(open) - 1; i >= 0; i-- {
		out = append(out, "</"...)
		out = append(out, open[i]...)
		out = append(out, '>')
	}
	return out, true
}

// openElements 返回 b 末尾仍未闭合的元素（带前缀的原始名称），由外到内。
func openElements(b []byte) ([]string, bool) {
	d := lenientDecoder(b)
	var stack []string
	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			return stack, true
		}
		if err != nil {
			return nil, false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, rawName(t.Name))
		case xml.EndElement:
			n := rawName(t.Name)
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == n {
					stack = stack[:i]
					break
				}
			}
		}
	}
}

// nonPermalinkGUIDs 返回 guid 标注 isPermaLink="false" 的 RSS item 下标。
// gofeed 只识别 isPermalink 这一拼写，因此直接扫描原文。
func nonPermalinkGUIDs(b []byte) map[int]bool {
	d := lenientDecoder(b)
	out := map[int]bool{}
	item := -1
	for {
		tok, err := d.RawToken()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "item":
			item++
		case "guid":
			for _, a := range se.Attr {
				if strings.EqualFold(a.Name.Local, "isPermaLink") && strings.EqualFold(strings.TrimSpace(a.Value), "false") {
					out[item] = true
				}
			}
		}
	}
}

// lenientDecoder 只用于读取标签结构：非严格模式，编码声明按原字节透传。
func lenientDecoder(b []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(b))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	return d
}

func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
