package service

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	// SummaryMaxRunes 是自动摘要的最大字符数，超出时追加省略号。
	SummaryMaxRunes = 150
	summaryMaxLines = 3
	summaryEllipsis = "..."

	dateLayout = "2006-01-02"
)

var (
	markdownParser = goldmark.New()
	summaryPolicy  = bluemonday.StrictPolicy()

	markdownImageExpr = regexp.MustCompile(`!\[[^\]]*]\([^)]*\)`)
	markdownLinkExpr  = regexp.MustCompile(`\[([^\]]*)]\([^)]*\)`)
	bareURLExpr       = regexp.MustCompile(`https?://\S+`)

	slugInvalidExpr   = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	slugSeparatorExpr = regexp.MustCompile(`[\s_-]+`)

	acceptedDateLayouts = []string{
		dateLayout,
		"2006-1-2",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"2006/1/2",
	}
)

// ExtractSummary 取正文前几行非空、非标题、非图片、非代码块的内容，
// 以空格拼接，去掉 HTML 后截断到 SummaryMaxRunes。
func ExtractSummary(body string) string {
	lines := make([]string, 0, summaryMaxLines)
	inFence := false

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "![") {
			continue
		}
		lines = append(lines, line)
		if len(lines) == summaryMaxLines {
			break
		}
	}

	joined := strings.Join(lines, " ")
	cleaned := strings.TrimSpace(html.UnescapeString(summaryPolicy.Sanitize(joined)))

	runes := []rune(cleaned)
	if len(runes) <= SummaryMaxRunes {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:SummaryMaxRunes])) + summaryEllipsis
}

// DeriveTitle returns the plain text of the first Markdown heading, or "" if there is none.
func DeriveTitle(body string) string {
	source := []byte(body)
	doc := markdownParser.Parser().Parse(text.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(inlineText(heading, source))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

func inlineText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Text:
			buf.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// calculateReadingTime 按每分钟 400 字估算，链接只计文字，图片和裸链接不计。
func calculateReadingTime(content string) int {
	stripped := markdownImageExpr.ReplaceAllString(content, "")
	stripped = markdownLinkExpr.ReplaceAllString(stripped, "$1")
	stripped = bareURLExpr.ReplaceAllString(stripped, "")

	trimmed := strings.TrimSpace(stripped)
	if trimmed == "" {
		return 0
	}

	runes := []rune(trimmed)
	minutes := len(runes) / 400
	if len(runes)%400 != 0 {
		minutes++
	}
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// NormalizeDate 将常见日期写法统一为 YYYY-MM-DD。
func NormalizeDate(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	for _, layout := range acceptedDateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.Format(dateLayout), true
		}
	}
	return "", false
}

// SlugFromTitle builds a directory-safe slug, keeping letters of any script.
// 标题中没有可用字符时生成随机 slug。
func SlugFromTitle(title string) string {
	result := strings.ToLower(strings.TrimSpace(title))
	result = slugInvalidExpr.ReplaceAllString(result, "")
	result = slugSeparatorExpr.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")
	if result == "" {
		return "post-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	return result
}

func today(now func() time.Time) string {
	return now().Format(dateLayout)
}
