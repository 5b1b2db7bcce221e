package filestore

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type frontMatter struct {
	Title    string `yaml:"title"`
	Date     string `yaml:"date"`
	Author   string `yaml:"author"`
	Summary  string `yaml:"summary"`
	Tags     any    `yaml:"tags"`
	Views    *int64 `yaml:"views"`
	Likes    *int64 `yaml:"likes"`
	ReadTime string `yaml:"readTime"`
}

// ParseFrontMatter extracts a leading YAML block delimited by "---" lines.
// It returns the metadata it found, the body with the block removed and whether a block was present.
// A body without front matter is returned unchanged.
func ParseFrontMatter(body string) (PostMetadata, string, bool, error) {
	s := strings.TrimLeft(body, " \t\r\n")
	if !strings.HasPrefix(s, "---") {
		return PostMetadata{}, body, false, nil
	}
	s = strings.TrimPrefix(s, "---")
	if strings.HasPrefix(s, "\r\n") {
		s = s[2:]
	} else if strings.HasPrefix(s, "\n") {
		s = s[1:]
	} else {
		// "----" 或 "---title" 之类不算前置元数据
		return PostMetadata{}, body, false, nil
	}

	var block, rest string
	if strings.HasPrefix(s, "---") {
		rest = s[3:]
	} else {
		idx := strings.Index(s, "\n---")
		if idx < 0 {
			return PostMetadata{}, body, false, nil
		}
		block = s[:idx]
		rest = s[idx+len("\n---"):]
	}
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		rest = ""
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return PostMetadata{}, body, true, fmt.Errorf("invalid front matter: %w", err)
	}

	meta := PostMetadata{
		Title:    strings.TrimSpace(fm.Title),
		Date:     strings.TrimSpace(fm.Date),
		Author:   strings.TrimSpace(fm.Author),
		Summary:  strings.TrimSpace(fm.Summary),
		Tags:     frontMatterTags(fm.Tags),
		Views:    fm.Views,
		Likes:    fm.Likes,
		ReadTime: strings.TrimSpace(fm.ReadTime),
	}
	return meta, strings.TrimLeft(rest, "\r\n"), true, nil
}

func frontMatterTags(raw any) string {
	switch v := raw.(type) {
	case string:
		return JoinTags(strings.Split(v, ","))
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			tags = append(tags, fmt.Sprint(item))
		}
		return JoinTags(tags)
	default:
		return ""
	}
}
