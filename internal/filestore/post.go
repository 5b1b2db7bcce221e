package filestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sitelog/internal/blogerr"
)

// PostMetadata is the content of _index.json. Every field is optional on disk;
// defaulting happens in the service layer. Unknown keys survive a read/write cycle.
type PostMetadata struct {
	Title     string
	Date      string
	Views     *int64
	Likes     *int64
	UpdatedAt string
	Author    string
	Summary   string
	// AutoSummary 表示 Summary 由正文提取，正文变化时需要重新生成。
	AutoSummary bool
	Tags        string
	ReadTime    string
	Extra       map[string]json.RawMessage
}

// UnmarshalJSON decodes the known keys. tags may be a comma-joined string or an array.
func (m *PostMetadata) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}

	targets := []struct {
		key string
		dst any
	}{
		{"title", &m.Title},
		{"date", &m.Date},
		{"views", &m.Views},
		{"likes", &m.Likes},
		{"updatedAt", &m.UpdatedAt},
		{"author", &m.Author},
		{"summary", &m.Summary},
		{"autoSummary", &m.AutoSummary},
		{"readTime", &m.ReadTime},
	}
	for _, target := range targets {
		if err := takeField(fields, target.key, target.dst); err != nil {
			return err
		}
	}

	if raw, ok := fields["tags"]; ok {
		delete(fields, "tags")
		tags, err := decodeTags(raw)
		if err != nil {
			return err
		}
		m.Tags = tags
	}

	m.Extra = fields
	return nil
}

// MarshalJSON writes known keys over the preserved extras.
func (m PostMetadata) MarshalJSON() ([]byte, error) {
	out := cloneExtra(m.Extra)
	values := map[string]any{
		"title":  m.Title,
		"date":   m.Date,
		"author": m.Author,
	}
	if m.Views != nil {
		values["views"] = *m.Views
	}
	if m.Likes != nil {
		values["likes"] = *m.Likes
	}
	if m.AutoSummary {
		values["autoSummary"] = true
	} else {
		delete(out, "autoSummary")
	}
	optional := map[string]string{
		"updatedAt": m.UpdatedAt,
		"summary":   m.Summary,
		"tags":      m.Tags,
		"readTime":  m.ReadTime,
	}
	for key, value := range optional {
		if value != "" {
			values[key] = value
		}
	}
	for key, value := range values {
		if err := putField(out, key, value); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

func decodeTags(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return "", nil
	case trimmed[0] == '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("field %q: %w", "tags", err)
		}
		return JoinTags(list), nil
	default:
		var joined string
		if err := json.Unmarshal(trimmed, &joined); err != nil {
			return "", fmt.Errorf("field %q: %w", "tags", err)
		}
		return JoinTags(strings.Split(joined, ",")), nil
	}
}

// JoinTags trims each tag, drops empties and joins with commas.
func JoinTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, ",")
}

// ReadPostMetadata loads <root>/<category>/<post>/_index.json.
func (s *FileStore) ReadPostMetadata(categorySlug, postSlug string) (PostMetadata, error) {
	dir, err := s.postDir(categorySlug, postSlug)
	if err != nil {
		return PostMetadata{}, err
	}

	var meta PostMetadata
	if err := readJSON(filepath.Join(dir, PostMetadataFile), &meta); err != nil {
		return PostMetadata{}, err
	}
	return meta, nil
}

// WritePostMetadata creates the post directory when needed and overwrites _index.json.
func (s *FileStore) WritePostMetadata(categorySlug, postSlug string, meta PostMetadata) error {
	dir, err := s.postDir(categorySlug, postSlug)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, PostMetadataFile), meta)
}

// ReadPostBody returns the Markdown body.
func (s *FileStore) ReadPostBody(categorySlug, postSlug string) (string, error) {
	dir, err := s.postDir(categorySlug, postSlug)
	if err != nil {
		return "", err
	}

	target := filepath.Join(dir, PostBodyFile)
	data, err := os.ReadFile(target)
	if err != nil {
		return "", classify(err, "read %s", target)
	}
	return string(data), nil
}

// WritePostBody creates the post directory when needed and overwrites index.md.
func (s *FileStore) WritePostBody(categorySlug, postSlug, body string) error {
	dir, err := s.postDir(categorySlug, postSlug)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, PostBodyFile), []byte(body))
}

// DeletePostDir removes the post tree. Missing directories are not an error.
func (s *FileStore) DeletePostDir(categorySlug, postSlug string) error {
	dir, err := s.postDir(categorySlug, postSlug)
	if err != nil {
		return err
	}
	return removeAll(dir)
}

// ListPostDirs returns post slugs under a category, skipping the descriptor and dotfiles.
func (s *FileStore) ListPostDirs(categorySlug string) ([]string, error) {
	dir, err := s.categoryDir(categorySlug)
	if err != nil {
		return nil, err
	}

	names, err := listDirs(dir)
	if err != nil {
		return nil, err
	}
	filtered := names[:0]
	for _, name := range names {
		if name == CategoryDescriptorFile {
			continue
		}
		filtered = append(filtered, name)
	}
	return filtered, nil
}

// ReadAsset returns a file stored next to a post body, such as an image referenced as ./cover.png.
func (s *FileStore) ReadAsset(categorySlug, postSlug, name string) ([]byte, error) {
	dir, err := s.postDir(categorySlug, postSlug)
	if err != nil {
		return nil, err
	}
	if err := ValidateSlug(name); err != nil {
		return nil, err
	}
	if name == PostMetadataFile {
		return nil, blogerr.NotFound("asset %s", name)
	}

	target := filepath.Join(dir, name)
	info, err := os.Stat(target)
	if err != nil {
		return nil, classify(err, "stat asset %s", target)
	}
	if info.IsDir() {
		return nil, blogerr.NotFound("asset %s", name)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, classify(err, "read asset %s", target)
	}
	return data, nil
}
