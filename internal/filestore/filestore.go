// Package filestore 负责博客内容在磁盘上的目录树表示。
//
// 布局：
//
//	<root>/<category>/category.json
//	<root>/<category>/<post>/_index.json
//	<root>/<category>/<post>/index.md
//
// 这里只有纯文件 I/O，不涉及任何索引逻辑。
package filestore

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sitelog/internal/blogerr"
)

const (
	// CategoryDescriptorFile 是分类目录下的描述文件名。
	CategoryDescriptorFile = "category.json"
	// PostMetadataFile 是文章目录下的元数据文件名。
	PostMetadataFile = "_index.json"
	// PostBodyFile 是文章正文 Markdown 文件名。
	PostBodyFile = "index.md"
)

// FileStore reads and writes categories and posts under a content root.
type FileStore struct {
	root string
}

// New creates a FileStore rooted at root. The directory is not created until EnsureRoot.
func New(root string) *FileStore {
	cleaned := strings.TrimSpace(root)
	if cleaned == "" {
		cleaned = "content/blog"
	}
	return &FileStore{root: filepath.Clean(cleaned)}
}

// Root returns the content root directory.
func (s *FileStore) Root() string {
	return s.root
}

// EnsureRoot creates the content root if it is absent.
func (s *FileStore) EnsureRoot() error {
	info, err := os.Stat(s.root)
	if err == nil {
		if !info.IsDir() {
			return blogerr.IO(errors.New("not a directory"), "content root %s", s.root)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return blogerr.IO(err, "stat content root")
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return blogerr.IO(err, "create content root")
	}
	return nil
}

// PostContentPath returns the body path relative to the content root, always slash separated.
func PostContentPath(categorySlug, postSlug string) string {
	return path.Join(categorySlug, postSlug, PostBodyFile)
}

// ValidateSlug rejects identifiers that are not safe as a single directory name.
func ValidateSlug(slug string) error {
	trimmed := strings.TrimSpace(slug)
	switch {
	case trimmed == "":
		return blogerr.Invalid("slug is required")
	case trimmed != slug:
		return blogerr.Invalid("slug %q has surrounding whitespace", slug)
	case slug == "." || slug == "..":
		return blogerr.Invalid("slug %q is reserved", slug)
	case strings.HasPrefix(slug, "."):
		return blogerr.Invalid("slug %q must not start with a dot", slug)
	case strings.ContainsAny(slug, `/\`+"\x00"):
		return blogerr.Invalid("slug %q contains a path separator", slug)
	}
	return nil
}

func (s *FileStore) categoryDir(slug string) (string, error) {
	if err := ValidateSlug(slug); err != nil {
		return "", err
	}
	return filepath.Join(s.root, slug), nil
}

func (s *FileStore) postDir(categorySlug, postSlug string) (string, error) {
	dir, err := s.categoryDir(categorySlug)
	if err != nil {
		return "", err
	}
	if err := ValidateSlug(postSlug); err != nil {
		return "", err
	}
	return filepath.Join(dir, postSlug), nil
}

// listDirs returns visible sub-directory names of dir, sorted.
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, classify(err, "list %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.IsDir() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// writeFileAtomic 先写临时文件再 rename，避免留下半截 JSON。
func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return blogerr.IO(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return blogerr.IO(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return blogerr.IO(err, "write %s", target)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return blogerr.IO(err, "close %s", target)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return blogerr.IO(err, "chmod %s", target)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return blogerr.IO(err, "replace %s", target)
	}
	return nil
}

func removeAll(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return blogerr.IO(err, "remove %s", dir)
	}
	return nil
}

func exists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, blogerr.IO(err, "stat %s", p)
}

func classify(err error, format string, args ...any) error {
	if errors.Is(err, fs.ErrNotExist) {
		return blogerr.NotFound(format, args...)
	}
	return blogerr.IO(err, format, args...)
}
