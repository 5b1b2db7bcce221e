// Package watch 监听内容目录的变化，并在变化停止一段时间后触发一次同步。
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sitelog/internal/service"
)

// DefaultDebounce 是最后一次文件事件之后等待的时间。
const DefaultDebounce = 2 * time.Second

// Syncer runs one reconciliation pass.
type Syncer interface {
	Run(ctx context.Context) (service.SyncReport, error)
}

// Watcher triggers a sync when files under the content root change.
type Watcher struct {
	root     string
	syncer   Syncer
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// New registers the content root and every non-hidden subdirectory.
func New(root string, syncer Syncer, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{root: root, syncer: syncer, debounce: debounce, logger: logger, fsw: fsw}
	if err := w.addDirs(root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("add directories to watcher: %w", err)
	}
	return w, nil
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// Run processes events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addDirs(event.Name); err != nil {
						w.logger.Warn("watch: add directory failed", slog.String("path", event.Name), slog.String("error", err.Error()))
					}
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch: watcher error", slog.String("error", err.Error()))
		case <-timer.C:
			report, err := w.syncer.Run(ctx)
			if err != nil {
				w.logger.Error("watch: sync failed", slog.String("error", err.Error()))
				continue
			}
			w.logger.Info("watch: sync triggered",
				slog.String("run_id", report.RunID),
				slog.Bool("skipped", report.Skipped),
				slog.Int("posts", report.Posts))
		}
	}
}

// relevant 忽略隐藏文件以及原子写入产生的临时文件。
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}
