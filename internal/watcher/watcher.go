package watcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

type ReloadFunc func() error

/*
FileWatcher 監看檔案所在的目錄 (非遞迴), 檔案變動時呼叫 reload
除了檔案本身, 也追蹤 symlink 指向的目標, 以支援 Kubernetes ConfigMap 的 ..data 切換
*/
type FileWatcher struct {
	path     string
	dir      string
	resolved string
	reload   ReloadFunc
	logger   zerolog.Logger
	ready    chan struct{}
}

func NewFileWatcher(path string, reload ReloadFunc, logger zerolog.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	return &FileWatcher{
		path:     abs,
		dir:      filepath.Dir(abs),
		resolved: resolve(abs),
		reload:   reload,
		logger:   logger,
		ready:    make(chan struct{}),
	}, nil
}

// Ready 在開始監看後關閉
func (w *FileWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Run 阻塞直到 ctx 結束, 目錄無法監看時回傳錯誤
func (w *FileWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info().Str("path", w.path).Msgf("watch %s for changes", w.path)
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev) {
				w.logger.Debug().Str("event", ev.Op.String()).Str("name", ev.Name).Msg("allowed client DN file changed")
				// 錯誤已由 reload 記錄, 繼續監看
				_ = w.reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Str("dir", w.dir).Msg("watcher error")
		}
	}
}

func (w *FileWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}

	name := filepath.Clean(ev.Name)
	previous := w.resolved
	w.resolved = resolve(w.path)

	if name == w.path || (previous != "" && name == previous) {
		return true
	}
	return w.resolved != previous
}

// 解析 symlink, 檔案不存在時回傳空字串
func resolve(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ""
	}
	return resolved
}
