package trigger

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettle is how long FileWatch waits for writes to stop.
const DefaultSettle = 200 * time.Millisecond

// FileWatch regenerates when the catalog snapshot file changes. The parent
// directory is watched so editors that replace the file by rename are seen.
// A burst of events within the settle period yields one pass.
type FileWatch struct {
	path   string
	settle time.Duration
	logger *zap.Logger
}

// NewFileWatch watches path.
func NewFileWatch(path string, logger *zap.Logger) *FileWatch {
	if logger == nil {
		logger = zap.NewNop()
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &FileWatch{path: path, settle: DefaultSettle, logger: logger.With(zap.String("file", path))}
}

func (t *FileWatch) Name() string { return "file" }

func (t *FileWatch) Run(ctx context.Context, reg Regenerator) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(t.path), err)
	}

	settle := time.NewTimer(t.settle)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != t.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			t.logger.Debug("catalog file changed", zap.Stringer("op", event.Op))
			settle.Reset(t.settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Warn("watcher error", zap.Error(err))
		case <-settle.C:
			fire(ctx, t.Name(), reg, t.logger)
		}
	}
}
