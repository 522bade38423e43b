package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Vocabulary is operator-maintained prompt text (store nicknames, local
// jargon, preferred spellings) appended to the system prompt. The file is
// optional and may be edited while the server runs.
type Vocabulary struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu   sync.RWMutex
	text string

	watchMu     sync.Mutex
	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchWg     sync.WaitGroup
}

// NewVocabulary loads path. An empty path yields an empty vocabulary; a
// missing file is not an error and is picked up once it appears.
func NewVocabulary(path string, logger *slog.Logger) (*Vocabulary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Vocabulary{
		path:     path,
		debounce: 250 * time.Millisecond,
		logger:   logger,
	}
	if path == "" {
		return v, nil
	}
	v.path = filepath.Clean(path)
	if err := v.Reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// StaticVocabulary returns a vocabulary with fixed text.
func StaticVocabulary(text string) *Vocabulary {
	return &Vocabulary{text: strings.TrimSpace(text), logger: slog.Default()}
}

// Text returns the current vocabulary text.
func (v *Vocabulary) Text() string {
	if v == nil {
		return ""
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.text
}

// Reload re-reads the file.
func (v *Vocabulary) Reload() error {
	if v.path == "" {
		return nil
	}
	data, err := os.ReadFile(v.path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("read vocabulary %s: %w", v.path, err)
	}
	v.mu.Lock()
	v.text = strings.TrimSpace(string(data))
	v.mu.Unlock()
	return nil
}

// Watch reloads the file whenever it changes until ctx is done or Close is
// called. The parent directory is watched so editors that replace the file
// by rename are handled.
func (v *Vocabulary) Watch(ctx context.Context) error {
	if v.path == "" {
		return nil
	}

	v.watchMu.Lock()
	defer v.watchMu.Unlock()
	if v.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(v.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch vocabulary dir: %w", err)
	}
	v.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	v.watchCancel = cancel

	v.watchWg.Add(1)
	go v.watchLoop(watchCtx, watcher)
	return nil
}

// Close stops watching.
func (v *Vocabulary) Close() error {
	v.watchMu.Lock()
	if v.watchCancel != nil {
		v.watchCancel()
		v.watchCancel = nil
	}
	watcher := v.watcher
	v.watcher = nil
	v.watchMu.Unlock()

	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	v.watchWg.Wait()
	return err
}

func (v *Vocabulary) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer v.watchWg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(v.debounce, func() {
			if err := v.Reload(); err != nil {
				v.logger.Warn("vocabulary reload failed", "path", v.path, "error", err)
				return
			}
			v.logger.Info("vocabulary reloaded", "path", v.path)
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != v.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			v.logger.Warn("vocabulary watch error", "error", err)
		}
	}
}
