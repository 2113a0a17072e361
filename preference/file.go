package preference

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
	"gopkg.in/yaml.v3"

	"github.com/ineyio/creditsync"
)

// DefaultDebounce is how long the file watcher waits after the last event before
// reloading.
const DefaultDebounce = 100 * time.Millisecond

// fileDocument is the on-disk layout of the preference file.
type fileDocument struct {
	SuppressSpendConfirmations bool      `yaml:"suppress_spend_confirmations"`
	UpdatedAt                  time.Time `yaml:"updated_at,omitempty"`
}

// FileStore keeps the preference in a small YAML file. Writes replace the file
// atomically. Watch picks up edits made by other processes, such as a settings
// screen running in another window.
type FileStore struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.RWMutex
	suppress bool
	onChange []func(suppress bool)

	watchMu  sync.Mutex
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	timer    *time.Timer
	watching bool
}

var _ creditsync.PreferenceStore = (*FileStore)(nil)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FileOption {
	return func(s *FileStore) { s.logger = l }
}

// WithDebounce sets the reload debounce window of Watch.
func WithDebounce(d time.Duration) FileOption {
	return func(s *FileStore) { s.debounce = d }
}

// NewFileStore opens the preference file at path, creating nothing until the first
// write. A leading "~/" is expanded to the user's home directory.
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		path:     expanded,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}

	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the resolved file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) SuppressConfirmations(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suppress, nil
}

func (s *FileStore) SetSuppressConfirmations(_ context.Context, suppress bool) error {
	data, err := yaml.Marshal(fileDocument{
		SuppressSpendConfirmations: suppress,
		UpdatedAt:                  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("preference: encode: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}
	s.apply(suppress)
	return nil
}

// OnChange registers fn to be called whenever the stored flag changes, whether
// through SetSuppressConfirmations or an external edit seen by Watch.
func (s *FileStore) OnChange(fn func(suppress bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Reload re-reads the file. A missing file reads as false.
func (s *FileStore) Reload() (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.apply(false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("preference: read %s: %w", s.path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("preference: parse %s: %w", s.path, err)
	}
	s.apply(doc.SuppressSpendConfirmations)
	return doc.SuppressSpendConfirmations, nil
}

func (s *FileStore) apply(suppress bool) {
	s.mu.Lock()
	changed := s.suppress != suppress
	s.suppress = suppress
	callbacks := append([]func(bool){}, s.onChange...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range callbacks {
		fn(suppress)
	}
}

// Watch starts watching the preference file for external changes and returns once
// the watch is established. It stops when ctx is canceled or Close is called.
func (s *FileStore) Watch(ctx context.Context) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watching {
		return fmt.Errorf("preference: already watching %s", s.path)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("preference: create %s: %w", dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("preference: create watcher: %w", err)
	}
	// The directory is watched rather than the file: atomic writes replace the inode.
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("preference: watch %s: %w", dir, err)
	}

	s.watcher = w
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.watching = true

	go s.loop(ctx, w, s.stopCh, s.doneCh)

	s.logger.Debug("watching preference file", "path", s.path)
	return nil
}

func (s *FileStore) loop(ctx context.Context, w *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer w.Close()
	defer s.markStopped(doneCh)

	name := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			s.stopTimer()
			return
		case <-stopCh:
			s.stopTimer()
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			s.scheduleReload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("preference watcher error", "error", err)
		}
	}
}

// markStopped clears the watching flag unless a newer Watch has replaced this loop.
func (s *FileStore) markStopped(doneCh chan struct{}) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.doneCh == doneCh {
		s.watching = false
	}
}

func (s *FileStore) scheduleReload() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		suppress, err := s.Reload()
		if err != nil {
			s.logger.Warn("reload preference file", "path", s.path, "error", err)
			return
		}
		s.logger.Debug("preference file reloaded", "path", s.path, "suppress", suppress)
	})
}

func (s *FileStore) stopTimer() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close stops a running Watch and waits for it to exit.
func (s *FileStore) Close() error {
	s.watchMu.Lock()
	if !s.watching {
		s.watchMu.Unlock()
		return nil
	}
	s.watching = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.watchMu.Unlock()

	close(stopCh)
	<-doneCh
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("preference: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("preference: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("preference: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("preference: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("preference: replace %s: %w", path, err)
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("preference: file path is required")
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("preference: resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
