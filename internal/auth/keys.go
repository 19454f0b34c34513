package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// KeyStore maps API keys to client names from a JSON file of the form
// {"<key>": "<client name>"}. The file is re-read only when its
// modification time changes.
type KeyStore struct {
	path string
	log  *slog.Logger

	mu    sync.RWMutex
	keys  map[string]string
	mtime time.Time
}

func NewKeyStore(path string, log *slog.Logger) *KeyStore {
	return &KeyStore{path: path, log: log, keys: map[string]string{}}
}

// LoadKeys reads and parses a keys file.
func LoadKeys(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api keys file: %w", err)
	}
	keys := map[string]string{}
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("invalid JSON in api keys file: %w", err)
	}
	return keys, nil
}

// Keys returns the current key set. A missing or unparsable file yields an
// empty set; the failure is logged.
func (s *KeyStore) Keys() map[string]string {
	if s == nil || s.path == "" {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		s.log.Error("api keys file not found", slog.String("path", s.path), slogError(err))
		s.reset()
		return nil
	}

	s.mu.RLock()
	fresh := !s.mtime.IsZero() && info.ModTime().Equal(s.mtime)
	keys := s.keys
	s.mu.RUnlock()
	if fresh {
		return keys
	}
	return s.reload(info.ModTime())
}

// Lookup returns the client name registered for key.
func (s *KeyStore) Lookup(key string) (string, bool) {
	client, ok := s.Keys()[key]
	return client, ok
}

func (s *KeyStore) reload(mtime time.Time) map[string]string {
	keys, err := LoadKeys(s.path)
	if err != nil {
		s.log.Error("failed to load api keys", slog.String("path", s.path), slogError(err))
		s.reset()
		return nil
	}
	s.mu.Lock()
	s.keys = keys
	s.mtime = mtime
	s.mu.Unlock()
	s.log.Info("loaded api keys", slog.Int("clients", len(keys)))
	return keys
}

func (s *KeyStore) reset() {
	s.mu.Lock()
	s.keys = map[string]string{}
	s.mtime = time.Time{}
	s.mu.Unlock()
}

// Watch reloads the keys as soon as the file is written or replaced. It
// watches the parent directory so editors that rename into place are seen.
// Watch returns once the watcher is installed; it stops with ctx.
func (s *KeyStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if info, err := os.Stat(s.path); err == nil {
					s.reload(info.ModTime())
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("api keys watcher error", slogError(err))
			}
		}
	}()
	return nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
