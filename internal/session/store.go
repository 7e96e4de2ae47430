package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"resumelift/internal/errors"
)

// Store holds the bearer token for the authenticated session. The
// token lives in a file (0600) so separate invocations share one
// session; an optional file watcher lets long-lived processes observe
// a login or logout performed from another terminal.
type Store struct {
	mu    sync.RWMutex
	path  string
	token string

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer
	stopChan      chan struct{}
	running       bool

	logger *errors.Logger
}

// DefaultPath returns the token file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "resumelift", "token"), nil
}

// NewStore creates a token store backed by path, loading any existing
// token.
func NewStore(path string, logger *errors.Logger) (*Store, error) {
	s := &Store{
		path:          path,
		debounceDelay: time.Second,
		stopChan:      make(chan struct{}),
		logger:        logger,
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns the current bearer token, or empty when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated reports whether a token is present.
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// SetToken persists the token and updates the in-memory copy.
func (s *Store) SetToken(token string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewIOError("TOKEN_DIR_CREATE_FAILED",
			fmt.Sprintf("Cannot create session directory: %s", dir), err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0600); err != nil {
		return errors.NewIOError("TOKEN_WRITE_FAILED",
			fmt.Sprintf("Cannot write token file: %s", s.path), err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Clear removes the token file and forgets the in-memory token.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("TOKEN_REMOVE_FAILED",
			fmt.Sprintf("Cannot remove token file: %s", s.path), err)
	}

	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

// reload reads the token file into memory. A missing file means no
// session.
func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.token = ""
			s.mu.Unlock()
			return nil
		}
		return errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read token file: %s", s.path), err)
	}

	s.mu.Lock()
	s.token = strings.TrimSpace(string(data))
	s.mu.Unlock()
	return nil
}

// Watch starts a file watcher that reloads the token when the file is
// rewritten or removed out of band.
func (s *Store) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("session watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so atomic writes and deletions are seen even
	// when the token file does not exist yet.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil && s.logger != nil {
			s.logger.LogError(closeErr, "Failed to close file watcher during cleanup")
		}
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	s.fsWatcher = watcher
	s.running = true
	go s.watchLoop()

	if s.logger != nil {
		s.logger.Info("Session token watcher started", "path", s.path)
	}
	return nil
}

// Stop stops the watcher if running.
func (s *Store) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopChan)
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	if err := s.fsWatcher.Close(); err != nil {
		if s.logger != nil {
			s.logger.LogError(err, "Failed to close session file watcher")
		}
		return err
	}
	s.running = false
	return nil
}

// watchLoop is the main event loop for token file watching
func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.fsWatcher.Events:
			if !ok {
				return
			}
			if s.shouldProcessEvent(event) {
				s.scheduleReload()
			}

		case err, ok := <-s.fsWatcher.Errors:
			if !ok {
				return
			}
			if s.logger != nil {
				s.logger.LogError(err, "Session file watcher error")
			}

		case <-s.stopChan:
			return
		}
	}
}

func (s *Store) shouldProcessEvent(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != filepath.Base(s.path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

// scheduleReload debounces bursts of file events into one reload.
func (s *Store) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(s.debounceDelay, func() {
		if err := s.reload(); err != nil {
			if s.logger != nil {
				s.logger.LogError(err, "Failed to reload session token")
			}
			return
		}
		if s.logger != nil {
			s.logger.Debug("Session token reloaded", "authenticated", s.IsAuthenticated())
		}
	})
}
