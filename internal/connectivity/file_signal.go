package connectivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileSignal follows a status file containing "online" or "offline". An
// absent or unreadable file keeps the initial state.
type FileSignal struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	online bool
	events chan bool
}

// NewFileSignal starts watching the directory that holds path.
func NewFileSignal(path string, initial bool, logger *slog.Logger) (*FileSignal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("status file path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	s := &FileSignal{
		path:    abs,
		logger:  logger,
		watcher: watcher,
		online:  initial,
		events:  make(chan bool, eventBuffer),
	}
	if state, ok := s.read(); ok {
		s.online = state
	}
	return s, nil
}

func (s *FileSignal) Events() <-chan bool {
	return s.events
}

func (s *FileSignal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Run forwards file changes until ctx is done or the watcher is closed.
func (s *FileSignal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if state, ok := s.read(); ok {
				s.set(state)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("status file watch error", "path", s.path, "error", err)
		}
	}
}

func (s *FileSignal) Close() error {
	return s.watcher.Close()
}

func (s *FileSignal) set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online == online {
		return
	}
	s.online = online
	s.logger.Info("connectivity changed", "online", online, "source", s.path)
	emit(s.events, online)
}

func (s *FileSignal) read() (bool, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "online", "up", "1", "true":
		return true, true
	case "offline", "down", "0", "false":
		return false, true
	default:
		s.logger.Warn("unrecognized status file content", "path", s.path)
		return false, false
	}
}
