package enrichment

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

// TelecomProviders is the list of consumer ISPs whose names are not shown as a
// company. One name per line, blank lines and # comments ignored, matching is
// case-insensitive on the whole line. The file is reloaded when it changes.
type TelecomProviders struct {
	path    string
	logger  *pterm.Logger
	mu      sync.RWMutex
	names   map[string]struct{}
	watcher *fsnotify.Watcher
	reloads chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewTelecomProviders loads path and starts watching it. An empty path yields an
// empty list; a missing file is watched for creation.
func NewTelecomProviders(path string, logger *pterm.Logger) (*TelecomProviders, error) {
	tp := &TelecomProviders{
		path:    path,
		logger:  logger,
		names:   make(map[string]struct{}),
		reloads: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	if path == "" {
		logger.Debug("No telecom provider list configured")
		return tp, nil
	}

	if err := tp.Reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithCaller().Error("Failed to create file watcher", logger.Args("error", err))
		return nil, err
	}
	// Editors replace files by rename, so the directory is watched
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		logger.WithCaller().Error("Failed to watch telecom provider list", logger.Args("path", path, "error", err))
		return nil, err
	}
	tp.watcher = watcher

	tp.wg.Add(1)
	go tp.eventLoop()

	logger.Info("Telecom provider list loaded", logger.Args("path", path, "entries", tp.Len()))
	return tp, nil
}

func (tp *TelecomProviders) eventLoop() {
	defer tp.wg.Done()
	target := filepath.Clean(tp.path)

	for {
		select {
		case <-tp.stopCh:
			return

		case event, ok := <-tp.watcher.Events:
			if !ok {
				tp.logger.Warn("Telecom provider watcher events channel closed")
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}

			tp.logger.Trace("Telecom provider list changed", tp.logger.Args("op", event.Op.String()))
			if err := tp.Reload(); err != nil && !os.IsNotExist(err) {
				tp.logger.WithCaller().Warn("Failed to reload telecom provider list",
					tp.logger.Args("path", tp.path, "error", err))
				continue
			}
			select {
			case tp.reloads <- struct{}{}:
			default:
			}

		case err, ok := <-tp.watcher.Errors:
			if !ok {
				return
			}
			tp.logger.WithCaller().Error("Telecom provider watcher error", tp.logger.Args("error", err))
		}
	}
}

// Reload rereads the file. A missing file empties the list.
func (tp *TelecomProviders) Reload() error {
	file, err := os.Open(tp.path)
	if err != nil {
		if os.IsNotExist(err) {
			tp.swap(make(map[string]struct{}))
		}
		return err
	}
	defer file.Close()

	names := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	tp.swap(names)
	tp.logger.Debug("Telecom provider list reloaded", tp.logger.Args("entries", len(names)))
	return nil
}

func (tp *TelecomProviders) swap(names map[string]struct{}) {
	tp.mu.Lock()
	tp.names = names
	tp.mu.Unlock()
}

// Contains reports whether name is a listed provider
func (tp *TelecomProviders) Contains(name string) bool {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return false
	}
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	_, ok := tp.names[key]
	return ok
}

func (tp *TelecomProviders) Len() int {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return len(tp.names)
}

// Reloaded signals after every reload triggered by the watcher
func (tp *TelecomProviders) Reloaded() <-chan struct{} {
	return tp.reloads
}

// Close stops watching
func (tp *TelecomProviders) Close() error {
	if tp.watcher == nil {
		return nil
	}
	close(tp.stopCh)
	tp.wg.Wait()
	if err := tp.watcher.Close(); err != nil {
		tp.logger.WithCaller().Error("Failed to close telecom provider watcher", tp.logger.Args("error", err))
		return err
	}
	return nil
}
