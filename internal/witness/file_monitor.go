package witness

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// contentHashPrefixBytes is the number of leading bytes hashed for a
// file's contentHashPrefix, original §4.F.
const contentHashPrefixBytes = 4096

const fileDebounce = 100 * time.Millisecond

// FileMonitor watches a configured set of directories recursively,
// emitting file_created/file_modified/file_deleted events with a
// trailing per-path debounce.
// fsnotify goroutine shape, generalized from a flat single-directory watch
// of two known filenames to a recursive multi-root watch with exclusion
// globs and per-path debounce timers (original §4.F).
type FileMonitor struct {
	watchPaths []string
	excludes   []glob.Glob

	fw *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	lastOps map[string]fsnotify.Op

	wg   sync.WaitGroup
	done chan struct{}
}

// NewFileMonitor compiles excludePaths as globs (separator '/', so a bare
// `*` never crosses a path segment and `**` is required to cross one,
// per original §4.F's explicit grammar) and expands `~` in watchPaths.
func NewFileMonitor(watchPaths, excludePaths []string) (*FileMonitor, error) {
	expanded := make([]string, 0, len(watchPaths))
	for _, p := range watchPaths {
		expanded = append(expanded, expandHome(p))
	}

	var excludes []glob.Glob
	for _, p := range excludePaths {
		g, err := glob.Compile(expandHome(p), '/')
		if err != nil {
			return nil, fmt.Errorf("witness: invalid exclude glob %q: %w", p, err)
		}
		excludes = append(excludes, g)
	}

	return &FileMonitor{
		watchPaths: expanded,
		excludes:   excludes,
		timers:     make(map[string]*time.Timer),
		lastOps:    make(map[string]fsnotify.Op),
	}, nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Start begins watching. Non-existent watch paths are ignored silently
// (original §4.F). onEvent is invoked once per debounced change, from the
// monitor's single event-processing goroutine.
func (m *FileMonitor) Start(onEvent func(logstream.WitnessEvent)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("witness: creating file watcher: %w", err)
	}
	m.fw = fw
	m.done = make(chan struct{})

	for _, root := range m.watchPaths {
		if err := m.addRecursive(root); err != nil {
			slog.Warn("witness: file monitor failed to watch path", "path", root, "error", err)
		}
	}

	m.wg.Add(1)
	go m.loop(onEvent)

	slog.Info("witness: file monitor started", "watchPaths", m.watchPaths)
	return nil
}

// addRecursive adds fw watches for root and every subdirectory beneath it.
// A missing root is swallowed, per the monitor's failure model.
func (m *FileMonitor) addRecursive(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return m.fw.Add(root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // swallow per-directory walk errors, keep going
		}
		if d.IsDir() {
			if addErr := m.fw.Add(path); addErr != nil {
				slog.Warn("witness: failed to watch directory", "path", path, "error", addErr)
			}
		}
		return nil
	})
}

func (m *FileMonitor) isExcluded(path string) bool {
	for _, g := range m.excludes {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (m *FileMonitor) loop(onEvent func(logstream.WitnessEvent)) {
	defer m.wg.Done()
	for {
		select {
		case ev, ok := <-m.fw.Events:
			if !ok {
				return
			}
			m.handle(ev, onEvent)

		case err, ok := <-m.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("witness: file watcher error", "error", err)

		case <-m.done:
			return
		}
	}
}

func (m *FileMonitor) handle(ev fsnotify.Event, onEvent func(logstream.WitnessEvent)) {
	if m.isExcluded(ev.Name) {
		return
	}

	// A newly created directory needs its own watch so descendants are seen.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := m.fw.Add(ev.Name); err != nil {
				slog.Warn("witness: failed to watch new directory", "path", ev.Name, "error", err)
			}
		}
	}

	m.mu.Lock()
	m.lastOps[ev.Name] |= ev.Op
	if t, exists := m.timers[ev.Name]; exists {
		t.Stop()
	}
	path := ev.Name
	m.timers[path] = time.AfterFunc(fileDebounce, func() {
		m.fire(path, onEvent)
	})
	m.mu.Unlock()
}

func (m *FileMonitor) fire(path string, onEvent func(logstream.WitnessEvent)) {
	m.mu.Lock()
	op := m.lastOps[path]
	delete(m.lastOps, path)
	delete(m.timers, path)
	m.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			onEvent(logstream.WitnessEvent{Type: logstream.FileDeleted, Path: path, ObservedAt: nowRFC3339()})
			return
		}
		slog.Warn("witness: stat failed during file monitor tick", "path", path, "error", err)
		return
	}
	if info.IsDir() {
		return
	}

	evType := logstream.FileModified
	if op&fsnotify.Create != 0 {
		evType = logstream.FileCreated
	}

	stat := &logstream.FileStat{
		SizeBytes: info.Size(),
		Mode:      info.Mode().String(),
		Mtime:     info.ModTime().UTC().Format(time.RFC3339Nano),
	}
	if prefix, err := hashPrefix(path); err == nil {
		stat.ContentHashPrefix = prefix
	} else {
		slog.Warn("witness: failed to hash file prefix", "path", path, "error", err)
	}

	onEvent(logstream.WitnessEvent{
		Type:       evType,
		Path:       path,
		ObservedAt: nowRFC3339(),
		Stat:       stat,
	})
}

func hashPrefix(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, contentHashPrefixBytes); err != nil && err != io.EOF {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Stop drains pending debounce timers and closes the watcher. Safe to call
// once after Start; idempotent-by-construction since callers only call it
// from the daemon's own idempotent Stop.
func (m *FileMonitor) Stop() {
	if m.done == nil {
		return
	}
	close(m.done)

	m.mu.Lock()
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = make(map[string]*time.Timer)
	m.mu.Unlock()

	if m.fw != nil {
		m.fw.Close()
	}
	m.wg.Wait()
}
