package effect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrUnknownSource is returned when a shader source name has not been registered.
var ErrUnknownSource = errors.New("effect: unknown shader source")

// SourceExtension is the file extension of shader sources loaded from disk. The source name is
// the file name without it, e.g. "pass.fragment.wgsl" registers "pass.fragment".
const SourceExtension = ".wgsl"

// ShaderStore holds named shader sources. It is safe for concurrent use: compile workers read
// sources while the watcher goroutine records edits.
type ShaderStore interface {
	// Register adds or replaces a named source. Replacing an existing source marks it changed.
	//
	// Parameters:
	//   - name: the source name referenced by effects and #include
	//   - source: the WGSL text
	Register(name, source string)

	// Source returns a registered source.
	//
	// Parameters:
	//   - name: the source name
	//
	// Returns:
	//   - string: the WGSL text
	//   - error: ErrUnknownSource if the name is not registered
	Source(name string) (string, error)

	// Names returns every registered name in sorted order.
	Names() []string

	// LoadDir registers every *.wgsl file in dir.
	//
	// Parameters:
	//   - dir: the directory to scan (not recursive)
	//
	// Returns:
	//   - error: an error if the directory or a file could not be read
	LoadDir(dir string) error

	// Watch reloads sources in dir as files change until ctx is cancelled. It returns once the
	// watcher is installed; events are handled on a background goroutine.
	//
	// Parameters:
	//   - ctx: cancels the watcher
	//   - dir: the directory to watch
	//
	// Returns:
	//   - error: an error if the watcher could not be created
	Watch(ctx context.Context, dir string) error

	// Changed returns and clears the names whose source was replaced since the last call.
	Changed() []string
}

type shaderStore struct {
	mu      sync.RWMutex
	sources map[string]string
	changed map[string]bool
}

var _ ShaderStore = &shaderStore{}

// NewShaderStore creates an empty ShaderStore.
//
// Returns:
//   - ShaderStore: the store
func NewShaderStore() ShaderStore {
	return &shaderStore{
		sources: make(map[string]string),
		changed: make(map[string]bool),
	}
}

func (s *shaderStore) Register(name, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sources[name]; ok && prev != source {
		s.changed[name] = true
	}
	s.sources[name] = source
}

func (s *shaderStore) Source(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return src, nil
}

func (s *shaderStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.sources))
	for n := range s.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *shaderStore) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read shader directory %q: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != SourceExtension {
			continue
		}
		if err := s.loadFile(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *shaderStore) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read shader %q: %w", path, err)
	}
	s.Register(strings.TrimSuffix(filepath.Base(path), SourceExtension), string(data))
	return nil
}

func (s *shaderStore) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create shader watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

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
				if filepath.Ext(event.Name) != SourceExtension {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := s.loadFile(event.Name); err != nil {
					log.Printf("[ShaderStore] reload failed: %v", err)
					continue
				}
				log.Printf("[ShaderStore] reloaded %s", filepath.Base(event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[ShaderStore] watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (s *shaderStore) Changed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.changed) == 0 {
		return nil
	}
	names := make([]string, 0, len(s.changed))
	for n := range s.changed {
		names = append(names, n)
	}
	clear(s.changed)
	sort.Strings(names)
	return names
}
