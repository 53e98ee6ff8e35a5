// Package registry resolves agent ids to program URIs. The mapping lives in
// a JSON file edited by the surrounding system; the registry reloads it when
// the file changes so the daemon never needs a restart to pick up new agents.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/agentrun/internal/logger"
)

// registryFile is the on-disk shape: agent ids are JSON object keys, so they
// arrive as strings and are parsed into uint32 on load.
type registryFile struct {
	Agents map[string]string `json:"agents"`
}

// Registry is a file-backed agent id -> program URI resolver
type Registry struct {
	mu       sync.RWMutex
	path     string
	log      *logger.Logger
	programs map[uint32]string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// Open loads the registry file at path. A missing file yields an empty
// registry; a malformed file is an error.
func Open(path string, log *logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.Global()
	}
	r := &Registry{
		path:     path,
		log:      log.WithPrefix("registry"),
		programs: make(map[uint32]string),
		done:     make(chan struct{}),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve returns the program URI registered for an agent id
func (r *Registry) Resolve(agentID uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uri, ok := r.programs[agentID]
	return uri, ok
}

// Len returns the number of registered agents
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

// Watch starts reloading the registry file whenever it changes. The watch
// covers the containing directory so rename-and-replace writes are seen.
func (r *Registry) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create registry watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch registry directory: %w", err)
	}
	r.watcher = watcher

	go func() {
		base := filepath.Base(r.path)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := r.reload(); err != nil {
					r.log.Error("reload failed: %v", err)
				} else {
					r.log.Info("reloaded %d agents from %s", r.Len(), r.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.Warn("watch error: %v", err)
			case <-r.done:
				return
			}
		}
	}()

	return nil
}

// Close stops the watcher, if any
func (r *Registry) Close() error {
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *Registry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.programs = make(map[uint32]string)
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read registry file: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse registry file: %w", err)
	}

	programs := make(map[uint32]string, len(file.Agents))
	for key, uri := range file.Agents {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid agent id %q in registry: %w", key, err)
		}
		if id == 0 {
			return fmt.Errorf("agent id 0 is reserved")
		}
		if uri == "" {
			return fmt.Errorf("agent %d has an empty program URI", id)
		}
		programs[uint32(id)] = uri
	}

	r.mu.Lock()
	r.programs = programs
	r.mu.Unlock()
	return nil
}
