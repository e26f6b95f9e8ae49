package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const debounceDelay = 500 * time.Millisecond

// LocationCatalog holds the suggested locations offered by the composer.
// When backed by a file it reloads on change.
type LocationCatalog struct {
	mu        sync.RWMutex
	locations []string
	callbacks []func([]string)

	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// NewLocationCatalog seeds the catalog from cfg. A configured file overrides
// the defaults and is watched for changes until Stop.
func NewLocationCatalog(cfg LocationsConfig, logger *zap.Logger) (*LocationCatalog, error) {
	c := &LocationCatalog{
		locations: normalizeLocations(cfg.Defaults),
		path:      cfg.File,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	if c.path == "" {
		close(c.doneCh)
		return c, nil
	}

	locs, err := readLocationsFile(c.path)
	if err != nil {
		return nil, err
	}
	c.locations = locs

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory and filter by name.
	if err := fsWatcher.Add(filepath.Dir(c.path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", c.path, err)
	}
	c.watcher = fsWatcher

	go c.watchLoop()

	logger.Info("Location catalog hot reloading enabled",
		zap.String("file", c.path),
		zap.Int("locations", len(locs)),
	)
	return c, nil
}

// List returns a copy of the current locations.
func (c *LocationCatalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.locations...)
}

// OnChange registers a callback invoked after each successful reload.
func (c *LocationCatalog) OnChange(callback func([]string)) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, callback)
	c.mu.Unlock()
}

// Stop stops watching. It is safe to call more than once.
func (c *LocationCatalog) Stop() {
	c.once.Do(func() {
		close(c.stopCh)
	})
	<-c.doneCh
}

func (c *LocationCatalog) watchLoop() {
	defer close(c.doneCh)
	defer c.watcher.Close()

	var debounce *time.Timer
	var fire <-chan time.Time
	target := filepath.Clean(c.path)

	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			c.logger.Debug("Location file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
			} else {
				debounce.Stop()
				debounce.Reset(debounceDelay)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			c.reload()

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("File watcher error", zap.Error(err))

		case <-c.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			c.logger.Info("Stopping location watcher")
			return
		}
	}
}

func (c *LocationCatalog) reload() {
	locs, err := readLocationsFile(c.path)
	if err != nil {
		c.logger.Error("Invalid location file after change, keeping previous list",
			zap.String("file", c.path),
			zap.Error(err),
		)
		return
	}

	c.mu.Lock()
	if equalStrings(c.locations, locs) {
		c.mu.Unlock()
		return
	}
	c.locations = locs
	callbacks := make([]func([]string), len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.Unlock()

	c.logger.Info("Location catalog reloaded", zap.Strings("locations", locs))
	for _, cb := range callbacks {
		cb(append([]string(nil), locs...))
	}
}

// readLocationsFile accepts either a bare YAML list or {locations: [...]}.
func readLocationsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations file %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)

	var list []string
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Locations []string `yaml:"locations"`
		}
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("failed to parse locations file %s: %w", path, err)
		}
		list = doc.Locations
	}

	locs := normalizeLocations(list)
	if len(locs) == 0 {
		return nil, fmt.Errorf("locations file %s lists no locations", path)
	}
	return locs, nil
}

func normalizeLocations(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, l := range in {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
