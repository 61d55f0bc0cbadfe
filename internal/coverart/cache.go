package coverart

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Cache is the on-disk memo of normalized covers, indexed in memory.
// Entries are never evicted.
type Cache struct {
	logger *zap.Logger
	dir    string

	mu    sync.RWMutex
	index map[string]string // key -> absolute path
}

// NewCache opens dir, creating it if needed, and indexes existing entries
func NewCache(logger *zap.Logger, dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cover cache: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cover cache: %w", err)
	}

	c := &Cache{
		logger: logger,
		dir:    dir,
		index:  make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		c.index[strings.TrimSuffix(name, ".jpg")] = filepath.Join(dir, name)
	}

	logger.Info("Cover cache loaded", zap.String("dir", dir), zap.Int("entries", len(c.index)))
	return c, nil
}

// Get returns the cached path for key. An entry whose file has disappeared
// is dropped from the index.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	path, ok := c.index[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}

	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		c.mu.Lock()
		delete(c.index, key)
		c.mu.Unlock()
		c.logger.Warn("Cached cover vanished", zap.String("path", path))
		return "", false
	}
	return path, true
}

// Put stores data under key and returns its path
func (c *Cache) Put(key string, data []byte) (string, error) {
	path := filepath.Join(c.dir, FileName(key))
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.index[key] = path
	c.mu.Unlock()

	c.logger.Debug("Cover cached", zap.String("key", key), zap.Int("bytes", len(data)))
	return path, nil
}

// Len returns the number of indexed entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// writeFileAtomic replaces path so readers never see a half-written image
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
