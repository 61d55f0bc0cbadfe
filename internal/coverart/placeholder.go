package coverart

import (
	_ "embed"
	"path/filepath"
)

//go:embed assets/placeholder.png
var placeholderPNG []byte

// PlaceholderName is the file the bundled placeholder is installed as.
// It never collides with a cache entry, which are all .jpg.
const PlaceholderName = "placeholder.png"

// InstallPlaceholder writes the bundled placeholder into the cache directory
// and returns its path. An existing copy is overwritten.
func (c *Cache) InstallPlaceholder() (string, error) {
	path := filepath.Join(c.dir, PlaceholderName)
	if err := writeFileAtomic(path, placeholderPNG); err != nil {
		return "", err
	}
	return path, nil
}
