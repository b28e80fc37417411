// Package cache stores upstream payloads on disk behind a time-to-live.
//
// Entries are keyed by label: the file name is the hex SHA-224 of the label,
// not of the content. The file modification time is the only staleness
// signal, and an empty file counts as absent.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Cache is a label-keyed file cache
type Cache struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// New creates a cache rooted at dir on fs
func New(fs afero.Fs, dir string) *Cache {
	return &Cache{fs: fs, dir: dir, now: time.Now}
}

// NewOS creates a cache rooted at dir on the host filesystem
func NewOS(dir string) *Cache {
	return New(afero.NewOsFs(), dir)
}

// Path returns the file that backs label
func (c *Cache) Path(label string) string {
	sum := sha256.Sum224([]byte(label))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}

// Put stores data under label. data may be a string, a list of lines (each
// written with a trailing newline) or raw bytes.
func (c *Cache) Put(label string, data any) error {
	var text string
	switch v := data.(type) {
	case string:
		text = v
	case []string:
		var b strings.Builder
		for _, line := range v {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		text = b.String()
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("cache: unsupported payload type %T", data)
	}

	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache: create dir: %w", err)
	}
	if err := afero.WriteFile(c.fs, c.Path(label), []byte(text), 0o644); err != nil {
		return fmt.Errorf("cache: write %s: %w", label, err)
	}
	return nil
}

// Get returns the data stored under label if it was written within
// maxAgeHours. An age of 0 or less never expires.
func (c *Cache) Get(label string, maxAgeHours int) (string, bool) {
	if label == "" {
		return "", false
	}

	path := c.Path(label)
	info, err := c.fs.Stat(path)
	if err != nil || info.Size() == 0 {
		return "", false
	}

	if maxAgeHours > 0 {
		maxAge := time.Duration(maxAgeHours) * time.Hour
		if c.now().Sub(info.ModTime()) >= maxAge {
			return "", false
		}
	}

	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Touch sets the modification time of label's file; used to age entries
func (c *Cache) Touch(label string, mtime time.Time) error {
	if err := c.fs.Chtimes(c.Path(label), mtime, mtime); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("cache: %s not stored: %w", label, err)
		}
		return err
	}
	return nil
}
