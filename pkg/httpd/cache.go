package httpd

import (
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedFile struct {
	body    []byte
	size    int64
	modTime time.Time
}

// fileCache keeps recently served file bodies. An entry is only used while
// the file's size and modification time are unchanged.
type fileCache struct {
	entries *lru.Cache[string, cachedFile]
	maxSize int64
}

// newFileCache returns nil when entries is zero, which disables caching
func newFileCache(entries int, maxSize int64) (*fileCache, error) {
	if entries <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, cachedFile](entries)
	if err != nil {
		return nil, err
	}
	return &fileCache{entries: c, maxSize: maxSize}, nil
}

// cacheable reports whether a file of this size may be cached
func (c *fileCache) cacheable(info os.FileInfo) bool {
	return c != nil && info.Size() <= c.maxSize
}

// get returns the cached body of path if it still matches info
func (c *fileCache) get(path string, info os.FileInfo) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	entry, ok := c.entries.Get(path)
	if !ok {
		return nil, false
	}
	if entry.size != info.Size() || !entry.modTime.Equal(info.ModTime()) {
		c.entries.Remove(path)
		return nil, false
	}
	return entry.body, true
}

func (c *fileCache) put(path string, info os.FileInfo, body []byte) {
	if c == nil {
		return
	}
	c.entries.Add(path, cachedFile{body: body, size: info.Size(), modTime: info.ModTime()})
}

// Len returns the number of cached files
func (c *fileCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
