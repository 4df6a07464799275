package catalog

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"legato/pkg/models"
)

// cacheEntryOverhead approximates the fixed cost of one cached record beyond
// its string payload.
const cacheEntryOverhead = 256

// recordCache keeps recently materialized records so repeated lookups skip
// decoding. Eviction is byte-bounded: adds push out the oldest entries until
// the configured ceiling holds again.
type recordCache struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[uint64, *models.MediaFile]
	limitBytes uint64
	usedBytes  uint64
}

func newRecordCache(limitBytes uint64) *recordCache {
	c := &recordCache{limitBytes: limitBytes}
	// entry count is unbounded in practice; the byte ceiling governs
	lru, _ := simplelru.NewLRU[uint64, *models.MediaFile](1<<31-1, c.onEvict)
	c.lru = lru
	return c
}

func (c *recordCache) onEvict(_ uint64, f *models.MediaFile) {
	size := cachedSize(f)
	if c.usedBytes >= size {
		c.usedBytes -= size
	} else {
		c.usedBytes = 0
	}
}

func (c *recordCache) get(id uint64) (*models.MediaFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(id)
}

func (c *recordCache) put(f *models.MediaFile) {
	if c.limitBytes == 0 {
		return
	}
	size := cachedSize(f)
	if size > c.limitBytes {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.lru.Peek(f.ID); ok {
		c.onEvict(f.ID, prev)
	}
	c.lru.Add(f.ID, f)
	c.usedBytes += size
	for c.usedBytes > c.limitBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

func (c *recordCache) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}

func (c *recordCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.usedBytes = 0
}

func (c *recordCache) bytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

func (c *recordCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func cachedSize(f *models.MediaFile) uint64 {
	n := len(f.Path) + len(f.CanonicalPath) + len(f.CanonicalParentPath) +
		len(f.Filename) + len(f.MimeType) + len(f.Title) + len(f.Artist) +
		len(f.Album) + len(f.Genre) + len(f.AlbumArtist)
	return uint64(n) + cacheEntryOverhead
}
