package catalog

import (
	"fmt"
	"testing"

	"legato/pkg/models"
)

func cachedFile(id uint64) *models.MediaFile {
	return &models.MediaFile{
		ID:            id,
		CanonicalPath: fmt.Sprintf("/media/music/%04d.mp3", id),
		Filename:      fmt.Sprintf("%04d.mp3", id),
		Title:         "Title",
		Artist:        "Artist",
	}
}

func TestRecordCacheHitMiss(t *testing.T) {
	c := newRecordCache(1 << 20)
	f := cachedFile(1)
	c.put(f)

	got, ok := c.get(1)
	if !ok {
		t.Fatal("Expected cache hit after put")
	}
	if got.CanonicalPath != f.CanonicalPath {
		t.Errorf("Expected %q, got %q", f.CanonicalPath, got.CanonicalPath)
	}
	if _, ok := c.get(2); ok {
		t.Error("Expected cache miss for unknown id")
	}
}

func TestRecordCacheByteBoundedEviction(t *testing.T) {
	one := cachedSize(cachedFile(1))
	c := newRecordCache(3 * one)

	for id := uint64(1); id <= 5; id++ {
		c.put(cachedFile(id))
	}

	if got := c.len(); got != 3 {
		t.Errorf("Expected 3 entries within the byte ceiling, got %d", got)
	}
	if c.bytes() > 3*one {
		t.Errorf("Expected at most %d bytes, got %d", 3*one, c.bytes())
	}
	for id := uint64(1); id <= 2; id++ {
		if _, ok := c.get(id); ok {
			t.Errorf("Expected oldest entry %d to be evicted", id)
		}
	}
	for id := uint64(3); id <= 5; id++ {
		if _, ok := c.get(id); !ok {
			t.Errorf("Expected recent entry %d to survive", id)
		}
	}
}

func TestRecordCacheLRUOrder(t *testing.T) {
	one := cachedSize(cachedFile(1))
	c := newRecordCache(2 * one)

	c.put(cachedFile(1))
	c.put(cachedFile(2))
	if _, ok := c.get(1); !ok {
		t.Fatal("Expected entry 1 present")
	}
	c.put(cachedFile(3))

	if _, ok := c.get(2); ok {
		t.Error("Expected least recently used entry 2 to be evicted")
	}
	if _, ok := c.get(1); !ok {
		t.Error("Expected recently touched entry 1 to survive")
	}
}

func TestRecordCacheOversizedEntry(t *testing.T) {
	c := newRecordCache(64)
	c.put(cachedFile(1))
	if _, ok := c.get(1); ok {
		t.Error("Expected entry larger than the ceiling to be rejected")
	}
	if c.bytes() != 0 {
		t.Errorf("Expected zero bytes used, got %d", c.bytes())
	}
}

func TestRecordCacheReplaceAccounting(t *testing.T) {
	c := newRecordCache(1 << 20)
	c.put(cachedFile(1))
	before := c.bytes()
	c.put(cachedFile(1))
	if c.bytes() != before {
		t.Errorf("Expected replacing an entry to keep accounting stable, got %d then %d", before, c.bytes())
	}
}

func TestRecordCacheRemoveAndPurge(t *testing.T) {
	c := newRecordCache(1 << 20)
	c.put(cachedFile(1))
	c.put(cachedFile(2))

	c.remove(1)
	if _, ok := c.get(1); ok {
		t.Error("Expected removed entry to be gone")
	}

	c.purge()
	if c.len() != 0 || c.bytes() != 0 {
		t.Errorf("Expected empty cache after purge, got %d entries, %d bytes", c.len(), c.bytes())
	}
}

func TestRecordCacheDisabled(t *testing.T) {
	c := newRecordCache(0)
	c.put(cachedFile(1))
	if _, ok := c.get(1); ok {
		t.Error("Expected zero-limit cache to store nothing")
	}
}
