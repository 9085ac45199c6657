// Package tilecache provides the cache tiers that sit between the tile
// indexer and the upstream tile source.
package tilecache

import (
	"image"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memory is the in-process tier, holding decoded tile images in an LRU.
type Memory struct {
	c *lru.Cache[string, image.Image]
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 512
	}
	c, _ := lru.New[string, image.Image](size)
	return &Memory{c: c}
}

func (m *Memory) Get(key string) (image.Image, bool) {
	return m.c.Get(key)
}

func (m *Memory) Add(key string, img image.Image) {
	m.c.Add(key, img)
}

func (m *Memory) Remove(keys ...string) {
	for _, k := range keys {
		m.c.Remove(k)
	}
}

func (m *Memory) Len() int { return m.c.Len() }

func (m *Memory) Purge() { m.c.Purge() }
