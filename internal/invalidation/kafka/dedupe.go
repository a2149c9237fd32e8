package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seqDedupe remembers the last applied sequence number per tileset.
type seqDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newSeqDedupe(size int) *seqDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &seqDedupe{lru: c}
}

// newer reports whether seq is newer than the last applied one.
func (d *seqDedupe) newer(tileset string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(tileset)
	return !ok || seq > last
}

// commit records seq once its event was applied. Older values never
// overwrite newer ones.
func (d *seqDedupe) commit(tileset string, seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(tileset); ok && last >= seq {
		return
	}
	d.lru.Add(tileset, seq)
}
