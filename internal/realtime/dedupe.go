package realtime

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type versionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newVersionDedupe(size int) *versionDedupe {
	if size <= 0 {
		size = 8192
	}
	c, _ := lru.New[string, uint64](size)
	return &versionDedupe{lru: c}
}

// shouldApply reports whether seq advances past the last seen sequence for
// key. seq 0 means the producer did not number the event; always apply.
func (d *versionDedupe) shouldApply(key string, seq uint64) bool {
	if seq == 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && seq <= last {
		return false
	}
	d.lru.Add(key, seq)
	return true
}
