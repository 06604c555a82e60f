package tilestream

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type revisionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newRevisionDedupe(size int) *revisionDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &revisionDedupe{lru: c}
}

// returns true if rev is greater than the last one seen for key; revision 0
// is unversioned and always applies
func (d *revisionDedupe) shouldApply(key string, rev uint64) bool {
	if rev == 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && rev <= last {
		return false
	}
	d.lru.Add(key, rev)
	return true
}

// forget drops the history of key so a replay of it applies again.
func (d *revisionDedupe) forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lru.Remove(key)
}
