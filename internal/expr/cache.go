package expr

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache memoizes parsed expressions by their source text. Style rules are
// re-read every frame, so parsing once per distinct rule matters.
type Cache struct {
	lru *lru.Cache[string, *Expression]
}

func NewCache(size int) *Cache {
	if size <= 0 {
		size = 256
	}
	c, _ := lru.New[string, *Expression](size)
	return &Cache{lru: c}
}

// Parse returns the cached expression for src, parsing it on a miss.
// Parse failures are not cached.
func (c *Cache) Parse(src []byte) (*Expression, error) {
	key := string(src)
	if e, ok := c.lru.Get(key); ok {
		return e, nil
	}
	e, err := Parse(src)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, e)
	return e, nil
}

func (c *Cache) Len() int { return c.lru.Len() }
