package cache

import (
	"sync"

	"mason/internal/piece"
)

// PieceCache memoizes finalized pieces by identity. Safe for concurrent
// use: pieces are immutable, so handing the same reference to every
// caller is sound.
type PieceCache struct {
	mu     sync.RWMutex
	byID   map[piece.Identity]piece.Piece
	hits   uint64
	misses uint64
}

// NewPieceCache creates a PieceCache with the given capacity hint.
func NewPieceCache(capHint int) *PieceCache {
	return &PieceCache{byID: make(map[piece.Identity]piece.Piece, capHint)}
}

// Get retrieves the piece cached under id.
func (c *PieceCache) Get(id piece.Identity) (piece.Piece, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byID[id]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return p, ok
}

// Put memoizes p. The first piece stored for an identity wins, so every
// holder of an equal identity observes the identical cached value.
// Returns the piece now in the cache.
func (c *PieceCache) Put(p piece.Piece) piece.Piece {
	if p == nil {
		return nil
	}
	id := p.Identity()
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.byID[id]; ok {
		return prev
	}
	c.byID[id] = p
	return p
}

// Len returns the number of cached pieces.
func (c *PieceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Stats returns hit and miss counts accumulated by Get.
func (c *PieceCache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
