// Package state keeps the per-node deferred materials in a side table keyed
// by node identity, and swaps them into each node's active slot between
// passes.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/material"
)

var ErrNotInitialized = errors.New("state: node not initialized")

// Entry is the deferred state of one node. Pair is nil for nodes without a
// material.
type Entry struct {
	Pair     *material.Pair
	Original core.Material
}

// Cache is safe for concurrent use on distinct nodes.
type Cache struct {
	factory *material.Factory

	mu      sync.RWMutex
	entries map[*core.Node]*Entry
}

func NewCache(factory *material.Factory) *Cache {
	return &Cache{
		factory: factory,
		entries: make(map[*core.Node]*Entry),
	}
}

// EnsureInitialized derives the node's pair on first sight and records the
// material it currently shows. Later calls return immediately; a node that
// changes its Surface must be Forgotten to be derived again.
func (c *Cache) EnsureInitialized(n *core.Node) {
	c.mu.RLock()
	_, ok := c.entries[n]
	c.mu.RUnlock()
	if ok {
		return
	}

	e := &Entry{Original: n.Active}
	if n.Surface != nil {
		e.Pair = c.factory.Derive(n.Surface)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[n]; ok {
		// lost a race with another initializer of the same node
		if e.Pair != nil {
			e.Pair.Dispose()
		}
		return
	}
	c.entries[n] = e
}

func (c *Cache) ActivateNormalDepth(n *core.Node) error {
	return c.activate(n, func(e *Entry) core.Material { return e.Pair.NormalDepth })
}

func (c *Cache) ActivateColor(n *core.Node) error {
	return c.activate(n, func(e *Entry) core.Material { return e.Pair.Color })
}

// ActivateOriginal puts the authored material back into the active slot.
func (c *Cache) ActivateOriginal(n *core.Node) error {
	return c.activate(n, func(e *Entry) core.Material { return e.Original })
}

func (c *Cache) activate(n *core.Node, pick func(*Entry) core.Material) error {
	if !n.HasMaterial() {
		return nil
	}
	c.mu.RLock()
	e, ok := c.entries[n]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s (%s)", ErrNotInitialized, n.Name, n.ID)
	}
	if e.Pair == nil {
		// material assigned after initialization
		return fmt.Errorf("%w: %s (%s) has no derived materials", ErrNotInitialized, n.Name, n.ID)
	}
	n.Active = pick(e)
	return nil
}

func (c *Cache) Entry(n *core.Node) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[n]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Forget drops the entries of root and its descendants, releasing their
// derived materials. It returns the number of entries dropped.
func (c *Cache) Forget(root *core.Node) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	core.ForEachNode(root, func(n *core.Node) {
		e, ok := c.entries[n]
		if !ok {
			return
		}
		c.release(n, e)
		delete(c.entries, n)
		dropped++
	})
	return dropped
}

// Clear drops every entry as Forget does, for shutdown.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	for node, e := range c.entries {
		c.release(node, e)
	}
	c.entries = make(map[*core.Node]*Entry)
	return n
}

func (c *Cache) release(n *core.Node, e *Entry) {
	if e.Pair == nil {
		return
	}
	if n.Active == e.Pair.NormalDepth || n.Active == e.Pair.Color {
		n.Active = e.Original
	}
	e.Pair.Dispose()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
