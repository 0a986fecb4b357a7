package locator

import "sync"

// Cache remembers which option of an Alternatives locator last matched.
// A binding is never revalidated against the other options; callers reset
// it with Invalidate or InvalidateAll.
type Cache struct {
	mu       sync.RWMutex
	bindings map[*Alternatives]int
}

// NewCache creates an empty resolution cache.
func NewCache() *Cache {
	return &Cache{bindings: make(map[*Alternatives]int)}
}

// Get returns the bound option index for alt.
func (c *Cache) Get(alt *Alternatives) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.bindings[alt]
	return i, ok
}

// Set binds alt to its option at index.
func (c *Cache) Set(alt *Alternatives, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[alt] = index
}

// Invalidate drops the binding of alt.
func (c *Cache) Invalidate(alt *Alternatives) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bindings, alt)
}

// InvalidateAll drops every binding.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = make(map[*Alternatives]int)
}

// Len reports the number of bound locators.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bindings)
}
