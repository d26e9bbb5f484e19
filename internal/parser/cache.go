package parser

import (
	"sync"

	"github.com/bnema/dnr-filters/internal/models"
)

// Cache hands out one shared filter per normalized text so containers can
// deduplicate by identity instead of reparsing.
type Cache struct {
	parser *Parser
	mu     sync.RWMutex
	known  map[string]*models.Filter
}

// NewCache creates a cache parsing with p
func NewCache(p *Parser) *Cache {
	if p == nil {
		p = New()
	}
	return &Cache{parser: p, known: make(map[string]*models.Filter)}
}

// FromText returns the known filter for text, parsing it on first use
func (c *Cache) FromText(text string) *models.Filter {
	text = Normalize(text)

	c.mu.RLock()
	f, ok := c.known[text]
	c.mu.RUnlock()
	if ok {
		return f
	}

	f = c.parser.ParseLine(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if known, ok := c.known[text]; ok {
		return known
	}
	c.known[text] = f
	return f
}

// Forget drops a filter once no container references it anymore
func (c *Cache) Forget(f *models.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[f.Text] == f {
		delete(c.known, f.Text)
	}
}

// Len returns the number of cached filters
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.known)
}
