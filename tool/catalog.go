package tool

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultCategory is used when a tool is registered without a category.
const DefaultCategory = "general"

type catalogEntry struct {
	tool         Tool
	category     string
	registeredAt time.Time
}

// Catalog is a process-wide registry of tools grouped by category. Agent
// factories resolve tool names from configuration against it.
type Catalog struct {
	mu         sync.RWMutex
	tools      map[string]catalogEntry
	categories map[string][]string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tools:      make(map[string]catalogEntry),
		categories: make(map[string][]string),
	}
}

// RegisterTool adds t under category.
func (c *Catalog) RegisterTool(t Tool, category string) error {
	if category == "" {
		category = DefaultCategory
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tools[t.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name())
	}
	c.tools[t.Name()] = catalogEntry{tool: t, category: category, registeredAt: time.Now().UTC()}
	c.categories[category] = append(c.categories[category], t.Name())

	return nil
}

// Get returns the tool registered under name.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tools[name]
	return e.tool, ok
}

// Category returns the category a tool was registered under.
func (c *Catalog) Category(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tools[name]
	return e.category, ok
}

// ToolsByCategory returns the tools of a category in registration order.
func (c *Catalog) ToolsByCategory(categories ...string) []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Tool
	for _, cat := range categories {
		for _, name := range c.categories[cat] {
			out = append(out, c.tools[name].tool)
		}
	}
	return out
}

// Categories returns all category names sorted.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.categories))
	for cat := range c.categories {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Resolve looks up every name and fails on the first unknown one.
func (c *Catalog) Resolve(names ...string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := c.Get(name)
		if !ok {
			return nil, fmt.Errorf("tool %q not found in catalog", name)
		}
		out = append(out, t)
	}
	return out, nil
}
