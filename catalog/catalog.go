package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jonwraymond/tooldiscovery/index"
	"github.com/jonwraymond/tooldiscovery/search"
	"github.com/jonwraymond/tooldiscovery/tooldoc"
	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Search limits.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Result sources.
const (
	SourceBM25 = "bm25"
	SourceText = "text"
)

const (
	fallbackReason   = "No BM25 matches - using text search"
	searchSuggestion = "Try broader terms like 'image', 'code search', 'diagram', or browse categories: game-dev, knowledge, ai-models, web, ui"
	lookupSuggestion = "Use search_tools to find available tools first"
)

// Errors returned by Search and Lookup.
var (
	ErrEmptyQuery   = errors.New("search query is required")
	ErrToolNotFound = errors.New("tool not found")
)

// NotFoundError is returned by Lookup for unknown names.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return "Tool not found: " + e.Name
}

// Suggestion is a hint for the caller.
func (e *NotFoundError) Suggestion() string {
	return lookupSuggestion
}

// Is matches ErrToolNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}

// Options configures a Catalog.
type Options struct {
	// Logger is optional.
	Logger *zap.Logger
}

// Catalog indexes definitions for search and lookup.
//
// Contract:
// - Concurrency: safe for concurrent use; the catalog is immutable after New.
// - Errors: Search rejects empty queries with ErrEmptyQuery; Lookup misses match ErrToolNotFound.
type Catalog struct {
	defs   []Definition
	byID   map[string]int
	byName map[string]int
	index  index.Index
	docs   tooldoc.Store
	logger *zap.Logger
}

// New indexes defs. Definitions that fail validation or repeat an earlier
// server and name are skipped with a warning.
func New(defs []Definition, opts Options) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := index.NewInMemoryIndex(index.IndexOptions{
		Searcher: search.NewBM25Searcher(search.BM25Config{}),
	})
	c := &Catalog{
		byID:   make(map[string]int, len(defs)),
		byName: make(map[string]int, len(defs)),
		index:  idx,
		docs:   tooldoc.NewInMemoryStore(tooldoc.StoreOptions{Index: idx}),
		logger: logger,
	}

	for _, d := range defs {
		if err := d.Validate(); err != nil {
			logger.Warn("skipping tool definition", zap.String("name", d.Name), zap.Error(err))
			continue
		}
		id := d.ID()
		if _, dup := c.byID[id]; dup {
			logger.Warn("skipping duplicate tool definition", zap.String("id", id))
			continue
		}
		if err := c.register(d); err != nil {
			return nil, fmt.Errorf("index %s: %w", id, err)
		}
		c.byID[id] = len(c.defs)
		if _, seen := c.byName[d.Name]; !seen {
			c.byName[d.Name] = len(c.defs)
		}
		c.defs = append(c.defs, d)
	}
	return c, nil
}

func (c *Catalog) register(d Definition) error {
	schema := d.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	var tags []string
	if d.Category != "" {
		tags = []string{d.Category}
	}
	tool := model.Tool{
		Tool: mcp.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		},
		Namespace: d.Server,
		Tags:      model.NormalizeTags(tags),
	}
	if err := c.index.RegisterTool(tool, model.NewLocalBackend(d.Server)); err != nil {
		return err
	}
	store, ok := any(c.docs).(docRegistrar)
	if !ok {
		return nil
	}
	return store.RegisterDoc(d.ID(), tooldoc.DocEntry{
		Summary: d.Description,
		Notes:   d.Notes,
	})
}

// docRegistrar is implemented by the in-memory documentation store.
type docRegistrar interface {
	RegisterDoc(id string, entry tooldoc.DocEntry) error
}

// Len returns the number of indexed definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Definitions returns every indexed definition in load order.
func (c *Catalog) Definitions() []Definition {
	return append([]Definition(nil), c.defs...)
}

// Categories returns the distinct categories, sorted.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range c.defs {
		if d.Category != "" && !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	sort.Strings(out)
	return out
}

// InCategory returns the definitions in category, in load order.
func (c *Catalog) InCategory(category string) []Definition {
	var out []Definition
	for _, d := range c.defs {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// Lookup returns the first definition named name. IDs of the form
// "server:name" select a specific server.
func (c *Catalog) Lookup(name string) (Definition, error) {
	if i, ok := c.byName[name]; ok {
		return c.defs[i], nil
	}
	if i, ok := c.byID[name]; ok {
		return c.defs[i], nil
	}
	return Definition{}, &NotFoundError{Name: name}
}

// Describe returns the documentation for the named definition.
func (c *Catalog) Describe(name string, level tooldoc.DetailLevel) (tooldoc.ToolDoc, error) {
	d, err := c.Lookup(name)
	if err != nil {
		return tooldoc.ToolDoc{}, err
	}
	return c.docs.DescribeTool(d.ID(), level)
}

// Index returns the underlying search index.
func (c *Catalog) Index() index.Index {
	return c.index
}

// Docs returns the underlying documentation store.
func (c *Catalog) Docs() tooldoc.Store {
	return c.docs
}
