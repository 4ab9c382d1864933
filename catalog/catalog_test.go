package catalog

import (
	"errors"
	"testing"

	"github.com/jonwraymond/tooldiscovery/tooldoc"
	"github.com/spf13/afero"
)

func testDefinitions() []Definition {
	return []Definition{
		{
			Name:        "generate_diagram",
			Server:      "mermaid",
			Category:    "ui",
			Description: "Render a mermaid diagram to an image",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"source": map[string]any{"type": "string"}},
			},
			Example: `await mermaid.generate_diagram({source: "graph TD; A-->B"})`,
			Notes:   "Large diagrams are saved to the workspace",
		},
		{
			Name:        "generate_image",
			Server:      "nanoBanana",
			Category:    "ai-models",
			Description: "Generate an image from a text prompt",
		},
		{
			Name:        "edit_image",
			Server:      "nanoBanana",
			Category:    "ai-models",
			Description: "Edit an existing image with a text prompt",
		},
		{
			Name:        "query-docs",
			Server:      "context7",
			Category:    "knowledge",
			Description: "Query up-to-date library documentation",
		},
		{
			Name:        "find_symbol",
			Server:      "serena",
			Category:    "knowledge",
			Description: "Find a code symbol by name",
		},
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(testDefinitions(), Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_SkipsInvalidAndDuplicates(t *testing.T) {
	defs := append(testDefinitions(),
		Definition{Name: "no_server", Description: "x"},
		Definition{Name: "generate_image", Server: "nanoBanana", Description: "duplicate"},
	)
	c, err := New(defs, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Len() != len(testDefinitions()) {
		t.Errorf("Len() = %d, want %d", c.Len(), len(testDefinitions()))
	}
	d, _ := c.Lookup("generate_image")
	if d.Description == "duplicate" {
		t.Error("duplicate replaced the original definition")
	}
}

func TestSearch_BM25(t *testing.T) {
	c := newTestCatalog(t)
	resp, err := c.Search(SearchParams{Query: "image"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Source != SourceBM25 {
		t.Errorf("Source = %q, want %q", resp.Source, SourceBM25)
	}
	if resp.Count == 0 || resp.Count != len(resp.Results) {
		t.Fatalf("Count = %d, Results = %d", resp.Count, len(resp.Results))
	}
	for _, r := range resp.Results {
		if r.Server != "nanoBanana" && r.Server != "mermaid" {
			t.Errorf("unexpected result %+v", r)
		}
	}
	if resp.Limit != DefaultLimit || resp.Offset != 0 {
		t.Errorf("Limit = %d, Offset = %d", resp.Limit, resp.Offset)
	}
	if resp.Suggestion != "" || resp.FallbackReason != "" {
		t.Errorf("unexpected fallback fields: %+v", resp)
	}
}

func TestSearch_Pagination(t *testing.T) {
	c := newTestCatalog(t)
	first, err := c.Search(SearchParams{Query: "image", Limit: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if first.Count != 2 || !first.HasMore {
		t.Fatalf("first page = %+v, want 2 results and more", first)
	}
	second, err := c.Search(SearchParams{Query: "image", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if second.Count != 1 || second.HasMore {
		t.Errorf("second page = %+v, want 1 result and no more", second)
	}
	seen := map[string]bool{}
	for _, r := range append(first.Results, second.Results...) {
		if seen[r.Name] {
			t.Errorf("%s appears on both pages", r.Name)
		}
		seen[r.Name] = true
	}
}

func TestSearch_TextFallback(t *testing.T) {
	c := newTestCatalog(t)
	resp, err := c.Search(SearchParams{Query: "ermai"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Source != SourceText || resp.FallbackReason == "" {
		t.Fatalf("response = %+v, want text fallback", resp)
	}
	if resp.Count != 1 || resp.Results[0].Name != "generate_diagram" {
		t.Errorf("Results = %+v", resp.Results)
	}
	if resp.Results[0].Example == "" {
		t.Error("Example is empty")
	}
}

func TestSearch_NoResults(t *testing.T) {
	c := newTestCatalog(t)
	resp, err := c.Search(SearchParams{Query: "qqqzzz"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Count != 0 || resp.Results == nil {
		t.Errorf("Results = %#v, want empty non-nil", resp.Results)
	}
	if resp.Suggestion == "" {
		t.Error("Suggestion is empty")
	}
}

func TestSearch_Limits(t *testing.T) {
	c := newTestCatalog(t)
	tests := []struct {
		limit, want int
	}{
		{0, DefaultLimit},
		{-3, DefaultLimit},
		{5, 5},
		{500, MaxLimit},
	}
	for _, tt := range tests {
		resp, err := c.Search(SearchParams{Query: "image", Limit: tt.limit})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if resp.Limit != tt.want {
			t.Errorf("Limit(%d) = %d, want %d", tt.limit, resp.Limit, tt.want)
		}
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := newTestCatalog(t)
	if _, err := c.Search(SearchParams{Query: "  "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Search() error = %v, want ErrEmptyQuery", err)
	}
}

func TestSearchText_Ranking(t *testing.T) {
	c := newTestCatalog(t)
	got := c.searchText("knowledge symbol")
	if len(got) < 2 {
		t.Fatalf("searchText() = %d results, want at least 2", len(got))
	}
	if got[0].Name != "find_symbol" {
		t.Errorf("top result = %s, want find_symbol", got[0].Name)
	}
}

func TestLookup(t *testing.T) {
	c := newTestCatalog(t)
	d, err := c.Lookup("generate_diagram")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if d.Server != "mermaid" || d.InputSchema["type"] != "object" {
		t.Errorf("Lookup() = %+v", d)
	}
	if byID, err := c.Lookup("context7:query-docs"); err != nil || byID.Name != "query-docs" {
		t.Errorf("Lookup(id) = %+v, %v", byID, err)
	}

	_, err = c.Lookup("missing")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("Lookup(missing) error = %v, want ErrToolNotFound", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || err.Error() != "Tool not found: missing" || nf.Suggestion() == "" {
		t.Errorf("Lookup(missing) error = %v", err)
	}
}

func TestDescribe(t *testing.T) {
	c := newTestCatalog(t)
	doc, err := c.Describe("generate_diagram", tooldoc.DetailFull)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if doc.Tool == nil || doc.Tool.Name != "generate_diagram" {
		t.Errorf("doc.Tool = %v", doc.Tool)
	}
	if doc.Summary != "Render a mermaid diagram to an image" {
		t.Errorf("doc.Summary = %q", doc.Summary)
	}
}

func TestCategories(t *testing.T) {
	c := newTestCatalog(t)
	got := c.Categories()
	want := []string{"ai-models", "knowledge", "ui"}
	if len(got) != len(want) {
		t.Fatalf("Categories() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Categories()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if n := len(c.InCategory("knowledge")); n != 2 {
		t.Errorf("InCategory(knowledge) = %d, want 2", n)
	}
}

func TestLoadDirThenNew(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/registry/ui/mermaid/generate_diagram.yaml", []byte(`
name: generate_diagram
server: mermaid
category: ui
description: Render a diagram
`), 0o644)
	c, err := func() (*Catalog, error) {
		defs, err := LoadDir(fs, "/registry", nil)
		if err != nil {
			return nil, err
		}
		return New(defs, Options{})
	}()
	if err != nil {
		t.Fatalf("load error = %v", err)
	}
	if _, err := c.Lookup("generate_diagram"); err != nil {
		t.Errorf("Lookup() error = %v", err)
	}
}
