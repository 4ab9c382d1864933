package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// SearchParams selects a page of search results.
type SearchParams struct {
	Query string

	// Limit is clamped to [1, MaxLimit]; zero means DefaultLimit.
	Limit int

	// Offset skips that many ranked results.
	Offset int
}

// SearchResult is one ranked definition.
type SearchResult struct {
	Name        string `json:"name"`
	Server      string `json:"server"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

// SearchResponse is a page of ranked results.
type SearchResponse struct {
	Results        []SearchResult `json:"results"`
	Count          int            `json:"count"`
	Limit          int            `json:"limit"`
	Offset         int            `json:"offset"`
	HasMore        bool           `json:"has_more"`
	Source         string         `json:"source"`
	FallbackReason string         `json:"fallbackReason,omitempty"`
	Suggestion     string         `json:"suggestion,omitempty"`
}

// Search ranks definitions against the query with BM25, falling back to
// term overlap when BM25 has no matches.
func (c *Catalog) Search(params SearchParams) (SearchResponse, error) {
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return SearchResponse{}, ErrEmptyQuery
	}
	limit := params.Limit
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	offset := max(params.Offset, 0)

	resp := SearchResponse{Limit: limit, Offset: offset, Source: SourceBM25}
	ranked, err := c.searchBM25(query, offset+limit+1)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search %q: %w", query, err)
	}
	if len(ranked) == 0 {
		ranked = c.searchText(query)
		resp.Source = SourceText
		resp.FallbackReason = fallbackReason
	}

	page := ranked[min(offset, len(ranked)):]
	resp.HasMore = len(page) > limit
	page = page[:min(limit, len(page))]

	resp.Results = make([]SearchResult, 0, len(page))
	for _, d := range page {
		resp.Results = append(resp.Results, SearchResult{
			Name:        d.Name,
			Server:      d.Server,
			Description: d.Description,
			Example:     d.Example,
		})
	}
	resp.Count = len(resp.Results)
	if resp.Count == 0 {
		resp.Suggestion = searchSuggestion
	}
	return resp, nil
}

func (c *Catalog) searchBM25(query string, n int) ([]Definition, error) {
	summaries, err := c.index.Search(query, n)
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(summaries))
	for _, s := range summaries {
		i, ok := c.byID[s.ID]
		if !ok {
			i, ok = c.byID[toolID(s.Namespace, s.Name)]
		}
		if ok {
			out = append(out, c.defs[i])
		}
	}
	return out, nil
}

// searchText scores each definition by how many query terms appear in its
// text, with extra weight for name and category hits.
func (c *Catalog) searchText(query string) []Definition {
	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		def   Definition
		score float64
	}
	var hits []scored
	for _, d := range c.defs {
		name := strings.ToLower(d.Name)
		category := strings.ToLower(d.Category)
		text := strings.Join([]string{name, strings.ToLower(d.Description), category, strings.ToLower(d.Server)}, " ")
		score := 0
		for _, term := range terms {
			if !strings.Contains(text, term) {
				continue
			}
			score++
			if strings.Contains(name, term) {
				score += 2
			}
			if category != "" && strings.Contains(category, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{def: d, score: float64(score) / float64(len(terms))})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := make([]Definition, len(hits))
	for i, h := range hits {
		out[i] = h.def
	}
	return out
}
