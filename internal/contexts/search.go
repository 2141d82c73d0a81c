package contexts

import (
	"sort"
	"strings"
)

// SearchFilter narrows a conversation search.
type SearchFilter struct {
	Type       Type
	Repository string
	UserID     string
}

// SearchResult is one matching context with its relevance score.
type SearchResult struct {
	Context *Context
	Hits    int
}

// Search scans in-memory contexts for messages containing the query
// (case-insensitive substring), ranked by hit count.
func (m *Manager) Search(query string, filter SearchFilter, limit int) []SearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	m.mu.Lock()
	candidates := make([]*Context, 0, len(m.contexts))
	for _, c := range m.contexts {
		candidates = append(candidates, c)
	}
	m.mu.Unlock()

	var results []SearchResult
	for _, c := range candidates {
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.Repository != "" && c.Repository != filter.Repository {
			continue
		}
		if filter.UserID != "" && c.UserID != filter.UserID {
			continue
		}

		hits := 0
		for _, msg := range c.Recent(0) {
			if strings.Contains(strings.ToLower(msg.Content), query) {
				hits++
			}
		}
		if hits > 0 {
			results = append(results, SearchResult{Context: c, Hits: hits})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Hits > results[j].Hits })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Related finds contexts sharing a repository or participant with the given
// context, most recently active first.
func (m *Manager) Related(id string, limit int) []*Context {
	if limit <= 0 {
		limit = 5
	}

	m.mu.Lock()
	base, ok := m.contexts[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	candidates := make([]*Context, 0, len(m.contexts))
	for cid, c := range m.contexts {
		if cid == id {
			continue
		}
		candidates = append(candidates, c)
	}
	m.mu.Unlock()

	var related []*Context
	for _, c := range candidates {
		sameRepo := base.Repository != "" && c.Repository == base.Repository
		sameUser := base.UserID != "" && c.UserID == base.UserID
		if sameRepo || sameUser {
			related = append(related, c)
		}
	}

	sort.Slice(related, func(i, j int) bool {
		return related[i].lastActive().After(related[j].lastActive())
	})
	if len(related) > limit {
		related = related[:limit]
	}
	return related
}
