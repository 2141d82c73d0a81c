package contexts

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// maxContexts caps in-memory contexts; least recently active contexts are
// saved and evicted first.
const maxContexts = 1000

// Manager owns context lifecycle: in-memory LRU, idle expiry, and one JSON
// file per context on disk. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	contexts map[string]*Context
	storage  string
}

// NewManager creates a manager persisting under dir (empty disables
// persistence).
func NewManager(dir string) *Manager {
	m := &Manager{
		contexts: make(map[string]*Context),
		storage:  dir,
	}
	if dir != "" {
		os.MkdirAll(dir, 0755)
	}
	return m
}

// GetOrCreate returns the context for id, loading it from disk or creating
// it fresh.
func (m *Manager) GetOrCreate(id string, ctxType Type) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.contexts[id]; ok {
		c.touch()
		return c
	}

	if c := m.loadLocked(id); c != nil {
		c.touch()
		m.contexts[id] = c
		m.evictIfNeededLocked()
		return c
	}

	c := &Context{
		ID:           id,
		Type:         ctxType,
		Messages:     []Message{},
		Metadata:     map[string]interface{}{},
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	m.contexts[id] = c
	m.evictIfNeededLocked()
	return c
}

// Get returns a context already in memory or on disk, without creating one.
func (m *Manager) Get(id string) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.contexts[id]; ok {
		return c
	}
	if c := m.loadLocked(id); c != nil {
		m.contexts[id] = c
		m.evictIfNeededLocked()
		return c
	}
	return nil
}

// Save persists one context to its JSON file atomically.
func (m *Manager) Save(id string) error {
	m.mu.Lock()
	c, ok := m.contexts[id]
	m.mu.Unlock()
	if !ok || m.storage == "" {
		return nil
	}
	return m.writeFile(c.Snapshot())
}

// Remove deletes a context from memory and disk.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	delete(m.contexts, id)
	m.mu.Unlock()

	if m.storage == "" {
		return nil
	}
	path := m.filePath(id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CleanupExpired saves and drops idle contexts. Returns the number removed.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	now := time.Now()
	var expired []*Context
	for id, c := range m.contexts {
		if c.Expired(now) {
			expired = append(expired, c)
			delete(m.contexts, id)
		}
	}
	m.mu.Unlock()

	for _, c := range expired {
		if m.storage != "" {
			if err := m.writeFile(c.Snapshot()); err != nil {
				slog.Warn("save expired context failed", "context", c.ID, "error", err)
			}
		}
	}
	if len(expired) > 0 {
		slog.Debug("expired contexts cleaned", "count", len(expired))
	}
	return len(expired)
}

// Stats summarizes the store for the status endpoint.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType := map[Type]int{}
	messages := 0
	for _, c := range m.contexts {
		byType[c.Type]++
		messages += c.messageCount()
	}
	return map[string]interface{}{
		"contexts":       len(m.contexts),
		"total_messages": messages,
		"by_type":        byType,
	}
}

// evictIfNeededLocked enforces the LRU cap, saving evicted contexts first.
func (m *Manager) evictIfNeededLocked() {
	for len(m.contexts) > maxContexts {
		var oldest *Context
		var oldestAt time.Time
		for _, c := range m.contexts {
			at := c.lastActive()
			if oldest == nil || at.Before(oldestAt) {
				oldest = c
				oldestAt = at
			}
		}
		if oldest == nil {
			return
		}
		delete(m.contexts, oldest.ID)
		if m.storage != "" {
			c := oldest
			go func() {
				if err := m.writeFile(c.Snapshot()); err != nil {
					slog.Warn("save evicted context failed", "context", c.ID, "error", err)
				}
			}()
		}
	}
}

func (m *Manager) filePath(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, id)
	return filepath.Join(m.storage, name+".json")
}

// loadLocked reads a context file from disk; too-old files are ignored.
func (m *Manager) loadLocked(id string) *Context {
	if m.storage == "" {
		return nil
	}
	data, err := os.ReadFile(m.filePath(id))
	if err != nil {
		return nil
	}
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		slog.Warn("corrupt context file", "context", id, "error", err)
		return nil
	}
	if time.Since(c.LastActivity) > diskTTL {
		return nil
	}
	return &c
}

func (m *Manager) writeFile(c *Context) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	path := m.filePath(c.ID)
	tmp, err := os.CreateTemp(m.storage, "context-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
