// Package contexts stores per-conversation history for the AI layer:
// chat group/private threads and GitHub issue/PR comment threads.
package contexts

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Type classifies where a conversation lives.
type Type string

const (
	TypeGroup   Type = "qq_group"
	TypePrivate Type = "qq_private"
	TypePR      Type = "github_pr"
	TypeIssue   Type = "github_issue"
)

const (
	// maxMessages caps history per context; the first stickySystem system
	// messages survive eviction.
	maxMessages  = 100
	stickySystem = 5

	// idleTTL expires in-memory contexts; diskTTL governs files loaded
	// back from disk.
	idleTTL = 24 * time.Hour
	diskTTL = 72 * time.Hour
)

// Message is one turn in a conversation.
type Message struct {
	Role      string                 `json:"role"` // "system", "user", "assistant"
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Context is one conversation's state. Message access goes through the
// methods below, which hold the per-context lock; the Manager hands the
// same *Context to concurrent handlers.
type Context struct {
	mu sync.Mutex

	ID           string                 `json:"context_id"`
	Type         Type                   `json:"context_type"`
	Repository   string                 `json:"repository,omitempty"`
	IssueNumber  int                    `json:"issue_number,omitempty"`
	GroupID      string                 `json:"group_id,omitempty"`
	UserID       string                 `json:"user_id,omitempty"`
	Messages     []Message              `json:"messages"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	LastActivity time.Time              `json:"last_activity"`
}

// GroupContextID builds the id for a chat group thread.
func GroupContextID(groupID, userID string) string {
	return fmt.Sprintf("qq_group_%s_%s", groupID, userID)
}

// PrivateContextID builds the id for a private chat thread.
func PrivateContextID(userID string) string {
	return fmt.Sprintf("qq_private_%s", userID)
}

// PRContextID builds the id for a pull request thread.
func PRContextID(repository string, number int) string {
	return fmt.Sprintf("github_pr_%s_%d", sanitizeRepo(repository), number)
}

// IssueContextID builds the id for an issue thread.
func IssueContextID(repository string, number int) string {
	return fmt.Sprintf("github_issue_%s_%d", sanitizeRepo(repository), number)
}

// FallbackContextID hashes arbitrary key material for contexts that don't
// fit a deterministic scheme.
func FallbackContextID(ctxType Type, key string) string {
	sum := md5.Sum([]byte(key))
	return fmt.Sprintf("%s_%s", ctxType, hex.EncodeToString(sum[:])[:8])
}

func sanitizeRepo(repository string) string {
	return strings.ReplaceAll(repository, "/", "_")
}

// AddMessage appends a turn and enforces the history cap. System messages
// among the first stickySystem are never evicted; beyond the cap the oldest
// non-sticky message goes first.
func (c *Context) AddMessage(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, msg)
	c.LastActivity = time.Now()

	if len(c.Messages) <= maxMessages {
		return
	}

	var sticky, rest []Message
	for i, m := range c.Messages {
		if m.Role == "system" && i < stickySystem {
			sticky = append(sticky, m)
		} else {
			rest = append(rest, m)
		}
	}
	keep := maxMessages - len(sticky)
	if len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}
	c.Messages = append(sticky, rest...)
}

// RemoveMessages deletes every message matching the predicate and returns
// how many were removed.
func (c *Context) RemoveMessages(match func(Message) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.Messages[:0]
	removed := 0
	for _, m := range c.Messages {
		if match(m) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	c.Messages = kept
	if removed > 0 {
		c.LastActivity = time.Now()
	}
	return removed
}

// SetRepository fills the owning repository if not already set.
func (c *Context) SetRepository(repository string) {
	if repository == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Repository == "" {
		c.Repository = repository
	}
}

// AmendLastAssistant merges metadata into the most recent assistant
// message. Reports whether one was found.
func (c *Context) AmendLastAssistant(meta map[string]interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role != "assistant" {
			continue
		}
		if c.Messages[i].Metadata == nil {
			c.Messages[i].Metadata = make(map[string]interface{}, len(meta))
		}
		for k, v := range meta {
			c.Messages[i].Metadata[k] = v
		}
		return true
	}
	return false
}

// Recent returns a copy of up to n of the latest messages; n <= 0 means
// all of them.
func (c *Context) Recent(n int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]Message(nil), msgs...)
}

// Expired reports whether the context passed its idle TTL.
func (c *Context) Expired(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.LastActivity) > idleTTL
}

func (c *Context) touch() {
	c.mu.Lock()
	c.LastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Context) lastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LastActivity
}

func (c *Context) messageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Messages)
}

// Snapshot copies the context for marshalling outside the lock.
func (c *Context) Snapshot() *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := &Context{
		ID:           c.ID,
		Type:         c.Type,
		Repository:   c.Repository,
		IssueNumber:  c.IssueNumber,
		GroupID:      c.GroupID,
		UserID:       c.UserID,
		Messages:     append([]Message(nil), c.Messages...),
		CreatedAt:    c.CreatedAt,
		LastActivity: c.LastActivity,
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
