// Package permissions implements the two-tier permission model: chat users
// carry a graded level, GitHub identities carry a write grant, and the two
// tiers are linked by account bindings.
package permissions

import (
	"fmt"
	"sync"
)

// ChatLevel orders chat-user permissions.
type ChatLevel int

const (
	ChatNone ChatLevel = iota
	ChatRead
	ChatWrite
	ChatSuper
)

func (l ChatLevel) String() string {
	switch l {
	case ChatRead:
		return "read"
	case ChatWrite:
		return "write"
	case ChatSuper:
		return "superuser"
	default:
		return "none"
	}
}

// ParseChatLevel maps a level name to a ChatLevel.
func ParseChatLevel(s string) (ChatLevel, error) {
	switch s {
	case "none":
		return ChatNone, nil
	case "read":
		return ChatRead, nil
	case "write":
		return ChatWrite, nil
	case "superuser", "su":
		return ChatSuper, nil
	}
	return ChatNone, fmt.Errorf("unknown permission level %q", s)
}

// GitHubLevel is the code-host tier: either no grant or a write grant.
type GitHubLevel int

const (
	GitHubNone GitHubLevel = iota
	GitHubWrite
)

func (l GitHubLevel) String() string {
	if l == GitHubWrite {
		return "write"
	}
	return "none"
}

// Store holds both permission tiers and the account bindings between them.
// Mutations persist to disk. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	chat       map[string]ChatLevel   // chat user id -> level
	github     map[string]GitHubLevel // github username -> level
	chatToGH   map[string]string      // chat user id -> github username
	ghToChat   map[string]string      // github username -> chat user id
	superusers map[string]bool
	path       string
}

// NewStore creates a store persisting to path and seeds the superuser set.
// Existing state on disk is loaded first; superusers are then overlaid.
func NewStore(path string, superusers []string) (*Store, error) {
	s := &Store{
		chat:       make(map[string]ChatLevel),
		github:     make(map[string]GitHubLevel),
		chatToGH:   make(map[string]string),
		ghToChat:   make(map[string]string),
		superusers: make(map[string]bool),
		path:       path,
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	for _, id := range superusers {
		s.superusers[id] = true
		s.chat[id] = ChatSuper
	}
	return s, nil
}

// IsSuperuser reports whether the chat user is a configured superuser.
func (s *Store) IsSuperuser(chatUser string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.superusers[chatUser] || s.chat[chatUser] == ChatSuper
}

// ChatLevel returns the stored level for a chat user, without the binding
// upgrade. Unknown users are ChatNone.
func (s *Store) ChatLevel(chatUser string) ChatLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.superusers[chatUser] {
		return ChatSuper
	}
	return s.chat[chatUser]
}

// EffectiveChatLevel returns the level used for authorization decisions.
// A chat user with no explicit grant but a bound GitHub identity can read.
func (s *Store) EffectiveChatLevel(chatUser string) ChatLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.superusers[chatUser] {
		return ChatSuper
	}
	level := s.chat[chatUser]
	if level == ChatNone {
		if _, bound := s.chatToGH[chatUser]; bound {
			return ChatRead
		}
	}
	return level
}

// HasChatLevel reports whether the chat user meets or exceeds a level.
func (s *Store) HasChatLevel(chatUser string, level ChatLevel) bool {
	return s.EffectiveChatLevel(chatUser) >= level
}

// CanWrite reports whether a chat user may perform write operations:
// WRITE or SU on the chat tier, or a bound GitHub identity with a write grant.
func (s *Store) CanWrite(chatUser string) bool {
	if s.EffectiveChatLevel(chatUser) >= ChatWrite {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if gh, ok := s.chatToGH[chatUser]; ok {
		return s.github[gh] == GitHubWrite
	}
	return false
}

// GitHubLevel returns the grant for a GitHub username.
func (s *Store) GitHubLevel(username string) GitHubLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.github[username]
}

// SetChatLevel grants a chat user a level and persists.
func (s *Store) SetChatLevel(chatUser string, level ChatLevel) error {
	s.mu.Lock()
	if level == ChatNone {
		delete(s.chat, chatUser)
	} else {
		s.chat[chatUser] = level
	}
	s.mu.Unlock()
	return s.save()
}

// SetGitHubLevel grants a GitHub identity a level and persists.
func (s *Store) SetGitHubLevel(username string, level GitHubLevel) error {
	s.mu.Lock()
	if level == GitHubNone {
		delete(s.github, username)
	} else {
		s.github[username] = level
	}
	s.mu.Unlock()
	return s.save()
}

// Bind links a chat user to a GitHub identity in both directions.
// Existing bindings on either side are replaced.
func (s *Store) Bind(chatUser, githubUser string) error {
	s.mu.Lock()
	if old, ok := s.chatToGH[chatUser]; ok {
		delete(s.ghToChat, old)
	}
	if old, ok := s.ghToChat[githubUser]; ok {
		delete(s.chatToGH, old)
	}
	s.chatToGH[chatUser] = githubUser
	s.ghToChat[githubUser] = chatUser
	s.mu.Unlock()
	return s.save()
}

// Unbind removes a chat user's binding, if any.
func (s *Store) Unbind(chatUser string) error {
	s.mu.Lock()
	if gh, ok := s.chatToGH[chatUser]; ok {
		delete(s.ghToChat, gh)
		delete(s.chatToGH, chatUser)
	}
	s.mu.Unlock()
	return s.save()
}

// BoundGitHub returns the GitHub username bound to a chat user, or "".
func (s *Store) BoundGitHub(chatUser string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatToGH[chatUser]
}

// BoundChat returns the chat user bound to a GitHub username, or "".
func (s *Store) BoundChat(githubUser string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ghToChat[githubUser]
}

// UserInfo is a snapshot of one chat user's permission state.
type UserInfo struct {
	ChatUser    string    `json:"chat_user"`
	Level       ChatLevel `json:"level"`
	Effective   ChatLevel `json:"effective_level"`
	GitHubUser  string    `json:"github_user,omitempty"`
	GitHubLevel string    `json:"github_level,omitempty"`
	Superuser   bool      `json:"superuser"`
}

// Info returns the permission snapshot for a chat user.
func (s *Store) Info(chatUser string) UserInfo {
	info := UserInfo{
		ChatUser:  chatUser,
		Level:     s.ChatLevel(chatUser),
		Effective: s.EffectiveChatLevel(chatUser),
		Superuser: s.IsSuperuser(chatUser),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if gh, ok := s.chatToGH[chatUser]; ok {
		info.GitHubUser = gh
		info.GitHubLevel = s.github[gh].String()
	}
	return info
}

// Stats reports store sizes for the status endpoint.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		"chat_users":   len(s.chat),
		"github_users": len(s.github),
		"bindings":     len(s.chatToGH),
		"superusers":   len(s.superusers),
	}
}
