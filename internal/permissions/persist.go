package permissions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// fileState is the on-disk shape of permissions.json.
type fileState struct {
	ChatPermissions   map[string]string `json:"chat_permissions"`
	GitHubPermissions map[string]string `json:"github_permissions"`
	ChatGitHubMapping map[string]string `json:"chat_github_mapping"`
	GitHubChatMapping map[string]string `json:"github_chat_mapping"`
	LastUpdated       time.Time         `json:"last_updated"`
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	for user, name := range state.ChatPermissions {
		if level, err := ParseChatLevel(name); err == nil {
			s.chat[user] = level
		}
	}
	for user, name := range state.GitHubPermissions {
		if name == "write" {
			s.github[user] = GitHubWrite
		}
	}
	for chat, gh := range state.ChatGitHubMapping {
		s.chatToGH[chat] = gh
	}
	for gh, chat := range state.GitHubChatMapping {
		s.ghToChat[gh] = chat
	}
	return nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	state := fileState{
		ChatPermissions:   make(map[string]string, len(s.chat)),
		GitHubPermissions: make(map[string]string, len(s.github)),
		ChatGitHubMapping: make(map[string]string, len(s.chatToGH)),
		GitHubChatMapping: make(map[string]string, len(s.ghToChat)),
		LastUpdated:       time.Now(),
	}
	for user, level := range s.chat {
		state.ChatPermissions[user] = level.String()
	}
	for user, level := range s.github {
		state.GitHubPermissions[user] = level.String()
	}
	for chat, gh := range s.chatToGH {
		state.ChatGitHubMapping[chat] = gh
	}
	for gh, chat := range s.ghToChat {
		state.GitHubChatMapping[gh] = chat
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "permissions-*.tmp")
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
	return os.Rename(tmpPath, s.path)
}
