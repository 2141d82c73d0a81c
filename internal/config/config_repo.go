package config

// Repo returns the configuration for a repository full name ("owner/repo"),
// or nil when the repository is not mapped.
func (c *Config) Repo(fullName string) *RepoConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Repos[fullName]
}

// RepoEnabled reports whether a mapped repository accepts events.
// Unmapped repositories are disabled.
func (c *Config) RepoEnabled(fullName string) bool {
	rc := c.Repo(fullName)
	if rc == nil {
		return false
	}
	return rc.IsEnabled()
}

// RepoSecret returns the webhook secret for a repository, or "".
func (c *Config) RepoSecret(fullName string) string {
	if rc := c.Repo(fullName); rc != nil {
		return rc.WebhookSecret
	}
	return ""
}

// RepoGroups returns the chat group ids a repository notifies.
func (c *Config) RepoGroups(fullName string) []string {
	if rc := c.Repo(fullName); rc != nil {
		return rc.GroupIDs
	}
	return nil
}

// RepoDisplayName returns the configured alias, or the full name.
func (c *Config) RepoDisplayName(fullName string) string {
	if rc := c.Repo(fullName); rc != nil && rc.Alias != "" {
		return rc.Alias
	}
	return fullName
}

// UserChatID resolves a GitHub username to its bound chat user id, or "".
func (c *Config) UserChatID(githubUser string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Users[githubUser]
}

// IsEnabled reports whether the repository accepts events.
// A missing "enabled" key counts as enabled.
func (rc *RepoConfig) IsEnabled() bool {
	return rc.Enabled == nil || *rc.Enabled
}

// MessageTypeAllowed reports whether a message type passes the repository's
// allow list. An empty list allows every type.
func (rc *RepoConfig) MessageTypeAllowed(msgType string) bool {
	if len(rc.AllowedTypes) == 0 {
		return true
	}
	for _, t := range rc.AllowedTypes {
		if t == msgType {
			return true
		}
	}
	return false
}

// NotifiesChannel reports whether a notification channel (e.g. "qq") is
// enabled for the repository.
func (rc *RepoConfig) NotifiesChannel(channel string) bool {
	for _, ch := range rc.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}
