package chat

import "context"

// API is the slice of the chat client the message and status layers
// depend on.
type API interface {
	SendGroupMsg(ctx context.Context, groupID string, segments []Segment) (int64, error)
	SendPrivateMsg(ctx context.Context, userID string, segments []Segment) (int64, error)
	DeleteMsg(ctx context.Context, messageID int64) error
}

// StatusPoster posts and recalls transient operation status messages in
// one group. It satisfies the agent loop's status sink.
type StatusPoster struct {
	client  API
	groupID string
}

// NewStatusPoster targets a group for status messages.
func NewStatusPoster(client API, groupID string) *StatusPoster {
	return &StatusPoster{client: client, groupID: groupID}
}

// PostStatus sends a status message and returns its message id.
func (p *StatusPoster) PostStatus(ctx context.Context, text string) (int64, error) {
	return p.client.SendGroupMsg(ctx, p.groupID, []Segment{TextSeg(text)})
}

// RecallStatus deletes a previously posted status message.
func (p *StatusPoster) RecallStatus(ctx context.Context, messageID int64) error {
	return p.client.DeleteMsg(ctx, messageID)
}
