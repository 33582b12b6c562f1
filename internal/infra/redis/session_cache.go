package redis

import (
	"context"
	"encoding/json"
	"time"

	"ai-chat-session-manager/internal/domain/model"
)

// SessionCache keeps the latest transcript per session so a switch does not
// always pay a full table read. Entries expire on their own; the repository
// refreshes them on every save.
type SessionCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSessionCache(client RedisClient, ttl time.Duration) *SessionCache {
	return &SessionCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *SessionCache) StoreMessages(ctx context.Context, sessionID string, msgs []model.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(sessionID), data, c.ttl)
}

func (c *SessionCache) GetMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	data, err := c.client.Get(ctx, key(sessionID))
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := json.Unmarshal([]byte(data), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *SessionCache) Invalidate(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, key(sessionID))
}

func (c *SessionCache) Extend(ctx context.Context, sessionID string) error {
	return c.client.Expire(ctx, key(sessionID), c.ttl)
}

func key(sessionID string) string { return "session_msgs:" + sessionID }
