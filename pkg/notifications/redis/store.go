// Package redis provides a Redis-backed notification inbox store.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/greenlighthq/greenlight/pkg/models"
)

const (
	inboxKeyPrefix  = "greenlight:inbox:"
	unreadKeyPrefix = "greenlight:unread:"

	maxInboxLength = 500
)

// Store keeps each recipient's inbox in a Redis list (newest first) with a
// separate unread counter.
type Store struct {
	client redis.UniversalClient
}

func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &Store{client: redis.NewClient(opts)}, nil
}

// NewStoreWithClient wraps an existing client, mainly for tests.
func NewStoreWithClient(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func (s *Store) Append(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}

	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	key := inboxKeyPrefix + notification.RecipientID

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, maxInboxLength-1)
	pipe.Incr(ctx, unreadKeyPrefix+notification.RecipientID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}

	return nil
}

func (s *Store) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > maxInboxLength {
		limit = 50
	}

	values, err := s.client.LRange(ctx, inboxKeyPrefix+recipientID, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	out := make([]*models.Notification, 0, len(values))

	for _, value := range values {
		var notification models.Notification
		if err := json.Unmarshal([]byte(value), &notification); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
		}

		out = append(out, &notification)
	}

	return out, nil
}

// MarkRead rewrites the matching entry in place and decrements the unread
// counter. Inboxes are short (capped), so the linear scan is fine.
func (s *Store) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	key := inboxKeyPrefix + recipientID

	values, err := s.client.LRange(ctx, key, 0, maxInboxLength-1).Result()
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}

	for i, value := range values {
		var notification models.Notification
		if err := json.Unmarshal([]byte(value), &notification); err != nil {
			continue
		}

		if notification.ID != notificationID || notification.IsRead {
			continue
		}

		notification.IsRead = true

		payload, err := json.Marshal(&notification)
		if err != nil {
			return fmt.Errorf("failed to marshal notification: %w", err)
		}

		pipe := s.client.TxPipeline()
		pipe.LSet(ctx, key, int64(i), payload)
		pipe.Decr(ctx, unreadKeyPrefix+recipientID)

		_, err = pipe.Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}

		return nil
	}

	return nil
}

func (s *Store) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.client.Get(ctx, unreadKeyPrefix+recipientID).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to read unread count: %w", err)
	}

	return count, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
