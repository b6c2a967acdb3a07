// Package memory provides an in-memory notification store for tests and
// local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
)

type Store struct {
	mu      sync.RWMutex
	inboxes map[string][]*models.Notification
}

func NewStore() *Store {
	return &Store{inboxes: make(map[string][]*models.Notification)}
}

func (s *Store) Append(ctx context.Context, notification *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}

	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	// Newest first, matching the redis store's LPUSH order.
	inbox := s.inboxes[notification.RecipientID]
	s.inboxes[notification.RecipientID] = append([]*models.Notification{notification}, inbox...)

	return nil
}

func (s *Store) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inbox := s.inboxes[recipientID]

	if limit <= 0 || limit > len(inbox) {
		limit = len(inbox)
	}

	out := make([]*models.Notification, limit)
	copy(out, inbox[:limit])

	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, notification := range s.inboxes[recipientID] {
		if notification.ID == notificationID {
			notification.IsRead = true

			return nil
		}
	}

	return nil
}

func (s *Store) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64

	for _, notification := range s.inboxes[recipientID] {
		if !notification.IsRead {
			count++
		}
	}

	return count, nil
}

func (s *Store) Close() error {
	return nil
}
