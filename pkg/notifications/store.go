// Package notifications provides per-recipient inbox storage. Notifications
// are a side effect of transitions, never part of engine correctness, so a
// store failure is logged and swallowed by the dispatcher.
package notifications

import (
	"context"

	"github.com/greenlighthq/greenlight/pkg/models"
)

// Store persists recipient inboxes.
type Store interface {
	Append(ctx context.Context, notification *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, recipientID, notificationID string) error
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	Close() error
}
