package cmd

import (
	"fmt"
	"strings"

	"github.com/greenlighthq/greenlight/pkg/notifications"
	"github.com/greenlighthq/greenlight/pkg/notifications/memory"
	"github.com/greenlighthq/greenlight/pkg/notifications/redis"
)

// NewNotificationStore selects the inbox backend by URL scheme. An empty URL
// falls back to the in-memory store, which loses inboxes on restart but
// never blocks a transition.
func NewNotificationStore(storeURL string) notifications.Store {
	if storeURL == "" {
		return memory.NewStore()
	}

	if strings.HasPrefix(storeURL, "redis://") || strings.HasPrefix(storeURL, "rediss://") {
		store, err := redis.NewStore(storeURL)
		if err != nil {
			panic(fmt.Errorf("failed to create redis notification store: %w", err))
		}

		return store
	}

	return memory.NewStore()
}
