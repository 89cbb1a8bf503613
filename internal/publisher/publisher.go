// Package publisher announces freshly written blocklists to downstream
// consumers.
package publisher

import (
	"context"
	"time"
)

// Publisher sends payload to topic and returns the broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlocklistUpdated is published after a blocklist has been written.
type BlocklistUpdated struct {
	RunID       string    `json:"run_id"`
	Entries     int       `json:"entries"`
	SHA256      string    `json:"sha256"`
	URIs        []string  `json:"uris"`
	GeneratedAt time.Time `json:"generated_at"`
}
