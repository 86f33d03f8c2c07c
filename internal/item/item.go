package item

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Status is the moderation status of an item. Transitions are forward-only:
// Pending -> Approved or Pending -> Rejected, nothing else. Rejected items
// have no resting collection; rejection removes the record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ModerationRecord is attached exactly once when a decision is applied.
type ModerationRecord struct {
	ModeratorID string    `json:"moderator_id"`
	DecidedAt   time.Time `json:"decided_at"`
	Reason      string    `json:"reason,omitempty"`
}

// Item is one unit of content awaiting or having received a decision.
// Payload is carried opaquely; the store never inspects it.
type Item struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	Payload    json.RawMessage   `json:"payload"`
	Moderation *ModerationRecord `json:"moderation"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SourceMessage is the producer-side payload shape. It exists for the
// boundary collaborators (ingest endpoint, editor notification, digest
// composition); the core store round-trips it as raw JSON.
type SourceMessage struct {
	ChannelID       string         `json:"channel_id"`
	ChannelUsername string         `json:"channel_username,omitempty"`
	ChannelTitle    string         `json:"channel_title,omitempty"`
	MessageID       int64          `json:"message_id"`
	Text            string         `json:"text,omitempty"`
	Media           *Media         `json:"media,omitempty"`
	Author          map[string]any `json:"author,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type Media struct {
	Type    string `json:"type"`
	FileID  string `json:"file_id,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// DeriveID builds the item identifier deterministically from the message
// origin, so re-ingesting the same upstream message cannot create a second
// pending item.
func DeriveID(channelID string, messageID int64) string {
	return fmt.Sprintf("%s:%d", channelID, messageID)
}

// MessageURL returns the t.me link for a source message, or "" when the
// channel has no public username.
func (m *SourceMessage) MessageURL() string {
	if m.ChannelUsername != "" && m.MessageID != 0 {
		return fmt.Sprintf("https://t.me/%s/%d", m.ChannelUsername, m.MessageID)
	}
	return ""
}

// Filename maps an item id to its on-disk record name. QueryEscape is
// deterministic and reversible, and keeps ids with ':' or '/' filesystem-safe.
func Filename(id string) string {
	return url.QueryEscape(id) + ".json"
}

// IDFromFilename reverses Filename.
func IDFromFilename(name string) (string, error) {
	trimmed := strings.TrimSuffix(name, ".json")
	if trimmed == name {
		return "", fmt.Errorf("not an item record: %s", name)
	}
	return url.QueryUnescape(trimmed)
}
