package ingress

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is one normalized decision event from the moderator affordance.
// Token is the opaque authenticity token the affordance was configured with;
// Instruction is the compact "<action>:<itemId>" string.
type Event struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Token       string            `json:"token"`
	Instruction string            `json:"instruction"`
	ActorID     string            `json:"actor_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewEvent creates a normalized event with a fresh ULID.
func NewEvent(source, token, instruction, actorID string, metadata map[string]string) Event {
	return Event{
		ID:          ulid.Make().String(),
		Source:      source,
		Token:       token,
		Instruction: instruction,
		ActorID:     actorID,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
}
