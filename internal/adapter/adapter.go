package adapter

import (
	"context"

	"github.com/kurierhq/kurier/internal/ingress"
	"github.com/kurierhq/kurier/internal/item"
)

// CallbackHandler receives normalized decision events from adapters.
// This avoids circular dependencies between adapters and ingress
type CallbackHandler func(ctx context.Context, evt *ingress.Event) (ingress.Ack, error)

// CommandHandler receives moderator slash commands ("/status", "/digest").
type CommandHandler func(ctx context.Context, command string, args []string) (string, error)

// InputAdapter defines the interface for adapters that receive decision
// events from external platforms
type InputAdapter interface {
	// Name returns the adapter name (e.g. "telegram").
	Name() string

	// Start begins listening for events (e.g. starts a long-poll).
	// Must respect context cancellation.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the adapter.
	Stop(ctx context.Context) error

	// Health checks if the adapter is healthy and connected.
	Health(ctx context.Context) error
}

// Notifier pushes outbound messages to the moderation surface.
type Notifier interface {
	// Name returns the adapter name.
	Name() string

	// NotifyReview posts the review card for a newly ingested item,
	// carrying the inline approve/reject affordance.
	NotifyReview(ctx context.Context, it *item.Item) error

	// Publish sends plain text to the publication target.
	Publish(ctx context.Context, content string) error

	// Health checks if the adapter is healthy and can send messages.
	Health(ctx context.Context) error
}
