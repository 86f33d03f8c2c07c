package adapter

import (
	"context"
	"sync"

	"github.com/kurierhq/kurier/internal/item"
)

// NullAdapter is an in-memory adapter used when no platform is enabled and in
// tests. It records everything it is asked to send.
type NullAdapter struct {
	mu        sync.Mutex
	reviews   []string
	published []string
}

func NewNullAdapter() *NullAdapter {
	return &NullAdapter{}
}

func (n *NullAdapter) Name() string {
	return "null"
}

func (n *NullAdapter) Start(ctx context.Context) error {
	return nil
}

func (n *NullAdapter) Stop(ctx context.Context) error {
	return nil
}

func (n *NullAdapter) NotifyReview(ctx context.Context, it *item.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviews = append(n.reviews, it.ID)
	return nil
}

func (n *NullAdapter) Publish(ctx context.Context, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, content)
	return nil
}

func (n *NullAdapter) Health(ctx context.Context) error {
	return nil
}

// Reviews returns the item ids notified so far.
func (n *NullAdapter) Reviews() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.reviews))
	copy(out, n.reviews)
	return out
}

// Published returns the contents published so far.
func (n *NullAdapter) Published() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.published))
	copy(out, n.published)
	return out
}
