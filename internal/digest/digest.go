package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/item"
	"github.com/kurierhq/kurier/internal/metrics"
)

// Store is the slice of the item store the drainer needs: a snapshot of the
// approved collection and consumption of published records.
type Store interface {
	ListApproved() ([]*item.Item, error)
	Delete(id string) error
}

// Publisher delivers the composed digest text.
type Publisher interface {
	Publish(ctx context.Context, content string) error
}

// Drainer composes a digest from the approved collection, publishes it, and
// consumes the published records. Records are removed only after the publish
// succeeded, so a failed run leaves everything in place for the next one.
type Drainer struct {
	store     Store
	publisher Publisher
	maxItems  int
}

func NewDrainer(store Store, publisher Publisher, maxItems int) *Drainer {
	return &Drainer{
		store:     store,
		publisher: publisher,
		maxItems:  maxItems,
	}
}

// Run executes one drain cycle and returns the number of items published.
// An empty approved collection publishes nothing.
func (d *Drainer) Run(ctx context.Context) (int, error) {
	items, err := d.store.ListApproved()
	if err != nil {
		return 0, errors.Wrap(err, "list approved items")
	}
	if len(items) == 0 {
		slog.Debug("Digest skipped, nothing approved")
		return 0, nil
	}
	if d.maxItems > 0 && len(items) > d.maxItems {
		items = items[:d.maxItems]
	}

	if err := d.publisher.Publish(ctx, Compose(items)); err != nil {
		return 0, errors.Wrap(err, "publish digest")
	}

	published := 0
	for _, it := range items {
		if err := d.store.Delete(it.ID); err != nil && !errors.IsCategory(err, errors.ErrNotFound) {
			// Published but not consumed; the next run re-publishes it.
			slog.Warn("Failed to consume published item", "id", it.ID, "error", err)
			continue
		}
		published++
		metrics.ItemsPublished.Inc()
	}

	slog.Info("Digest drained", "published", published, "total", len(items))
	return published, nil
}

// Compose renders the plain-text digest: one line per item with the channel
// title and the first line of the text, plus the origin link when available.
func Compose(items []*item.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Digest: %d approved item(s)\n\n", len(items))

	for i, it := range items {
		var src item.SourceMessage
		if err := json.Unmarshal(it.Payload, &src); err != nil {
			fmt.Fprintf(&b, "%d. %s\n", i+1, it.ID)
			continue
		}

		title := src.ChannelTitle
		if title == "" {
			title = src.ChannelID
		}
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, title, headline(&src))
		if url := src.MessageURL(); url != "" {
			fmt.Fprintf(&b, "\n   %s", url)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func headline(src *item.SourceMessage) string {
	text := src.Text
	if text == "" && src.Media != nil {
		text = src.Media.Caption
	}
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	const maxRunes = 120
	runes := []rune(line)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes]) + "…"
	}
	return line
}
