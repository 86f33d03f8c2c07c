package moderation

import (
	"log/slog"
	"time"

	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/item"
)

// Store is the slice of the item store the state machine is allowed to drive.
// It is the only component permitted to relocate or remove records on behalf
// of a human decision.
type Store interface {
	Get(id string) (*item.Item, error)
	MoveToApproved(id string, rec *item.ModerationRecord) (*item.Item, error)
	DeletePending(id string) error
}

// Outcome reports the item's status after a decision. Applied is false when
// the decision had already been made by an earlier delivery and this call was
// absorbed as a confirmed no-op.
type Outcome struct {
	ItemID  string
	Status  item.Status
	Applied bool
}

type Machine struct {
	store Store
}

func NewMachine(store Store) *Machine {
	return &Machine{store: store}
}

// Approve transitions a pending item to approved, attaching the moderation
// record. Redelivered approvals and approvals for ids already settled are
// absorbed: the current status comes back without an error.
func (m *Machine) Approve(id, moderatorID string) (Outcome, error) {
	rec := &item.ModerationRecord{
		ModeratorID: moderatorID,
		DecidedAt:   time.Now().UTC(),
	}

	it, err := m.store.MoveToApproved(id, rec)
	if err == nil {
		return Outcome{ItemID: id, Status: it.Status, Applied: true}, nil
	}
	if !errors.IsCategory(err, errors.ErrNotFound) {
		return Outcome{ItemID: id}, err
	}

	// Not pending anymore. Either a prior approve settled it (report the
	// existing status, keep the original moderation record) or it is gone.
	return m.settled(id)
}

// Reject removes a pending item. Rejection is destructive: there is no
// rejected collection. Rejecting an approved item is an undefined transition
// and is reported, not applied.
func (m *Machine) Reject(id, moderatorID, reason string) (Outcome, error) {
	err := m.store.DeletePending(id)
	if err == nil {
		slog.Info("Item rejected", "id", id, "moderator", moderatorID, "reason", reason)
		return Outcome{ItemID: id, Status: item.StatusRejected, Applied: true}, nil
	}
	if !errors.IsCategory(err, errors.ErrNotFound) {
		return Outcome{ItemID: id}, err
	}

	it, getErr := m.store.Get(id)
	if getErr == nil && it.Status == item.StatusApproved {
		return Outcome{ItemID: id, Status: it.Status},
			errors.InvalidTransition("item " + id + " is already approved")
	}
	if getErr != nil && !errors.IsCategory(getErr, errors.ErrNotFound) {
		return Outcome{ItemID: id}, getErr
	}

	// Already removed by an earlier rejection; confirmed no-op.
	return Outcome{ItemID: id, Status: item.StatusRejected}, nil
}

func (m *Machine) settled(id string) (Outcome, error) {
	it, err := m.store.Get(id)
	if err == nil {
		return Outcome{ItemID: id, Status: it.Status}, nil
	}
	if errors.IsCategory(err, errors.ErrNotFound) {
		// Rejected or consumed; already processed either way.
		return Outcome{ItemID: id, Status: item.StatusRejected}, nil
	}
	return Outcome{ItemID: id}, err
}
