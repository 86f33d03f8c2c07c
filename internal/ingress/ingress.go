package ingress

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/item"
	"github.com/kurierhq/kurier/internal/metrics"
	"github.com/kurierhq/kurier/internal/moderation"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// rejectReasonManual marks rejections coming from the inline affordance as
// opposed to automated cleanup.
const rejectReasonManual = "manual"

// Ack is what the affordance shows the moderator after a decision lands.
// Applied is false when the decision had already been absorbed.
type Ack struct {
	ItemID  string
	Status  item.Status
	Applied bool
}

// Ingress authenticates and parses decision events and is the sole caller of
// the moderation state machine. It keeps no dedup table: redelivered events
// are absorbed by the machine's idempotent transitions.
type Ingress struct {
	secret  []byte
	machine *moderation.Machine
}

func NewIngress(secret string, machine *moderation.Machine) *Ingress {
	return &Ingress{
		secret:  []byte(secret),
		machine: machine,
	}
}

// HandleCallback processes one decision event. The authenticity check runs
// before any parsing; a mismatch changes no state.
func (i *Ingress) HandleCallback(ctx context.Context, evt *Event) (Ack, error) {
	if evt == nil {
		return Ack{}, errors.Malformed("event is nil")
	}
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}

	if subtle.ConstantTimeCompare([]byte(evt.Token), i.secret) != 1 {
		slog.Warn("Callback rejected, bad token", "event", evt.ID, "source", evt.Source)
		metrics.CallbacksRejected.WithLabelValues("unauthorized").Inc()
		return Ack{}, errors.Unauthorized("callback token mismatch")
	}

	action, itemID, err := ParseInstruction(evt.Instruction)
	if err != nil {
		slog.Warn("Callback rejected, malformed instruction",
			"event", evt.ID, "instruction", evt.Instruction)
		metrics.CallbacksRejected.WithLabelValues("malformed").Inc()
		return Ack{}, err
	}

	var out moderation.Outcome
	switch action {
	case ActionApprove:
		out, err = i.machine.Approve(itemID, evt.ActorID)
	case ActionReject:
		out, err = i.machine.Reject(itemID, evt.ActorID, rejectReasonManual)
	}
	if err != nil {
		slog.Error("Decision not applied",
			"event", evt.ID, "action", action, "item", itemID,
			"condition", errors.Category(err))
		return Ack{ItemID: itemID, Status: out.Status}, err
	}

	if out.Applied {
		switch action {
		case ActionApprove:
			metrics.ItemsApproved.Inc()
		case ActionReject:
			metrics.ItemsRejected.Inc()
		}
	}

	slog.Info("Decision processed",
		"event", evt.ID, "action", action, "item", itemID,
		"status", out.Status, "applied", out.Applied)
	return Ack{ItemID: itemID, Status: out.Status, Applied: out.Applied}, nil
}

// ParseInstruction splits "<action>:<itemId>". Item ids themselves contain
// ':' so only the first separator is significant.
func ParseInstruction(instruction string) (action, itemID string, err error) {
	action, itemID, found := strings.Cut(instruction, ":")
	if !found {
		return "", "", errors.Malformed("instruction has no separator")
	}
	if action != ActionApprove && action != ActionReject {
		return "", "", errors.Malformed("unknown action " + action)
	}
	if strings.TrimSpace(itemID) == "" {
		return "", "", errors.Malformed("instruction has empty item id")
	}
	return action, itemID, nil
}
