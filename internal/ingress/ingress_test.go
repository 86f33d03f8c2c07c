package ingress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/item"
	"github.com/kurierhq/kurier/internal/moderation"
	"github.com/kurierhq/kurier/internal/store"
)

const testToken = "sekrit"

func newTestIngress(t *testing.T) (*Ingress, *store.FileStore) {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir(), store.RuntimeConfig{
		LockTimeout:  2 * time.Second,
		LockRetry:    10 * time.Millisecond,
		LockMaxRetry: 10,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(s.Close)
	return NewIngress(testToken, moderation.NewMachine(s)), s
}

func putPending(t *testing.T, s *store.FileStore, id string) {
	t.Helper()
	payload, _ := json.Marshal(&item.SourceMessage{ChannelID: "chan", MessageID: 1})
	if err := s.Put(&item.Item{ID: id, Payload: payload}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func decisionEvent(token, instruction string) Event {
	return NewEvent("telegram", token, instruction, "mod-1", nil)
}

func TestHandleCallbackApprove(t *testing.T) {
	ing, s := newTestIngress(t)
	putPending(t, s, "chan:1")

	evt := decisionEvent(testToken, "approve:chan:1")
	ack, err := ing.HandleCallback(context.Background(), &evt)
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if !ack.Applied || ack.Status != item.StatusApproved {
		t.Errorf("Expected applied approval, got %+v", ack)
	}
	if ack.ItemID != "chan:1" {
		t.Errorf("Expected item id chan:1, got %s", ack.ItemID)
	}
}

func TestHandleCallbackReject(t *testing.T) {
	ing, s := newTestIngress(t)
	putPending(t, s, "chan:1")

	evt := decisionEvent(testToken, "reject:chan:1")
	ack, err := ing.HandleCallback(context.Background(), &evt)
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if !ack.Applied || ack.Status != item.StatusRejected {
		t.Errorf("Expected applied rejection, got %+v", ack)
	}
}

func TestHandleCallbackBadToken(t *testing.T) {
	ing, s := newTestIngress(t)
	putPending(t, s, "chan:1")

	evt := decisionEvent("wrong", "approve:chan:1")
	_, err := ing.HandleCallback(context.Background(), &evt)
	if !errors.IsCategory(err, errors.ErrUnauthorized) {
		t.Fatalf("Expected Unauthorized, got %v", err)
	}

	// No state change.
	got, getErr := s.Get("chan:1")
	if getErr != nil || got.Status != item.StatusPending {
		t.Errorf("Expected item untouched and pending, got %v / %v", got, getErr)
	}
}

func TestHandleCallbackMalformed(t *testing.T) {
	ing, s := newTestIngress(t)
	putPending(t, s, "chan:1")

	for _, instruction := range []string{"", "approve", "promote:chan:1", "approve:", "approve:   "} {
		evt := decisionEvent(testToken, instruction)
		_, err := ing.HandleCallback(context.Background(), &evt)
		if !errors.IsCategory(err, errors.ErrMalformedRequest) {
			t.Errorf("Instruction %q: expected MalformedRequest, got %v", instruction, err)
		}
	}

	got, err := s.Get("chan:1")
	if err != nil || got.Status != item.StatusPending {
		t.Errorf("Expected item untouched and pending, got %v / %v", got, err)
	}
}

func TestHandleCallbackRedelivery(t *testing.T) {
	ing, s := newTestIngress(t)
	putPending(t, s, "chan:1")

	evt := decisionEvent(testToken, "approve:chan:1")
	if _, err := ing.HandleCallback(context.Background(), &evt); err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}

	redelivered := decisionEvent(testToken, "approve:chan:1")
	ack, err := ing.HandleCallback(context.Background(), &redelivered)
	if err != nil {
		t.Fatalf("Redelivery should be absorbed: %v", err)
	}
	if ack.Applied {
		t.Error("Redelivered decision must not be applied again")
	}
	if ack.Status != item.StatusApproved {
		t.Errorf("Expected approved, got %s", ack.Status)
	}
}

func TestHandleCallbackNilEvent(t *testing.T) {
	ing, _ := newTestIngress(t)

	if _, err := ing.HandleCallback(context.Background(), nil); !errors.IsCategory(err, errors.ErrMalformedRequest) {
		t.Fatalf("Expected MalformedRequest for nil event, got %v", err)
	}
}

func TestParseInstruction(t *testing.T) {
	action, id, err := ParseInstruction("approve:chan:42")
	if err != nil {
		t.Fatalf("ParseInstruction failed: %v", err)
	}
	if action != ActionApprove {
		t.Errorf("Expected approve, got %s", action)
	}
	// Only the first separator splits; the id keeps its own colons.
	if id != "chan:42" {
		t.Errorf("Expected chan:42, got %s", id)
	}

	if _, _, err := ParseInstruction("noseparator"); !errors.IsCategory(err, errors.ErrMalformedRequest) {
		t.Errorf("Expected MalformedRequest, got %v", err)
	}
	if _, _, err := ParseInstruction("ban:chan:42"); !errors.IsCategory(err, errors.ErrMalformedRequest) {
		t.Errorf("Expected MalformedRequest for unknown action, got %v", err)
	}
}
