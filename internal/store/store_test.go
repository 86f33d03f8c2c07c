package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/item"
)

func testRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		LockTimeout:  2 * time.Second,
		LockRetry:    10 * time.Millisecond,
		LockMaxRetry: 10,
	}
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), testRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testItem(id string) *item.Item {
	payload, _ := json.Marshal(&item.SourceMessage{
		ChannelID: "chan",
		MessageID: 42,
		Text:      "hello",
	})
	return &item.Item{ID: id, Payload: payload}
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put(testItem("chan:42")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get("chan:42")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != item.StatusPending {
		t.Errorf("Expected status pending, got %s", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be stamped")
	}
}

func TestPutDuplicateAbsorbed(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put(testItem("chan:42")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	err := s.Put(testItem("chan:42"))
	if !errors.IsCategory(err, errors.ErrAlreadyExists) {
		t.Fatalf("Expected AlreadyExists, got %v", err)
	}
}

func TestPutDuplicateAfterApproval(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put(testItem("chan:42")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.MoveToApproved("chan:42", &item.ModerationRecord{ModeratorID: "m1"}); err != nil {
		t.Fatalf("MoveToApproved failed: %v", err)
	}

	err := s.Put(testItem("chan:42"))
	if !errors.IsCategory(err, errors.ErrAlreadyExists) {
		t.Fatalf("Expected AlreadyExists for approved id, got %v", err)
	}
}

func TestMoveToApproved(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put(testItem("chan:42")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	it, err := s.MoveToApproved("chan:42", &item.ModerationRecord{ModeratorID: "m1", DecidedAt: time.Now()})
	if err != nil {
		t.Fatalf("MoveToApproved failed: %v", err)
	}
	if it.Status != item.StatusApproved {
		t.Errorf("Expected approved, got %s", it.Status)
	}
	if it.Moderation == nil || it.Moderation.ModeratorID != "m1" {
		t.Error("Expected moderation record to be stamped")
	}

	// Record must rest in exactly one collection.
	name := item.Filename("chan:42")
	if _, err := os.Stat(filepath.Join(PendingDir(s.BasePath()), name)); !os.IsNotExist(err) {
		t.Error("Expected pending record to be gone")
	}
	if _, err := os.Stat(filepath.Join(ApprovedDir(s.BasePath()), name)); err != nil {
		t.Errorf("Expected approved record to exist: %v", err)
	}

	got, err := s.Get("chan:42")
	if err != nil {
		t.Fatalf("Get after move failed: %v", err)
	}
	if got.Status != item.StatusApproved {
		t.Errorf("Expected approved, got %s", got.Status)
	}
}

func TestMoveToApprovedNotPending(t *testing.T) {
	s := newTestStore(t)

	_, err := s.MoveToApproved("missing", &item.ModerationRecord{ModeratorID: "m1"})
	if !errors.IsCategory(err, errors.ErrNotFound) {
		t.Fatalf("Expected NotFound, got %v", err)
	}
}

func TestDeletePendingOnly(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put(testItem("chan:42")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.DeletePending("chan:42"); err != nil {
		t.Fatalf("DeletePending failed: %v", err)
	}
	if _, err := s.Get("chan:42"); !errors.IsCategory(err, errors.ErrNotFound) {
		t.Fatalf("Expected NotFound after delete, got %v", err)
	}

	// An approved record must not be removable via the pending path.
	if err := s.Put(testItem("chan:43")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.MoveToApproved("chan:43", &item.ModerationRecord{ModeratorID: "m1"}); err != nil {
		t.Fatalf("MoveToApproved failed: %v", err)
	}
	if err := s.DeletePending("chan:43"); !errors.IsCategory(err, errors.ErrNotFound) {
		t.Fatalf("Expected NotFound for approved id, got %v", err)
	}
	if _, err := s.Get("chan:43"); err != nil {
		t.Fatalf("Approved record should survive DeletePending: %v", err)
	}
}

func TestDeleteAnyCollection(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put(testItem("chan:42")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.MoveToApproved("chan:42", &item.ModerationRecord{ModeratorID: "m1"}); err != nil {
		t.Fatalf("MoveToApproved failed: %v", err)
	}

	if err := s.Delete("chan:42"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("chan:42"); !errors.IsCategory(err, errors.ErrNotFound) {
		t.Fatalf("Expected NotFound on second delete, got %v", err)
	}
}

func TestListApprovedOldestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"chan:3", "chan:1", "chan:2"} {
		it := testItem(id)
		it.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Put(it); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, err := s.MoveToApproved(id, &item.ModerationRecord{ModeratorID: "m1"}); err != nil {
			t.Fatalf("MoveToApproved failed: %v", err)
		}
	}

	items, err := s.ListApproved()
	if err != nil {
		t.Fatalf("ListApproved failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	want := []string{"chan:3", "chan:1", "chan:2"}
	for i, it := range items {
		if it.ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], it.ID)
		}
	}
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"chan:1", "chan:2", "chan:3"} {
		if err := s.Put(testItem(id)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if _, err := s.MoveToApproved("chan:1", &item.ModerationRecord{ModeratorID: "m1"}); err != nil {
		t.Fatalf("MoveToApproved failed: %v", err)
	}

	pending, approved, err := s.Counts()
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if pending != 2 || approved != 1 {
		t.Errorf("Expected 2 pending, 1 approved; got %d, %d", pending, approved)
	}
}

func TestRepairResolvesDoublePresence(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStore(dir, testRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Put(testItem("chan:42")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	approved, err := s.MoveToApproved("chan:42", &item.ModerationRecord{ModeratorID: "m1"})
	if err != nil {
		t.Fatalf("MoveToApproved failed: %v", err)
	}

	// Simulate a crash between the approved write and the pending removal.
	stale := testItem("chan:42")
	stale.Status = item.StatusPending
	data, _ := json.Marshal(stale)
	pendingPath := filepath.Join(PendingDir(s.BasePath()), item.Filename("chan:42"))
	if err := os.WriteFile(pendingPath, data, 0644); err != nil {
		t.Fatalf("Failed to plant stale pending record: %v", err)
	}
	s.Close()

	s2, err := NewFileStore(dir, testRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s2.Close()

	if _, err := os.Stat(pendingPath); !os.IsNotExist(err) {
		t.Error("Expected repair to remove stale pending record")
	}
	got, err := s2.Get("chan:42")
	if err != nil {
		t.Fatalf("Get after repair failed: %v", err)
	}
	if got.Status != item.StatusApproved {
		t.Errorf("Expected approved after repair, got %s", got.Status)
	}
	if got.Moderation == nil || got.Moderation.ModeratorID != approved.Moderation.ModeratorID {
		t.Error("Expected approved copy with moderation record to win")
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	dir := t.TempDir()

	s1, err := NewFileStore(dir, testRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s1.Close()

	cfg := testRuntimeConfig()
	cfg.LockTimeout = 100 * time.Millisecond
	cfg.LockMaxRetry = 2
	if _, err := NewFileStore(dir, cfg); err == nil {
		t.Fatal("Expected second instance to fail acquiring the lock")
	}
}

func TestDisjointIDsDoNotContend(t *testing.T) {
	s := newTestStore(t)

	ids := []string{"chan:1", "chan:2", "chan:3", "chan:4", "chan:5"}
	for _, id := range ids {
		if err := s.Put(testItem(id)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.MoveToApproved(id, &item.ModerationRecord{ModeratorID: "m1"}); err != nil {
				errCh <- err
			}
		}(id)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("Concurrent approval failed: %v", err)
	}

	pending, approved, err := s.Counts()
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if pending != 0 || approved != len(ids) {
		t.Errorf("Expected 0 pending, %d approved; got %d, %d", len(ids), pending, approved)
	}
}
