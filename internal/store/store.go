package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kurierhq/kurier/internal/concurrency"
	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/item"

	"github.com/natefinch/atomic"
)

// FileStore is the durable, file-backed item store. Each status collection is
// one directory of JSON records; an item id maps to exactly one file name.
//
// Relocation order is fixed: the approved record is written (and synced via
// atomic rename) before the pending record is removed. A crash between the
// two halves leaves the item present in both collections, which the startup
// repair pass resolves in favor of approved. Readers check pending before
// approved, so an in-flight relocation is observed in exactly one collection,
// never in neither.
type FileStore struct {
	basePath string
	locks    *concurrency.KeyedLockManager
	fileLock *FileLock
}

type RuntimeConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
}

func NewFileStore(dataPath string, runtimeCfg RuntimeConfig) (*FileStore, error) {
	basePath, err := ResolveDataPath(dataPath)
	if err != nil {
		return nil, err
	}

	dirs := []string{
		PendingDir(basePath),
		ApprovedDir(basePath),
		SessionsDir(basePath),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", d, err)
		}
	}

	fileLock, err := NewFileLock(basePath, FileLockConfig{
		LockTimeout:  runtimeCfg.LockTimeout,
		LockRetry:    runtimeCfg.LockRetry,
		LockMaxRetry: runtimeCfg.LockMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	s := &FileStore{
		basePath: basePath,
		locks:    concurrency.NewKeyedLockManager(),
		fileLock: fileLock,
	}

	if err := s.repair(); err != nil {
		fileLock.Unlock()
		return nil, fmt.Errorf("startup repair failed: %w", err)
	}

	return s, nil
}

// repair resolves records left in both collections by an interrupted
// relocation. The approved copy was written first, so it wins.
func (s *FileStore) repair() error {
	entries, err := os.ReadDir(PendingDir(s.basePath))
	if err != nil {
		return err
	}

	repaired := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		approvedPath := filepath.Join(ApprovedDir(s.basePath), entry.Name())
		if _, err := os.Stat(approvedPath); err == nil {
			pendingPath := filepath.Join(PendingDir(s.basePath), entry.Name())
			if err := os.Remove(pendingPath); err != nil {
				return err
			}
			repaired++
		}
	}

	if repaired > 0 {
		slog.Warn("Repaired interrupted relocations", "count", repaired)
	}
	return nil
}

// Put inserts an item into the pending collection. Re-delivery of an id that
// already exists in any collection is absorbed as ErrAlreadyExists.
func (s *FileStore) Put(it *item.Item) error {
	if it == nil || it.ID == "" {
		return errors.Malformed("item id is empty")
	}

	s.locks.Lock(it.ID)
	defer s.locks.Unlock(it.ID)

	name := item.Filename(it.ID)
	for _, dir := range []string{PendingDir(s.basePath), ApprovedDir(s.basePath)} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return errors.AlreadyExists("item " + it.ID)
		} else if !os.IsNotExist(err) {
			return errors.StorageUnavailable(err)
		}
	}

	it.Status = item.StatusPending
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}

	if err := s.writeRecord(filepath.Join(PendingDir(s.basePath), name), it); err != nil {
		return err
	}

	slog.Debug("Item stored", "id", it.ID, "collection", "pending")
	return nil
}

// Get returns the item wherever it currently rests. Pending is checked first;
// see the relocation ordering note on FileStore.
func (s *FileStore) Get(id string) (*item.Item, error) {
	name := item.Filename(id)

	if it, err := s.readRecord(filepath.Join(PendingDir(s.basePath), name)); err == nil {
		return it, nil
	} else if !errors.IsCategory(err, errors.ErrNotFound) {
		return nil, err
	}

	if it, err := s.readRecord(filepath.Join(ApprovedDir(s.basePath), name)); err == nil {
		return it, nil
	} else if !errors.IsCategory(err, errors.ErrNotFound) {
		return nil, err
	}

	return nil, errors.NotFound("item " + id)
}

// MoveToApproved relocates a pending record into the approved collection,
// stamping the moderation record in the same critical section. An id that is
// no longer pending reports ErrNotFound (already processed, not fatal).
func (s *FileStore) MoveToApproved(id string, rec *item.ModerationRecord) (*item.Item, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	name := item.Filename(id)
	pendingPath := filepath.Join(PendingDir(s.basePath), name)
	approvedPath := filepath.Join(ApprovedDir(s.basePath), name)

	it, err := s.readRecord(pendingPath)
	if err != nil {
		return nil, err
	}

	it.Status = item.StatusApproved
	it.Moderation = rec

	// New location first; the old record goes away only once this write
	// is durable, keeping the relocation repeatable after a crash.
	if err := s.writeRecord(approvedPath, it); err != nil {
		return nil, err
	}
	if err := os.Remove(pendingPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.StorageUnavailable(err)
	}

	slog.Info("Item approved", "id", id, "moderator", rec.ModeratorID)
	return it, nil
}

// DeletePending removes an id only while it rests in the pending collection.
// This is the compare-and-swap the rejection path needs: a concurrent
// relocation wins cleanly and the caller observes ErrNotFound.
func (s *FileStore) DeletePending(id string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	path := filepath.Join(PendingDir(s.basePath), item.Filename(id))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("item " + id)
		}
		return errors.StorageUnavailable(err)
	}

	slog.Info("Item removed from pending", "id", id)
	return nil
}

// Delete removes the record from whichever collection holds it. Used for
// post-digest cleanup; absence is reported, not fatal.
func (s *FileStore) Delete(id string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	name := item.Filename(id)
	removed := false
	for _, dir := range []string{PendingDir(s.basePath), ApprovedDir(s.basePath)} {
		err := os.Remove(filepath.Join(dir, name))
		if err == nil {
			removed = true
			continue
		}
		if !os.IsNotExist(err) {
			return errors.StorageUnavailable(err)
		}
	}

	if !removed {
		return errors.NotFound("item " + id)
	}

	slog.Debug("Item deleted", "id", id)
	return nil
}

// ListApproved takes a finite snapshot of the approved collection, oldest
// first. It holds no item locks; a record relocated or deleted mid-scan is
// simply skipped.
func (s *FileStore) ListApproved() ([]*item.Item, error) {
	entries, err := os.ReadDir(ApprovedDir(s.basePath))
	if err != nil {
		return nil, errors.StorageUnavailable(err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	items := make([]*item.Item, 0, len(names))
	for _, name := range names {
		it, err := s.readRecord(filepath.Join(ApprovedDir(s.basePath), name))
		if err != nil {
			if errors.IsCategory(err, errors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		items = append(items, it)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// Counts reports collection sizes for the health probe.
func (s *FileStore) Counts() (pending, approved int, err error) {
	pending, err = countRecords(PendingDir(s.basePath))
	if err != nil {
		return 0, 0, err
	}
	approved, err = countRecords(ApprovedDir(s.basePath))
	if err != nil {
		return 0, 0, err
	}
	return pending, approved, nil
}

func countRecords(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.StorageUnavailable(err)
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			n++
		}
	}
	return n, nil
}

// Reachable reports whether the backing directories respond to a stat.
func (s *FileStore) Reachable() bool {
	_, _, err := s.Counts()
	return err == nil
}

func (s *FileStore) BasePath() string {
	return s.basePath
}

func (s *FileStore) IsLockHeld() bool {
	return s.fileLock.IsLocked()
}

func (s *FileStore) Close() {
	if s.fileLock.IsLocked() {
		s.fileLock.Unlock()
	}
}

func (s *FileStore) writeRecord(path string, it *item.Item) error {
	data, err := json.MarshalIndent(it, "", "  ")
	if err != nil {
		return errors.StorageUnavailable(err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return errors.StorageUnavailable(err)
	}
	return nil
}

func (s *FileStore) readRecord(path string) (*item.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(filepath.Base(path))
		}
		return nil, errors.StorageUnavailable(err)
	}

	var it item.Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, errors.StorageUnavailable(err)
	}
	return &it, nil
}
