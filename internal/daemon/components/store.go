package components

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kurierhq/kurier/internal/config"
	"github.com/kurierhq/kurier/internal/daemon"
	"github.com/kurierhq/kurier/internal/store"
)

type StoreComponent struct {
	storeCfg    *config.StoreConfig
	fileStore   *store.FileStore
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewStoreComponent(storeCfg *config.StoreConfig) *StoreComponent {
	return &StoreComponent{
		storeCfg:    storeCfg,
		initialized: false,
		started:     false,
	}
}

func (s *StoreComponent) Name() string {
	return "Store"
}

func (s *StoreComponent) Dependencies() []string {
	return []string{}
}

func (s *StoreComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("Store init cancelled: %w", ctx.Err())
	default:
	}

	lockTimeoutValue := ""
	lockRetryValue := ""
	lockMaxRetry := 0
	dataPath := ""
	if s.storeCfg != nil {
		lockTimeoutValue = s.storeCfg.LockTimeout
		lockRetryValue = s.storeCfg.LockRetry
		lockMaxRetry = s.storeCfg.LockMaxRetry
		dataPath = s.storeCfg.DataPath
	}

	lockTimeout, err := config.DurationOrDefault(lockTimeoutValue, config.DefaultStoreLockTimeout)
	if err != nil {
		return fmt.Errorf("parse store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(lockRetryValue, config.DefaultStoreLockRetry)
	if err != nil {
		return fmt.Errorf("parse store lock retry: %w", err)
	}
	if lockMaxRetry <= 0 {
		lockMaxRetry = config.DefaultStoreLockMaxRetry
	}

	fileStore, err := store.NewFileStore(dataPath, store.RuntimeConfig{
		LockTimeout:  lockTimeout,
		LockRetry:    lockRetry,
		LockMaxRetry: lockMaxRetry,
	})
	if err != nil {
		if strings.Contains(err.Error(), "is locked by another instance") {
			return fmt.Errorf("data path is locked by another instance: %w", err)
		}
		return fmt.Errorf("failed to init item store: %w", err)
	}

	s.fileStore = fileStore
	s.initialized = true
	slog.Info("Store initialized", "component", s.Name(), "path", fileStore.BasePath())
	return nil
}

func (s *StoreComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("Store not initialized")
	}

	s.started = true
	s.startTime = time.Now()
	slog.Info("Store started", "component", s.Name())
	return nil
}

func (s *StoreComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		slog.Info("Store not started, skipping stop", "component", s.Name())
		return nil
	}

	slog.Info("Stopping Store...", "component", s.Name())
	s.fileStore.Close()
	s.started = false
	slog.Info("Store stopped", "component", s.Name())
	return nil
}

func (s *StoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !s.started {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	if !s.fileStore.IsLockHeld() {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("lock not held"),
		}, nil
	}

	if !s.fileStore.Reachable() {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("data path unreachable"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    s.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (s *StoreComponent) GetStore() *store.FileStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileStore
}
