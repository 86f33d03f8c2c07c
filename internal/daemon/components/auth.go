package components

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kurierhq/kurier/internal/auth"
	"github.com/kurierhq/kurier/internal/config"
	"github.com/kurierhq/kurier/internal/daemon"
	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/store"
)

type AuthComponent struct {
	authCfg     *config.AuthConfig
	storeCfg    *config.StoreConfig
	provider    auth.Provider
	manager     *auth.Manager
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewAuthComponent(authCfg *config.AuthConfig, storeCfg *config.StoreConfig, provider auth.Provider) *AuthComponent {
	if provider == nil {
		provider = auth.UnconfiguredProvider{}
	}
	return &AuthComponent{
		authCfg:     authCfg,
		storeCfg:    storeCfg,
		provider:    provider,
		initialized: false,
		started:     false,
	}
}

func (a *AuthComponent) Name() string {
	return "Auth"
}

func (a *AuthComponent) Dependencies() []string {
	return []string{"Store"}
}

func (a *AuthComponent) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	timeout, err := config.DurationOrDefault(a.authCfg.Timeout, config.DefaultAuthTimeout)
	if err != nil {
		return fmt.Errorf("parse auth timeout: %w", err)
	}

	sessionPath := strings.TrimSpace(a.authCfg.SessionPath)
	if sessionPath == "" {
		dataPath, err := store.ResolveDataPath(a.storeCfg.DataPath)
		if err != nil {
			return fmt.Errorf("resolve data path: %w", err)
		}
		sessionPath = filepath.Join(store.SessionsDir(dataPath), "session.json")
	}

	a.manager = auth.NewManager(a.provider, sessionPath, timeout)
	if err := a.manager.LoadPersisted(ctx); err != nil {
		// A provider outage must not block startup or destroy the session;
		// the daemon comes up unauthenticated and the next start retries.
		if errors.IsCategory(err, errors.ErrTimeout) || errors.IsCategory(err, errors.ErrRetryableAuth) {
			slog.Warn("Session restore deferred, provider unreachable", "component", a.Name(), "error", err)
		} else {
			return fmt.Errorf("load persisted session: %w", err)
		}
	}

	a.initialized = true
	slog.Info("Auth initialized", "component", a.Name(), "state", a.manager.Status().State)
	return nil
}

func (a *AuthComponent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("Auth not initialized")
	}

	a.started = true
	a.startTime = time.Now()
	slog.Info("Auth started", "component", a.Name())
	return nil
}

func (a *AuthComponent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		slog.Info("Auth not started, skipping stop", "component", a.Name())
		return nil
	}

	a.started = false
	slog.Info("Auth stopped", "component", a.Name())
	return nil
}

// Health stays green while unauthenticated; that is an expected resting state
// for a daemon whose operator has not run the login flow yet.
func (a *AuthComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.initialized {
		return &daemon.ComponentHealth{
			Name:    a.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    a.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (a *AuthComponent) GetManager() *auth.Manager {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.manager
}
