package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kurierhq/kurier/internal/adapter"
	"github.com/kurierhq/kurier/internal/config"
	"github.com/kurierhq/kurier/internal/daemon"
	"github.com/kurierhq/kurier/internal/item"
)

// AdapterComponent manages the platform adapter: the inbound update loop and
// the outbound review/publish surface. With Telegram disabled it runs the
// null adapter so the rest of the daemon keeps its wiring.
type AdapterComponent struct {
	adaptersCfg     *config.AdaptersConfig
	ingressCfg      *config.IngressConfig
	callbackHandler adapter.CallbackHandler
	commandHandler  adapter.CommandHandler

	input       adapter.InputAdapter
	notifier    adapter.Notifier
	cancel      context.CancelFunc
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewAdapterComponent(adaptersCfg *config.AdaptersConfig, ingressCfg *config.IngressConfig, callbackHandler adapter.CallbackHandler, commandHandler adapter.CommandHandler) *AdapterComponent {
	return &AdapterComponent{
		adaptersCfg:     adaptersCfg,
		ingressCfg:      ingressCfg,
		callbackHandler: callbackHandler,
		commandHandler:  commandHandler,
		initialized:     false,
		started:         false,
	}
}

func (a *AdapterComponent) Name() string {
	return "Adapters"
}

func (a *AdapterComponent) Dependencies() []string {
	return []string{"Moderation"}
}

func (a *AdapterComponent) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.adaptersCfg != nil && a.adaptersCfg.Telegram.Enabled {
		if a.adaptersCfg.Telegram.BotToken == "" {
			return fmt.Errorf("telegram is enabled but bot_token is empty")
		}
		tg := adapter.NewTelegramAdapter(a.adaptersCfg.Telegram, a.ingressCfg.Token, a.callbackHandler, a.commandHandler)
		a.input = tg
		a.notifier = tg
	} else {
		null := adapter.NewNullAdapter()
		a.input = null
		a.notifier = null
		slog.Warn("No platform adapter enabled, using null adapter")
	}

	a.initialized = true
	slog.Info("Adapters initialized", "component", a.Name(), "adapter", a.input.Name())
	return nil
}

func (a *AdapterComponent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("Adapters not initialized")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.input.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start %s adapter: %w", a.input.Name(), err)
	}

	a.started = true
	a.startTime = time.Now()
	slog.Info("Adapters started", "component", a.Name())
	return nil
}

func (a *AdapterComponent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		slog.Info("Adapters not started, skipping stop", "component", a.Name())
		return nil
	}

	slog.Info("Stopping Adapters...", "component", a.Name())
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.input.Stop(ctx); err != nil {
		slog.Error("Adapter stop failed", "adapter", a.input.Name(), "error", err)
	}
	a.started = false
	slog.Info("Adapters stopped", "component", a.Name())
	return nil
}

func (a *AdapterComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.initialized {
		return &daemon.ComponentHealth{
			Name:    a.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !a.started {
		return &daemon.ComponentHealth{
			Name:    a.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	if err := a.input.Health(ctx); err != nil {
		return &daemon.ComponentHealth{
			Name:    a.Name(),
			Healthy: false,
			Error:   err,
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    a.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

// NotifyReview posts the review card for a freshly ingested item.
func (a *AdapterComponent) NotifyReview(ctx context.Context, it *item.Item) error {
	a.mu.RLock()
	notifier := a.notifier
	a.mu.RUnlock()

	if notifier == nil {
		return fmt.Errorf("adapter is not initialized")
	}
	return notifier.NotifyReview(ctx, it)
}

// Publish satisfies the digest publisher contract.
func (a *AdapterComponent) Publish(ctx context.Context, content string) error {
	a.mu.RLock()
	notifier := a.notifier
	a.mu.RUnlock()

	if notifier == nil {
		return fmt.Errorf("adapter is not initialized")
	}
	return notifier.Publish(ctx, content)
}
