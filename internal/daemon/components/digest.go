package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kurierhq/kurier/internal/config"
	"github.com/kurierhq/kurier/internal/daemon"
	"github.com/kurierhq/kurier/internal/digest"
)

type DigestComponent struct {
	digestCfg   *config.DigestConfig
	storeComp   *StoreComponent
	adapterComp *AdapterComponent
	drainer     *digest.Drainer
	scheduler   *digest.Scheduler
	cancel      context.CancelFunc
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewDigestComponent(digestCfg *config.DigestConfig, storeComp *StoreComponent, adapterComp *AdapterComponent) *DigestComponent {
	return &DigestComponent{
		digestCfg:   digestCfg,
		storeComp:   storeComp,
		adapterComp: adapterComp,
		initialized: false,
		started:     false,
	}
}

func (d *DigestComponent) Name() string {
	return "Digest"
}

func (d *DigestComponent) Dependencies() []string {
	return []string{"Store", "Adapters"}
}

func (d *DigestComponent) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	fileStore := d.storeComp.GetStore()
	if fileStore == nil {
		return fmt.Errorf("store is not available")
	}

	maxItems := config.DefaultDigestMaxItems
	schedule := config.DefaultDigestSchedule
	if d.digestCfg != nil {
		if d.digestCfg.MaxItems > 0 {
			maxItems = d.digestCfg.MaxItems
		}
		if d.digestCfg.Schedule != "" {
			schedule = d.digestCfg.Schedule
		}
	}

	d.drainer = digest.NewDrainer(fileStore, d.adapterComp, maxItems)
	if d.digestCfg == nil || d.digestCfg.Enabled {
		d.scheduler = digest.NewScheduler(d.drainer, schedule)
	}

	d.initialized = true
	slog.Info("Digest initialized", "component", d.Name(), "scheduled", d.scheduler != nil)
	return nil
}

func (d *DigestComponent) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return fmt.Errorf("Digest not initialized")
	}

	if d.scheduler != nil {
		runCtx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		if err := d.scheduler.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("start digest scheduler: %w", err)
		}
	}

	d.started = true
	d.startTime = time.Now()
	slog.Info("Digest started", "component", d.Name())
	return nil
}

func (d *DigestComponent) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		slog.Info("Digest not started, skipping stop", "component", d.Name())
		return nil
	}

	slog.Info("Stopping Digest...", "component", d.Name())
	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			slog.Error("Digest scheduler stop failed", "error", err)
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.started = false
	slog.Info("Digest stopped", "component", d.Name())
	return nil
}

func (d *DigestComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return &daemon.ComponentHealth{
			Name:    d.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    d.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

// RunNow triggers one immediate drain cycle, e.g. from the /digest command.
func (d *DigestComponent) RunNow(ctx context.Context) (int, error) {
	d.mu.RLock()
	drainer := d.drainer
	d.mu.RUnlock()

	if drainer == nil {
		return 0, fmt.Errorf("digest is not initialized")
	}
	return drainer.Run(ctx)
}
