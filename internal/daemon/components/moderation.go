package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kurierhq/kurier/internal/config"
	"github.com/kurierhq/kurier/internal/daemon"
	"github.com/kurierhq/kurier/internal/ingress"
	"github.com/kurierhq/kurier/internal/moderation"
)

// ModerationComponent owns the decision path: the moderation state machine
// and the callback ingress in front of it.
type ModerationComponent struct {
	ingressCfg  *config.IngressConfig
	storeComp   *StoreComponent
	machine     *moderation.Machine
	ingress     *ingress.Ingress
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewModerationComponent(ingressCfg *config.IngressConfig, storeComp *StoreComponent) *ModerationComponent {
	return &ModerationComponent{
		ingressCfg:  ingressCfg,
		storeComp:   storeComp,
		initialized: false,
		started:     false,
	}
}

func (m *ModerationComponent) Name() string {
	return "Moderation"
}

func (m *ModerationComponent) Dependencies() []string {
	return []string{"Store"}
}

func (m *ModerationComponent) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ingressCfg == nil || m.ingressCfg.Token == "" {
		return fmt.Errorf("ingress token is not configured")
	}

	fileStore := m.storeComp.GetStore()
	if fileStore == nil {
		return fmt.Errorf("store is not available")
	}

	m.machine = moderation.NewMachine(fileStore)
	m.ingress = ingress.NewIngress(m.ingressCfg.Token, m.machine)

	m.initialized = true
	slog.Info("Moderation initialized", "component", m.Name())
	return nil
}

func (m *ModerationComponent) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return fmt.Errorf("Moderation not initialized")
	}

	m.started = true
	m.startTime = time.Now()
	slog.Info("Moderation started", "component", m.Name())
	return nil
}

func (m *ModerationComponent) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		slog.Info("Moderation not started, skipping stop", "component", m.Name())
		return nil
	}

	m.started = false
	slog.Info("Moderation stopped", "component", m.Name())
	return nil
}

func (m *ModerationComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return &daemon.ComponentHealth{
			Name:    m.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    m.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

// HandleCallback forwards one decision event to the ingress. Safe to hand to
// adapters as a callback; resolution happens per call.
func (m *ModerationComponent) HandleCallback(ctx context.Context, evt *ingress.Event) (ingress.Ack, error) {
	m.mu.RLock()
	ing := m.ingress
	m.mu.RUnlock()

	if ing == nil {
		return ingress.Ack{}, fmt.Errorf("ingress is not initialized")
	}
	return ing.HandleCallback(ctx, evt)
}

func (m *ModerationComponent) GetIngress() *ingress.Ingress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ingress
}
