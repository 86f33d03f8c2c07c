package daemon

import (
	"context"
	"testing"

	"github.com/kurierhq/kurier/internal/config"
)

type stubComponent struct {
	name string
	deps []string
}

func (s *stubComponent) Name() string                   { return s.name }
func (s *stubComponent) Dependencies() []string         { return s.deps }
func (s *stubComponent) Init(ctx context.Context) error { return nil }
func (s *stubComponent) Start(ctx context.Context) error {
	return nil
}
func (s *stubComponent) Stop(ctx context.Context) error { return nil }
func (s *stubComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	return &ComponentHealth{Name: s.name, Healthy: true}, nil
}

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Config load failed: %v", err)
	}
	d, err := NewDaemon(cfg)
	if err != nil {
		t.Fatalf("NewDaemon failed: %v", err)
	}
	return d
}

func TestResolveInitOrderHonorsDependencies(t *testing.T) {
	d := testDaemon(t)
	d.AddComponent(&stubComponent{name: "C", deps: []string{"B"}})
	d.AddComponent(&stubComponent{name: "A"})
	d.AddComponent(&stubComponent{name: "B", deps: []string{"A"}})

	order, err := d.resolveInitOrder()
	if err != nil {
		t.Fatalf("resolveInitOrder failed: %v", err)
	}

	pos := make(map[string]int)
	for i, name := range order {
		pos[name] = i
	}
	if pos["A"] > pos["B"] || pos["B"] > pos["C"] {
		t.Errorf("Dependency order violated: %v", order)
	}
}

func TestResolveInitOrderDetectsCycle(t *testing.T) {
	d := testDaemon(t)
	d.AddComponent(&stubComponent{name: "A", deps: []string{"B"}})
	d.AddComponent(&stubComponent{name: "B", deps: []string{"A"}})

	if _, err := d.resolveInitOrder(); err == nil {
		t.Fatal("Expected circular dependency error")
	}
}

func TestValidateDependenciesMissing(t *testing.T) {
	d := testDaemon(t)
	d.AddComponent(&stubComponent{name: "A", deps: []string{"Ghost"}})

	if err := d.validateDependencies(); err == nil {
		t.Fatal("Expected missing dependency error")
	}
}

func TestShutdownOrderIsReverseRegistration(t *testing.T) {
	d := testDaemon(t)
	d.AddComponent(&stubComponent{name: "A"})
	d.AddComponent(&stubComponent{name: "B"})
	d.AddComponent(&stubComponent{name: "C"})

	want := []string{"C", "B", "A"}
	for i, name := range d.shutdownOrder {
		if name != want[i] {
			t.Fatalf("Unexpected shutdown order %v", d.shutdownOrder)
		}
	}
}
