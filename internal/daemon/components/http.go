package components

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kurierhq/kurier/internal/config"
	"github.com/kurierhq/kurier/internal/daemon"
	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/item"
	"github.com/kurierhq/kurier/internal/metrics"
)

type HTTPServerComponent struct {
	daemon      *daemon.Daemon
	cfg         *config.ServerConfig
	storeComp   *StoreComponent
	authComp    *AuthComponent
	adapterComp *AdapterComponent
	server      *http.Server
	shutdownTTL time.Duration
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewHTTPServerComponent(d *daemon.Daemon, cfg *config.ServerConfig, storeComp *StoreComponent, authComp *AuthComponent, adapterComp *AdapterComponent) *HTTPServerComponent {
	return &HTTPServerComponent{
		daemon:      d,
		cfg:         cfg,
		storeComp:   storeComp,
		authComp:    authComp,
		adapterComp: adapterComp,
		initialized: false,
		started:     false,
	}
}

func (h *HTTPServerComponent) Name() string {
	return "HTTPServer"
}

func (h *HTTPServerComponent) Dependencies() []string {
	return []string{"Store", "Auth", "Moderation", "Adapters", "Digest"}
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/ingest", h.handleIngest)
	mux.Handle("/metrics", metrics.Handler())

	readTimeout, err := config.DurationOrDefault(h.cfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(h.cfg.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(h.cfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(h.cfg.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", h.cfg.Port),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	h.shutdownTTL = shutdownTimeout

	h.initialized = true
	slog.Info("HTTPServer initialized", "component", h.Name(), "port", h.cfg.Port)
	return nil
}

func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("HTTPServer not initialized")
	}

	go func() {
		slog.Info("HTTP server listening", "component", h.Name(), "addr", h.server.Addr)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "component", h.Name(), "error", err)
		}
	}()

	h.started = true
	h.startTime = time.Now()
	slog.Info("HTTPServer started", "component", h.Name())
	return nil
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		slog.Info("HTTPServer not started, skipping stop", "component", h.Name())
		return nil
	}

	slog.Info("Stopping HTTPServer...", "component", h.Name())
	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTTL)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPServer shutdown error", "component", h.Name(), "error", err)
		return err
	}

	h.started = false
	slog.Info("HTTPServer stopped", "component", h.Name())
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.initialized {
		return &daemon.ComponentHealth{
			Name:    h.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !h.started {
		return &daemon.ComponentHealth{
			Name:    h.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    h.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (h *HTTPServerComponent) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	healthResponse := map[string]interface{}{
		"status": "ok",
	}

	if fileStore := h.storeComp.GetStore(); fileStore != nil {
		storeStatus := map[string]interface{}{
			"reachable": fileStore.Reachable(),
		}
		if pending, approved, err := fileStore.Counts(); err == nil {
			storeStatus["pending"] = pending
			storeStatus["approved"] = approved
		}
		healthResponse["store"] = storeStatus
	}

	if manager := h.authComp.GetManager(); manager != nil {
		healthResponse["auth"] = manager.Status()
	}

	componentHealths := h.daemon.ComponentHealth()
	componentHealthMap := make(map[string]interface{})
	for name, ch := range componentHealths {
		entry := map[string]interface{}{
			"healthy": ch.Healthy,
		}
		if ch.Error != nil {
			entry["error"] = ch.Error.Error()
		}
		componentHealthMap[name] = entry
	}
	healthResponse["components"] = componentHealthMap

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse)
}

// handleIngest accepts one source message, derives its stable id and parks it
// in the pending collection. Re-posting the same upstream message is absorbed.
func (h *HTTPServerComponent) handleIngest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var src item.SourceMessage
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeIngestError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if src.ChannelID == "" || src.MessageID == 0 {
		writeIngestError(w, http.StatusBadRequest, "channel_id and message_id are required")
		return
	}

	fileStore := h.storeComp.GetStore()
	if fileStore == nil {
		writeIngestError(w, http.StatusServiceUnavailable, "store is not available")
		return
	}

	payload, err := json.Marshal(&src)
	if err != nil {
		writeIngestError(w, http.StatusBadRequest, "payload not serializable")
		return
	}

	it := &item.Item{
		ID:      item.DeriveID(src.ChannelID, src.MessageID),
		Payload: payload,
	}

	if err := fileStore.Put(it); err != nil {
		if errors.IsCategory(err, errors.ErrAlreadyExists) {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":      it.ID,
				"applied": false,
			})
			return
		}
		slog.Error("Ingest failed", "id", it.ID, "error", err)
		writeIngestError(w, http.StatusServiceUnavailable, errors.Category(err))
		return
	}

	metrics.ItemsIngested.Inc()

	// The item is durable; a failed review card is retried by the operator,
	// not by dropping the record.
	if err := h.adapterComp.NotifyReview(r.Context(), it); err != nil {
		slog.Error("Review notification failed", "id", it.ID, "error", err)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      it.ID,
		"applied": true,
	})
}

func writeIngestError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	})
}
