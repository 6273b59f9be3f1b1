// Package runtime assembles the daemon: telemetry, the optional message bus,
// history storage, the speech client, the studio and the HTTP surface.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/loqalabs/vocalforge/internal/blob"
	"github.com/loqalabs/vocalforge/internal/bus"
	"github.com/loqalabs/vocalforge/internal/config"
	"github.com/loqalabs/vocalforge/internal/history"
	"github.com/loqalabs/vocalforge/internal/httpapi"
	"github.com/loqalabs/vocalforge/internal/kvstore"
	"github.com/loqalabs/vocalforge/internal/natsserver"
	"github.com/loqalabs/vocalforge/internal/speech"
	"github.com/loqalabs/vocalforge/internal/studio"
	"github.com/loqalabs/vocalforge/internal/voices"
)

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	metricsServer  *http.Server
	metricsHandler http.Handler
	tracerClose    func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup

	nats      *natsserver.EmbeddedServer
	bus       *bus.Client
	kv        kvstore.Store
	studio    *studio.Studio
	speechSvc *speech.Service
	handler   http.Handler
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the daemon until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	r.metricsHandler = metricsHandler

	if err := r.build(ctx); err != nil {
		r.teardown()
		r.closeTelemetry(context.Background())
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && r.metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", r.metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              bind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	r.teardown()
	r.closeTelemetry(shutdownCtx)
	return nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("server failed", slog.String("server", name), slog.String("error", err.Error()))
		}
	}()
}

// build wires every component and prepares r.handler.
func (r *Runtime) build(ctx context.Context) error {
	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	r.nats = embedded
	if url := embedded.ClientURL(); url != "" {
		busCfg.Servers = []string{url}
	}

	if busCfg.Enabled {
		busClient, err := bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		r.bus = busClient
	}

	kv, err := kvstore.Open(ctx, r.cfg.Storage, r.bus.Conn(), r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history storage: %w", err)
	}
	r.kv = kv

	if err := r.cfg.Speech.CredentialError(); err != nil {
		r.logger.Warn("speech backend is not configured; generation requests will fail", slog.String("error", err.Error()))
	} else if r.cfg.Speech.APIKeySource != "" {
		r.logger.Info("speech credential loaded", slog.String("source", r.cfg.Speech.APIKeySource))
	}
	synth, err := speech.NewSynthesizer(r.cfg.Speech)
	if err != nil {
		return fmt.Errorf("failed to create speech backend: %w", err)
	}
	speechClient := speech.NewClient(r.cfg.Speech, synth, r.logger)

	r.speechSvc = speech.NewService(ctx, r.cfg.Speech.ServeOnBus && r.bus != nil, r.bus, speechClient, r.logger)
	if err := r.speechSvc.Start(); err != nil {
		return fmt.Errorf("failed to start speech service: %w", err)
	}

	urls := blob.NewURLRegistry()
	store := history.NewStore(r.kv, urls, r.cfg.History, r.logger)
	restored := store.Load(ctx)
	r.logger.Info("history restored", slog.Int("records", restored))

	profiles := voices.NewProfiles(urls, r.cfg.Studio.MaxReferenceBytes, r.logger)
	r.studio = studio.New(r.cfg.Studio, speechClient, store, profiles, urls, r.bus, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metricsHandler != nil && r.cfg.Telemetry.PrometheusBind == "" {
		mux.Handle("/metrics", r.metricsHandler)
	}
	httpapi.New(r.studio, store, profiles, urls, r.cfg.Studio.MaxReferenceBytes, r.logger).Register(mux)
	r.handler = otelhttp.NewHandler(mux, r.cfg.RuntimeName)
	return nil
}

// teardown releases components in reverse wiring order.
func (r *Runtime) teardown() {
	if r.studio != nil {
		r.studio.Close()
	}
	if r.speechSvc != nil {
		r.speechSvc.Close()
	}
	if r.kv != nil {
		if err := r.kv.Close(); err != nil {
			r.logger.Warn("history storage close error", slog.String("error", err.Error()))
		}
	}
	r.bus.Close()
	r.nats.Shutdown()
}

func (r *Runtime) closeTelemetry(ctx context.Context) {
	if r.tracerClose == nil {
		return
	}
	if err := r.tracerClose(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.bus == nil || r.bus.Healthy()) && r.speechSvc.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
