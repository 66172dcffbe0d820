// Command handoffd serves the resource registry over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"handoff/internal/adapters/registryhttp"
	"handoff/internal/blob"
	"handoff/internal/config"
	"handoff/internal/core"
	"handoff/internal/deploy"
	"handoff/internal/logging"
	"handoff/internal/metadata"
	"handoff/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const serviceName = "handoffd"

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, nil); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		stop()
		exitFunc(1)
	}
}

// run wires the daemon and blocks until ctx is cancelled or the server fails.
// When ready is non-nil it receives the bound listener address.
func run(ctx context.Context, args []string, stdout io.Writer, ready chan<- string) error {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a TOML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	zl, err := logging.New(cfg.Log, serviceName, stdout)
	if err != nil {
		return err
	}
	logger := logging.NewAdapter(zl)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, serviceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	store, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	fee, _ := cfg.CreationFee()
	factory, _ := cfg.FactoryAddress()
	admin, _ := cfg.AdminPrincipal()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	events := core.NewEventLog(4096)
	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithAuditRecorder(auditLog{logger: logger}),
		core.WithMetricsRecorder(metrics),
		core.WithTracer(core.NewOTelTracer(nil)),
		core.WithDeployer(deploy.NewFactory(factory)),
		core.WithMetadataStore(metadata.New(blobs)),
		core.WithCreationFee(fee),
		core.WithAdmin(admin),
		core.WithEventSubscriber(events),
	)
	if err := core.RegisterStateGauges(reg, svc); err != nil {
		return fmt.Errorf("register gauges: %w", err)
	}

	api := registryhttp.NewHandler(svc)
	api.Events = events
	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("registry listening",
			"addr", ln.Addr().String(),
			"storage", string(cfg.Storage.Driver),
			"blob", string(cfg.Blob.Driver),
			"factory", factory.Hex(),
			"creation_fee", fee.Dec())
		if ready != nil {
			ready <- ln.Addr().String()
		}
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("registry shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// auditLog writes audit entries to the structured log.
type auditLog struct {
	logger *logging.Adapter
}

func (a auditLog) Record(_ context.Context, entry core.AuditEntry) {
	a.logger.Info("audit",
		"operation", entry.Operation,
		"entity", string(entry.Entity),
		"entity_id", entry.EntityID,
		"caller", entry.Caller.Hex(),
		"status", string(entry.Status),
		"error", entry.Error,
		"duration", entry.Duration)
}
