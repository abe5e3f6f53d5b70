// Package daemon wires configuration, storage, the project registry, the
// orchestration core and the hook server into one long-lived process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/chatbridge/internal/bridge"
	"github.com/kazz187/chatbridge/internal/bridge/fallback"
	"github.com/kazz187/chatbridge/internal/bridge/pending"
	"github.com/kazz187/chatbridge/internal/bridge/streaming"
	"github.com/kazz187/chatbridge/internal/config"
	"github.com/kazz187/chatbridge/internal/eventbus"
	"github.com/kazz187/chatbridge/internal/files"
	"github.com/kazz187/chatbridge/internal/hook"
	"github.com/kazz187/chatbridge/internal/messaging"
	"github.com/kazz187/chatbridge/internal/push"
	pushrepo "github.com/kazz187/chatbridge/internal/push/repositoryimpl"
	"github.com/kazz187/chatbridge/internal/registry"
	registryrepo "github.com/kazz187/chatbridge/internal/registry/repositoryimpl"
	"github.com/kazz187/chatbridge/internal/terminal"
	"github.com/kazz187/chatbridge/pkg/panicerr"
	"github.com/kazz187/chatbridge/pkg/storage"
)

type Daemon struct {
	env *config.Env

	registryService *registry.Service
	orchestrator    *bridge.Orchestrator
	poller          *fallback.Poller
	hookServer      *hook.Server
	dispatcher      *push.Dispatcher
	watcher         *registry.Watcher
}

func New(ctx context.Context, env *config.Env) (*Daemon, error) {
	store, watchDir, err := newStorage(ctx, env)
	if err != nil {
		return nil, err
	}

	registryService := registry.NewService(registryrepo.NewYAMLRepository(store))
	if err := registryService.Load(ctx); err != nil {
		return nil, err
	}

	msgr, err := newMessenger(env)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	tracker := pending.NewTracker(msgr)
	streams := streaming.NewUpdater(msgr)
	extractor := files.NewExtractor(env.FilesDir)
	orchestrator := bridge.NewOrchestrator(msgr, tracker, streams, extractor, registryService, bus, bridge.Config{})

	poller := fallback.NewPoller(tracker, terminal.NewTmux(), msgr, fallback.Config{
		InitialDelay:   env.FallbackEnv.InitialDelay,
		StabilityDelay: env.FallbackEnv.StabilityDelay,
		MaxChecks:      env.FallbackEnv.MaxChecks,
	})

	subs := pushrepo.NewYAMLRepository(store)
	sender := push.NewSender(config.VAPIDEnvFromEnv(env), subs)

	d := &Daemon{
		env:             env,
		registryService: registryService,
		orchestrator:    orchestrator,
		poller:          poller,
		hookServer:      hook.NewServer(orchestrator, registryService, subs),
		dispatcher:      push.NewDispatcher(bus, sender),
	}
	if watchDir != "" {
		d.watcher = registry.NewWatcher(watchDir, registryService)
	}
	return d, nil
}

func newStorage(ctx context.Context, env *config.Env) (storage.Storage, string, error) {
	switch env.StorageEnv.Type {
	case "s3":
		s, err := storage.NewS3(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, "", fmt.Errorf("failed to init s3 storage: %w", err)
		}
		return s, "", nil
	default:
		s, err := storage.NewLocal(env.StorageEnv.BaseDir)
		if err != nil {
			return nil, "", fmt.Errorf("failed to init local storage: %w", err)
		}
		return s, s.BasePath("projects"), nil
	}
}

func newMessenger(env *config.Env) (messaging.Messenger, error) {
	switch messaging.Platform(env.Platform) {
	case messaging.PlatformConsole, "":
		return messaging.NewConsole(), nil
	default:
		return nil, fmt.Errorf("unsupported platform %q (platform adapters plug in here)", env.Platform)
	}
}

// Poller exposes the fallback poller so the inbound message router can arm it
// when it types into a hook-less agent window.
func (d *Daemon) Poller() *fallback.Poller {
	return d.poller
}

func (d *Daemon) Orchestrator() *bridge.Orchestrator {
	return d.orchestrator
}

// Run serves until SIGINT/SIGTERM, then shuts the HTTP server down
// gracefully and drops in-flight turn state (the next event re-derives it).
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(d.env.HTTPHost, d.env.HTTPPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           d.hookServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		d.dispatcher.Start(ctx)
	})
	if d.watcher != nil {
		wg.Go(runLogged(ctx, d.watcher.Run))
	}
	wg.Go(func() {
		slog.Info("hook server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("hook server failed", "error", err)
			stop()
		}
	})

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("hook server shutdown failed", "error", err)
	}
	d.orchestrator.Reset()
	wg.Wait()
	return nil
}

func runLogged(ctx context.Context, fn func(context.Context) error) func() {
	safe := panicerr.SafeContext(fn)
	return func() {
		if err := safe(ctx); err != nil {
			slog.Error("background task failed", "error", err)
		}
	}
}
