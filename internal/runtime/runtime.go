package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-scribe/internal/auth"
	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/format"
	"github.com/loqalabs/loqa-scribe/internal/jobs"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
	"github.com/loqalabs/loqa-scribe/internal/relay"
	"github.com/loqalabs/loqa-scribe/internal/server"
	"github.com/loqalabs/loqa-scribe/internal/stt"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	ready  atomic.Bool
	wg     sync.WaitGroup

	// closers run in reverse order on shutdown
	closers []func(context.Context)
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the service until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	defer r.shutdown()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.onClose(func(ctx context.Context) {
		if err := shutdownTelemetry(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	})

	store, err := jobs.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "jobs")))
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	r.onClose(func(context.Context) { _ = store.Close() })
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		store.RunPruner(ctx, pruneInterval)
	}()

	relaySvc, err := r.startBus(ctx)
	if err != nil {
		return err
	}

	authn, err := r.setupAuth(ctx)
	if err != nil {
		return err
	}

	recognizer, err := stt.New(r.cfg.STT, r.logger.With(slog.String("component", "stt")))
	if err != nil {
		return fmt.Errorf("create recognizer: %w", err)
	}

	deps := server.Deps{
		Config:     r.cfg,
		Recognizer: recognizer,
		Jobs:       store,
		Auth:       authn,
		Metrics:    metricsHandler,
		Ready:      func() bool { return r.ready.Load() && (relaySvc == nil || relaySvc.Healthy()) },
		Logger:     r.logger,
	}
	if relaySvc != nil {
		deps.Notifier = relaySvc
	}
	api, err := server.New(deps)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	addr := net.JoinHostPort(r.cfg.HTTP.Bind, strconv.Itoa(r.cfg.HTTP.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("stt_mode", r.cfg.STT.Mode),
		slog.Bool("auth", authn.Enabled()),
		slog.Bool("bus", relaySvc != nil))

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		r.logger.Error("http server failed", slogError(err))
	}

	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		r.logger.Error("http shutdown error", slogError(shutdownErr))
	}
	cancel()
	r.wg.Wait()

	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (r *Runtime) startBus(ctx context.Context) (*relay.Service, error) {
	if !r.cfg.Bus.Enabled {
		return nil, nil
	}
	busLog := r.logger.With(slog.String("component", "bus"))
	busCfg := r.cfg.Bus

	embedded, err := natsserver.Start(busCfg, busLog)
	if err != nil {
		return nil, err
	}
	if embedded != nil {
		r.onClose(func(context.Context) { embedded.Shutdown() })
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, r.cfg.RuntimeName, busLog)
	if err != nil {
		return nil, err
	}
	r.onClose(func(context.Context) { client.Close() })

	defaults := format.Options{
		MaxLineWidth:   r.cfg.Format.MaxLineWidth,
		MaxLineCount:   r.cfg.Format.MaxLineCount,
		HighlightWords: r.cfg.Format.HighlightWords,
	}
	svc := relay.NewService(client, defaults, r.logger)
	if err := svc.Start(); err != nil {
		return nil, err
	}
	r.onClose(func(context.Context) { svc.Close() })

	nodeID := busCfg.NodeID
	if nodeID == "" {
		nodeID = r.cfg.RuntimeName + "-" + uuid.NewString()[:8]
	}
	announcer := relay.NewAnnouncer(client, nodeID,
		relay.Capabilities(r.cfg.STT.Mode, r.cfg.STT.Model),
		time.Duration(busCfg.HeartbeatMS)*time.Millisecond, r.logger)
	if err := announcer.Start(ctx); err != nil {
		return nil, fmt.Errorf("announce node: %w", err)
	}
	r.onClose(func(context.Context) { announcer.Close() })
	return svc, nil
}

func (r *Runtime) setupAuth(ctx context.Context) (*auth.Authenticator, error) {
	authLog := r.logger.With(slog.String("component", "auth"))
	var store *auth.KeyStore
	if path := r.cfg.Auth.APIKeysFile; path != "" {
		store = auth.NewKeyStore(path, authLog)
		store.Keys()
		if r.cfg.Auth.WatchFile {
			if err := store.Watch(ctx); err != nil {
				return nil, fmt.Errorf("watch api keys file: %w", err)
			}
		}
	}
	return auth.NewAuthenticator(r.cfg.Auth.APIKey, store, authLog), nil
}

func (r *Runtime) onClose(fn func(context.Context)) {
	r.closers = append(r.closers, fn)
}

func (r *Runtime) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i](ctx)
	}
	r.closers = nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
