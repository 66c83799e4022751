// Package tabkeeper composes the tab hierarchy, session persistence, view
// backend and HTTP surface into one running browser session.
package tabkeeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/core"
	"pkt.systems/tabkeeper/httpapi"
	"pkt.systems/tabkeeper/internal/appconfig"
	"pkt.systems/tabkeeper/internal/chromeview"
	"pkt.systems/tabkeeper/internal/eventbus"
	"pkt.systems/tabkeeper/internal/eventloop"
	"pkt.systems/tabkeeper/internal/persist"
	"pkt.systems/tabkeeper/internal/recovery"
	"pkt.systems/tabkeeper/schema"
)

// Server runs a browser session until stopped.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	SessionPath      string
	KeyStore         string
	VirtualDesktops  bool
	Restore          schema.RestoreConfig
	Startup          string
	// AutosaveInterval of zero saves only on demand and at shutdown.
	AutosaveInterval time.Duration
	HistoryDenylist  []string
	Browser          chromeview.Options
	HTTP             httpapi.Config
}

// ConfigFromApp maps the application configuration onto ServerConfig.
func ConfigFromApp(cfg appconfig.Config) ServerConfig {
	return ServerConfig{
		SessionPath:      cfg.SessionPath(),
		KeyStore:         cfg.KeyStorePath(),
		VirtualDesktops:  cfg.Session.VirtualDesktops,
		Restore:          cfg.RestoreConfig(),
		Startup:          cfg.Session.Startup,
		AutosaveInterval: time.Duration(cfg.Session.AutosaveSeconds) * time.Second,
		Browser: chromeview.Options{
			Headless: cfg.Browser.Headless,
			ExecPath: cfg.Browser.ExecPath,
			Flags:    cfg.Browser.Flags,
		},
		HTTP: httpapi.Config{
			Addr:     cfg.HTTP.Addr,
			BasePath: cfg.HTTP.BasePath,
		},
	}
}

// ServerDeps captures optional collaborators. Nil fields get defaults.
type ServerDeps struct {
	// Views overrides the Chrome backend.
	Views  core.ViewFactory
	Clock  clock.Clock
	Logger pslog.Logger
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP   bool
	enableChrome bool
}

// WithHTTP enables the HTTP API server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithChrome launches headless Chrome as the view backend when no Views
// dependency is given.
func WithChrome() ServerOption {
	return func(o *serverOptions) { o.enableChrome = true }
}

type autosaveKey struct{}

// Browser is the running session.
type Browser struct {
	cfg     ServerConfig
	deps    ServerDeps
	options serverOptions

	store   *persist.Store
	loop    *eventloop.Loop
	bus     *eventbus.Bus
	h       *core.Hierarchy
	ctl     *core.RestoreController
	httpSrv *httpapi.Server
	backend *chromeview.Backend
	lock    *persist.Lock

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	loopErr chan error
	started bool
	stopped bool
	logger  pslog.Logger
}

var _ Server = (*Browser)(nil)

// New constructs a browser session. Nothing touches disk or starts until
// Start.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (*Browser, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if cfg.SessionPath == "" {
		return nil, errors.New("session path is required")
	}
	switch cfg.Startup {
	case "":
		cfg.Startup = appconfig.StartupRestore
	case appconfig.StartupRestore, appconfig.StartupRecovery, appconfig.StartupFresh:
	default:
		return nil, fmt.Errorf("%w: startup mode %q", schema.ErrInvalidArgument, cfg.Startup)
	}
	if cfg.AutosaveInterval < 0 {
		return nil, fmt.Errorf("%w: negative autosave interval", schema.ErrInvalidArgument)
	}
	cfg.Restore = schema.NormalizeRestoreConfig(cfg.Restore)
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Browser{cfg: cfg, deps: deps, options: options}, nil
}

// Start locks and loads the session file, restores according to the startup
// mode and begins serving.
func (b *Browser) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		pslog.Ctx(ctx).Warn("browser start rejected", "reason", "already started")
		return errors.New("browser already started")
	}
	b.started = true
	b.mu.Unlock()

	logger := b.deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	ctx = pslog.ContextWithLogger(ctx, logger)
	// Only Stop ends the run, so the final save still has a live loop.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if err := b.open(runCtx, logger); err != nil {
		cancel()
		b.release(logger)
		return err
	}

	b.mu.Lock()
	b.ctx, b.cancel = runCtx, cancel
	b.errCh = make(chan error, 2)
	b.loopErr = make(chan error, 1)
	b.logger = logger
	b.mu.Unlock()

	go func() {
		b.loopErr <- b.loop.Run(runCtx)
	}()

	if err := b.loop.Do(runCtx, func() error { return b.startup(runCtx) }); err != nil {
		logger.Error("browser startup failed", "err", err)
		_ = b.Stop(context.Background())
		return err
	}

	logger.Info(
		"browser start",
		"session_file", b.store.Path(),
		"encrypted", b.store.Encrypted(),
		"startup", b.cfg.Startup,
		"lazy", b.cfg.Restore.LoadTabsOnActivation,
		"autosave", b.cfg.AutosaveInterval.String(),
		"http", b.options.enableHTTP,
		"http_addr", b.cfg.HTTP.Addr,
	)
	if b.options.enableHTTP && b.httpSrv != nil {
		go func() {
			if err := httpapi.ListenAndServe(runCtx, b.cfg.HTTP.Addr, b.httpSrv.Handler()); err != nil {
				logger.Error("http server failed", "err", err)
				b.errCh <- err
			}
		}()
	}
	return nil
}

// open acquires the store and builds the components.
func (b *Browser) open(ctx context.Context, logger pslog.Logger) error {
	store, err := persist.NewStore(persist.Options{
		Path:             b.cfg.SessionPath,
		KeyStore:         b.cfg.KeyStore,
		DefaultZoomLevel: b.cfg.Restore.DefaultZoomLevel,
		VirtualDesktops:  b.cfg.VirtualDesktops,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	b.store = store
	lock, err := store.Lock()
	if err != nil {
		return err
	}
	b.lock = lock
	if migrated, err := store.Migrate(); err != nil {
		logger.Warn("session migration failed", "err", err)
	} else if migrated {
		logger.Info("session file migrated")
	}
	session, err := store.Load()
	if err != nil {
		return err
	}

	views := b.deps.Views
	if views == nil && b.options.enableChrome {
		backend, err := chromeview.Start(ctx, b.cfg.Browser)
		if err != nil {
			return err
		}
		b.backend = backend
		views = backend
	}

	b.loop = eventloop.New(b.deps.Clock, logger)
	b.bus = eventbus.New(logger)
	h, err := core.NewHierarchy(b.cfg.Restore, core.HierarchyDeps{
		Loop:            b.loop,
		Views:           pageFactory{backend: views},
		HistoryDenylist: b.cfg.HistoryDenylist,
		Context:         ctx,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	b.h = h
	h.Subscribe(eventFanout{h: h, sinks: []eventSink{b.bus.Publish, traceSink(logger)}})
	b.ctl = core.NewRestoreController(h, session)

	if b.options.enableHTTP {
		srv, err := httpapi.NewServer(b.cfg.HTTP, httpapi.Deps{
			Loop:       b.loop,
			Controller: b.ctl,
			Bus:        b.bus,
			Saver:      b,
		})
		if err != nil {
			return err
		}
		b.httpSrv = srv
	}
	return nil
}

func traceSink(logger pslog.Logger) eventSink {
	return func(event schema.HierarchyEvent) {
		logger.Trace("hierarchy event", "type", event.Type, "window", event.Window, "tab", event.Node.String(), "index", event.Index)
	}
}

// startup runs on the loop once it is up.
func (b *Browser) startup(ctx context.Context) error {
	log := pslog.Ctx(ctx)
	if b.ctl.IsValid() {
		switch b.cfg.Startup {
		case appconfig.StartupRestore:
			if err := b.ctl.RestoreSession(ctx, schema.NodeID{}, nil); err != nil {
				log.Warn("session restore incomplete", "err", err)
			}
		case appconfig.StartupRecovery:
			if _, err := b.openRecoveryPage(ctx); err != nil {
				return err
			}
		case appconfig.StartupFresh:
			b.ctl.ClearRecovery()
			log.Info("saved session discarded", "reason", "fresh startup")
		}
	}
	b.scheduleAutosave()
	return nil
}

// openRecoveryPage shows the recovery page in a new window.
func (b *Browser) openRecoveryPage(ctx context.Context) (schema.NodeID, error) {
	win := b.h.NewWindow(schema.Placement{})
	rec := schema.NewTabRecord(b.cfg.Restore.DefaultZoomLevel)
	rec.URL = recovery.PageURL
	rec.Title = recovery.PageTitle
	id, err := b.h.OpenUnloadedTab(win, 0, rec)
	if err != nil {
		return schema.NodeID{}, err
	}
	if err := b.h.SetCurrentTab(ctx, win, id); err != nil {
		return schema.NodeID{}, err
	}
	pslog.Ctx(ctx).Info("recovery page opened", "window", win, "tab", id.String())
	return id, nil
}

func (b *Browser) scheduleAutosave() {
	if b.cfg.AutosaveInterval <= 0 {
		return
	}
	b.loop.Schedule(autosaveKey{}, b.cfg.AutosaveInterval, func() {
		if err := b.saveOnLoop(b.runContext()); err != nil {
			pslog.Ctx(b.runContext()).Warn("session autosave failed", "err", err)
		}
		b.scheduleAutosave()
	})
}

func (b *Browser) runContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// saveOnLoop snapshots and writes the session. While a recovery record is
// pending the file is left alone so the record survives another restart.
func (b *Browser) saveOnLoop(ctx context.Context) error {
	log := pslog.Ctx(ctx)
	if b.ctl.IsValid() {
		log.Debug("session save deferred", "reason", "recovery pending")
		return nil
	}
	session, err := b.ctl.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := b.store.Save(session); err != nil {
		return err
	}
	log.Debug("session saved", "windows", len(session.Windows), "tabs", session.TabCount())
	return nil
}

// SaveSession writes the current session now.
func (b *Browser) SaveSession(ctx context.Context) error {
	b.mu.Lock()
	started := b.started && !b.stopped && b.loop != nil
	b.mu.Unlock()
	if !started {
		return errors.New("browser not running")
	}
	return b.loop.Do(ctx, func() error {
		return b.saveOnLoop(ctx)
	})
}

// Do runs fn on the event loop with the restore controller.
func (b *Browser) Do(ctx context.Context, fn func(*core.RestoreController) error) error {
	b.mu.Lock()
	started := b.started && !b.stopped && b.loop != nil
	b.mu.Unlock()
	if !started {
		return errors.New("browser not running")
	}
	return b.loop.Do(ctx, func() error { return fn(b.ctl) })
}

// Bus returns the hierarchy event bus, or nil before Start.
func (b *Browser) Bus() *eventbus.Bus {
	return b.bus
}

// Wait blocks until the browser stops or a component fails.
func (b *Browser) Wait() error {
	b.mu.Lock()
	ctx := b.ctx
	errCh := b.errCh
	started := b.started
	b.mu.Unlock()
	if !started || ctx == nil {
		return errors.New("browser not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("browser stopped", "err", err)
			_ = b.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop saves the session, stops the loop and releases the session file.
func (b *Browser) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started || b.stopped || b.cancel == nil {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	cancel := b.cancel
	log := b.logger
	loopErr := b.loopErr
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	log.Info("browser stop requested")

	saveErr := b.loop.Do(ctx, func() error {
		return b.saveOnLoop(ctx)
	})
	if saveErr != nil {
		log.Warn("final session save failed", "err", saveErr)
	}
	cancel()

	select {
	case <-ctx.Done():
		log.Warn("browser stop timed out", "err", ctx.Err())
		b.release(log)
		return ctx.Err()
	case <-loopErr:
	}
	b.release(log)
	log.Info("browser stopped")
	return saveErr
}

func (b *Browser) release(log pslog.Logger) {
	if b.backend != nil {
		_ = b.backend.Close()
		b.backend = nil
	}
	if b.lock != nil {
		if err := b.lock.Unlock(); err != nil {
			log.Warn("session lock release failed", "err", err)
		}
		b.lock = nil
	}
}
