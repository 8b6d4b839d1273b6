package daemon

import (
	"context"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/api"
	"github.com/matheus3301/parley/internal/backend"
	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/clock"
	"github.com/matheus3301/parley/internal/config"
	"github.com/matheus3301/parley/internal/dispatch"
	"github.com/matheus3301/parley/internal/lock"
	"github.com/matheus3301/parley/internal/logging"
	"github.com/matheus3301/parley/internal/presence"
	"github.com/matheus3301/parley/internal/query"
	"github.com/matheus3301/parley/internal/session"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/store"
	chatsync "github.com/matheus3301/parley/internal/sync"
	"github.com/matheus3301/parley/internal/transport"
	"github.com/matheus3301/parley/internal/typing"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	ConfigPath  string // optional override; empty = ~/.parley/config.toml
	Debug       bool
	Quiet       bool // log to the file only
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideClock,
			provideStateMachine,
			provideLock,
			providePresence,
			provideCache,
			provideDispatcher,
			provideTransport,
			provideSyncEngine,
			provideDebouncer,
			provideBackend,
			provideQuery,
			provideSessionService,
			provideSyncService,
			provideChatService,
			provideMessageService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    session.LogPath(p.SessionName),
		Session: p.SessionName,
		Debug:   p.Debug,
		Quiet:   p.Quiet,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideClock() clock.Clock {
	return clock.Real()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), cfg.Server.WSURL)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func providePresence(m *status.Machine, b *bus.Bus, logger *zap.Logger) *presence.Store {
	return presence.New(m, b, logger.Named("presence"))
}

func provideCache(b *bus.Bus, logger *zap.Logger) *store.Cache {
	return store.NewCache(b, logger.Named("cache"))
}

func provideDispatcher(logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(logger.Named("dispatch"))
}

func provideTransport(cfg *config.Config, d *dispatch.Dispatcher, clk clock.Clock, logger *zap.Logger) *transport.Transport {
	header := http.Header{}
	if cfg.Server.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Server.Token)
	}
	return transport.New(transport.Options{
		Dialer: transport.WebsocketDialer{Header: header, ReadLimit: 1 << 20},
		Clock:  clk,
		Backoff: transport.Backoff{
			MinDelay:   cfg.Reconnect.MinDelay.Duration,
			MaxDelay:   cfg.Reconnect.MaxDelay.Duration,
			Factor:     cfg.Reconnect.GrowthFactor,
			MaxRetries: cfg.Reconnect.MaxRetries,
		},
		Logger:     logger.Named("transport"),
		OnEnvelope: d.DispatchEnvelope,
	})
}

func provideSyncEngine(cfg *config.Config, cache *store.Cache, p *presence.Store, d *dispatch.Dispatcher, t *transport.Transport, b *bus.Bus, clk clock.Clock, logger *zap.Logger) *chatsync.Engine {
	return chatsync.NewEngine(chatsync.Options{
		Cache:       cache,
		Presence:    p,
		Dispatcher:  d,
		Sender:      t,
		Bus:         b,
		Clock:       clk,
		Logger:      logger.Named("sync"),
		LocalUserID: cfg.Server.UserID,
	})
}

func provideDebouncer(cfg *config.Config, t *transport.Transport, clk clock.Clock, logger *zap.Logger) *typing.Debouncer {
	return typing.New(t, clk, cfg.Typing.IdleTimeout.Duration, logger.Named("typing"))
}

func provideBackend(cfg *config.Config) *backend.Client {
	return backend.New(cfg.Server.APIURL, cfg.Server.Token, nil)
}

func provideQuery(cfg *config.Config, cache *store.Cache, be *backend.Client, b *bus.Bus, clk clock.Clock, logger *zap.Logger) *query.Client {
	return query.New(cache, be, b, clk, logger.Named("query"), cfg.Server.UserID)
}

func provideSessionService(p Params, cfg *config.Config, t *transport.Transport, ps *presence.Store, d *typing.Debouncer, b *bus.Bus, logger *zap.Logger) *api.SessionService {
	return api.NewSessionService(p.SessionName, cfg.Server.WSURL, t, ps, d, b, logger.Named("api"))
}

func provideSyncService(cfg *config.Config, t *transport.Transport, ps *presence.Store, logger *zap.Logger) *api.SyncService {
	return api.NewSyncService(t, ps, cfg.Server.WSURL, logger.Named("api"))
}

func provideChatService(q *query.Client, cache *store.Cache) *api.ChatService {
	return api.NewChatService(q, cache)
}

func provideMessageService(q *query.Client, d *typing.Debouncer) *api.MessageService {
	return api.NewMessageService(q, d)
}

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Server    *Server
	Session   *api.SessionService
	Lock      *lock.Lock
	Engine    *chatsync.Engine
	Transport *transport.Transport
	Presence  *presence.Store
	Cache     *store.Cache
	Typing    *typing.Debouncer
	Query     *query.Client
	Logger    *zap.Logger
}

func registerLifecycle(p lifecycleParams) {
	logger := p.Logger
	prefetchCtx, cancelPrefetch := context.WithCancel(context.Background())

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Handlers must be in place before the first frame arrives.
			p.Engine.Start()

			go func() {
				if err := p.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			logger.Info("connecting", zap.String("url", p.Config.Server.WSURL))
			p.Transport.Connect(p.Config.Server.WSURL, p.Presence.SetStatus)

			go func() {
				if err := p.Query.Prefetch(prefetchCtx); err != nil {
					logger.Warn("prefetch failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelPrefetch()
			p.Typing.StopAll()
			p.Engine.Stop()
			p.Transport.Disconnect()
			p.Cache.Clear()
			p.Presence.Reset()
			p.Session.Close()
			err := p.Server.Stop(ctx)
			if lerr := p.Lock.Release(); lerr != nil {
				logger.Warn("error releasing lock", zap.Error(lerr))
				err = multierr.Append(err, lerr)
			}
			logger.Info("daemon stopped")
			return err
		},
	})
}
