package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/nestsync/internal/activity"
	"github.com/matheus3301/nestsync/internal/api"
	"github.com/matheus3301/nestsync/internal/bus"
	"github.com/matheus3301/nestsync/internal/cache"
	"github.com/matheus3301/nestsync/internal/config"
	"github.com/matheus3301/nestsync/internal/lock"
	"github.com/matheus3301/nestsync/internal/logging"
	"github.com/matheus3301/nestsync/internal/metrics"
	"github.com/matheus3301/nestsync/internal/profile"
	"github.com/matheus3301/nestsync/internal/remote"
	"github.com/matheus3301/nestsync/internal/scheduler"
	intsync "github.com/matheus3301/nestsync/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideProfile,
			provideLogger,
			provideLock,
			provideRegistry,
			provideMetrics,
			provideBus,
			provideScheduler,
			provideCache,
			provideMonitor,
			provideTransport,
			provideManager,
			provideHandler,
			NewServer,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Invoke(registerLifecycle),
	)
}

func (p Params) socket() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return profile.SocketPath(p.ProfileName)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideProfile(p Params) (*profile.Profile, error) {
	return profile.Load(p.ProfileName)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, logging.ParseLevel(cfg.LogLevel))
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName), p.socket())
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideScheduler(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		MaxConcurrent:     cfg.Scheduler.MaxConcurrent,
		ConnectionTimeout: cfg.Scheduler.ConnectionTimeout.Std(),
		RetryDelay:        cfg.Scheduler.RetryDelay.Std(),
		MaxRetries:        cfg.Scheduler.MaxRetries,
	}, logger.Named("scheduler"), m)
}

func provideCache(m *metrics.Metrics) *cache.Cache {
	return cache.New(cache.WithMetrics(m))
}

func provideMonitor(cfg *config.Config, b *bus.Bus) *activity.Monitor {
	return activity.NewMonitor(cfg.Polling.ActivityThreshold.Std(), b)
}

func provideTransport(prof *profile.Profile) *remote.Client {
	var opts []remote.Option
	if prof.Token != "" {
		opts = append(opts, remote.WithToken(prof.Token))
	}
	return remote.New(prof.APIURL, opts...)
}

func provideManager(
	prof *profile.Profile,
	cfg *config.Config,
	transport *remote.Client,
	sched *scheduler.Scheduler,
	c *cache.Cache,
	b *bus.Bus,
	monitor *activity.Monitor,
	m *metrics.Metrics,
	logger *zap.Logger,
) *intsync.Manager {
	deps := intsync.Deps{
		Transport: transport,
		Scheduler: sched,
		Cache:     c,
		Bus:       b,
		Logger:    logger.Named("sync"),
	}
	return intsync.NewManager(prof.UserID, deps, syncOptions(cfg), monitor, m)
}

func syncOptions(cfg *config.Config) intsync.Options {
	return intsync.Options{
		MessageInterval: cfg.Polling.Messages.Std(),
		UnreadInterval:  cfg.Polling.Unread.Std(),
		InboxInterval:   cfg.Polling.Inbox.Std(),
		ActivityCheck:   cfg.Polling.ActivityCheck.Std(),
		ConversationTTL: cfg.Cache.Conversation.Std(),
		UnreadTTL:       cfg.Cache.Unread.Std(),
		EmptyTTL:        cfg.Cache.Empty.Std(),
		InboxTTL:        cfg.Cache.Inbox.Std(),
	}
}

func provideHandler(
	p Params,
	mgr *intsync.Manager,
	monitor *activity.Monitor,
	sched *scheduler.Scheduler,
	c *cache.Cache,
	reg *prometheus.Registry,
	logger *zap.Logger,
) *api.Handler {
	return api.NewHandler(api.Deps{
		Profile:   p.ProfileName,
		Manager:   mgr,
		Monitor:   monitor,
		Scheduler: sched,
		Cache:     c,
		Gatherer:  reg,
		Logger:    logger.Named("api"),
	})
}

// The lock comes before the server so a second daemon fails before touching
// the socket.
func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, srv *Server, mgr *intsync.Manager, prof *profile.Profile, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			mgr.Start(context.Background())
			logger.Info("daemon started",
				zap.String("user_id", prof.UserID),
				zap.String("api_url", prof.APIURL))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			mgr.Close()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
