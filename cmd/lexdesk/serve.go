package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/lexdesk/internal/agent"
	"github.com/memohai/lexdesk/internal/agent/gateway"
	"github.com/memohai/lexdesk/internal/channel"
	"github.com/memohai/lexdesk/internal/channel/adapters/discord"
	"github.com/memohai/lexdesk/internal/channel/adapters/telegram"
	"github.com/memohai/lexdesk/internal/config"
	"github.com/memohai/lexdesk/internal/conversation"
	"github.com/memohai/lexdesk/internal/db"
	"github.com/memohai/lexdesk/internal/dedup"
	"github.com/memohai/lexdesk/internal/handlers"
	"github.com/memohai/lexdesk/internal/healthcheck"
	"github.com/memohai/lexdesk/internal/identity"
	"github.com/memohai/lexdesk/internal/ingress"
	"github.com/memohai/lexdesk/internal/ingress/queue"
	"github.com/memohai/lexdesk/internal/logger"
	"github.com/memohai/lexdesk/internal/media"
	"github.com/memohai/lexdesk/internal/media/signer"
	"github.com/memohai/lexdesk/internal/prune"
	"github.com/memohai/lexdesk/internal/retention"
	"github.com/memohai/lexdesk/internal/retry"
	"github.com/memohai/lexdesk/internal/server"
	"github.com/memohai/lexdesk/internal/storage"
	"github.com/memohai/lexdesk/internal/storage/providers/fsstore"
	"github.com/memohai/lexdesk/internal/transcription"
	"github.com/memohai/lexdesk/internal/transcription/whisper"
	"github.com/memohai/lexdesk/internal/workflow"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfigHolder,
			provideConfig,
			provideLogger,
			provideRetryPolicy,
			provideDBConn,
			provideRedis,
			provideClaimer,
			provideStore,
			provideSigner,
			provideIssuer,
			provideTranscriber,
			provideTranscriptionPipeline,
			provideChannelRegistry,
			provideDeliveryGateway,
			provideIdentityResolver,
			provideHistory,
			provideModelClient,
			agent.NewEngine,
			provideOrchestrator,
			provideDispatcher,
			provideHealthCheckers,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideInboundHandler),
			provideServerHandler(provideMediaHandler),
			provideServer,
		),
		fx.Invoke(
			startConfigReload,
			drainDispatcher,
			startQueueConsumer,
			startRetention,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfigHolder() (*config.Holder, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return config.NewHolder(path, cfg), nil
}

func provideConfig(holder *config.Holder) config.Config { return holder.Get() }

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideRetryPolicy(cfg config.Config) retry.Policy {
	return retryPolicy(cfg.Workflow)
}

func retryPolicy(cfg config.WorkflowConfig) retry.Policy {
	return retry.Policy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
		MaxDelay:  time.Duration(cfg.RetryMaxBackoffMs) * time.Millisecond,
	}.Normalize()
}

func provideDBConn(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(log, cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

// provideRedis returns nil when no address is configured.
func provideRedis(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return client.Close() }})
	return client
}

func provideClaimer(log *slog.Logger, cfg config.Config, client *redis.Client) dedup.Claimer {
	return newClaimer(log, cfg.Workflow, client)
}

func newClaimer(log *slog.Logger, cfg config.WorkflowConfig, client *redis.Client) dedup.Claimer {
	ttl := time.Duration(cfg.DedupTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = config.DefaultDedupTTLHours * time.Hour
	}
	if client == nil {
		log.Warn("redis not configured, deduplication is process-local")
		return dedup.NewMemoryClaimer(ttl)
	}
	return dedup.NewRedisClaimer(client, ttl)
}

func provideStore(cfg config.Config) (storage.Store, error) {
	return fsstore.New(cfg.Storage.Root)
}

func provideSigner(store storage.Store, cfg config.Config) (*signer.JWTSigner, error) {
	return signer.New(store, cfg.Media.SigningSecret, cfg.Media.PublicBaseURL)
}

// provideIssuer reads the TTL through the holder so SIGHUP reloads apply to
// the next issuance.
func provideIssuer(log *slog.Logger, s *signer.JWTSigner, holder *config.Holder, policy retry.Policy) *media.Issuer {
	return media.NewIssuer(log, s, holder.MediaURLTTL, policy)
}

func provideTranscriber(log *slog.Logger, store storage.Store, cfg config.Config) *whisper.Client {
	return whisper.New(log, store, whisper.Config{
		BaseURL:  cfg.Transcription.BaseURL,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Timeout:  time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second,
	})
}

func provideTranscriptionPipeline(log *slog.Logger, client *whisper.Client, policy retry.Policy) *transcription.Pipeline {
	return transcription.NewPipeline(log, client, policy)
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config) *channel.Registry {
	registry := channel.NewRegistry()
	if cfg.Telegram.BotToken != "" {
		registry.MustRegister(telegram.NewTelegramAdapter(log, cfg.Telegram.BotToken))
	}
	if cfg.Discord.BotToken != "" {
		registry.MustRegister(discord.NewDiscordAdapter(log, cfg.Discord.BotToken))
	}
	if len(registry.Types()) == 0 {
		log.Warn("no channel adapters configured, every thread will be unlinked")
	}
	return registry
}

func provideDeliveryGateway(log *slog.Logger, registry *channel.Registry, policy retry.Policy) *channel.Gateway {
	return channel.NewGateway(log, registry, policy)
}

func provideIdentityResolver(log *slog.Logger, conn *pgxpool.Pool, registry *channel.Registry) *identity.Resolver {
	return identity.NewResolver(log, identity.NewPostgresDirectory(conn), registry)
}

func provideHistory(conn *pgxpool.Pool) conversation.Store {
	return conversation.NewPostgresStore(conn)
}

func provideModelClient(log *slog.Logger, cfg config.Config) agent.ModelClient {
	return gateway.New(log, cfg.AgentGateway.BaseURL(), 0)
}

func provideOrchestrator(
	log *slog.Logger,
	cfg config.Config,
	policy retry.Policy,
	pipeline *transcription.Pipeline,
	resolver *identity.Resolver,
	issuer *media.Issuer,
	engine *agent.Engine,
	delivery *channel.Gateway,
	history conversation.Store,
) *workflow.Orchestrator {
	return workflow.New(log, workflow.Deps{
		Transcription: pipeline,
		Identity:      resolver,
		Credentials:   issuer,
		Engine:        engine,
		Delivery:      delivery,
		History:       history,
	}, workflow.Options{
		Retry:        policy,
		HistoryLimit: cfg.Workflow.HistoryLimit,
		HistoryClip:  prune.Config{MaxBytes: cfg.Workflow.HistoryEntryBytes},
	})
}

func provideDispatcher(log *slog.Logger, cfg config.Config, orchestrator *workflow.Orchestrator, claimer dedup.Claimer) *ingress.Dispatcher {
	return ingress.NewDispatcher(log, orchestrator, claimer, cfg.Workflow.MaxConcurrency)
}

func provideHealthCheckers(conn *pgxpool.Pool, client *redis.Client) []healthcheck.Checker {
	checkers := []healthcheck.Checker{
		healthcheck.Func("postgres", conn.Ping),
	}
	if client != nil {
		checkers = append(checkers, healthcheck.Func("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	return checkers
}

func provideInboundHandler(log *slog.Logger, dispatcher *ingress.Dispatcher) *handlers.InboundHandler {
	return handlers.NewInboundHandler(log, dispatcher)
}

func provideMediaHandler(log *slog.Logger, store storage.Store, cfg config.Config) *handlers.MediaHandler {
	return handlers.NewMediaHandler(log, store, cfg.Media.SigningSecret)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startConfigReload(lc fx.Lifecycle, log *slog.Logger, holder *config.Holder) {
	sighup := make(chan os.Signal, 1)
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			signal.Notify(sighup, syscall.SIGHUP)
			go func() {
				for {
					select {
					case <-done:
						return
					case <-sighup:
						if err := holder.Reload(); err != nil {
							log.Error("config reload failed", slog.Any("error", err))
							continue
						}
						log.Info("config reloaded", slog.Duration("media_url_ttl", holder.MediaURLTTL()))
					}
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			signal.Stop(sighup)
			close(done)
			return nil
		},
	})
}

// drainDispatcher is invoked first so its OnStop runs last, after the HTTP
// server and the queue consumer have stopped taking new messages.
func drainDispatcher(lc fx.Lifecycle, log *slog.Logger, dispatcher *ingress.Dispatcher) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := dispatcher.Wait(ctx); err != nil {
				log.Warn("in-flight workflows did not finish before shutdown", slog.Any("error", err))
			}
			return nil
		},
	})
}

func startQueueConsumer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, dispatcher *ingress.Dispatcher, policy retry.Policy) error {
	if cfg.AMQP.URL == "" {
		return nil
	}
	consumer, err := queue.NewConsumer(log, dispatcher, queue.Config{
		URL:       cfg.AMQP.URL,
		Queue:     cfg.AMQP.Queue,
		Prefetch:  cfg.AMQP.Prefetch,
		Reconnect: policy,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(stopped)
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("queue consumer exited", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-stopped:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
	return nil
}

func startRetention(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, conn *pgxpool.Pool) error {
	job, err := retention.New(log, conversation.NewPostgresPurger(conn), retention.Config{
		Schedule: cfg.Retention.Schedule,
		MaxAge:   cfg.Retention.MaxAge(),
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { job.Start(); return nil },
		OnStop:  func(ctx context.Context) error { return job.Stop(ctx) },
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
