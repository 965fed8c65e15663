package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/penzjakof/anchat-relay/internal/access"
	"github.com/penzjakof/anchat-relay/internal/api"
	"github.com/penzjakof/anchat-relay/internal/auth"
	"github.com/penzjakof/anchat-relay/internal/chats"
	"github.com/penzjakof/anchat-relay/internal/config"
	"github.com/penzjakof/anchat-relay/internal/events"
	"github.com/penzjakof/anchat-relay/internal/gateway"
	"github.com/penzjakof/anchat-relay/internal/normalizer"
	"github.com/penzjakof/anchat-relay/internal/profiles"
	"github.com/penzjakof/anchat-relay/internal/relay"
	"github.com/penzjakof/anchat-relay/internal/session"
	"github.com/penzjakof/anchat-relay/internal/upstream"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := log.New(os.Stdout, "", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Collaborator contracts. The in-memory session source and access
	// lookup serve local runs; the dashboard monolith injects its own
	// implementations when the relay is embedded.
	source := session.NewMemorySource()
	lookup := access.NewMemoryLookup()

	client := upstream.NewHTTPClient(cfg.Upstream.BaseURL, &http.Client{Timeout: cfg.Upstream.HTTPTimeout})

	bus := events.NewBus(events.WithLogger(logger))
	norm := normalizer.New(bus, cfg.Relay.DedupTTL, normalizer.WithLogger(logger))

	dialer := relay.NewWSDialer(cfg.Upstream.SocketURL, cfg.Relay.HandshakeTimeout)
	manager := relay.NewManager(cfg.Relay, source, dialer, norm, relay.WithLogger(logger))

	hub := gateway.NewHub(cfg.Gateway, lookup, manager, gateway.WithLogger(logger))
	hub.Attach(bus)

	resolver := profiles.NewResolver(client, cfg.Chats.ProfileChunkSize, profiles.WithLogger(logger))

	aggOpts := []chats.Option{chats.WithLogger(logger)}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		aggOpts = append(aggOpts, chats.WithAccessCache(chats.NewRedisAccessCache(rdb, cfg.Chats.AccessCacheTTL)))
		logger.Printf("[serve] access cache: redis at %s", cfg.Redis.Addr)
	}
	agg := chats.NewAggregator(cfg.Chats, lookup, source, client, resolver, aggOpts...)

	if err := manager.StartAll(ctx); err != nil {
		logger.Printf("[serve] initial connect sweep: %v", err)
	}

	scheduler := cron.New()
	if cfg.Relay.SweepSchedule != "" {
		_, err := scheduler.AddFunc(cfg.Relay.SweepSchedule, func() {
			if err := manager.ReconnectAll(context.Background()); err != nil {
				logger.Printf("[serve] reconnect sweep: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule reconnect sweep %q: %w", cfg.Relay.SweepSchedule, err)
		}
		scheduler.Start()
	}

	router := api.NewRouter(cfg, api.RouterDeps{
		Chats:       api.NewChatsHandler(agg),
		Connections: api.NewConnectionHandler(manager),
		Hub:         hub,
		JWT:         auth.NewJWTManager(cfg.Auth.JWTSecret, 24*time.Hour),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("[serve] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Printf("[serve] shutting down")

	cronCtx := scheduler.Stop()
	hub.Shutdown()
	manager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	<-cronCtx.Done()
	return srv.Shutdown(shutdownCtx)
}
