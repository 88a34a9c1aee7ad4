package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/config"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/server"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/session"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/store"
)

// demoUsers seeds the login registry so a fresh deployment is usable
// without a separate provisioning step.
var demoUsers = []string{
	"alice@example.com",
	"bob@example.com",
	"carol@example.com",
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	log.Info("starting presenced",
		zap.String("server_id", cfg.ServerID),
		zap.Int("port", cfg.Port),
		zap.String("routing_mode", cfg.RoutingMode))

	st, err := store.Open(cfg.StoreURL, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pingWithRetry(ctx, st, log); err != nil {
		log.Fatal("store unreachable", zap.Error(err))
	}

	manager := session.NewManager(cfg, st, log)
	srv := server.New(cfg, st, manager, log)
	if err := srv.SeedUsers(ctx, demoUsers...); err != nil {
		log.Warn("seed demo users failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Listen(); err != nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		// stop admitting and close live sessions first; the listener would
		// otherwise wait on open websockets. Presence keys retire by TTL.
		manager.Shutdown()
		return srv.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("run loop failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("clean shutdown")
}

// pingWithRetry gives the store a grace window at boot. Orchestrated
// deployments regularly start the service before its store is routable.
func pingWithRetry(ctx context.Context, st *store.Store, log *zap.Logger) error {
	const attempts = 15
	var err error
	for i := 1; i <= attempts; i++ {
		if err = st.Ping(ctx); err == nil {
			return nil
		}
		log.Warn("store ping failed, retrying",
			zap.Int("attempt", i), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return err
}
