package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"battle-server/internal/battle"
	"battle-server/internal/config"
	"battle-server/internal/conn"
	"battle-server/internal/httpapi"
	"battle-server/internal/ranking"
	"battle-server/internal/registry"
	"battle-server/internal/store"
	"battle-server/internal/ws"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		gateway  store.Gateway
		recorder battle.ResultRecorder
		rankings httpapi.Rankings
	)
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			return err
		}
		gateway, err = store.NewPostgres(db, logger)
		if err != nil {
			return err
		}
		rankStore, err := ranking.NewStore(db, logger)
		if err != nil {
			return err
		}
		recorder, rankings = rankStore, rankStore
		logger.Info("using postgres store")
	} else {
		gateway = store.NewMemory()
		recorder = ranking.Noop{}
		logger.Warn("no DATABASE_URL set; battles will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeouts := battle.Timeouts{
		Round:          cfg.RoundTimeout,
		BetweenRounds:  cfg.BetweenRounds,
		RematchStart:   cfg.RematchStartDelay,
		CompletedGrace: cfg.CompletedGrace,
	}
	reg := registry.New(ctx, gateway, recorder, clockwork.NewRealClock(), timeouts, logger)
	tracker := conn.NewTracker(logger)

	handler := httpapi.Routes(gateway, rankings, ws.Handler(reg, tracker, logger), cfg.CORSOrigin, logger)
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
