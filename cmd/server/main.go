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

	"github.com/samber/do/v2"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/arena-escrow/internal/config"
	"github.com/atmx/arena-escrow/internal/escrow"
	"github.com/atmx/arena-escrow/internal/events"
	"github.com/atmx/arena-escrow/internal/keeper"
)

const serviceName = "arena-escrow"

// server is the resolved service graph.
type server struct {
	Log    *zap.Logger    `do:""`
	Engine *escrow.Engine `do:""`
	Hub    *events.Hub    `do:""`
	Keeper *keeper.Keeper `do:""`
	HTTP   *http.Server   `do:""`
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg := config.FromCommand(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{ctx: ctx}
	defer a.close()

	i := do.New()
	do.ProvideValue(i, cfg)
	do.Provide(i, a.provideLogger)
	do.Provide(i, a.provideStore)
	do.Provide(i, a.provideSlots)
	do.Provide(i, a.provideHub)
	do.Provide(i, a.providePublisher)
	do.Provide(i, a.provideEngine)
	do.Provide(i, a.provideKeeper)
	do.Provide(i, a.provideHTTP)
	do.Provide(i, do.InvokeStruct[server])

	srv, err := do.Invoke[server](i)
	if err != nil {
		return fmt.Errorf("failed to build services: %w", err)
	}
	logger := srv.Log
	defer logger.Sync()

	if cfg.RegistryAuthority != "" {
		_, err := srv.Engine.InitializeRegistry(ctx, cfg.RegistryAuthority)
		switch {
		case errors.Is(err, escrow.ErrAlreadyInitialized):
			logger.Info("registry already initialized")
		case err != nil:
			return fmt.Errorf("initialize registry: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Hub.Run(gctx) })
	if cfg.KeeperInterval > 0 {
		g.Go(func() error { return srv.Keeper.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("arena-escrow listening", zap.String("addr", srv.HTTP.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down arena-escrow...")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.HTTP.Shutdown(sctx)
	})

	err = g.Wait()
	i.Shutdown()
	if err != nil {
		logger.Error("arena-escrow stopped with error", zap.Error(err))
		return err
	}
	logger.Info("arena-escrow stopped")
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  serviceName,
		Usage: "escrow settlement engine for rock/paper/scissors matches",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Flags:  config.Flags(),
				Action: runServer,
			},
		},
		DefaultCommand: "server",
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
