package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/binaryoptions/internal/server"
	"github.com/alanyoungcy/binaryoptions/internal/server/handler"
	"github.com/alanyoungcy/binaryoptions/internal/service"
)

// ServerMode serves the HTTP and WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// TrackerMode runs only the expiry tracker.
func (a *App) TrackerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting tracker mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startTracker(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs only the archive loop.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startArchive(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// BootstrapMode brings the market up and exits.
func (a *App) BootstrapMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting bootstrap mode")
	return a.bootstrap(ctx, deps)
}

// FullMode bootstraps when configured and then runs every enabled component
// on one host.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	if a.cfg.Admin.Bootstrap {
		if err := a.bootstrap(ctx, deps); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	if a.cfg.Tracker.Enabled {
		a.startTracker(ctx, g, deps)
	}
	if a.cfg.Archive.Enabled {
		if err := a.startArchive(ctx, g, deps); err != nil {
			return err
		}
	}

	return g.Wait()
}

func (a *App) bootstrap(ctx context.Context, deps *Dependencies) error {
	if deps.Admin == nil {
		return errors.New("app: bootstrap requires an admin key")
	}

	var mint solana.PublicKey
	if a.cfg.Admin.AssetMint != "" {
		m, err := solana.PublicKeyFromBase58(a.cfg.Admin.AssetMint)
		if err != nil {
			return fmt.Errorf("app: asset mint: %w", err)
		}
		mint = m
	}

	svc := service.NewBootstrapService(deps.Ledger, deps.Admin, deps.ProgramID, a.logger)
	res, err := svc.Bootstrap(ctx, service.BootstrapParams{
		AssetMint:      mint,
		Decimals:       uint8(a.cfg.Admin.MintDecimals),
		FeeRatePercent: a.cfg.Admin.FeeRatePercent,
	})
	if err != nil {
		return fmt.Errorf("app: bootstrap: %w", err)
	}

	a.logger.InfoContext(ctx, "market ready",
		slog.String("asset_mint", res.AssetMint.String()),
		slog.String("config", res.Config.String()),
		slog.String("vault", res.Vault.String()),
		slog.Bool("created_mint", res.CreatedMint),
		slog.Bool("initialized", res.Initialized),
	)
	return nil
}

func (a *App) startTracker(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	tracker := service.NewExpiryTracker(
		deps.Markets,
		deps.Events,
		nil,
		a.cfg.Tracker.Interval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return tracker.Run(ctx)
	})
}

func (a *App) startArchive(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("app: archive requires s3 storage")
	}
	archive := service.NewArchiveService(deps.Markets, deps.Archiver, a.cfg.Archive.Interval.Duration, a.logger)
	g.Go(func() error {
		return archive.Run(ctx)
	})
	return nil
}

// startHTTPServer adds the API server and the WebSocket hub to the given
// errgroup. The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var events *handler.EventHandler
	if deps.SignalBus != nil {
		events = handler.NewEventHandler(deps.SignalBus, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		RateLimitRPS:   a.cfg.Server.RateLimitRPS,
		RateLimitBurst: a.cfg.Server.RateLimitBurst,
	}, server.Handlers{
		Health:       handler.NewHealthHandler(deps.Health, a.logger),
		Status:       handler.NewStatusHandler(a.cfg.Mode, deps.Ledger),
		Transactions: handler.NewTransactionHandler(deps.Ledger, a.logger),
		Accounts:     handler.NewAccountHandler(deps.Markets, a.logger),
		Markets:      handler.NewMarketHandler(deps.Markets, a.logger),
		Events:       events,
	}, server.Options{
		Hub:         deps.Hub,
		RateLimiter: deps.RateLimiter,
		Gatherer:    deps.Registry,
		Registerer:  deps.Registry,
	}, a.logger)

	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case err := <-errCh:
			return err
		}
	})
}
