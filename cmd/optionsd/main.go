// Command optionsd runs the binary options ledger host. It loads
// configuration, validates it, wires dependencies and runs the configured
// mode until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/app"
	"github.com/alanyoungcy/binaryoptions/internal/config"
	"github.com/alanyoungcy/binaryoptions/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	newKey := flag.String("new-admin-key", "", "generate an admin key, encrypt it with $OPTIONSD_ADMIN_KEY_PASSWORD, write it to this path and exit")
	flag.Parse()

	if *newKey != "" {
		if err := writeAdminKey(*newKey, os.Getenv("OPTIONSD_ADMIN_KEY_PASSWORD")); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", slog.String("path", *configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logger.Warn("unknown log level, using info", slog.String("log_level", cfg.LogLevel))
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("optionsd starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = application.Run(ctx)
	application.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger.Info("optionsd stopped")
}

func writeAdminKey(path, password string) error {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.WriteKeyFile(path, key, password); err != nil {
		return err
	}
	fmt.Println(key.PublicKey().String())
	return nil
}
