package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/service"
	"github.com/talx-hub/gopher-loyalty/internal/service/config"
	"github.com/talx-hub/gopher-loyalty/internal/utils/auth"
	"github.com/talx-hub/gopher-loyalty/internal/utils/logger"
)

func init() {
	//nolint:errcheck // the file is optional
	godotenv.Load("./.env")
}

func main() {
	app := &cli.App{
		Name:  "loyalty",
		Usage: "points, rewards and stored-value wallet engine",
		Flags: config.Flags(),
		Commands: []*cli.Command{
			commandServe(),
			commandSweep(),
			commandMigrate(),
			commandToken(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Default().LogAttrs(context.Background(),
			slog.LevelError,
			"loyalty stopped with error",
			slog.Any(model.KeyLoggerError, err),
		)
		os.Exit(1)
	}
}

func load(c *cli.Context) (*config.Config, *slog.Logger, error) {
	b := config.NewBuilder(slog.Default()).FromEnv().FromCLI(c)
	if err := b.Error(); err != nil {
		return nil, nil, err //nolint: wrapcheck // already descriptive
	}
	cfg := b.GetConfig()

	level, err := logger.ParseLevel(cfg.LogLevel)
	log := logger.New(level)
	if err != nil {
		log.LogAttrs(c.Context,
			slog.LevelWarn,
			"unknown log level, using info",
			slog.Any(model.KeyLoggerError, err),
		)
	}
	return cfg, log, nil
}

func commandServe() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the HTTP API and the sweep schedule",
		Action: func(c *cli.Context) error {
			cfg, log, err := load(c)
			if err != nil {
				return err
			}
			if cfg.SecretKey == "" {
				log.LogAttrs(c.Context, slog.LevelWarn, "SECRET_KEY is empty, the API is not authenticated")
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := service.Init(ctx, cfg, log)
			if err != nil {
				return err //nolint: wrapcheck // already descriptive
			}
			defer app.Close()

			return app.RunServer(ctx) //nolint: wrapcheck // already descriptive
		},
	}
}

func commandSweep() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "run one expiry pass and print the report",
		Action: func(c *cli.Context) error {
			cfg, log, err := load(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := service.Init(ctx, cfg, log)
			if err != nil {
				return err //nolint: wrapcheck // already descriptive
			}
			defer app.Close()

			report, err := app.Sweep(ctx)
			if err != nil {
				return err //nolint: wrapcheck // already descriptive
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(report) //nolint: wrapcheck // stdout
		},
	}
}

func commandMigrate() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations",
		Action: func(c *cli.Context) error {
			cfg, log, err := load(c)
			if err != nil {
				return err
			}
			return service.Migrate(c.Context, cfg, log) //nolint: wrapcheck // already descriptive
		},
	}
}

func commandToken() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "issue a service token for a caller",
		ArgsUsage: "<caller-id>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "ttl",
				Value: auth.TokenExpire,
				Usage: "token lifetime",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := load(c)
			if err != nil {
				return err
			}
			caller := c.Args().First()
			if caller == "" {
				return errors.New("caller id is required")
			}
			if cfg.SecretKey == "" {
				return errors.New("SECRET_KEY is required to sign tokens")
			}
			token, err := auth.BuildToken(caller, []byte(cfg.SecretKey), c.Duration("ttl"), time.Now())
			if err != nil {
				return err //nolint: wrapcheck // already descriptive
			}
			_, err = fmt.Fprintln(c.App.Writer, token)
			return err //nolint: wrapcheck // stdout
		},
	}
}
