package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/urfave/cli/v2"

	"github.com/talx-hub/gopher-loyalty/internal/model"
)

type Config struct {
	RunAddr            string        `env:"RUN_ADDRESS"           envDefault:"localhost:8080"`
	DatabaseURI        string        `env:"DATABASE_URI"          envDefault:""`
	SecretKey          string        `env:"SECRET_KEY"            envDefault:""`
	LogLevel           string        `env:"LOG_LEVEL"             envDefault:"info"`
	ProgramConfig      string        `env:"PROGRAM_CONFIG"        envDefault:""`
	RedisURL           string        `env:"REDIS_URL"             envDefault:""`
	AMQPURL            string        `env:"AMQP_URL"              envDefault:""`
	SweepSchedule      string        `env:"SWEEP_SCHEDULE"        envDefault:"@every 1h"`
	SummaryCacheTTL    time.Duration `env:"SUMMARY_CACHE_TTL"     envDefault:"30s"`
	SweepBatchSize     int           `env:"SWEEP_BATCH_SIZE"      envDefault:"500"`
	SweepWorkers       int           `env:"SWEEP_WORKERS"         envDefault:"0"`
	SweepMaxInFlight   int           `env:"SWEEP_MAX_IN_FLIGHT"   envDefault:"0"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"0"`
	RecentTransactions int           `env:"RECENT_TRANSACTIONS"   envDefault:"10"`
}

type Builder struct {
	cfg *Config
	log *slog.Logger
	err error
}

func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{
		cfg: &Config{
			RunAddr:            "",
			DatabaseURI:        "",
			SecretKey:          "",
			LogLevel:           "",
			ProgramConfig:      "",
			RedisURL:           "",
			AMQPURL:            "",
			SweepSchedule:      "",
			SummaryCacheTTL:    0,
			SweepBatchSize:     0,
			SweepWorkers:       0,
			SweepMaxInFlight:   0,
			RateLimitPerMinute: 0,
			RecentTransactions: 0,
		},
		log: log,
	}
}

func (b *Builder) FromEnv() *Builder {
	if err := env.Parse(b.cfg); err != nil {
		b.log.LogAttrs(context.Background(),
			slog.LevelError, "failed to parse config", slog.Any(model.KeyLoggerError, err))
		b.err = fmt.Errorf("failed to parse env: %w", err)
	}
	return b
}

const (
	flagAddress       = "address"
	flagDatabase      = "database"
	flagSecret        = "secret"
	flagLogLevel      = "log-level"
	flagProgramConfig = "program-config"
	flagRedis         = "redis"
	flagAMQP          = "amqp"
	flagSchedule      = "sweep-schedule"
	flagBatchSize     = "sweep-batch-size"
	flagWorkers       = "sweep-workers"
	flagMaxInFlight   = "sweep-max-in-flight"
	flagRateLimit     = "rate-limit"
)

// Flags lists the command-line overrides of the environment.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagAddress, Aliases: []string{"a"}, Usage: "Run address"},
		&cli.StringFlag{Name: flagDatabase, Aliases: []string{"d"}, Usage: "Database URI"},
		&cli.StringFlag{Name: flagSecret, Aliases: []string{"k"}, Usage: "Service token secret"},
		&cli.StringFlag{Name: flagLogLevel, Aliases: []string{"l"}, Usage: "Log level"},
		&cli.StringFlag{Name: flagProgramConfig, Aliases: []string{"p"}, Usage: "Program YAML file"},
		&cli.StringFlag{Name: flagRedis, Usage: "Redis URL"},
		&cli.StringFlag{Name: flagAMQP, Usage: "AMQP URL"},
		&cli.StringFlag{Name: flagSchedule, Usage: "Sweep cron schedule"},
		&cli.IntFlag{Name: flagBatchSize, Usage: "Sweep page size"},
		&cli.IntFlag{Name: flagWorkers, Usage: "Sweep workers"},
		&cli.IntFlag{Name: flagMaxInFlight, Usage: "Sweep store units running at once"},
		&cli.IntFlag{Name: flagRateLimit, Usage: "API calls per caller per minute"},
	}
}

// FromCLI overrides the fields whose flags were set explicitly.
func (b *Builder) FromCLI(c *cli.Context) *Builder {
	strs := map[string]*string{
		flagAddress:       &b.cfg.RunAddr,
		flagDatabase:      &b.cfg.DatabaseURI,
		flagSecret:        &b.cfg.SecretKey,
		flagLogLevel:      &b.cfg.LogLevel,
		flagProgramConfig: &b.cfg.ProgramConfig,
		flagRedis:         &b.cfg.RedisURL,
		flagAMQP:          &b.cfg.AMQPURL,
		flagSchedule:      &b.cfg.SweepSchedule,
	}
	for name, dst := range strs {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}

	ints := map[string]*int{
		flagBatchSize:   &b.cfg.SweepBatchSize,
		flagWorkers:     &b.cfg.SweepWorkers,
		flagMaxInFlight: &b.cfg.SweepMaxInFlight,
		flagRateLimit:   &b.cfg.RateLimitPerMinute,
	}
	for name, dst := range ints {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	return b
}

func (b *Builder) GetConfig() *Config {
	return b.cfg
}

func (b *Builder) Error() error {
	return b.err
}
