package main

import (
	"os"
	"strings"

	"github.com/MrEthical07/hostauth/plugin"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

type commonFlags struct {
	config   string
	dsn      string
	redis    string
	logLevel string
	logJSON  bool
}

func (f *commonFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the YAML config file",
			EnvVars:     []string{plugin.EnvConfigPath},
			Destination: &f.config,
		},
		&cli.StringFlag{
			Name:        "db",
			Usage:       "Database DSN, overrides database.dsn",
			Destination: &f.dsn,
		},
		&cli.StringFlag{
			Name:        "redis",
			Usage:       "Redis address for secondary storage, overrides redis.addr",
			Destination: &f.redis,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "One of trace, debug, info, warn, error",
			Value:       "info",
			Destination: &f.logLevel,
		},
		&cli.BoolFlag{
			Name:        "log-json",
			Usage:       "Write JSON logs instead of console output",
			Destination: &f.logJSON,
		},
	}
}

func (f *commonFlags) load() (*plugin.Config, error) {
	cfg, err := plugin.LoadConfig(f.config)
	if err != nil {
		return nil, err
	}
	if f.dsn != "" {
		cfg.Database.DSN = f.dsn
	}
	if f.redis != "" {
		cfg.Redis.Addr = f.redis
	}
	return cfg, nil
}

func (f *commonFlags) logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(f.logLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if f.logJSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
