package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/affinity"
	"github.com/casualjim/courier/internal/config"
	"github.com/casualjim/courier/pkg/slogx"
	_ "github.com/joho/godotenv/autoload"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

func newLogger(level slog.Level) *slog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	return slog.New(zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}))
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.SetDefault(newLogger(slog.LevelInfo))
		slog.Error("invalid configuration", slogx.Error(err))
		os.Exit(2)
	}
	slog.SetDefault(newLogger(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ui := affinity.NewLoop(affinity.LockOSThread(true))
	ui.Start(ctx)
	defer func() {
		ui.Stop()
		<-ui.Done()
	}()

	logger := slog.Default().With(slogx.LoggerName("courier"))
	b := courier.New(append(cfg.BrokerOptions(logger), courier.WithAffinity(ui))...)

	slog.Info("running courier demo", slog.String("fault_policy", cfg.FaultPolicy.String()))
	if err := run(ctx, b, os.Stdout); err != nil {
		slog.Error("demo failed", slogx.Error(err))
	}

	if err := printStats(os.Stdout, b.Stats()); err != nil {
		slog.Error("failed to render stats", slogx.Error(err))
	}
	if cfg.DumpStats {
		dumpStats(b.Stats())
	}
	fmt.Println()
}
