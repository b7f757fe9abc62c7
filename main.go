package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	pkgerrors "github.com/pkg/errors"

	"github.com/kova98/smallfeed/config"
	"github.com/kova98/smallfeed/credentials"
	"github.com/kova98/smallfeed/feed"
	"github.com/kova98/smallfeed/metrics"
	"github.com/kova98/smallfeed/report"
	"github.com/kova98/smallfeed/sources"
)

func main() {
	config.LoadConfig()

	opts := slog.HandlerOptions{Level: config.Config.LogLevel}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, &opts)
	if config.Config.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stderr, &opts)
	}
	logger := slog.New(handler).With("run_id", uuid.NewString())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, config.Config, os.Stdout); err != nil {
		logger.Error("small feed failed", "kind", errorKind(err), "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg config.AppConfig, out io.Writer) error {
	start := time.Now()
	m := metrics.New()

	creds, err := credentials.Load(cfg.LoginFile, cfg.APIKeysFile)
	if err != nil {
		return pkgerrors.Wrap(err, "load credentials")
	}

	httpClient, err := sources.NewHTTPClient(cfg.ProxyURL)
	if err != nil {
		return pkgerrors.Wrap(err, "create http client")
	}

	client := sources.NewRedditClient(logger, httpClient, sources.Options{
		UserAgent:         cfg.UserAgent,
		RequestsPerMinute: cfg.RequestsPerMinute,
		RetryRateLimited:  cfg.RetryRateLimited,
		Observer:          m,
	})
	session, err := client.Authenticate(ctx, creds)
	if err != nil {
		return pkgerrors.Wrap(err, "authenticate")
	}

	rows, err := buildAndPrintReport(ctx, session, out, cfg.FetchConcurrency, m)
	if err != nil {
		return err
	}

	m.RunFinished(rows, time.Since(start))
	logger.Info("report printed", "rows", rows, "elapsed_ms", time.Since(start).Milliseconds())

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}
	return nil
}

// buildAndPrintReport prints the top items of every subscribed feed and
// returns the number of rows printed. Nothing is printed on error.
func buildAndPrintReport(ctx context.Context, source feed.FeedSource, out io.Writer, concurrency int, observer feed.Observer) (int, error) {
	rows, err := feed.BuildReport(ctx, source, feed.WithConcurrency(concurrency), feed.WithObserver(observer))
	if err != nil {
		return 0, pkgerrors.Wrap(err, "build report")
	}
	if err := report.Print(out, rows); err != nil {
		return 0, pkgerrors.Wrap(err, "print report")
	}
	return len(rows), nil
}

func errorKind(err error) string {
	var (
		fileErr      *credentials.FileError
		authErr      *sources.AuthenticationError
		rateErr      *sources.RateLimitError
		transportErr *sources.TransportError
	)
	switch {
	case errors.As(err, &fileErr):
		return "credential_file"
	case errors.As(err, &authErr):
		return "authentication"
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
