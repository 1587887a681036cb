package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amats/tg-redmine/internal/bot"
	"github.com/amats/tg-redmine/internal/config"
	"github.com/amats/tg-redmine/internal/credential"
	"github.com/amats/tg-redmine/internal/notify"
	"github.com/amats/tg-redmine/internal/reconcile"
	"github.com/amats/tg-redmine/internal/redmine"
	"github.com/amats/tg-redmine/internal/store"
	"github.com/amats/tg-redmine/internal/telegram"
	"github.com/amats/tg-redmine/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	setCredential := flag.String("set-credential", "",
		"store a secret in the OS keyring and exit; the value is read from stdin "+
			"(keys: "+credential.KeyBotToken+", "+credential.KeyRedmineAPIKey+", "+credential.KeyTrackerDSN+")")
	deleteCredential := flag.String("delete-credential", "",
		"remove a secret from the OS keyring and exit")
	flag.Parse()

	var err error
	switch {
	case *setCredential != "":
		err = storeCredential(*setCredential)
	case *deleteCredential != "":
		err = credential.Delete(*deleteCredential)
	default:
		err = run(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tg-redmine: %v\n", err)
		os.Exit(1)
	}
}

// storeCredential reads the secret value from stdin so it never
// appears in the process list or shell history.
func storeCredential(key string) error {
	value, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading credential value: %w", err)
	}

	trimmed := strings.TrimSpace(string(value))
	if trimmed == "" {
		return fmt.Errorf("empty credential value for %q", key)
	}
	return credential.Set(key, trimmed)
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	token, err := credential.Fallback(cfg.Telegram.Token, credential.KeyBotToken)
	if err != nil {
		return fmt.Errorf("resolving bot token: %w", err)
	}
	apiKey, err := credential.Fallback(cfg.Redmine.APIKey, credential.KeyRedmineAPIKey)
	if err != nil {
		return fmt.Errorf("resolving redmine api key: %w", err)
	}
	dsn, err := credential.Fallback(cfg.Tracker.DSN, credential.KeyTrackerDSN)
	if err != nil {
		return fmt.Errorf("resolving tracker dsn: %w", err)
	}

	source, err := tracker.NewSource(dsn, cfg.Tracker.View)
	if err != nil {
		return fmt.Errorf("opening tracker: %w", err)
	}
	defer source.Close()

	transport, err := telegram.New(token, log)
	if err != nil {
		return err
	}

	statusClient := redmine.NewClient(cfg.Redmine.URL, apiKey)

	renderer := &notify.Renderer{IssueBaseURL: cfg.Redmine.IssueBaseURL}
	dispatcher := notify.NewDispatcher(transport, st, renderer, log)
	resolver := reconcile.NewResolver(st, log)

	loop := reconcile.NewLoop(reconcile.Config{
		Interval:      cfg.Poll.Interval(),
		Retention:     cfg.Poll.Retention(),
		RetryAttempts: uint64(cfg.Poll.RetryAttempts),
		RetryBase:     cfg.Poll.RetryBase(),
	}, source, dispatcher, st, resolver, log)

	handler := bot.NewHandler(transport, st, statusClient, bot.NewSessions(), cfg.LogDir, log)
	transport.OnUpdate(handler.HandleUpdate)

	log.Info("starting", "db", cfg.DBPath, "view", cfg.Tracker.View,
		"interval", cfg.Poll.Interval())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(ctx)
	})
	g.Go(func() error {
		transport.Run(ctx)
		return nil
	})

	return g.Wait()
}

// newLogger builds a text slog handler writing to stderr and to a
// dated file under the configured log directory. The returned closer
// flushes the file on shutdown.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	name := fmt.Sprintf("tg-redmine-%s.log", time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(cfg.LogDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, file), &slog.HandlerOptions{Level: level})
	return slog.New(handler), func() { file.Close() }, nil
}
