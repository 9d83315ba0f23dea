// Package main prints the caller's subscription as the MatchGenius API sees it.
//
// Usage:
//
//	MATCHGENIUS_TOKEN=... go run ./cmd/matchgenius-status
//	go run ./cmd/matchgenius-status -sync          # after returning from checkout
//	go run ./cmd/matchgenius-status -watch 1m      # refresh until interrupted
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/logging"
	"github.com/jmylchreest/matchgenius-api/internal/subclient"
	"github.com/jmylchreest/matchgenius-api/internal/version"
)

func main() {
	baseURL := flag.String("base-url", envOr("MATCHGENIUS_API_URL", "http://localhost:8080"), "API base URL")
	tokenEnv := flag.String("token-env", "MATCHGENIUS_TOKEN", "Environment variable holding the session token")
	sync := flag.Bool("sync", false, "Pull the latest state from Stripe before printing")
	watch := flag.Duration("watch", 0, "Refresh on this interval until interrupted")
	timeout := flag.Duration("timeout", subclient.DefaultTimeout, "Per-request timeout")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Short())
		return
	}

	logger := logging.NewTo(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := subclient.New(subclient.Config{
		BaseURL: *baseURL,
		Timeout: *timeout,
		Token: func(context.Context) (string, error) {
			return os.Getenv(*tokenEnv), nil
		},
		Notifier: subclient.NotifierFunc(func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		}),
		Logger: logger,
	})
	defer store.Close()

	if err := run(ctx, store, *sync, *watch, logger); err != nil {
		logger.Error("status check failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store *subclient.Store, sync bool, watch time.Duration, logger *slog.Logger) error {
	if sync {
		if err := store.SyncAfterCheckout(ctx); err != nil {
			return err
		}
	} else if err := store.Refresh(ctx, true); err != nil {
		return err
	}
	if err := printState(store.State()); err != nil {
		return err
	}
	if watch <= 0 {
		return nil
	}

	unsubscribe := store.Subscribe(func(s subclient.State) {
		if s.Loading {
			return
		}
		if err := printState(s); err != nil {
			logger.Warn("failed to print state", "error", err)
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(watch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := store.Refresh(ctx, true); err != nil && ctx.Err() == nil {
				logger.Warn("refresh failed", "error", err)
			}
		}
	}
}

func printState(s subclient.State) error {
	out := struct {
		Subscribed   bool `json:"subscribed"`
		Subscription any  `json:"subscription"`
	}{Subscribed: s.Subscribed, Subscription: s.Subscription}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
