// Package main provides the cardsync CLI, a headless sync client for
// business cards.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/mwarrick/digital-business-card-sub000/internal/api"
	"github.com/mwarrick/digital-business-card-sub000/internal/cardsync"
	"github.com/mwarrick/digital-business-card-sub000/internal/config"
	"github.com/mwarrick/digital-business-card-sub000/internal/logging"
	"github.com/mwarrick/digital-business-card-sub000/internal/store"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var Version = "dev"

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "cardsync",
	Short: "Sync business cards with the card server",
	Long: `cardsync keeps a local copy of your business cards in step with the
card server. Local edits win when they are newer, server edits win
otherwise. Contacts and leads are downloaded only.

Configuration comes from CARDSYNC_* environment variables or a .env file.

Examples:
  cardsync sync               # One full sync pass
  cardsync push               # Push recently edited cards
  cardsync delete <local-id>  # Delete a card here and on the server
  cardsync daemon             # Sync periodically until interrupted`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(dedupeCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(daemonCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	client *api.Client
}

// openApp loads configuration, opens the state database and builds the
// API client. Production runs refuse to start without a credential. The
// caller must call close.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)

	st, err := store.LoadAt(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	if cfg.APIToken != "" {
		if err := st.SetToken(cfg.APIToken); err != nil {
			st.Close()
			return nil, fmt.Errorf("saving api token: %w", err)
		}
	}

	if st.Token() == "" {
		if cfg.IsProduction() {
			st.Close()
			return nil, fmt.Errorf("CARDSYNC_API_TOKEN is required in production")
		}

		logger.Warn("no api token configured, requests will be unauthenticated")
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		client: api.NewClient(cfg.APIURL, st, api.NewHTTPClient(cfg.HTTPTimeout)),
	}, nil
}

// coordinator builds the sync coordinator, which sweeps duplicates once
// on open.
func (a *app) coordinator(ctx context.Context) *cardsync.Coordinator {
	return cardsync.Open(ctx, a.client, a.client, a.store, a.logger, cardsync.Options{
		RecentWindow:     a.cfg.RecentWindow,
		CancelRetryDelay: a.cfg.CancelRetryDelay,
		Meter:            otel.Meter("cardsync"),
		OnStateChange: func(s cardsync.Status) {
			a.logger.Debug("sync state", slog.String("phase", s.Phase.String()))
		},
	})
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing state", slog.String("error", err.Error()))
	}
}

// withApp runs fn with a wired app and a context cancelled on SIGINT or
// SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}

func printReport(rep cardsync.Report) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		n     int
	}{
		{"created", rep.Created},
		{"pushed", rep.Pushed},
		{"pulled", rep.Pulled},
		{"skipped", rep.Skipped},
		{"failed", rep.Failed},
		{"duplicates removed", rep.DuplicatesRemoved},
		{"deletes relayed", rep.DeletesRelayed},
		{"images uploaded", rep.ImagesUploaded},
		{"contacts", rep.Contacts},
		{"leads", rep.Leads},
	}

	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\n", r.label, r.n)
	}

	if rep.LocalFallback {
		fmt.Fprintln(w, "server unreachable\tkept local data")
	}

	return w.Flush()
}
