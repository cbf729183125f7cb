package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/server"
	"github.com/driftsync/driftsync/internal/version"
)

func main() {
	var addr string
	var certFile string
	var keyFile string
	var authToken string
	var rateLimit string
	var pageLimit int
	var entityTypes []string

	// Pick up a local .env for dev runs. Missing is fine.
	_ = godotenv.Load()

	// Setup logger
	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rootCmd = &cobra.Command{
		Use:     "driftsync-server",
		Short:   "DriftSync sync server",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if authToken == "" {
				authToken = os.Getenv("DRIFTSYNC_AUTH_TOKEN")
			}

			config := &server.Config{
				HTTP: server.HTTPConfig{
					Addr:     addr,
					CertFile: certFile,
					KeyFile:  keyFile,
				},
				Sync: server.SyncConfig{
					AuthToken:   authToken,
					RateLimit:   rateLimit,
					PageLimit:   pageLimit,
					EntityTypes: entityTypes,
				},
			}
			s, err := server.New(config)
			if err != nil {
				return err
			}
			defer slog.Info("Bye!")
			return s.Start(cmd.Context())
		},
	}

	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringVarP(&addr, "bind", "b", server.DefaultAddr, "Address to bind the server")
	rootCmd.Flags().StringVarP(&certFile, "cert", "c", "", "Path to the certificate file")
	rootCmd.Flags().StringVarP(&keyFile, "key", "k", "", "Path to the key file")
	rootCmd.Flags().StringVarP(&authToken, "token", "t", "", "Bearer token clients must present (env DRIFTSYNC_AUTH_TOKEN)")
	rootCmd.Flags().StringVar(&rateLimit, "rate-limit", server.DefaultRateLimit, "Request rate limit per client IP")
	rootCmd.Flags().IntVar(&pageLimit, "page-limit", server.DefaultPageLimit, "Max records per pull page")
	rootCmd.Flags().StringSliceVar(&entityTypes, "types", nil, "Entity types to accept (default: any)")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
