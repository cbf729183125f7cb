package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/internal/client"
	"github.com/driftsync/driftsync/internal/utils"
	"github.com/driftsync/driftsync/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "driftsync",
	Short:   "DriftSync host daemon",
	Long:    "Runs the DriftSync host: keeps the local document store and the sync server converged, online or not.",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg := &client.Config{
			DataDir:      viper.GetString("data_dir"),
			ServerURL:    viper.GetString("server_url"),
			Token:        viper.GetString("token"),
			SyncInterval: viper.GetDuration("sync_interval"),
			Direction:    driftsync.Direction(viper.GetString("direction")),
			Strategy:     driftsync.Strategy(viper.GetString("strategy")),
			Path:         viper.ConfigFileUsed(),
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := setupLogging(filepath.Join(cfg.DataDir, "logs", "client.log")); err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}

		showHeader(cfg)

		host, err := client.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return host.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("datadir", "d", client.DefaultDataDir, "directory for documents and sync state")
	rootCmd.Flags().StringP("server", "s", client.DefaultServerURL, "sync server URL")
	rootCmd.Flags().StringP("token", "t", "", "bearer token for the sync server")
	rootCmd.Flags().Duration("interval", client.DefaultSyncInterval, "time between sync passes")
	rootCmd.Flags().String("direction", string(driftsync.Bidirectional), "sync direction (upload, download, bidirectional)")
	rootCmd.Flags().String("strategy", string(driftsync.LastWriteWins), "conflict strategy (server_wins, local_wins, last_write_wins)")
	rootCmd.PersistentFlags().StringP("config", "c", client.DefaultConfigPath, "path to the config file")
}

// loadConfig layers the effective config: file, then env, then flags.
func loadConfig(cmd *cobra.Command) error {
	configFlag := cmd.Flags().Lookup("config")
	if configFlag != nil && configFlag.Changed {
		viper.SetConfigFile(configFlag.Value.String())
	} else {
		viper.AddConfigPath(filepath.Dir(client.DefaultConfigPath))
		viper.AddConfigPath("$HOME/.config/driftsync")
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	// A missing config file is fine, the defaults carry.
	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	bindings := []struct {
		key  string
		flag string
	}{
		{"data_dir", "datadir"},
		{"server_url", "server"},
		{"token", "token"},
		{"sync_interval", "interval"},
		{"direction", "direction"},
		{"strategy", "strategy"},
	}
	for _, b := range bindings {
		if err := viper.BindPFlag(b.key, cmd.Flags().Lookup(b.flag)); err != nil {
			return fmt.Errorf("bind flag %q: %w", b.flag, err)
		}
	}

	viper.SetEnvPrefix("DRIFTSYNC")
	viper.AutomaticEnv()
	return nil
}

// setupLogging multiplexes slog to the console and a rotated file under
// the data dir.
func setupLogging(logFile string) error {
	if err := utils.EnsureParent(logFile); err != nil {
		return err
	}

	console := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	file := slog.NewTextHandler(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
		Compress:   true,
	}, &slog.HandlerOptions{Level: slog.LevelDebug})

	slog.SetDefault(slog.New(utils.NewMultiHandler(console, file)))
	return nil
}

func main() {
	// Minimal handler until the daemon config picks the real one.
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
