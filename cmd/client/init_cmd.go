package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/client"
	"github.com/driftsync/driftsync/remote/httpremote"
)

const probeTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var dataDir string
	var serverURL string
	var token string
	var noInput bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the host config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			if existing, err := client.Load(configPath); err == nil {
				fmt.Println("DriftSync is already initialized")
				printConfigSummary(existing)
				return nil
			}

			cfg := &client.Config{
				DataDir:   dataDir,
				ServerURL: serverURL,
				Token:     token,
			}

			if !noInput && isatty.IsTerminal(os.Stdin.Fd()) {
				if err := runSetupTUI(cmd.Context(), cfg, configPath); err != nil {
					return err
				}
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(configPath); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			cfg.Path = configPath

			fmt.Println("DriftSync initialized")
			printConfigSummary(cfg)
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&dataDir, "datadir", "d", client.DefaultDataDir, "directory for documents and sync state")
	cmd.Flags().StringVarP(&serverURL, "server", "s", client.DefaultServerURL, "sync server URL")
	cmd.Flags().StringVarP(&token, "token", "t", "", "bearer token for the sync server")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "skip the interactive prompts")

	return cmd
}

func printConfigSummary(cfg *client.Config) {
	fmt.Printf("Config:   %s\n", green.Render(cfg.Path))
	fmt.Printf("Data Dir: %s\n", cyan.Render(cfg.DataDir))
	fmt.Printf("Server:   %s\n", cyan.Render(cfg.ServerURL))
}

func validServerURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// probeServer checks the server liveness endpoint before the URL is
// committed to the config.
func probeServer(ctx context.Context, serverURL string) error {
	remote, err := httpremote.New[client.Document](serverURL, client.DocumentType)
	if err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	online, err := remote.IsOnline(probeCtx)
	if err != nil {
		return err
	}
	if !online {
		return errors.New("server is not reporting ok")
	}
	return nil
}

// verifyToken runs an authenticated call so a bad token fails at setup
// time, not on the first sync pass. An empty token is fine when the
// server runs open.
func verifyToken(ctx context.Context, serverURL, token string) error {
	if token == "" {
		return nil
	}

	remote, err := httpremote.New[client.Document](serverURL, client.DocumentType, httpremote.WithToken(token))
	if err != nil {
		return err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err = remote.ServerVersion(verifyCtx)
	return err
}

func runSetupTUI(ctx context.Context, cfg *client.Config, configPath string) error {
	result, err := RunSetup(SetupTUIOpts{
		ServerURL:  cfg.ServerURL,
		DataDir:    cfg.DataDir,
		ConfigPath: configPath,
		URLValidator: func(url string) bool {
			return validServerURL(url)
		},
		ServerSubmitHandler: func(serverURL string) error {
			return probeServer(ctx, serverURL)
		},
		TokenSubmitHandler: func(serverURL, token string) error {
			return verifyToken(ctx, serverURL, token)
		},
	})
	if err != nil {
		return err
	}

	cfg.ServerURL = result.ServerURL
	cfg.Token = result.Token
	return nil
}
