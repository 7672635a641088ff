// ABOUTME: Entry point for voyage-gateway, the conversational trip planning server
// ABOUTME: Cobra root command wiring serve, worker and health subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/2389/voyage-gateway/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                   _
__   _____  _   _  __ _  __ _  ___    __ _  __ _| |_ _____      ____ _ _   _
\ \ / / _ \| | | |/ _' |/ _' |/ _ \  / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 \ V / (_) | |_| | (_| | (_| |  __/ | (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \_/ \___/ \__, |\__,_|\__, |\___|  \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
            |___/       |___/        |___/                             |___/
`

// defaultsLabel is shown in place of a path when no config file was found.
const defaultsLabel = "(built-in defaults)"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "voyage-gateway",
		Short:         "Conversational travel planning gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $VOYAGE_CONFIG, ./config.yaml or ~/.config/voyage/gateway.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP gateway",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), cfgFile)
			},
		},
		newWorkerCmd(&cfgFile),
		&cobra.Command{
			Use:   "health",
			Short: "Check gateway health",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runHealth(cmd.Context(), cfgFile, cmd.OutOrStdout())
			},
		},
	)
	return root
}

// configPath returns the config file to load, or "" when none exists.
// Priority: --config flag > VOYAGE_CONFIG > ./config.yaml >
// XDG_CONFIG_HOME/voyage/gateway.yaml > ~/.config/voyage/gateway.yaml
func configPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if envPath := os.Getenv("VOYAGE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{"config.yaml"}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configDir = filepath.Join(homeDir, ".config")
		}
	}
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, "voyage", "gateway.yaml"))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// loadConfig loads the resolved config file, falling back to
// config.Default when there is none. The returned label names the source.
func loadConfig(flagPath string) (*config.Config, string, error) {
	path := configPath(flagPath)
	if path == "" {
		return config.Default(), defaultsLabel, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func printBanner() {
	color.New(color.FgCyan).Print(banner)
	color.New(color.FgHiBlack).Printf("    version: %s\n\n", version)
}

// printStartup prints one "▶ label: value" line per pair.
func printStartup(lines ...[2]string) {
	green := color.New(color.FgGreen)
	for _, l := range lines {
		green.Print("    ▶ ")
		fmt.Printf("%-10s %s\n", l[0]+":", l[1])
	}
	fmt.Println()
}
