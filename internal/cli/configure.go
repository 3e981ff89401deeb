package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/toolhost/internal/config"
)

var (
	configureForce     bool
	configureTransport string
	configureToolsDir  string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a configuration file",
	Long: `Write a configuration file with default values to the --config path.
An existing file is kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing file")
	configureCmd.Flags().StringVar(&configureTransport, "transport", config.TransportStdio, "transport to serve (stdio, websocket)")
	configureCmd.Flags().StringVar(&configureToolsDir, "tools-dir", "", "directory scanned for tool manifests")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	cfg.Server.Transport = configureTransport
	cfg.Tools.Dir = configureToolsDir
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to: %s\n", configPath)
	return nil
}
