package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/harun/toolhost/pkg/registry"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry statistics",
	Long:  `Show registry statistics and the enabled state of every discovered tool.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := struct {
		registry.Stats
		Tools []registry.ToolConfig `json:"tools"`
	}{
		Stats: a.registry.Stats(),
		Tools: a.registry.ExportConfig(),
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
