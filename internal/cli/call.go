package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var callJSON bool

var callCmd = &cobra.Command{
	Use:   "call <tool> [arguments]",
	Short: "Call a tool once",
	Long: `Call a tool with a JSON object of arguments and print its result.
Arguments default to {}. Protocol errors are returned with their JSON-RPC code.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().BoolVar(&callJSON, "json", false, "print the full call result as JSON")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	raw := any(map[string]any{})
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &raw); err != nil {
			return fmt.Errorf("arguments must be JSON: %w", err)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.registry.Call(cmd.Context(), args[0], raw)
	if err != nil {
		return err
	}

	if callJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.String())
	if result.IsError {
		return fmt.Errorf("tool %s reported an error", args[0])
	}
	return nil
}
