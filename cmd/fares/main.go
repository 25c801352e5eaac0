package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/alex-user-go/fares/internal/config"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fares",
	Short: "fares - multi-source flight fare collection",
	Long: `fares collects one-way fares from several sources, normalizes and
fuses duplicate flights, and reports fare statistics.

Examples:
  fares serve                                   # Start the HTTP API
  fares collect --from DEL --to BLR --date 2025-12-17
  fares --config fares.yaml collect --from DEL --to BOM --date 2025-12-20 --cabin business`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML or YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(collectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Printf("%v\n", err)
		os.Exit(1)
	}
}
