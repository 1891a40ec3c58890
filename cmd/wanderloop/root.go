// wanderloop generates self-guided walking tours: candidate itineraries
// first, then a narrated audioguide for the chosen one.
//
// Usage:
//
//	wanderloop candidates --lat 48.8530 --lon 2.3499 --duration 90
//	wanderloop audioguide --session <id> --candidate 0
//
// Both commands run against offline collaborators serving canned data, so
// they work without any provider credentials.
package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/wanderloop/wanderloop/internal/config"
	"github.com/wanderloop/wanderloop/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// cfg is loaded once before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "wanderloop",
	Short: "Generate self-guided walking tours with narrated audioguides",
	Long: "Wanderloop plans walking tours around a starting point and turns the\n" +
		"chosen itinerary into per-stop narrated audio.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load(rootFlags.configPath)
		if rootFlags.logLevel != "" {
			cfg.Logging.Level = rootFlags.logLevel
		}
		if rootFlags.logFormat != "" {
			cfg.Logging.Format = rootFlags.logFormat
		}
		logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "Path to a YAML config file (default: $WANDERLOOP_CONFIG)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: config)")
	f.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json (default: config)")

	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(audioguideCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
