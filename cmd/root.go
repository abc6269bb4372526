package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/config"
)

var cfg *config.Config

// Flag overrides applied on top of config.yaml and CLAIMS_* variables.
var (
	flagEventsDir string
	flagDatabase  string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:           "claims-cli",
	Short:         "Insurance claim document pipeline",
	Long:          "OCRs the PDFs of insurance events, redacts personal data from sensitive documents, and summarizes each event with a language model.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyFlagOverrides(c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("events_dir", cfg.Paths.EventsDir),
		)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

// applyFlagOverrides copies the non-empty persistent flags into c.
func applyFlagOverrides(c *config.Config) {
	if flagEventsDir != "" {
		c.Paths.EventsDir = flagEventsDir
	}
	if flagDatabase != "" {
		c.Store.DatabaseURL = flagDatabase
	}
	if flagLogLevel != "" {
		c.Log.Level = flagLogLevel
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagEventsDir, "events-dir", "", "folder holding one subfolder per event (overrides paths.events_dir)")
	pf.StringVar(&flagDatabase, "db", "", "database URL or SQLite file (overrides store.database_url)")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "claims-cli: %v\n", err)
		os.Exit(1)
	}
}
