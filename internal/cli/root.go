// Package cli implements the breakcal commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"breakcal/internal/config"
	appLog "breakcal/internal/log"
	"breakcal/internal/store"
)

const (
	formatJSON = "json"
	formatText = "text"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	version = v
}

type options struct {
	configPath string
	format     string
}

// NewRootCmd builds the command tree. Every call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "breakcal",
		Short: "Finds break slots between calendar events",
		Long: `breakcal imports calendar exports, keeps the accumulated events and
suggests 15, 30 or 60 minute breaks in the free time between 08:00 and 23:00.

It can run as:
  - A one-shot CLI (import, events, agenda, reset)
  - A long-running HTTP API with scheduled subscription refresh (serve)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.format != formatJSON && opts.format != formatText {
				return fmt.Errorf("unknown format %q (want json or text)", opts.format)
			}
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "breakcal version %s\n" .Version}}`)

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $BREAKCAL_CONFIG or ./breakcal.yaml)")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", formatText, "Output format: json or text")

	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newEventsCmd(opts))
	root.AddCommand(newAgendaCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newResetCmd(opts))
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (o *options) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	if env := os.Getenv("BREAKCAL_CONFIG"); env != "" {
		return env
	}
	return "breakcal.yaml"
}

// loadConfig reads the config file and applies its log level.
func (o *options) loadConfig() (*config.Config, error) {
	path := o.path()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.StorePath, err)
	}
	return s, nil
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
