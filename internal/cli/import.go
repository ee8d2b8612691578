package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"breakcal/internal/ics"
	"breakcal/internal/importer"
)

type importResult struct {
	Path     string `json:"path"`
	Imported int    `json:"imported"`
}

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Append the events of calendar exports to the event list",
		Long: `Parse each file and append its events to the stored list. Use "-" to
read from stdin. Files are imported in order; a file that fails to parse
adds nothing and stops the command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			imp := importer.New(s, cfg.Location(), nil)
			results := make([]importResult, 0, len(args))
			for _, path := range args {
				res := importResult{Path: path}
				if path == "-" {
					body, err := ics.Read(cmd.InOrStdin(), "stdin")
					if err != nil {
						return fmt.Errorf("import stdin: %w", err)
					}
					res.Imported, err = imp.Import(cmd.Context(), importer.OriginFile, "stdin", body)
					if err != nil {
						return err
					}
				} else {
					res.Imported, err = imp.ImportFile(cmd.Context(), path)
					if err != nil {
						return err
					}
				}
				results = append(results, res)
			}

			if opts.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events\n", r.Path, r.Imported)
			}
			return nil
		},
	}
}
