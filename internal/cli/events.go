package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"breakcal/internal/model"
	"breakcal/internal/view"
)

func newEventsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List every stored event in import order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := s.List(cmd.Context(), cfg.Location())
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			if opts.format == formatJSON {
				dtos := make([]view.Event, 0, len(events))
				for _, ev := range events {
					dtos = append(dtos, view.NewEvent(ev))
				}
				return writeJSON(cmd.OutOrStdout(), dtos)
			}
			return printEvents(cmd.OutOrStdout(), events)
		},
	}
}

func printEvents(w io.Writer, events []model.CalendarEvent) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no events")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ev.StartLabel(view.LabelLayout), ev.EndLabel(view.LabelLayout), ev.Title, ev.SourceID)
	}
	return tw.Flush()
}
