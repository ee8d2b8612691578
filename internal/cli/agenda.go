package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"breakcal/internal/agenda"
	"breakcal/internal/config"
	"breakcal/internal/ics"
	"breakcal/internal/model"
	"breakcal/internal/view"
)

type agendaOutput struct {
	Now         time.Time         `json:"now"`
	Items       []view.AgendaItem `json:"items"`
	Unscheduled []view.Event      `json:"unscheduled"`
}

func newAgendaCmd(opts *options) *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "agenda [file...]",
		Short: "Show today's remaining events with suggested breaks",
		Long: `Compute the agenda for the day of --now (default: current time in the
configured timezone). Events without a readable start or end are listed
separately.

With file arguments the agenda is built from those exports alone, in the
order given, and the stored list is left untouched. Use "-" for stdin.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			loc := cfg.Location()

			now := time.Now()
			if nowFlag != "" {
				now, err = time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("parse --now: %w", err)
				}
			}
			now = now.In(loc)

			var events []model.CalendarEvent
			if len(args) > 0 {
				events, err = parseFiles(cmd, args, loc)
			} else {
				events, err = storedEvents(cmd.Context(), cfg)
			}
			if err != nil {
				return err
			}
			items := agenda.Build(events, now)
			unscheduled := agenda.Unscheduled(events)

			if opts.format == formatJSON {
				out := agendaOutput{
					Now:         now,
					Items:       make([]view.AgendaItem, 0, len(items)),
					Unscheduled: make([]view.Event, 0, len(unscheduled)),
				}
				for _, it := range items {
					out.Items = append(out.Items, view.NewAgendaItem(it))
				}
				for _, ev := range unscheduled {
					out.Unscheduled = append(out.Unscheduled, view.NewEvent(ev))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return printAgenda(cmd.OutOrStdout(), items, unscheduled)
		},
	}

	cmd.Flags().StringVar(&nowFlag, "now", "", "Reference time (RFC 3339)")
	return cmd
}

func storedEvents(ctx context.Context, cfg *config.Config) ([]model.CalendarEvent, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	events, err := s.List(ctx, cfg.Location())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// parseFiles accumulates the given exports in memory. Any file that
// fails to read or parse fails the whole command.
func parseFiles(cmd *cobra.Command, paths []string, loc *time.Location) ([]model.CalendarEvent, error) {
	var list model.EventList
	for _, path := range paths {
		var (
			body   []byte
			source string
			err    error
		)
		if path == "-" {
			source = "stdin"
			body, err = ics.Read(cmd.InOrStdin(), source)
		} else {
			source = filepath.Base(path)
			body, err = ics.ReadFile(path)
		}
		if err != nil {
			return nil, err
		}
		batch, err := ics.Parse(body, loc)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", source, err)
		}
		list.Append(batch...)
	}
	return list.Events(), nil
}

func printAgenda(w io.Writer, items []model.AgendaItem, unscheduled []model.CalendarEvent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(items) == 0 {
		fmt.Fprintln(tw, "nothing left today")
	}
	for _, it := range items {
		fmt.Fprintf(tw, "%s-%s\t%s\n", it.Start.Format("15:04"), it.End.Format("15:04"), it.Title())
	}
	if len(unscheduled) > 0 {
		fmt.Fprintln(tw, "\nunscheduled:")
		for _, ev := range unscheduled {
			fmt.Fprintf(tw, "%s-%s\t%s\n", ev.StartLabel("15:04"), ev.EndLabel("15:04"), ev.Title)
		}
	}
	return tw.Flush()
}
