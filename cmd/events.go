package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/margooey/lapsusctl/internal/db"
)

// eventRow is one line of the merged history
type eventRow struct {
	When    time.Time
	Event   string
	Backend string
	Result  string
	Details string
}

func mergeEvents(changes []db.LivenessChange, controls []db.ControlEvent, kind string, limit int) []eventRow {
	var rows []eventRow
	if kind == "all" || kind == "liveness" {
		for _, c := range changes {
			event := "stopped"
			if c.Running {
				event = "running"
			}
			rows = append(rows, eventRow{When: c.Timestamp, Event: event, Details: c.Source})
		}
	}
	if kind == "all" || kind == "control" {
		for _, e := range controls {
			rows = append(rows, eventRow{When: e.Timestamp, Event: e.Action, Backend: e.Backend, Result: e.Result, Details: e.Details})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].When.After(rows[j].When)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func renderEvents(w io.Writer, rows []eventRow, now time.Time) {
	table := tablewriter.NewWriter(w)
	table.Header("When", "Event", "Backend", "Result", "Details")
	for _, r := range rows {
		table.Append([]string{
			humanize.RelTime(r.When, now, "ago", "from now"),
			r.Event,
			r.Backend,
			r.Result,
			r.Details,
		})
	}
	table.Render()
}

func NewEventsCommand() *cobra.Command {
	var limit int
	var kind string

	eventsCmd := &cobra.Command{
		Use:     "events",
		Short:   "Show recent liveness changes and control requests",
		Aliases: []string{"history"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "all" && kind != "liveness" && kind != "control" {
				return fmt.Errorf("unknown kind %q (want all, liveness or control)", kind)
			}

			database, err := db.Open(optionsFrom(cmd).DatabasePath())
			if err != nil {
				return err
			}
			defer database.Close()

			changes, err := database.RecentLivenessChanges(limit)
			if err != nil {
				return fmt.Errorf("failed to read liveness changes: %w", err)
			}
			controls, err := database.RecentControlEvents(limit)
			if err != nil {
				return fmt.Errorf("failed to read control events: %w", err)
			}

			rows := mergeEvents(changes, controls, kind, limit)
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events recorded yet")
				return nil
			}
			renderEvents(cmd.OutOrStdout(), rows, time.Now())
			return nil
		},
	}
	eventsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show")
	eventsCmd.Flags().StringVar(&kind, "kind", "all", "which events to show (all/liveness/control)")

	return eventsCmd
}
