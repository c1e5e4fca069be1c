package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/jobs"
	"github.com/spf13/cobra"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and replay stored Stripe events",
	}
	cmd.AddCommand(eventsListCmd())
	cmd.AddCommand(eventsReplayCmd())
	cmd.AddCommand(eventsShowCmd())
	cmd.AddCommand(eventsPruneCmd())
	return cmd
}

func eventsListCmd() *cobra.Command {
	var (
		unprocessed bool
		limit       int32
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently received events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			events, err := e.rec.Pipeline.Events.ListEvents(cmd.Context(), unprocessed, limit)
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), events)
		},
	}

	cmd.Flags().BoolVar(&unprocessed, "unprocessed", false, "only show events that have not been processed")
	cmd.Flags().Int32Var(&limit, "limit", 50, "maximum number of events to show")
	return cmd
}

func eventsReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <event-id>",
		Short: "Run a stored, unprocessed event through reconciliation again",
		Long: `Replay loads a stored event by ID and runs it through the same handlers
used for live deliveries. Events already marked processed are left alone,
so replaying twice never double-applies a payment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			ran, err := e.rec.Pipeline.Processor.ReplayByID(cmd.Context(), args[0])

			// Let receipt emails queued by the replay go out before exiting.
			waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if werr := e.rec.Dispatcher.Wait(waitCtx); werr != nil {
				e.logger.Warn("receipt emails still pending", "error", werr)
			}

			if err != nil {
				return fmt.Errorf("replay %s: %w", args[0], err)
			}
			if !ran {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already processed\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s replayed\n", args[0])
			return nil
		},
	}
}

func eventsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Print a stored event and its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			event, err := e.rec.Pipeline.Events.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printEvent(cmd.OutOrStdout(), event)
		},
	}
}

func eventsPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete processed events older than the retention period",
		Long: `Prune deletes events that were processed longer ago than --older-than.
Unprocessed events are never deleted. The retention must be at least a week
so that late redeliveries are still recognised as duplicates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := jobs.PruneProcessedEvents(cmd.Context(), e.rec.Store, olderThan, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d events processed before %s\n",
				result.EventsDeleted, result.ProcessedBefore.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", jobs.DefaultEventRetention, "retention period for processed events")
	return cmd
}

func printEvent(out io.Writer, ev domain.ExternalEvent) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", ev.ID)
	fmt.Fprintf(tw, "Type\t%s\n", ev.Type)
	if ev.AccountID != "" {
		fmt.Fprintf(tw, "Account\t%s\n", ev.AccountID)
	}
	fmt.Fprintf(tw, "Received\t%s\n", ev.ReceivedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Processed\t%t\n", ev.Processed)
	if ev.ProcessedAt != nil {
		fmt.Fprintf(tw, "Processed at\t%s\n", ev.ProcessedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "Attempts\t%d\n", ev.Attempts)
	if ev.LastError != "" {
		fmt.Fprintf(tw, "Last error\t%s\n", ev.LastError)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, ev.Payload, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(ev.Payload)
	}
	_, err := fmt.Fprintf(out, "\n%s\n", pretty.String())
	return err
}

func printEvents(out io.Writer, events []domain.ExternalEvent) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tPROCESSED\tATTEMPTS\tRECEIVED\tLAST ERROR")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\t%s\n",
			ev.ID,
			ev.Type,
			ev.Processed,
			ev.Attempts,
			ev.ReceivedAt.Format(time.RFC3339),
			truncate(ev.LastError, 60),
		)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
