package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/co2market/auth-service/internal/app"
	"github.com/co2market/auth-service/pkg/outbox"
	"github.com/spf13/cobra"
)

// operator is what the outbox commands need from the dispatcher.
type operator interface {
	Abandoned(ctx context.Context, limit int) ([]*outbox.Event, error)
	Redeliver(ctx context.Context, eventID string) error
}

func newOutboxCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and redeliver abandoned outbox events",
	}
	cmd.AddCommand(newAbandonedCmd(flags), newRedeliverCmd(flags))
	return cmd
}

// withOperator starts the storage and broker modules, runs fn against the
// dispatcher and stops them again.
func withOperator(ctx context.Context, flags *rootFlags, fn func(ctx context.Context, op operator) error) error {
	opts, err := flags.options()
	if err != nil {
		return err
	}

	var d *outbox.Dispatcher
	fxApp, err := app.NewOperator(opts, &d)
	if err != nil {
		return err
	}
	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = fxApp.Stop(stopCtx)
	}()

	return fn(ctx, d)
}

func newAbandonedCmd(flags *rootFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "abandoned",
		Short: "List events that reached the retry ceiling, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd.Context(), flags, func(ctx context.Context, op operator) error {
				return listAbandoned(ctx, op, cmd.OutOrStdout(), limit, asJSON)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func listAbandoned(ctx context.Context, op operator, out io.Writer, limit int, asJSON bool) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}
	events, err := op.Abandoned(ctx, limit)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT ID\tTYPE\tROUTING KEY\tRETRIES\tABANDONED AT\tLAST ERROR")
	for _, ev := range events {
		abandonedAt := "-"
		if ev.AbandonedAt != nil {
			abandonedAt = ev.AbandonedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			ev.EventID, ev.EventType, ev.RoutingKey, ev.RetryCount, abandonedAt, ev.ErrorMessage)
	}
	return tw.Flush()
}

func newRedeliverCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "redeliver <event-id>...",
		Short: "Publish events once more and mark them published on success",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd.Context(), flags, func(ctx context.Context, op operator) error {
				return redeliver(ctx, op, cmd.OutOrStdout(), args)
			})
		},
	}
}

// redeliver tries every id and reports the first failure after the rest ran.
func redeliver(ctx context.Context, op operator, out io.Writer, eventIDs []string) error {
	var firstErr error
	for _, id := range eventIDs {
		if err := op.Redeliver(ctx, id); err != nil {
			fmt.Fprintf(out, "%s\tFAILED\t%v\n", id, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("redeliver %s: %w", id, err)
			}
			continue
		}
		fmt.Fprintf(out, "%s\tPUBLISHED\n", id)
	}
	return firstErr
}
