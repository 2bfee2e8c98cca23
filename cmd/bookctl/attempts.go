package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/chenjf2025/BookQuoteApp/internal/repository"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Inspect and repair generation charges",
}

var attemptsReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Refund charges stuck in the charged state",
	Long: `Refund charges that stayed in the "charged" state for longer than
--older-than. This happens when the server dies between charging a request
and settling or refunding it. Refunds are idempotent, so running this
concurrently with a live server is safe.`,
	RunE: withEnv(runAttemptsReconcile),
}

var attemptsEventsCmd = &cobra.Command{
	Use:   "events CHARGE_ID",
	Short: "Show the ledger audit trail of one charge",
	Args:  cobra.ExactArgs(1),
	RunE:  withEnv(runAttemptsEvents),
}

var (
	reconcileOlderThan time.Duration
	reconcileLimit     int
)

func init() {
	attemptsReconcileCmd.Flags().DurationVar(&reconcileOlderThan, "older-than", time.Hour, "minimum age of a stuck charge")
	attemptsReconcileCmd.Flags().IntVar(&reconcileLimit, "limit", 100, "maximum charges to refund in one run")

	attemptsCmd.AddCommand(attemptsReconcileCmd, attemptsEventsCmd)
}

func runAttemptsReconcile(cmd *cobra.Command, e *env, args []string) error {
	if reconcileOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive, got %s", reconcileOlderThan)
	}

	refunded, err := e.ledger.ReconcileStale(cmd.Context(), reconcileOlderThan, reconcileLimit)
	rec := struct {
		Refunded  int    `yaml:"refunded"`
		OlderThan string `yaml:"older_than"`
	}{refunded, reconcileOlderThan.String()}

	if rerr := render(cmd, rec, table{
		header: []string{"REFUNDED", "OLDER_THAN"},
		rows:   [][]string{{strconv.Itoa(refunded), rec.OlderThan}},
	}); rerr != nil {
		return rerr
	}
	return err
}

type ledgerEventRecord struct {
	EventID    string    `yaml:"event_id"`
	Kind       string    `yaml:"kind"`
	Source     string    `yaml:"source,omitempty"`
	Delta      int       `yaml:"delta"`
	Detail     string    `yaml:"detail,omitempty"`
	OccurredAt time.Time `yaml:"occurred_at"`
}

func runAttemptsEvents(cmd *cobra.Command, e *env, args []string) error {
	events, err := repository.NewLedgerEventRepository(e.repo).ListByCharge(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	recs := make([]ledgerEventRecord, 0, len(events))
	t := table{header: []string{"EVENT_ID", "KIND", "SOURCE", "DELTA", "OCCURRED_AT", "DETAIL"}}
	for _, ev := range events {
		recs = append(recs, ledgerEventRecord{
			EventID:    ev.EventID,
			Kind:       string(ev.Kind),
			Source:     string(ev.Source),
			Delta:      ev.Delta,
			Detail:     ev.Detail,
			OccurredAt: ev.OccurredAt,
		})
		t.rows = append(t.rows, []string{
			ev.EventID,
			string(ev.Kind),
			orDash(string(ev.Source)),
			strconv.Itoa(ev.Delta),
			ev.OccurredAt.Format(time.RFC3339),
			orDash(ev.Detail),
		})
	}
	return render(cmd, recs, t)
}
