package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cimillas/autobook/internal/clock"
	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/ledger"
)

func (c *cli) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit ledger",
	}
	cmd.AddCommand(c.auditListCmd())
	return cmd
}

func (c *cli) auditListCmd() *cobra.Command {
	var (
		filter ledger.Filter
		action string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit events, newest first",
		Example: `  ledgerctl audit list --limit 20
  ledgerctl audit list --reservation-id res_00001 --json
  ledgerctl audit list --action CAPTURED --actor user-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if filter.Limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			if action != "" {
				filter.Action = domain.Action(strings.ToUpper(action))
				if !filter.Action.Valid() {
					return fmt.Errorf("unknown action %q", action)
				}
			}

			b, err := c.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			events, err := ledger.New(b, clock.NewSystem()).ListRecent(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeEventsJSON(cmd.OutOrStdout(), events)
			}
			return writeEventsTable(cmd.OutOrStdout(), events)
		},
	}

	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", ledger.DefaultLimit, "maximum events to show (capped at 500)")
	cmd.Flags().StringVar(&filter.Actor, "actor", "", "only events by this actor")
	cmd.Flags().StringVar(&action, "action", "", "only events with this action (HELD, CAPTURED, ...)")
	cmd.Flags().StringVar(&filter.ReservationID, "reservation-id", "", "only events for this reservation")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON lines")
	return cmd
}

func writeEventsTable(w io.Writer, events []domain.AuditEvent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeLine(tw, "TIME\tACTOR\tACTION\tSTATUS\tRESERVATION\tAMOUNT\tREASONS")
	for _, evt := range events {
		amount := "-"
		if evt.AmountMinor != nil {
			amount = fmt.Sprintf("%d %s", *evt.AmountMinor, evt.Currency)
		}
		reservation := evt.ReservationID
		if reservation == "" {
			reservation = "-"
		}
		writeLine(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s",
			evt.CreatedAt.UTC().Format(time.RFC3339Nano),
			evt.Actor,
			evt.Action,
			evt.Status,
			reservation,
			amount,
			strings.Join(evt.Reasons, "; "),
		)
	}
	return tw.Flush()
}

type eventLine struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	Actor         string         `json:"actor"`
	Action        domain.Action  `json:"action"`
	Status        string         `json:"status"`
	ReservationID string         `json:"reservation_id,omitempty"`
	AmountMinor   *int64         `json:"amount_minor,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	Vendor        string         `json:"vendor,omitempty"`
	Reasons       []string       `json:"reasons"`
	Details       map[string]any `json:"details,omitempty"`
}

func writeEventsJSON(w io.Writer, events []domain.AuditEvent) error {
	enc := json.NewEncoder(w)
	for _, evt := range events {
		reasons := evt.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		if err := enc.Encode(eventLine{
			ID:            evt.ID,
			CreatedAt:     evt.CreatedAt,
			Actor:         evt.Actor,
			Action:        evt.Action,
			Status:        string(evt.Status),
			ReservationID: evt.ReservationID,
			AmountMinor:   evt.AmountMinor,
			Currency:      evt.Currency,
			Vendor:        evt.Vendor,
			Reasons:       reasons,
			Details:       evt.Details,
		}); err != nil {
			return err
		}
	}
	return nil
}
