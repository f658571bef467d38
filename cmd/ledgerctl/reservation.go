package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/cimillas/autobook/internal/domain"
)

type reservationView struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	AmountMinor     int64        `json:"amount_minor"`
	Currency        string       `json:"currency"`
	Vendor          *string      `json:"vendor,omitempty"`
	RequireTwoStep  bool         `json:"require_two_step_payment"`
	State           domain.State `json:"state"`
	AuthorizationID string       `json:"authorization_id,omitempty"`
	PaymentID       string       `json:"payment_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (c *cli) reservationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reservation",
		Short: "Inspect reservations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show [reservation-id]",
		Short: "Print a reservation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := b.GetReservation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reservationView(res))
		},
	})
	return cmd
}
