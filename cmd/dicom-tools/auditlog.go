package main

import (
	"github.com/spf13/cobra"

	"github.com/ehr/dicom-tools/internal/audit"
)

func auditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the anonymization audit trail",
	}

	var limit int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the latest audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			events, err := audit.NewPGRecorder(pool).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			a.printer().Events(events)
			return nil
		},
	}
	recentCmd.Flags().IntVar(&limit, "limit", 20, "Number of events to show")
	cmd.AddCommand(recentCmd)
	return cmd
}
