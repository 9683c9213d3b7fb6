package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func presetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage config documents stored in Postgres",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			items, total, err := st.presets.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			a.printer().Presets(items, total)
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum presets to show")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Presets to skip")
	cmd.AddCommand(listCmd)

	var description string
	pushCmd := &cobra.Command{
		Use:   "push NAME FILE",
		Short: "Store a config document under NAME, replacing any previous one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := st.presets.Save(cmd.Context(), args[0], description, body)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "stored preset %s (version %s)\n", p.Name, p.Version)
			return nil
		},
	}
	pushCmd.Flags().StringVar(&description, "description", "", "Free text shown by preset list")
	cmd.AddCommand(pushCmd)

	var output string
	var force bool
	pullCmd := &cobra.Command{
		Use:   "pull NAME",
		Short: "Write a stored preset's document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := st.presets.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.writeDocument(output, []byte(p.Body), force)
		},
	}
	pullCmd.Flags().StringVarP(&output, "output", "o", "-", "Destination file, - for stdout")
	pullCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.AddCommand(pullCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a stored preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.presets.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted preset %s\n", args[0])
			return nil
		},
	})
	return cmd
}
