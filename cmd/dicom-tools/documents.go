package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehr/dicom-tools/internal/planner"
	"github.com/ehr/dicom-tools/internal/preset"
	"github.com/ehr/dicom-tools/internal/report"
)

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and write config documents",
	}
	cmd.AddCommand(configShowCmd(a), configCreateCmd(a), configValidateCmd(a), configUpgradeCmd(a))
	return cmd
}

func configShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Print the plan a config document resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := planner.FromDocumentFile(args[0], planner.Overrides{})
			if err != nil {
				return err
			}
			plan, err := b.Build()
			if err != nil {
				return err
			}
			if asJSON {
				return report.PlanJSON(a.out, plan)
			}
			a.printer().Plan(plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

func configCreateCmd(a *app) *cobra.Command {
	var (
		fields overrideFlags
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "create FILE",
		Short: "Write a 1.1 config document from field flags",
		Long:  "Write a 1.1 config document from field flags. Use - as FILE to print it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := fields.overrides(cmd.Flags())
			if err != nil {
				return err
			}
			data, err := preset.Encode(&preset.DocumentV11{
				PatientName:     o.Fields.PatientName,
				PatientBirthDay: o.Fields.PatientBirthDate,
				PatientSex:      o.Fields.PatientSex,
				RemoveTags:      o.RemoveTags,
			})
			if err != nil {
				return err
			}
			return a.writeDocument(args[0], data, force)
		},
	}
	fields.bind(cmd.Flags())
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func configValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check that config documents load",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, path := range args {
				doc, err := preset.LoadFile(path)
				if err != nil {
					errs = append(errs, err)
					fmt.Fprintf(a.out, "%s: invalid: %v\n", path, err)
					continue
				}
				fmt.Fprintf(a.out, "%s: ok (version %s)\n", path, doc.Version())
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d document(s) invalid: %w", len(errs), len(args), errors.Join(errs...))
			}
			return nil
		},
	}
}

func configUpgradeCmd(a *app) *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "upgrade FILE",
		Short: "Rewrite a 1.0 config document in the 1.1 schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := preset.LoadFile(args[0])
			if err != nil {
				return err
			}
			v11, ok := doc.(*preset.DocumentV11)
			if v10, old := doc.(*preset.DocumentV10); old {
				v11, ok = preset.Upgrade(v10), true
			}
			if !ok {
				return fmt.Errorf("%s: unsupported document type %T", args[0], doc)
			}
			data, err := preset.Encode(v11)
			if err != nil {
				return err
			}
			return a.writeDocument(output, data, force)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Destination file, - for stdout")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

// writeDocument writes data to path, or to stdout when path is "-". Existing
// files are only replaced with force.
func (a *app) writeDocument(path string, data []byte, force bool) error {
	if path == "-" || path == "" {
		_, err := a.out.Write(data)
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists; pass --force to overwrite", path)
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.errOut, "wrote %s\n", path)
	return nil
}
