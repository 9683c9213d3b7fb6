package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ehr/dicom-tools/internal/audit"
	"github.com/ehr/dicom-tools/internal/planner"
	"github.com/ehr/dicom-tools/internal/report"
	"github.com/ehr/dicom-tools/internal/runner"
)

// overrideFlags are the per-field flags shared by anonymize and config create.
type overrideFlags struct {
	patientName     string
	patientSex      string
	patientBirthDay string
	removeTags      []string
	removeFields    []string
}

var birthDayAliases = map[string]string{
	"patient-bd":       "patient-birth-day",
	"patient-birthday": "patient-birth-day",
}

func (f *overrideFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&f.patientName, "patient-name", "p", "", "Replace the patient name")
	fs.StringVar(&f.patientSex, "patient-sex", "", "Replace the patient sex (M, F or O)")
	fs.StringVar(&f.patientBirthDay, "patient-birth-day", "", "Replace the patient birth date (yyyy-mm-dd or yyyy-m-d)")
	fs.StringArrayVar(&f.removeTags, "remove-tags", nil, "Remove tags, e.g. 0x0010-0x0020,0x0010-0x0040")
	fs.StringArrayVar(&f.removeFields, "remove-field", nil, "Remove a named field (patient_name, patient_birth_day, patient_sex)")
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if canonical, ok := birthDayAliases[name]; ok {
			name = canonical
		}
		return pflag.NormalizedName(name)
	})
}

// overrides parses the flag values. An explicitly empty --patient-name is a
// valid replacement, so presence is taken from the flag set.
func (f *overrideFlags) overrides(fs *pflag.FlagSet) (planner.Overrides, error) {
	raw := planner.RawOverrides{
		PatientSex:      f.patientSex,
		PatientBirthDay: f.patientBirthDay,
		RemoveTags:      f.removeTags,
		RemoveFields:    f.removeFields,
	}
	if fs.Changed("patient-name") {
		name := f.patientName
		raw.PatientName = &name
	}
	return planner.ParseOverrides(raw)
}

type anonymizeOptions struct {
	fields      overrideFlags
	output      string
	outputDir   string
	dryRun      bool
	configPath  string
	preset      string
	printPlan   bool
	concurrency int
}

func anonymizeCmd(a *app) *cobra.Command {
	var o anonymizeOptions
	cmd := &cobra.Command{
		Use:     "anonymize FILE...",
		Aliases: []string{"anonymizer"},
		Short:   "Anonymize one or more DICOM files",
		Long: `Anonymize one or more DICOM files.

Field flags override the values of a config document given with --config or a
stored preset given with --preset. With several inputs use --output-dir; each
file is written there under its own name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.anonymize(cmd.Context(), cmd.Flags(), args, o)
		},
	}
	o.fields.bind(cmd.Flags())
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Output path (.dcm) for a single input")
	cmd.Flags().StringVar(&o.outputDir, "output-dir", "", "Directory for the anonymized files of a batch")
	cmd.Flags().BoolVarP(&o.dryRun, "dry-run", "d", false, "Show the changes without saving")
	cmd.Flags().StringVarP(&o.configPath, "config", "c", "", "Config document (YAML or JSON)")
	cmd.Flags().StringVar(&o.preset, "preset", "", "Stored preset name (requires DATABASE_URL)")
	cmd.Flags().BoolVar(&o.printPlan, "print-plan", false, "Print the resolved plan as JSON and exit")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 0, "Files processed in parallel (default BATCH_CONCURRENCY)")
	cmd.MarkFlagsMutuallyExclusive("config", "preset")
	cmd.MarkFlagsMutuallyExclusive("output", "output-dir")
	return cmd
}

func (a *app) anonymize(ctx context.Context, fs *pflag.FlagSet, inputs []string, o anonymizeOptions) error {
	if o.output != "" && len(inputs) > 1 {
		return errors.New("--output takes a single input; use --output-dir for several")
	}
	overrides, err := o.fields.overrides(fs)
	if err != nil {
		return err
	}

	opts := []runner.Option{runner.WithRecorder(audit.NewLogRecorder(a.logger))}
	if o.preset != "" {
		st, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, runner.WithPresets(st.presets), runner.WithRecorder(st.recorder))
	}
	r := runner.New(a.logger, opts...)

	req := runner.Request{
		Output:     o.output,
		DryRun:     o.dryRun,
		Overrides:  overrides,
		ConfigPath: o.configPath,
		Preset:     o.preset,
		Actor:      actor(),
	}

	if o.printPlan {
		b, err := r.Builder(ctx, req)
		if err != nil {
			return err
		}
		plan, err := b.Build()
		if err != nil {
			return err
		}
		return report.PlanJSON(a.out, plan)
	}

	p := a.printer()
	if len(inputs) == 1 && o.outputDir == "" {
		req.Input = inputs[0]
		res, err := r.Run(ctx, req)
		if err != nil {
			return err
		}
		p.Result(res)
		return nil
	}

	reqs, err := runner.BatchRequests(req, inputs, o.outputDir)
	if err != nil {
		return err
	}
	concurrency := o.concurrency
	if concurrency < 1 {
		concurrency = a.cfg.BatchConcurrency
	}
	results, err := r.RunBatch(ctx, reqs, concurrency)
	p.Batch(results, inputs, err)
	return err
}
