package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	runNoWrite bool
	runReport  bool
)

var runCmd = &cobra.Command{
	Use:   "run <file> [file...]",
	Short: "Extract loss runs from one or more documents",
	Long: `Extract loss run data from each document and print the result as JSON.

Unless --no-write is given, the report, cost and analytics files are written
under output_dir and the run is recorded in the history database.

Examples:
  lossrun run loss_run.pdf
  lossrun run --no-write --report-only a.docx b.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg, log, !runNoWrite)
		if err != nil {
			return err
		}
		defer a.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		var errs []error
		for _, path := range args {
			res, err := a.worker.RunFile(ctx, path)
			if err != nil {
				log.Error("extraction failed", "file", path, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				if ctx.Err() != nil {
					break
				}
				continue
			}
			var v any = res
			if runReport {
				v = res.Report
			}
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		return errors.Join(errs...)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNoWrite, "no-write", false, "do not write output files or history")
	runCmd.Flags().BoolVar(&runReport, "report-only", false, "print only the merged report")
}
