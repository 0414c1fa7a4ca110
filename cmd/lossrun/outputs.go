package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/lossrun/internal/output"
)

var (
	outputsKind      string
	outputsOlderThan time.Duration
)

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Manage generated output files",
}

var outputsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List output files of one kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		kind, err := output.ParseKind(outputsKind)
		if err != nil {
			return err
		}
		files, err := output.NewManager(cfg.OutputDir).Stat(kind)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, f := range files {
			fmt.Fprintf(out, "%s  %8d  %s\n", f.Modified.Format("2006-01-02 15:04:05"), f.Size, f.Path)
		}
		if len(files) == 0 {
			fmt.Fprintf(out, "no %s outputs in %s\n", kind, cfg.OutputDir)
		}
		return nil
	},
}

var outputsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete output files older than a given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		age := outputsOlderThan
		if age <= 0 {
			age = cfg.OutputTTL
		}
		removed, err := output.NewManager(cfg.OutputDir).CleanOlderThan(age)
		if err != nil {
			return err
		}
		log.Info("outputs cleaned", "removed", removed, "older_than", age)
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d files\n", removed)
		return nil
	},
}

func init() {
	outputsListCmd.Flags().StringVar(&outputsKind, "kind", "json", "output kind: json, markdown, html, xlsx, cost, analytics, summary")
	outputsCleanCmd.Flags().DurationVar(&outputsOlderThan, "older-than", 0, "minimum age to delete (default: output_ttl)")

	outputsCmd.AddCommand(outputsListCmd)
	outputsCmd.AddCommand(outputsCleanCmd)
}
