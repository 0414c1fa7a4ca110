package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lossrun",
	Short: "Extract structured loss run data from insurance documents",
	Long: `Lossrun turns insurance loss run documents (PDF, DOCX, HTML, Markdown,
CSV or plain text) into a structured report: policy number, insured name and
one entry per claim.

Documents are split into chunks, each chunk is sent to a chat completion
model, and the per-chunk answers are repaired, merged and deduplicated by
claim number. Results are written as JSON, Markdown, HTML and XLSX together
with a cost report and claim analytics.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.lossrun/config.yaml)",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(outputsCmd)
	rootCmd.AddCommand(versionCmd)
}
