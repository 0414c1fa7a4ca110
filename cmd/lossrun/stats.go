package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/lossrun/internal/history"
)

var statsLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics over past runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := history.Open(ctx, cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()

		agg, err := store.Aggregate(ctx)
		if err != nil {
			return err
		}
		runs, err := store.Recent(ctx, statsLimit)
		if err != nil {
			return err
		}

		type recent struct {
			ID        string `json:"id"`
			Filename  string `json:"filename"`
			Status    string `json:"status"`
			Losses    int    `json:"losses"`
			Tokens    int64  `json:"total_tokens"`
			Cost      string `json:"cost"`
			CreatedAt string `json:"created_at"`
		}
		list := make([]recent, 0, len(runs))
		for _, r := range runs {
			list = append(list, recent{
				ID:        r.ID,
				Filename:  r.Filename,
				Status:    r.Status,
				Losses:    len(r.Report.Losses),
				Tokens:    r.Usage.TotalTokens,
				Cost:      r.Cost.StringFixed(4),
				CreatedAt: r.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"aggregate": agg,
			"recent":    list,
		})
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsLimit, "limit", 10, "number of recent runs to show")
}
