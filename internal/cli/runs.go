package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var flagRunsLimit int

func init() {
	runsCmd.Flags().IntVarP(&flagRunsLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent collection runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := newOutput(cmd)
		if err != nil {
			return err
		}
		database, err := openDB(cfg, false)
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := database.ListRuns(flagRunsLimit)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			finished, took := "", ""
			if r.FinishedAt != nil {
				finished = r.FinishedAt.Local().Format(time.DateTime)
				took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
			}
			rows = append(rows, []string{
				shortID(r.ID),
				r.Mode,
				r.StartedAt.Local().Format(time.DateTime),
				finished,
				took,
				strconv.Itoa(r.ImagesRead),
				strconv.Itoa(r.ImagesFailed),
				r.Error,
			})
		}
		return out.Table([]string{"id", "mode", "started", "finished", "took", "read", "failed", "error"}, rows)
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
