package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meterelf/meterelf-store/internal/visualize"
)

var flagRawFormat string

func init() {
	rawCmd.Flags().StringVarP(&flagRawFormat, "format", "f", "table", "raw data format: table or influx")
	_ = rawCmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions([]string{"table", "influx"}, cobra.ShellCompDirectiveNoFileComp))

	rootCmd.AddCommand(rawCmd)
}

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Print the interpreted readings one per line",
	Long: `Raw prints every accepted reading: as a tab separated table with a
header, or as InfluxDB line protocol ("water k=v,... <unix-ns>").`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		values, err := interpretedValues(cfg)
		if err != nil {
			return err
		}
		records := visualize.RawRecords(values)

		out, err := newOutput(cmd)
		if err != nil {
			return err
		}
		if out.IsStructured() {
			return out.Write(rawViews(records))
		}

		switch flagRawFormat {
		case "table":
			return visualize.WriteTable(cmd.OutOrStdout(), records)
		case "influx":
			return visualize.WriteInflux(cmd.OutOrStdout(), records)
		default:
			return fmt.Errorf("unknown raw format %q (want table or influx)", flagRawFormat)
		}
	},
}

func rawViews(records []visualize.RawRecord) []map[string]string {
	views := make([]map[string]string, 0, len(records))
	for _, r := range records {
		m := make(map[string]string, len(r.Fields))
		for _, f := range r.Fields {
			m[f.Key] = f.Value
		}
		views = append(views, m)
	}
	return views
}
