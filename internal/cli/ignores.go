package cli

import (
	"github.com/spf13/cobra"

	"github.com/meterelf/meterelf-store/internal/tui/theme"
	"github.com/meterelf/meterelf-store/internal/visualize"
)

func init() {
	rootCmd.AddCommand(ignoresCmd)
}

var ignoresCmd = &cobra.Command{
	Use:   "ignores",
	Short: "List every stored reading with how it was interpreted",
	Long: `Ignores lists every stored row: OK for accepted readings, "c" for
readings corrected as backward jitter, blank for ignored rows, followed by
the reason a row was ignored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, closeDB, err := newProcessor(cfg)
		if err != nil {
			return err
		}
		defer closeDB()
		rows, err := p.InterpretedRows()
		if err != nil {
			return err
		}

		out, err := newOutput(cmd)
		if err != nil {
			return err
		}
		if out.IsStructured() {
			views := make([]map[string]any, 0, len(rows))
			for _, r := range rows {
				v := map[string]any{"filename": r.Row.Filename}
				if r.Row.Reading != nil {
					v["reading"] = *r.Row.Reading
				}
				if r.Row.Error != "" {
					v["error"] = r.Row.Error
				}
				if r.Value != nil {
					v["value"] = r.Value.FV
					if r.Value.CorrectionReason != "" {
						v["correction"] = r.Value.CorrectionReason
					}
				} else {
					v["ignore"] = r.Ignore
				}
				views = append(views, v)
			}
			return out.Write(views)
		}

		var style *visualize.Style
		if useColor(cmd, false) {
			theme.SetTheme(theme.FlavorName(cfg.Visualize.Theme))
			style = visualize.NewStyle(theme.Current)
		}
		return visualize.WriteIgnores(cmd.OutOrStdout(), rows, style)
	},
}
