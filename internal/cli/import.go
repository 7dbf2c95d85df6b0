package cli

import (
	"github.com/spf13/cobra"

	"github.com/meterelf/meterelf-store/internal/valuefile"
)

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import legacy values-DD.txt files into the database",
	Long: `Import reads the values-DD.txt files of every month directory, one
"<image>: <value-or-error>" line per image, and inserts the entries whose
image is not stored yet. Stored rows are never replaced.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := newOutput(cmd)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		database, err := openDB(cfg, true)
		if err != nil {
			return err
		}
		defer database.Close()

		opts := valuefile.Options{
			Root:            imagesDir(cfg),
			BlockSize:       cfg.Reader.BlockSize,
			DoneBeforeMonth: cfg.Store.DoneBeforeMonth,
			Location:        loc,
			Logger:          newLogger("import"),
		}
		if !out.IsStructured() {
			opts.Out = cmd.OutOrStdout()
		}

		stats, err := valuefile.NewImporter(database, opts).Import()
		if err != nil {
			return err
		}
		if out.IsStructured() {
			return out.Write(map[string]any{
				"files":    stats.Files,
				"lines":    stats.Lines,
				"inserted": stats.Inserted,
			})
		}
		newLogger("import").Info("done", "files", stats.Files, "lines", stats.Lines, "inserted", stats.Inserted)
		return nil
	},
}
