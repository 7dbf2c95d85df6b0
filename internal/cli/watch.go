package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/meterelf/meterelf-store/internal/utils"
	"github.com/meterelf/meterelf-store/internal/watch"
)

var (
	flagWatchDebounce time.Duration
	flagWatchLogFile  bool
)

func init() {
	watchCmd.Flags().DurationVar(&flagWatchDebounce, "debounce", watch.DefaultDebounce, "quiet period before new images are read")
	watchCmd.Flags().BoolVar(&flagWatchLogFile, "log-file", false, "also write a debug log under .meterelf/logs")

	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Collect images as they appear in the image tree",
	Long: `Watch collects the images already missing from the database, then
watches the image tree and reads new images as the camera writes them.
New month and day directories are followed. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg, true)
		if err != nil {
			return err
		}
		defer database.Close()

		collector, err := newCollector(cmd, cfg, database)
		if err != nil {
			return err
		}

		logger := newLogger("watch")
		if flagWatchLogFile {
			project, err := projectPath()
			if err != nil {
				return err
			}
			fileLogger, f, err := utils.InitRunLogger(project, "watch")
			if err != nil {
				return err
			}
			defer f.Close()
			logger.Info("writing debug log", "path", f.Name())
			logger = fileLogger
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		if _, err := collector.CollectNew(ctx); err != nil {
			return err
		}

		w, err := watch.NewWatcher(imagesDir(cfg), watch.Options{
			Extensions: cfg.Reader.ImageExtensions,
			Debounce:   flagWatchDebounce,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		logger.Info("watching for new images", "dir", imagesDir(cfg))
		return watch.Run(ctx, w, collector, logger)
	},
}
