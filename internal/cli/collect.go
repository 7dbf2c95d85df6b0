package cli

import (
	"github.com/spf13/cobra"

	"github.com/meterelf/meterelf-store/internal/collect"
	"github.com/meterelf/meterelf-store/internal/config"
	"github.com/meterelf/meterelf-store/internal/db"
)

var (
	flagCollectProgress  bool
	flagCollectBlockSize int
)

func init() {
	collectCmd.Flags().BoolVar(&flagCollectProgress, "progress", false, "show a progress bar per directory on stderr (default when stderr is a terminal)")
	collectCmd.Flags().IntVar(&flagCollectBlockSize, "block-size", 0, "images per reader invocation (default reader.block_size)")

	rootCmd.AddCommand(collectCmd)
}

var collectCmd = &cobra.Command{
	Use:   "collect [image...]",
	Short: "Collect meter readings of new images into the database",
	Long: `Collect reads every image not yet stored in the value database.

Months before store.done_before_month and days that already have an image
from their last hour are skipped. Images are read in blocks; a block whose
images are all stored is skipped.

With image arguments the listed images are read again and their stored
rows replaced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := newOutput(cmd)
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

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		var stats *collect.Stats
		mode := db.RunModeNew
		if len(args) > 0 {
			mode = db.RunModeReread
			paths := make([]string, len(args))
			for i, a := range args {
				paths[i] = resolve(a)
			}
			stats, err = collector.Reread(ctx, paths)
		} else {
			stats, err = collector.CollectNew(ctx)
		}
		if err != nil {
			return err
		}

		if out.IsStructured() {
			return out.Write(collectView(mode, stats))
		}
		newLogger("collect").Info("done",
			"dirs", stats.Dirs, "read", stats.ImagesRead, "failed", stats.Failed, "skipped_dirs", stats.SkippedDirs)
		return nil
	},
}

type statsView struct {
	Mode        string `json:"mode"`
	Dirs        int    `json:"dirs"`
	ImagesRead  int    `json:"images_read"`
	Failed      int    `json:"failed"`
	Inserted    int    `json:"inserted"`
	SkippedDirs int    `json:"skipped_dirs"`
}

func collectView(mode string, s *collect.Stats) statsView {
	return statsView{
		Mode:        mode,
		Dirs:        s.Dirs,
		ImagesRead:  s.ImagesRead,
		Failed:      s.Failed,
		Inserted:    s.Inserted,
		SkippedDirs: s.SkippedDirs,
	}
}

func newCollector(cmd *cobra.Command, cfg config.Config, database *db.DB) (*collect.Collector, error) {
	r, err := newReader(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	blockSize := cfg.Reader.BlockSize
	if flagCollectBlockSize > 0 {
		blockSize = flagCollectBlockSize
	}

	opts := collect.Options{
		Root:            imagesDir(cfg),
		Extensions:      cfg.Reader.ImageExtensions,
		BlockSize:       blockSize,
		DoneBeforeMonth: cfg.Store.DoneBeforeMonth,
		Location:        loc,
		Logger:          newLogger("collect"),
	}
	// Structured output keeps stdout for the final document.
	out, err := newOutput(cmd)
	if err != nil {
		return nil, err
	}
	if !out.IsStructured() {
		opts.Out = cmd.OutOrStdout()
	}
	if flagCollectProgress || isTerminal(cmd.ErrOrStderr()) {
		opts.Progress = cmd.ErrOrStderr()
	}

	return collect.New(database, r, opts), nil
}
