// Package collect reads new meter images from the image tree and stores
// their readings in the value database.
//
// The tree is laid out as <root>/<YYYY-MM>/<DD>/<image>.
package collect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/meterelf/meterelf-store/internal/db"
	"github.com/meterelf/meterelf-store/internal/fnparse"
	"github.com/meterelf/meterelf-store/internal/reader"
	"github.com/meterelf/meterelf-store/internal/utils"
)

// ErrNoImages is returned by Reread when no image paths are given.
var ErrNoImages = errors.New("no images given")

// DefaultExtensions are the image file extensions collected by default.
var DefaultExtensions = []string{".jpg", ".ppm"}

var (
	monthDirRegex = regexp.MustCompile(`^[12][0-9][0-9][0-9]-[01][0-9]$`)
	dayDirRegex   = regexp.MustCompile(`^[0-3][0-9]$`)
)

// ImageReader reads meter values from image files.
type ImageReader interface {
	Read(ctx context.Context, paths []string) ([]reader.MeterImageData, error)
}

// Options configures a Collector.
type Options struct {
	// Root is the directory containing the month directories.
	Root       string
	Extensions []string
	BlockSize  int
	// DoneBeforeMonth is a YYYY-MM cutoff; months before it are complete
	// and never scanned. Empty scans every month.
	DoneBeforeMonth string
	Location        *time.Location
	// Out receives the "Checking" and per-image lines.
	Out io.Writer
	// Progress receives a progress bar per directory when non-nil.
	Progress io.Writer
	Logger   *log.Logger
	// Now is used for modified_at; defaults to time.Now.
	Now func() time.Time
}

// Stats summarizes a collection.
type Stats struct {
	Dirs        int
	ImagesRead  int
	Failed      int
	Inserted    int
	SkippedDirs int
}

// Collector stores readings of images into the value database.
type Collector struct {
	db     *db.DB
	reader ImageReader
	opts   Options
	logger *log.Logger
}

// New returns a Collector. Zero options get defaults.
func New(database *db.DB, r ImageReader, opts Options) *Collector {
	if opts.Root == "" {
		opts.Root = "."
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = utils.DefaultBlockSize
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("collect")
	}
	return &Collector{db: database, reader: r, opts: opts, logger: logger}
}

// IsDoneWithMonth reports whether monthDir lies before the configured cutoff.
func (c *Collector) IsDoneWithMonth(monthDir string) bool {
	return c.opts.DoneBeforeMonth != "" && monthDir < c.opts.DoneBeforeMonth
}

// CollectNew scans the image tree and reads every image not yet stored.
// Completed months and days are skipped.
func (c *Collector) CollectNew(ctx context.Context) (*Stats, error) {
	return c.tracked(ctx, db.RunModeNew, func(ctx context.Context, stats *Stats) error {
		months, err := listDirs(c.opts.Root, monthDirRegex)
		if err != nil {
			return err
		}
		for _, month := range months {
			fmt.Fprintf(c.opts.Out, "Checking %s\n", month)
			if c.IsDoneWithMonth(month) {
				stats.SkippedDirs++
				continue
			}
			days, err := listDirs(filepath.Join(c.opts.Root, month), dayDirRegex)
			if err != nil {
				return err
			}
			for _, day := range days {
				if err := ctx.Err(); err != nil {
					return err
				}
				dayPath := filepath.Join(month, day)
				fmt.Fprintf(c.opts.Out, "Checking %s\n", dayPath)
				done, err := c.db.IsDoneWithDay(month, day)
				if err != nil {
					return err
				}
				if done {
					stats.SkippedDirs++
					continue
				}
				images, err := c.listImages(filepath.Join(c.opts.Root, dayPath))
				if err != nil {
					return err
				}
				if err := c.processDir(ctx, filepath.Join(c.opts.Root, dayPath), images, false, stats); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Reread reads the given images again, replacing their stored rows.
// Consecutive paths in the same directory are read together.
func (c *Collector) Reread(ctx context.Context, paths []string) (*Stats, error) {
	return c.RereadAs(ctx, db.RunModeReread, paths)
}

// RereadAs is Reread recorded under a specific run mode.
func (c *Collector) RereadAs(ctx context.Context, mode string, paths []string) (*Stats, error) {
	if len(paths) == 0 {
		return nil, ErrNoImages
	}
	return c.tracked(ctx, mode, func(ctx context.Context, stats *Stats) error {
		for _, group := range groupByDir(paths) {
			if err := c.processDir(ctx, group.dir, group.names, true, stats); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Collector) tracked(ctx context.Context, mode string, fn func(context.Context, *Stats) error) (*Stats, error) {
	run, err := c.db.StartRun(mode)
	if err != nil {
		return nil, err
	}
	stats := &Stats{}
	runErr := fn(ctx, stats)
	run.ImagesRead = stats.ImagesRead
	run.ImagesFailed = stats.Failed
	if err := c.db.FinishRun(run, runErr); err != nil {
		c.logger.Warn("failed to record collection run", "run", run.ID, "error", err)
	}
	if runErr != nil {
		return stats, runErr
	}
	c.logger.Debug("collection finished", "mode", mode, "read", stats.ImagesRead, "failed", stats.Failed)
	return stats, nil
}

func (c *Collector) processDir(ctx context.Context, dir string, images []string, replace bool, stats *Stats) error {
	if len(images) == 0 {
		return nil
	}
	stats.Dirs++
	dayDir := filepath.Base(dir)
	monthDir := filepath.Base(filepath.Dir(dir))

	progress := newDirProgress(c.opts.Progress, dir, len(images))
	defer progress.Finish()

	return utils.ProcessInBlocks(images, c.opts.BlockSize, func(block []string) error {
		defer progress.Add(len(block))
		toRead, err := c.filesToRead(block, replace)
		if err != nil {
			return err
		}
		if len(toRead) == 0 {
			return nil
		}
		paths := make([]string, len(toRead))
		for i, name := range toRead {
			paths[i] = filepath.Join(dir, name)
		}
		data, err := c.reader.Read(ctx, paths)
		if err != nil && len(data) == 0 {
			return fmt.Errorf("reading images in %s: %w", dir, err)
		}
		if err != nil {
			c.logger.Warn("reader output had invalid lines", "dir", dir, "error", err)
		}
		entries := c.makeEntries(monthDir, dayDir, data, stats)
		c.logger.Info(fmt.Sprintf("Inserting %d entries to database", len(entries)))
		if err := c.db.InsertEntries(entries); err != nil {
			return err
		}
		stats.Inserted += len(entries)
		if missing := len(toRead) - len(data); missing > 0 {
			c.logger.Warn("reader did not report every image", "dir", dir, "missing", missing)
		}
		return nil
	})
}

// filesToRead returns the names of block to read: all of them when
// replacing or when none is stored, otherwise only the missing ones.
func (c *Collector) filesToRead(block []string, replace bool) ([]string, error) {
	if replace {
		return block, nil
	}
	existing, err := c.db.CountExistingFilenames(block)
	if err != nil {
		return nil, err
	}
	if existing == len(block) {
		return nil, nil
	}
	if existing == 0 {
		return block, nil
	}
	var missing []string
	for _, name := range block {
		has, err := c.db.HasFilename(name)
		if err != nil {
			return nil, err
		}
		if !has {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

func (c *Collector) makeEntries(monthDir, dayDir string, data []reader.MeterImageData, stats *Stats) []*db.Entry {
	now := c.opts.Now()
	entries := make([]*db.Entry, 0, len(data))
	for _, d := range data {
		fmt.Fprintf(c.opts.Out, "%s:\t%s\n", d.Filename, d.FormatValue())
		stats.ImagesRead++
		e := &db.Entry{
			MonthDir:   monthDir,
			DayDir:     dayDir,
			Filename:   d.Filename,
			ModifiedAt: now,
		}
		if d.Value != nil && d.Error == "" {
			v := *d.Value
			e.Reading = &v
		} else {
			stats.Failed++
			e.Error = "UNKNOWN " + d.Error
		}
		if fd, err := fnparse.Parse(d.Filename, c.opts.Location); err == nil {
			t := fd.Time
			e.TakenAt = &t
		} else {
			c.logger.Debug("image time unknown", "filename", d.Filename, "error", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func (c *Collector) listImages(dir string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		if HasImageExtension(item.Name(), c.opts.Extensions) {
			names = append(names, item.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// HasImageExtension reports whether name ends with one of extensions.
func HasImageExtension(name string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// IsMonthDir reports whether name is a YYYY-MM directory name.
func IsMonthDir(name string) bool { return monthDirRegex.MatchString(name) }

// IsDayDir reports whether name is a DD directory name.
func IsDayDir(name string) bool { return dayDirRegex.MatchString(name) }

// ListMonthDirs returns the month directories under root, sorted.
func ListMonthDirs(root string) ([]string, error) {
	return listDirs(root, monthDirRegex)
}

func listDirs(root string, pattern *regexp.Regexp) ([]string, error) {
	items, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	var names []string
	for _, item := range items {
		if item.IsDir() && pattern.MatchString(item.Name()) {
			names = append(names, item.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

type dirGroup struct {
	dir   string
	names []string
}

func groupByDir(paths []string) []dirGroup {
	var groups []dirGroup
	for _, p := range paths {
		dir, name := filepath.Dir(p), filepath.Base(p)
		if n := len(groups); n > 0 && groups[n-1].dir == dir {
			groups[n-1].names = append(groups[n-1].names, name)
			continue
		}
		groups = append(groups, dirGroup{dir: dir, names: []string{name}})
	}
	return groups
}
