// Package valuefile imports legacy values-DD.txt files into the value
// database.
//
// A value file lives in a month directory and has one line per image:
//
//	20181005120000-00.jpg: 253.623
//	20181005120001-00.jpg: Dials not found
package valuefile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/meterelf/meterelf-store/internal/collect"
	"github.com/meterelf/meterelf-store/internal/db"
	"github.com/meterelf/meterelf-store/internal/fnparse"
	"github.com/meterelf/meterelf-store/internal/utils"
)

// ErrInvalidLine is returned for lines without a ": " separator.
var ErrInvalidLine = errors.New("invalid line in value file")

// Line is one parsed value file line.
type Line struct {
	Filename string
	Value    *float64
	Error    string
}

// ParseFile parses the value file at path.
func ParseFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening value file: %w", err)
	}
	defer f.Close()
	lines, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lines, nil
}

// Parse parses value file content. A value is text that is all digits
// once dots are removed; anything else is an error text.
func Parse(r io.Reader) ([]Line, error) {
	var lines []Line
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimRight(sc.Text(), " \t\r")
		name, rest, ok := strings.Cut(text, ": ")
		if !ok {
			return nil, fmt.Errorf("%w %d: %q", ErrInvalidLine, lineNo, text)
		}
		l := Line{Filename: name}
		if isDigits(strings.ReplaceAll(rest, ".", "")) {
			v, err := strconv.ParseFloat(rest, 64)
			if err != nil {
				return nil, fmt.Errorf("%w %d: value %q: %v", ErrInvalidLine, lineNo, rest, err)
			}
			l.Value = &v
		} else {
			l.Error = rest
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning value file: %w", err)
	}
	return lines, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Options configures an Importer.
type Options struct {
	Root            string
	BlockSize       int
	DoneBeforeMonth string
	Location        *time.Location
	// Out receives a "Doing <file>" line per imported value file.
	Out    io.Writer
	Logger *log.Logger
	Now    func() time.Time
}

// Stats summarizes an import.
type Stats struct {
	Files    int
	Lines    int
	Inserted int
}

// Importer loads value files into the database.
type Importer struct {
	db     *db.DB
	opts   Options
	logger *log.Logger
}

// NewImporter returns an Importer with defaults applied.
func NewImporter(database *db.DB, opts Options) *Importer {
	if opts.Root == "" {
		opts.Root = "."
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
		logger = log.Default().WithPrefix("import")
	}
	return &Importer{db: database, opts: opts, logger: logger}
}

// Import walks the month directories and inserts the entries of value
// files that are not yet stored. Existing rows are never replaced.
func (im *Importer) Import() (*Stats, error) {
	run, err := im.db.StartRun(db.RunModeImport)
	if err != nil {
		return nil, err
	}
	stats := &Stats{}
	importErr := im.importAll(stats)
	run.ImagesRead = stats.Inserted
	if err := im.db.FinishRun(run, importErr); err != nil {
		im.logger.Warn("failed to record import run", "run", run.ID, "error", err)
	}
	return stats, importErr
}

func (im *Importer) importAll(stats *Stats) error {
	months, err := collect.ListMonthDirs(im.opts.Root)
	if err != nil {
		return err
	}
	for _, month := range months {
		if im.opts.DoneBeforeMonth != "" && month < im.opts.DoneBeforeMonth {
			continue
		}
		files, err := filepath.Glob(filepath.Join(im.opts.Root, month, "values-*.txt"))
		if err != nil {
			return fmt.Errorf("listing value files of %s: %w", month, err)
		}
		sort.Strings(files)
		for _, path := range files {
			day := strings.SplitN(strings.TrimPrefix(filepath.Base(path), "values-"), ".", 2)[0]
			done, err := im.db.IsDoneWithDay(month, day)
			if err != nil {
				return err
			}
			if done {
				continue
			}
			fmt.Fprintf(im.opts.Out, "Doing %s\n", path)
			lines, err := ParseFile(path)
			if err != nil {
				return err
			}
			stats.Files++
			stats.Lines += len(lines)
			n, err := im.InsertMissing(im.entries(month, day, lines))
			if err != nil {
				return err
			}
			stats.Inserted += n
		}
	}
	return nil
}

func (im *Importer) entries(month, day string, lines []Line) []*db.Entry {
	now := im.opts.Now()
	entries := make([]*db.Entry, 0, len(lines))
	for _, l := range lines {
		e := &db.Entry{
			MonthDir:   month,
			DayDir:     day,
			Filename:   l.Filename,
			Reading:    l.Value,
			Error:      l.Error,
			ModifiedAt: now,
		}
		if fd, err := fnparse.Parse(l.Filename, im.opts.Location); err == nil {
			t := fd.Time
			e.TakenAt = &t
		}
		entries = append(entries, e)
	}
	return entries
}

// InsertMissing inserts entries in blocks, skipping blocks that are fully
// stored and, in partially stored blocks, the entries already present.
// It returns the number of inserted entries.
func (im *Importer) InsertMissing(entries []*db.Entry) (int, error) {
	inserted := 0
	err := utils.ProcessInBlocks(entries, im.opts.BlockSize, func(block []*db.Entry) error {
		names := make([]string, len(block))
		for i, e := range block {
			names[i] = e.Filename
		}
		existing, err := im.db.CountExistingFilenames(names)
		if err != nil {
			return err
		}
		if existing == len(block) {
			return nil
		}
		if existing > 0 {
			var missing []*db.Entry
			for _, e := range block {
				has, err := im.db.HasFilename(e.Filename)
				if err != nil {
					return err
				}
				if !has {
					missing = append(missing, e)
				}
			}
			block = missing
		}
		im.logger.Info(fmt.Sprintf("Inserting %d entries to database", len(block)))
		if err := im.db.InsertEntries(block); err != nil {
			return err
		}
		inserted += len(block)
		return nil
	})
	return inserted, err
}
