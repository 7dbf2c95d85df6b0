// Package fnparse extracts capture metadata from meter image filenames.
//
// Image names look like 20180814021309-01-e136.jpg: a local timestamp,
// a two digit sequence number within the second and an optional event
// number (e<N>) or snapshot marker.
package fnparse

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// ErrFilenameFormat is returned for names that do not follow the image
// naming scheme.
var ErrFilenameFormat = errors.New("unrecognized image filename")

// SequenceStep is the time offset added per sequence number so that images
// taken within the same second keep their order.
const SequenceStep = 10 * time.Millisecond

var filenameRegex = regexp.MustCompile(
	`^(\d{14})-(\d{2})(?:-(?:e(\d+)|(snapshot)))?\.([A-Za-z0-9]+)$`)

// FilenameData is the information encoded in an image filename.
type FilenameData struct {
	Time           time.Time
	SequenceNumber int
	// EventNumber is the motion event counter, 0 when absent.
	EventNumber int
	IsSnapshot  bool
	Extension   string
}

// Parse parses filename (a base name or a path) in the given location.
func Parse(filename string, loc *time.Location) (FilenameData, error) {
	if loc == nil {
		loc = time.Local
	}
	base := filepath.Base(filename)
	m := filenameRegex.FindStringSubmatch(base)
	if m == nil {
		return FilenameData{}, fmt.Errorf("%w: %q", ErrFilenameFormat, base)
	}

	t, err := time.ParseInLocation("20060102150405", m[1], loc)
	if err != nil {
		return FilenameData{}, fmt.Errorf("%w: %q: %v", ErrFilenameFormat, base, err)
	}
	seq, _ := strconv.Atoi(m[2])

	data := FilenameData{
		Time:           t.Add(time.Duration(seq) * SequenceStep),
		SequenceNumber: seq,
		IsSnapshot:     m[4] != "",
		Extension:      m[5],
	}
	if m[3] != "" {
		n, err := strconv.Atoi(m[3])
		if err != nil {
			return FilenameData{}, fmt.Errorf("%w: %q: event number: %v", ErrFilenameFormat, base, err)
		}
		data.EventNumber = n
	}
	return data, nil
}

// MonthDir returns the YYYY-MM directory name the image belongs to.
func (d FilenameData) MonthDir() string {
	return d.Time.Format("2006-01")
}

// DayDir returns the DD directory name the image belongs to.
func (d FilenameData) DayDir() string {
	return d.Time.Format("02")
}
