package visualize

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownResolution is returned for resolution names that are not known.
var ErrUnknownResolution = errors.New("unknown resolution")

type truncation int

const (
	truncateByStep truncation = iota
	truncateByDay
	truncateByWeek
	truncateByMonth
)

// Resolution describes how values are grouped into report lines.
type Resolution struct {
	Name string
	// LitresPerBar is the consumption shown by one full bar symbol.
	LitresPerBar float64
	// Step is the nominal group length. Calendar resolutions step by
	// calendar days or months instead.
	Step time.Duration
	// ZerosPerCumulating is how many zero groups in a row reset the
	// cumulative sum.
	ZerosPerCumulating int

	truncation truncation
	format     func(time.Time) string
}

func layoutFormat(layout string) func(time.Time) string {
	return func(t time.Time) string { return t.Format(layout) }
}

func isoWeekFormat(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

var resolutions = map[string]Resolution{
	"month": {
		Name: "month", LitresPerBar: 1000, Step: 30 * 24 * time.Hour, ZerosPerCumulating: 1,
		truncation: truncateByMonth, format: layoutFormat("2006-01"),
	},
	"week": {
		Name: "week", LitresPerBar: 100, Step: 7 * 24 * time.Hour, ZerosPerCumulating: 1,
		truncation: truncateByWeek, format: isoWeekFormat,
	},
	"day": {
		Name: "day", LitresPerBar: 10, Step: 24 * time.Hour, ZerosPerCumulating: 1,
		truncation: truncateByDay, format: layoutFormat("2006-01-02 Mon"),
	},
	"hour": {
		Name: "hour", LitresPerBar: 10, Step: time.Hour, ZerosPerCumulating: 1,
		format: layoutFormat("2006-01-02 Mon 15"),
	},
	"minute": {
		Name: "minute", LitresPerBar: 0.5, Step: time.Minute, ZerosPerCumulating: 1,
		format: layoutFormat("2006-01-02 Mon 15:04"),
	},
	"five-seconds": {
		Name: "five-seconds", LitresPerBar: 0.1, Step: 5 * time.Second, ZerosPerCumulating: 1,
		format: layoutFormat("2006-01-02 Mon 15:04:05"),
	},
	"three-seconds": {
		Name: "three-seconds", LitresPerBar: 0.05, Step: 3 * time.Second, ZerosPerCumulating: 2,
		format: layoutFormat("2006-01-02 Mon 15:04:05"),
	},
	"second": {
		Name: "second", LitresPerBar: 0.02, Step: time.Second, ZerosPerCumulating: 3,
		format: layoutFormat("2006-01-02 Mon 15:04:05"),
	},
}

var resolutionAliases = map[string]string{
	"s": "second",
	"t": "three-seconds",
	"f": "five-seconds",
	"m": "minute",
	"h": "hour",
	"d": "day",
	"w": "week",
	"M": "month",
}

// ParseResolution returns the resolution for a name or a one letter alias.
func ParseResolution(name string) (Resolution, error) {
	if full, ok := resolutionAliases[name]; ok {
		name = full
	}
	r, ok := resolutions[name]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownResolution, name)
	}
	return r, nil
}

// ResolutionNames returns the accepted names and aliases, full names first.
func ResolutionNames() []string {
	names := []string{"second", "three-seconds", "five-seconds", "minute", "hour", "day", "week", "month"}
	aliases := make([]string, 0, len(resolutionAliases))
	for a := range resolutionAliases {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	return append(names, aliases...)
}

// Group returns the label of the group t belongs to.
func (r Resolution) Group(t time.Time) string {
	return r.format(r.Truncate(t))
}

// Truncate returns the start of the group t belongs to, in t's location.
func (r Resolution) Truncate(t time.Time) time.Time {
	loc := t.Location()
	switch r.truncation {
	case truncateByMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case truncateByWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case truncateByDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
	step := int64(r.Step)
	ns := t.UnixNano()
	q := ns / step
	if ns%step < 0 {
		q--
	}
	return time.Unix(0, q*step).In(loc)
}

// Next returns the start of the group following the one t belongs to.
func (r Resolution) Next(t time.Time) time.Time {
	switch r.truncation {
	case truncateByMonth:
		return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	case truncateByWeek:
		return r.Truncate(t).AddDate(0, 0, 7)
	case truncateByDay:
		return r.Truncate(t).AddDate(0, 0, 1)
	}
	return r.Truncate(t).Add(r.Step)
}

// StepsBetween returns the group starts strictly after start's group and
// before end.
func (r Resolution) StepsBetween(start, end time.Time) []time.Time {
	var steps []time.Time
	for t := r.Next(start); t.Before(end); t = r.Next(t) {
		steps = append(steps, t)
	}
	return steps
}

// HasStepsBetween reports whether a whole group fits between start and end.
func (r Resolution) HasStepsBetween(start, end time.Time) bool {
	return r.Next(start).Before(r.Truncate(end))
}
