// Package process interprets stored meter readings as a monotonic series of
// litre values.
//
// The meter dial only shows litres modulo 1000. The thousands register is
// kept in the database and advanced whenever the dial wraps around.
package process

import (
	"fmt"
	"math"
	"time"

	"github.com/meterelf/meterelf-store/internal/db"
	"github.com/meterelf/meterelf-store/internal/fnparse"
)

// Defaults for Options.
const (
	DefaultMaxBackwardLitres  = 0.2
	DefaultMaxLitresPerMinute = 60.0

	// wrapThreshold is the change in litres treated as a dial wrap.
	wrapThreshold = 500.0
)

// Ignore reasons.
const (
	ReasonUnparsableFilename = "Unparsable filename"
	ReasonNoReading          = "No reading"
	ReasonDuplicateTimestamp = "Duplicate timestamp"
	CorrectionBackwardJitter = "Backward jitter"
)

// Source provides the stored rows and thousands register values.
type Source interface {
	ListEntries(since time.Time) ([]*db.Entry, error)
	ListThousands() ([]db.Thousands, error)
}

// InterpretedValue is an accepted point of the litre series.
type InterpretedValue struct {
	T  time.Time
	FV float64
	// DT and DFV are the changes since the previous value. HasDelta is
	// false for the first value of the series.
	DT               time.Duration
	DFV              float64
	HasDelta         bool
	Correction       float64
	CorrectionReason string
	Synthetic        bool
	Filename         string
	FilenameData     fnparse.FilenameData
}

// InterpretedRow pairs a stored row with its interpretation. Exactly one
// of Value and Ignore is set.
type InterpretedRow struct {
	Row    *db.Entry
	Value  *InterpretedValue
	Ignore string
}

// Options configures a Processor.
type Options struct {
	Since              time.Time
	Location           *time.Location
	MaxBackwardLitres  float64
	MaxLitresPerMinute float64
	// Warn receives human readable warnings. Nil discards them.
	Warn func(string)
}

// Processor turns rows into interpreted values.
type Processor struct {
	src  Source
	opts Options
}

// New returns a Processor with defaults applied.
func New(src Source, opts Options) *Processor {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxBackwardLitres <= 0 {
		opts.MaxBackwardLitres = DefaultMaxBackwardLitres
	}
	if opts.MaxLitresPerMinute <= 0 {
		opts.MaxLitresPerMinute = DefaultMaxLitresPerMinute
	}
	if opts.Warn == nil {
		opts.Warn = func(string) {}
	}
	return &Processor{src: src, opts: opts}
}

// Values returns the accepted values in time order.
func (p *Processor) Values() ([]InterpretedValue, error) {
	rows, err := p.InterpretedRows()
	if err != nil {
		return nil, err
	}
	values := make([]InterpretedValue, 0, len(rows))
	for _, r := range rows {
		if r.Value != nil {
			values = append(values, *r.Value)
		}
	}
	return values, nil
}

// InterpretedRows returns every stored row since Options.Since with its
// interpretation.
func (p *Processor) InterpretedRows() ([]InterpretedRow, error) {
	entries, err := p.src.ListEntries(p.opts.Since)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}
	thousands, err := p.src.ListThousands()
	if err != nil {
		return nil, fmt.Errorf("loading thousands: %w", err)
	}

	st := &state{p: p, thousandsTable: thousands}
	rows := make([]InterpretedRow, 0, len(entries))
	for _, e := range entries {
		row := st.interpret(e)
		if row.Ignore != "" {
			p.opts.Warn(fmt.Sprintf("Ignoring %s: %s", e.Filename, row.Ignore))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type state struct {
	p              *Processor
	thousandsTable []db.Thousands
	thousands      int
	lastDate       string
	prev           *InterpretedValue
}

func (s *state) interpret(e *db.Entry) InterpretedRow {
	fd, err := fnparse.Parse(e.Filename, s.p.opts.Location)
	if err != nil {
		return InterpretedRow{Row: e, Ignore: ReasonUnparsableFilename}
	}
	if e.Error != "" {
		return InterpretedRow{Row: e, Ignore: e.Error}
	}
	if e.Reading == nil {
		return InterpretedRow{Row: e, Ignore: ReasonNoReading}
	}

	t := fd.Time
	if e.TakenAt != nil {
		t = e.TakenAt.In(s.p.opts.Location)
	}
	date := t.Format("2006-01-02")
	reading := *e.Reading

	rebaseline := false
	if s.prev == nil {
		s.thousands, _ = db.ThousandsOn(s.thousandsTable, date)
	} else if date != s.lastDate {
		if th, ok := s.thousandsSetBetween(s.lastDate, date); ok {
			candidate := float64(th)*1000 + reading
			if math.Abs(candidate-s.prev.FV) > wrapThreshold {
				s.p.opts.Warn(fmt.Sprintf("Thousands reset on %s: %.3f -> %.3f", date, s.prev.FV, candidate))
				rebaseline = true
			}
			s.thousands = th
		}
	}
	s.lastDate = date

	thousands := s.thousands
	fv := float64(thousands)*1000 + reading
	v := &InterpretedValue{
		T:            t,
		FV:           fv,
		Filename:     e.Filename,
		FilenameData: fd,
	}

	if s.prev == nil || rebaseline {
		if s.prev != nil {
			v.DT = t.Sub(s.prev.T)
			v.HasDelta = true
		}
		s.prev = v
		return InterpretedRow{Row: e, Value: v}
	}

	diff := fv - s.prev.FV
	switch {
	case diff < -wrapThreshold:
		thousands++
		fv += 1000
		diff += 1000
	case diff > 1000-s.p.opts.MaxBackwardLitres && thousands > 0:
		// Jitter back over the wrap point.
		thousands--
		fv -= 1000
		diff -= 1000
	}

	dt := t.Sub(s.prev.T)
	if dt <= 0 {
		return InterpretedRow{Row: e, Ignore: ReasonDuplicateTimestamp}
	}

	v.FV = fv
	v.DT = dt
	v.HasDelta = true
	if diff < 0 {
		if -diff > s.p.opts.MaxBackwardLitres {
			return InterpretedRow{Row: e, Ignore: fmt.Sprintf("Backward jump of %.3f l", diff)}
		}
		v.FV = s.prev.FV
		v.Correction = -diff
		v.CorrectionReason = CorrectionBackwardJitter
		diff = 0
	}
	if rate := diff / dt.Minutes(); rate > s.p.opts.MaxLitresPerMinute {
		return InterpretedRow{Row: e, Ignore: fmt.Sprintf("Too fast change (%.1f l/min)", rate)}
	}
	v.DFV = diff

	s.thousands = thousands
	s.prev = v
	return InterpretedRow{Row: e, Value: v}
}

// thousandsSetBetween returns the latest register value dated after from
// and on or before to.
func (s *state) thousandsSetBetween(from, to string) (int, bool) {
	value, ok := 0, false
	for _, th := range s.thousandsTable {
		if th.ISODate > from && th.ISODate <= to {
			value, ok = th.Value, true
		}
	}
	return value, ok
}
