// Package visualize renders interpreted meter values as text reports: a
// grouped consumption report with bars, a raw data table, an influx line
// protocol dump and a listing of ignored readings.
package visualize

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/meterelf/meterelf-store/internal/process"
)

// Defaults for Options.
const (
	DefaultMaxSyntheticValues = 10
	DefaultEURPerLitre        = ((1.43 + 2.38) * 1.24) / 1000.0

	secondsPerYear = 60.0 * 60.0 * 24.0 * 365.24
	dropsPerLitre  = 1000.0 * 20.0
	longGap        = 30 * time.Second
)

// Options configures a Report.
type Options struct {
	Resolution Resolution
	// Amend splits large increases into synthetic values spread over the
	// groups between the two readings.
	Amend              bool
	MaxSyntheticValues int
	EURPerLitre        float64
	// Style colors bars when non-nil.
	Style *Style
}

// Group aggregates consecutive values of the same group.
type Group struct {
	ID             string
	MinT, MaxT     time.Time
	MinFV, MaxFV   float64
	Sum            float64
	SumT           time.Duration
	SyntheticCount int
	SourcePoints   int
	MaxEventNum    int
}

// CumulativeGroup is a Group with running sums.
type CumulativeGroup struct {
	Group
	// Cum is the consumption since the sum was last zeroed.
	Cum float64
	// SPP is the consumption so far on the group's day.
	SPP float64
	// ZPP is the number of zeroings so far on the group's day.
	ZPP int
}

// Item is a report item: either a group or a gap between groups.
type Item struct {
	Group *CumulativeGroup
	Gap   time.Duration
}

// IsGap reports whether the item is a gap.
func (it Item) IsGap() bool { return it.Group == nil }

// Report builds consumption reports.
type Report struct {
	opts Options
}

// NewReport returns a Report with defaults applied. A zero Resolution
// means day.
func NewReport(opts Options) *Report {
	if opts.Resolution.format == nil {
		opts.Resolution = resolutions["day"]
	}
	if opts.MaxSyntheticValues <= 0 {
		opts.MaxSyntheticValues = DefaultMaxSyntheticValues
	}
	if opts.EURPerLitre <= 0 {
		opts.EURPerLitre = DefaultEURPerLitre
	}
	return &Report{opts: opts}
}

// Write writes the report lines to w.
func (r *Report) Write(w io.Writer, values []process.InterpretedValue) error {
	for _, line := range r.Lines(values) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Lines renders the report.
func (r *Report) Lines(values []process.InterpretedValue) []string {
	barPerLitres := 1.0 / r.opts.Resolution.LitresPerBar
	var lines []string
	for _, it := range r.Items(values) {
		if it.IsGap() {
			long := it.Gap >= longGap
			if long {
				lines = append(lines, "")
			}
			lines = append(lines, fmt.Sprintf("            %7.2fs = %s", it.Gap.Seconds(), FormatTimedelta(it.Gap)))
			if long {
				lines = append(lines, "")
			}
			continue
		}
		lines = append(lines, r.groupLine(it.Group, barPerLitres))
	}
	return lines
}

func (r *Report) groupLine(g *CumulativeGroup, barPerLitres float64) string {
	cumText := ""
	if g.Cum != 0 {
		cumText = fmt.Sprintf("%9.3fl", g.Cum)
	}
	timeRange := g.MaxT.Sub(g.MinT)
	drops := g.Sum * dropsPerLitre
	secs := g.SumT.Seconds()

	var extra string
	switch {
	case drops == 0 || secs == 0:
		extra = " " + strings.Repeat(" ", 7) + "     "
	case timeRange > time.Hour:
		perYear := (g.MaxFV - g.MinFV) / timeRange.Seconds() * secondsPerYear
		extra = fmt.Sprintf(" %7.1fkl/y ", perYear/1000.0)
	default:
		extra = fmt.Sprintf(" %7.4fl/min", 60.0*g.Sum/secs)
	}
	if drops != 0 && secs/drops >= 0.05 {
		extra += fmt.Sprintf(" ~%5.1fs/drop", secs/drops)
	} else {
		extra += strings.Repeat(" ", 13)
	}

	eurs := g.Sum * r.opts.EURPerLitre
	var price string
	if eurs < 0.1 {
		price = fmt.Sprintf("    %5.2fc", eurs*100.0)
	} else {
		price = fmt.Sprintf("%6.2fe   ", eurs)
	}

	syn := ""
	if g.SyntheticCount != 0 {
		syn = fmt.Sprintf("-%d", g.SyntheticCount)
	}
	event := ""
	if g.MaxEventNum != 0 {
		event = fmt.Sprintf("#%d", g.MaxEventNum)
	}

	return fmt.Sprintf("%s--%s %10.3f--%10.3f ds: %6d%-6s %5s %8.3f %-10s %9.3fl%s %s %s",
		g.MinT.Format("2006-01-02 Mon 15:04:05"),
		g.MaxT.Format("2006-01-02 15:04:05"),
		g.MinFV, g.MaxFV,
		g.SourcePoints, syn, event,
		g.SPP, cumText, g.Sum, extra, price,
		r.opts.Style.RenderBar(MakeBar(g.Sum*barPerLitres)))
}

// Items groups values and computes gaps and running sums.
func (r *Report) Items(values []process.InterpretedValue) []Item {
	if r.opts.Amend {
		values = r.Amend(values)
	}
	zpc := r.opts.Resolution.ZerosPerCumulating
	if zpc <= 0 {
		zpc = 1
	}

	var (
		items      []Item
		lastPeriod string
		spp        float64
		zpp        = 1
		cum        float64
		zerosInRow int
	)
	for _, it := range r.groupsAndGaps(values) {
		bigGap := it.IsGap() && it.Gap >= longGap
		if !it.IsGap() {
			period := it.Group.MinT.Format("2006-01-02")
			if period != lastPeriod {
				spp = 0
				zpp = 1
				lastPeriod = period
			}
			spp += it.Group.Sum
			cum += it.Group.Sum
		}
		if bigGap || (!it.IsGap() && it.Group.Sum == 0) {
			zerosInRow++
			if bigGap || zerosInRow >= zpc {
				cum = 0
				if zerosInRow == zpc {
					zpp++
				}
			}
		} else {
			zerosInRow = 0
		}

		if it.IsGap() {
			items = append(items, it)
			continue
		}
		it.Group.Cum = cum
		it.Group.SPP = spp
		it.Group.ZPP = zpp
		items = append(items, it)
	}
	return items
}

func (r *Report) groupsAndGaps(values []process.InterpretedValue) []Item {
	var (
		items []Item
		last  *CumulativeGroup
	)
	for _, g := range r.Groups(values) {
		cg := &CumulativeGroup{Group: g}
		if last != nil && r.opts.Resolution.HasStepsBetween(last.MaxT, cg.MinT) {
			items = append(items, Item{Gap: cg.MinT.Sub(last.MaxT)})
		}
		items = append(items, Item{Group: cg})
		last = cg
	}
	return items
}

// Groups merges consecutive values that fall into the same group.
func (r *Report) Groups(values []process.InterpretedValue) []Group {
	var groups []Group
	for _, v := range values {
		id := r.opts.Resolution.Group(v.T)
		synthetic := 0
		if v.Synthetic {
			synthetic = 1
		}
		if n := len(groups); n > 0 && groups[n-1].ID == id {
			g := &groups[n-1]
			if v.T.Before(g.MinT) {
				g.MinT = v.T
			}
			if v.T.After(g.MaxT) {
				g.MaxT = v.T
			}
			g.MinFV = min(g.MinFV, v.FV)
			g.MaxFV = max(g.MaxFV, v.FV)
			g.Sum += v.DFV
			g.SumT += v.DT
			g.SyntheticCount += synthetic
			g.SourcePoints++
			g.MaxEventNum = max(g.MaxEventNum, v.FilenameData.EventNumber)
			continue
		}
		groups = append(groups, Group{
			ID:             id,
			MinT:           v.T,
			MaxT:           v.T,
			MinFV:          v.FV,
			MaxFV:          v.FV,
			Sum:            v.DFV,
			SumT:           v.DT,
			SyntheticCount: synthetic,
			SourcePoints:   1,
			MaxEventNum:    v.FilenameData.EventNumber,
		})
	}
	return groups
}

// Amend replaces a value that increased more than 0.1 l after a nonzero
// increase by synthetic values on the group starts between it and the
// previous value. At most MaxSyntheticValues of the last starts are used.
func (r *Report) Amend(values []process.InterpretedValue) []process.InterpretedValue {
	out := make([]process.InterpretedValue, 0, len(values))
	var last *process.InterpretedValue
	for i := range values {
		v := values[i]
		if last != nil && v.DFV > 0.1 && last.DFV > 0 {
			steps := r.opts.Resolution.StepsBetween(last.T, v.T)
			if len(steps) > r.opts.MaxSyntheticValues {
				steps = steps[len(steps)-r.opts.MaxSyntheticValues:]
			}
			if len(steps) > 0 {
				fvStep := v.DFV / float64(len(steps))
				cur := last.FV
				for _, t := range steps {
					cur += fvStep
					nv := process.InterpretedValue{
						T:            t,
						FV:           cur,
						DT:           t.Sub(last.T),
						DFV:          cur - last.FV,
						HasDelta:     true,
						Synthetic:    true,
						Filename:     v.Filename,
						FilenameData: v.FilenameData,
					}
					out = append(out, nv)
					last = &nv
				}
				continue
			}
		}
		out = append(out, v)
		last = &v
	}
	return out
}

// FormatTimedelta formats d as [D day[s], ]H:MM:SS[.ffffff].
func FormatTimedelta(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	us := int64(d / time.Microsecond)
	days := us / (24 * 3600 * 1e6)
	us -= days * 24 * 3600 * 1e6
	secs := us / 1e6
	frac := us % 1e6

	s := fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	if frac != 0 {
		s += fmt.Sprintf(".%06d", frac)
	}
	switch days {
	case 0:
	case 1:
		s = "1 day, " + s
	default:
		s = fmt.Sprintf("%d days, %s", days, s)
	}
	return sign + s
}
