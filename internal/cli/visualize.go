package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meterelf/meterelf-store/internal/config"
	"github.com/meterelf/meterelf-store/internal/process"
	"github.com/meterelf/meterelf-store/internal/tui"
	"github.com/meterelf/meterelf-store/internal/tui/theme"
	"github.com/meterelf/meterelf-store/internal/visualize"
)

var (
	flagStartFrom       string
	flagResolution      string
	flagAmend           bool
	flagInteractive     bool
	flagNoColor         bool
	flagMaxBackward     float64
	flagMaxLitresPerMin float64
)

func init() {
	for _, c := range []*cobra.Command{visualizeCmd, rawCmd, ignoresCmd} {
		c.Flags().StringVar(&flagStartFrom, "start-from", "", "first reading time, RFC 3339 or YYYY-MM-DD (default visualize.start_from)")
		c.Flags().Float64Var(&flagMaxBackward, "max-backward", 0, "largest backward change treated as jitter, litres (default processing.max_backward_litres)")
		c.Flags().Float64Var(&flagMaxLitresPerMin, "max-rate", 0, "largest plausible flow, litres per minute (default processing.max_litres_per_minute)")
	}
	visualizeCmd.Flags().StringVarP(&flagResolution, "resolution", "r", "", "group resolution: "+resolutionHelp()+" (default visualize.resolution)")
	visualizeCmd.Flags().BoolVar(&flagAmend, "amend", false, "spread large increases over the groups since the previous reading")
	visualizeCmd.Flags().BoolVarP(&flagInteractive, "interactive", "i", false, "browse the report in a pager")
	visualizeCmd.Flags().BoolVar(&flagNoColor, "no-color", false, "disable colors even on a terminal")
	ignoresCmd.Flags().BoolVar(&flagNoColor, "no-color", false, "disable colors even on a terminal")

	rootCmd.AddCommand(visualizeCmd)
}

var visualizeCmd = &cobra.Command{
	Use:     "visualize",
	Aliases: []string{"vis"},
	Short:   "Show water consumption grouped by time",
	Long: `Visualize interprets the stored readings as a litre series and prints
one line per group of the chosen resolution: time range, value range,
source points, daily and cumulative sums, flow rate, price and a bar.

Gaps between groups are printed as their own lines; gaps of 30 seconds or
more are set off by blank lines.`,
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

		resName := cfg.Visualize.Resolution
		if flagResolution != "" {
			resName = flagResolution
		}
		res, err := visualize.ParseResolution(resName)
		if err != nil {
			return err
		}

		values, err := interpretedValues(cfg)
		if err != nil {
			return err
		}

		opts := visualize.Options{
			Resolution:         res,
			Amend:              cfg.Visualize.AmendValues || flagAmend,
			MaxSyntheticValues: cfg.Visualize.MaxSyntheticValues,
			EURPerLitre:        cfg.Visualize.EURPerLitre,
		}

		if out.IsStructured() {
			return out.Write(itemViews(visualize.NewReport(opts).Items(values)))
		}

		interactive := flagInteractive && isTerminal(cmd.OutOrStdout())
		if useColor(cmd, interactive) {
			theme.SetTheme(theme.FlavorName(cfg.Visualize.Theme))
			opts.Style = visualize.NewStyle(theme.Current)
		}
		report := visualize.NewReport(opts)

		if interactive {
			return tui.Run(report.Lines(values), tui.Options{
				Title:      fmt.Sprintf("Water consumption per %s", res.Name),
				Theme:      cfg.Visualize.Theme,
				StartAtEnd: true,
			})
		}
		return report.Write(cmd.OutOrStdout(), values)
	},
}

func resolutionHelp() string {
	return "second, three-seconds, five-seconds, minute, hour, day, week, month"
}

func useColor(cmd *cobra.Command, interactive bool) bool {
	if flagNoColor {
		return false
	}
	return interactive || isTerminal(cmd.OutOrStdout())
}

// startFrom returns --start-from when set, else visualize.start_from.
func startFrom(cfg config.Config) (time.Time, error) {
	if flagStartFrom == "" {
		return cfg.StartFrom()
	}
	if t, err := time.Parse(time.RFC3339, flagStartFrom); err == nil {
		return t, nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02", flagStartFrom, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --start-from %q: want RFC 3339 or YYYY-MM-DD", flagStartFrom)
	}
	return t, nil
}

func newProcessor(cfg config.Config) (*process.Processor, func() error, error) {
	since, err := startFrom(cfg)
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	database, err := openDB(cfg, false)
	if err != nil {
		return nil, nil, err
	}

	opts := process.Options{
		Since:              since,
		Location:           loc,
		MaxBackwardLitres:  cfg.Processing.MaxBackwardLitres,
		MaxLitresPerMinute: cfg.Processing.MaxLitresPerMinute,
		Warn:               func(msg string) { newLogger("process").Warn(msg) },
	}
	if flagMaxBackward > 0 {
		opts.MaxBackwardLitres = flagMaxBackward
	}
	if flagMaxLitresPerMin > 0 {
		opts.MaxLitresPerMinute = flagMaxLitresPerMin
	}
	return process.New(database, opts), database.Close, nil
}

func interpretedValues(cfg config.Config) ([]process.InterpretedValue, error) {
	p, closeDB, err := newProcessor(cfg)
	if err != nil {
		return nil, err
	}
	defer closeDB()
	return p.Values()
}

type itemView struct {
	Group        string  `json:"group,omitempty"`
	Start        string  `json:"start,omitempty"`
	End          string  `json:"end,omitempty"`
	MinValue     float64 `json:"min_value,omitempty"`
	MaxValue     float64 `json:"max_value,omitempty"`
	Litres       float64 `json:"litres"`
	Cumulative   float64 `json:"cumulative,omitempty"`
	DaySum       float64 `json:"day_sum,omitempty"`
	DayZeroings  int     `json:"day_zeroings,omitempty"`
	SourcePoints int     `json:"source_points,omitempty"`
	Synthetic    int     `json:"synthetic,omitempty"`
	GapSeconds   float64 `json:"gap_seconds,omitempty"`
}

func itemViews(items []visualize.Item) []itemView {
	views := make([]itemView, 0, len(items))
	for _, it := range items {
		if it.IsGap() {
			views = append(views, itemView{GapSeconds: it.Gap.Seconds()})
			continue
		}
		g := it.Group
		views = append(views, itemView{
			Group:        g.ID,
			Start:        g.MinT.Format(time.RFC3339Nano),
			End:          g.MaxT.Format(time.RFC3339Nano),
			MinValue:     g.MinFV,
			MaxValue:     g.MaxFV,
			Litres:       g.Sum,
			Cumulative:   g.Cum,
			DaySum:       g.SPP,
			DayZeroings:  g.ZPP,
			SourcePoints: g.SourcePoints,
			Synthetic:    g.SyntheticCount,
		})
	}
	return views
}
