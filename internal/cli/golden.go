package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/meterelf/meterelf-store/internal/golden"
)

var (
	flagGoldenTool     string
	flagGoldenDir      string
	flagGoldenGlob     string
	flagGoldenExpected string
	flagGoldenUpdate   bool
	flagGoldenRepeat   int
	flagGoldenTolerant bool
)

// errGoldenFailed is returned when the harness ran but did not pass.
var errGoldenFailed = errors.New("golden test failed")

func init() {
	goldenCmd.Flags().StringVar(&flagGoldenTool, "tool", "", "tool command line (default reader.command)")
	goldenCmd.Flags().StringVar(&flagGoldenDir, "dir", "", "sample image directory (default golden.sample_dir)")
	goldenCmd.Flags().StringVar(&flagGoldenGlob, "glob", "", "sample image pattern (default golden.glob)")
	goldenCmd.Flags().StringVar(&flagGoldenExpected, "expected", "", "golden file prefix (default golden.expected_prefix)")
	goldenCmd.Flags().BoolVarP(&flagGoldenUpdate, "update", "u", false, "record the output as the new golden files")
	goldenCmd.Flags().IntVar(&flagGoldenRepeat, "repeat", 0, "run the tool this many times and require identical output")
	goldenCmd.Flags().BoolVar(&flagGoldenTolerant, "tolerant", false, "compare stdout values with decreasing precision")

	rootCmd.AddCommand(goldenCmd)
}

var goldenCmd = &cobra.Command{
	Use:   "golden",
	Short: "Run the meter reader against sample images and compare with golden files",
	Long: `Golden runs the meter reader once over the sorted sample images and
compares its stdout and stderr with <expected>.expected_stdout and
<expected>.expected_stderr. The run passes only when the exit code is zero
and both streams match.

The tool gets the global --params file (reader.params_file) before the
images.`,
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

		opts := golden.Options{
			Tool:     pick(flagGoldenTool, cfg.Reader.Command),
			Params:   cfg.Reader.ParamsFile,
			Dir:      pick(flagGoldenDir, cfg.Golden.SampleDir),
			Glob:     pick(flagGoldenGlob, cfg.Golden.Glob),
			Expected: pick(flagGoldenExpected, cfg.Golden.ExpectedPrefix),
			Update:   flagGoldenUpdate,
			Repeat:   cfg.Golden.Repeat,
			Tolerant: flagGoldenTolerant || cfg.Golden.Tolerant,
			Timeout:  time.Duration(cfg.Reader.TimeoutSecs) * time.Second,
			Executor: newExecutor(),
			Logger:   newLogger("golden"),
		}
		if flagGoldenRepeat > 0 {
			opts.Repeat = flagGoldenRepeat
		}
		if opts.Params != "" {
			opts.Params = resolve(opts.Params)
		}
		if opts.Dir != "" {
			opts.Dir = resolve(opts.Dir)
		}
		if opts.Expected != "" {
			opts.Expected = resolve(opts.Expected)
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		result, err := golden.Run(ctx, opts)
		if err != nil {
			return err
		}

		if out.IsStructured() {
			if err := out.Write(goldenView{
				Images:         len(result.Images),
				ExitCode:       result.ExitCode,
				StdoutDiff:     result.StdoutDiff,
				StderrDiff:     result.StderrDiff,
				Nondeterminism: result.Nondeterminism,
				Updated:        result.Updated,
				Passed:         result.Passed,
			}); err != nil {
				return err
			}
		} else if err := result.Write(cmd.OutOrStdout()); err != nil {
			return err
		}

		if !result.Passed {
			return errGoldenFailed
		}
		return nil
	},
}

type goldenView struct {
	Images         int      `json:"images"`
	ExitCode       int      `json:"exit_code"`
	StdoutDiff     string   `json:"stdout_diff,omitempty"`
	StderrDiff     string   `json:"stderr_diff,omitempty"`
	Nondeterminism []string `json:"nondeterminism,omitempty"`
	Updated        bool     `json:"updated"`
	Passed         bool     `json:"passed"`
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
