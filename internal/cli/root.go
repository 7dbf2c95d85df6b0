// Package cli implements the Cobra command-line interface for meterelf-store.
package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/meterelf/meterelf-store/internal/config"
	"github.com/meterelf/meterelf-store/internal/output"
	"github.com/meterelf/meterelf-store/internal/utils"
)

// Version information set by goreleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flag values
var (
	flagConfig    string
	flagOutput    string
	flagJSON      bool
	flagVerbose   bool
	flagDB        string
	flagParams    string
	flagImagesDir string
	flagProject   string
)

var rootCmd = &cobra.Command{
	Use:   "meterelf-store",
	Short: "Water meter value store - collect, store and visualize meter readings",
	Long: `meterelf-store keeps the readings of a water meter camera in a SQLite
value database.

Images are stored as <images>/YYYY-MM/DD/YYYYMMDDhhmmss-NN.jpg. The meter
reading tool (meterelf) turns each image into a dial value; collect stores
those values, visualize turns them into a consumption report.

  collect     read new images into the database
  watch       collect images as the camera writes them
  visualize   grouped consumption report
  golden      check the reading tool against recorded output`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagProject != "" {
			if err := os.Chdir(flagProject); err != nil {
				return fmt.Errorf("changing directory to %s: %w", flagProject, err)
			}
		}
		logger := utils.InitLogger(utils.LoggerOptions{
			Level:  logLevel(),
			Output: cmd.ErrOrStderr(),
		})
		utils.SetDefaultLogger(logger)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		// When no subcommand given, show quick reference card
		showQuickReference(cmd.OutOrStdout())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := projectPath()
		_, configPath := config.ConfigPaths(project, flagConfig)
		dbPath := flagDB
		if cfg, err := loadConfig(); err == nil {
			dbPath = databasePath(cfg)
		}

		payload := map[string]any{
			"version":      version,
			"commit":       commit,
			"build_date":   date,
			"go_version":   runtime.Version(),
			"config_path":  configPath,
			"db_path":      dbPath,
			"project_path": project,
		}

		out, err := newOutput(cmd)
		if err != nil {
			return err
		}
		if out.IsStructured() {
			return out.Write(payload)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "meterelf-store %s\n", version)
		fmt.Fprintf(w, "  commit:  %s\n", commit)
		fmt.Fprintf(w, "  built:   %s\n", date)
		fmt.Fprintf(w, "  go:      %s\n", runtime.Version())
		fmt.Fprintf(w, "  config:  %s\n", configPath)
		fmt.Fprintf(w, "  db:      %s\n", dbPath)
		fmt.Fprintf(w, "  project: %s\n", project)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetOutput returns the configured output format.
// Precedence: --json > --output > METERELF_OUTPUT_FORMAT > text
func GetOutput() string {
	if flagJSON {
		return string(output.FormatJSON)
	}
	if flagOutput != "" && flagOutput != string(output.FormatText) {
		return flagOutput
	}
	if env := os.Getenv("METERELF_OUTPUT_FORMAT"); env != "" {
		if _, err := output.ParseFormat(env); err == nil {
			return env
		}
	}
	return string(output.FormatText)
}

func logLevel() string {
	if flagVerbose {
		return "debug"
	}
	if env := os.Getenv("METERELF_LOG_LEVEL"); env != "" {
		return env
	}
	return "info"
}

func newLogger(prefix string) *log.Logger {
	return utils.WithPrefix(prefix)
}

func newOutput(cmd *cobra.Command) (*output.Writer, error) {
	format, err := output.ParseFormat(GetOutput())
	if err != nil {
		return nil, err
	}
	return output.New(format,
		output.WithOutput(cmd.OutOrStdout()),
		output.WithErrorOutput(cmd.ErrOrStderr()),
	), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path (default .meterelf/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "output format: text, json, yaml (env: METERELF_OUTPUT_FORMAT)")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "shorthand for --output=json")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "value database path")
	rootCmd.PersistentFlags().StringVarP(&flagParams, "params", "p", "", "meter reader params file (env: METERELF_PARAMS_FILE)")
	rootCmd.PersistentFlags().StringVar(&flagImagesDir, "images-dir", "", "directory holding the YYYY-MM image directories")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "C", "", "project directory")

	rootCmd.AddCommand(versionCmd)
}
