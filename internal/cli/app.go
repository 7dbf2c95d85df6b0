package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/meterelf/meterelf-store/internal/config"
	"github.com/meterelf/meterelf-store/internal/db"
	"github.com/meterelf/meterelf-store/internal/reader"
	"github.com/meterelf/meterelf-store/internal/runner"
)

// newExecutor builds the executor the meter reader and the golden harness
// run their tools with. Tests replace it.
var newExecutor = func() runner.Executor { return runner.ExecExecutor{} }

func projectPath() (string, error) {
	if flagProject != "" {
		return flagProject, nil
	}
	pwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return pwd, nil
}

// flagOverrides maps the global flags that were set to config keys.
func flagOverrides() map[string]any {
	overrides := map[string]any{}
	if flagDB != "" {
		overrides["store.database_path"] = flagDB
	}
	if flagParams != "" {
		overrides["reader.params_file"] = flagParams
	}
	if flagImagesDir != "" {
		overrides["store.images_dir"] = flagImagesDir
	}
	return overrides
}

func loadConfig() (config.Config, error) {
	project, err := projectPath()
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(config.LoadOptions{
		ProjectDir:    project,
		ConfigPath:    flagConfig,
		FlagOverrides: flagOverrides(),
	})
}

func resolve(path string) string {
	project, err := projectPath()
	if err != nil {
		return path
	}
	return config.ResolvePath(project, path)
}

func databasePath(cfg config.Config) string {
	return resolve(cfg.Store.DatabasePath)
}

func imagesDir(cfg config.Config) string {
	return resolve(cfg.Store.ImagesDir)
}

// openDB opens the value database, creating it when create is set.
func openDB(cfg config.Config, create bool) (*db.DB, error) {
	path := databasePath(cfg)
	var (
		database *db.DB
		err      error
	)
	if create {
		database, err = db.OpenAndMigrate(path)
	} else {
		database, err = db.OpenWithOptions(path, db.OpenOptions{InitSchema: true})
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}

func newReader(cfg config.Config) (*reader.Reader, error) {
	params := resolve(cfg.Reader.ParamsFile)
	if cfg.Reader.ParamsFile == "" {
		params = ""
	}
	return reader.New(reader.Options{
		Command:    cfg.Reader.Command,
		ParamsFile: params,
		Timeout:    time.Duration(cfg.Reader.TimeoutSecs) * time.Second,
		Dir:        imagesDir(cfg),
		Executor:   newExecutor(),
		Logger:     newLogger("reader"),
	})
}

// signalContext cancels on SIGINT and SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
