// Package config loads the layered meterelf-store configuration.
//
// Precedence, lowest to highest: built-in defaults, user config
// (~/.meterelf/config.toml), project config (.meterelf/config.toml or
// --config), METERELF_* environment variables, flag overrides. A .env file
// in the project directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/meterelf/meterelf-store/internal/runner"
	"github.com/meterelf/meterelf-store/internal/visualize"
)

// StateDirName is the per-user and per-project state directory.
const StateDirName = ".meterelf"

// Config holds all meterelf-store settings.
type Config struct {
	Reader     ReaderConfig     `toml:"reader" json:"reader" mapstructure:"reader"`
	Store      StoreConfig      `toml:"store" json:"store" mapstructure:"store"`
	Visualize  VisualizeConfig  `toml:"visualize" json:"visualize" mapstructure:"visualize"`
	Processing ProcessingConfig `toml:"processing" json:"processing" mapstructure:"processing"`
	Golden     GoldenConfig     `toml:"golden" json:"golden" mapstructure:"golden"`
}

// ReaderConfig configures the external meter reading tool.
type ReaderConfig struct {
	Command         string   `toml:"command" json:"command" mapstructure:"command"`
	ParamsFile      string   `toml:"params_file" json:"params_file" mapstructure:"params_file"`
	ImageExtensions []string `toml:"image_extensions" json:"image_extensions" mapstructure:"image_extensions"`
	BlockSize       int      `toml:"block_size" json:"block_size" mapstructure:"block_size"`
	TimeoutSecs     int      `toml:"timeout_seconds" json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// StoreConfig locates the value database and the image tree.
type StoreConfig struct {
	DatabasePath    string `toml:"database_path" json:"database_path" mapstructure:"database_path"`
	ImagesDir       string `toml:"images_dir" json:"images_dir" mapstructure:"images_dir"`
	DoneBeforeMonth string `toml:"done_before_month" json:"done_before_month" mapstructure:"done_before_month"`
	Timezone        string `toml:"timezone" json:"timezone" mapstructure:"timezone"`
}

// VisualizeConfig holds report defaults.
type VisualizeConfig struct {
	StartFrom          string  `toml:"start_from" json:"start_from" mapstructure:"start_from"`
	Resolution         string  `toml:"resolution" json:"resolution" mapstructure:"resolution"`
	AmendValues        bool    `toml:"amend_values" json:"amend_values" mapstructure:"amend_values"`
	EURPerLitre        float64 `toml:"eur_per_litre" json:"eur_per_litre" mapstructure:"eur_per_litre"`
	MaxSyntheticValues int     `toml:"max_synthetic_values" json:"max_synthetic_values" mapstructure:"max_synthetic_values"`
	Theme              string  `toml:"theme" json:"theme" mapstructure:"theme"`
}

// ProcessingConfig holds the limits used when interpreting readings.
type ProcessingConfig struct {
	MaxBackwardLitres  float64 `toml:"max_backward_litres" json:"max_backward_litres" mapstructure:"max_backward_litres"`
	MaxLitresPerMinute float64 `toml:"max_litres_per_minute" json:"max_litres_per_minute" mapstructure:"max_litres_per_minute"`
}

// GoldenConfig holds defaults for the golden-file harness.
type GoldenConfig struct {
	SampleDir      string `toml:"sample_dir" json:"sample_dir" mapstructure:"sample_dir"`
	Glob           string `toml:"glob" json:"glob" mapstructure:"glob"`
	ExpectedPrefix string `toml:"expected_prefix" json:"expected_prefix" mapstructure:"expected_prefix"`
	Repeat         int    `toml:"repeat" json:"repeat" mapstructure:"repeat"`
	Tolerant       bool   `toml:"tolerant" json:"tolerant" mapstructure:"tolerant"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Reader: ReaderConfig{
			Command:         "meterelf",
			ImageExtensions: []string{".jpg", ".ppm"},
			BlockSize:       200,
			TimeoutSecs:     600,
		},
		Store: StoreConfig{
			DatabasePath:    filepath.Join(StateDirName, "values.db"),
			ImagesDir:       ".",
			DoneBeforeMonth: "2018-12",
			Timezone:        "Europe/Helsinki",
		},
		Visualize: VisualizeConfig{
			StartFrom:          "2018-09-24T00:00:00+03:00",
			Resolution:         "day",
			EURPerLitre:        visualize.DefaultEURPerLitre,
			MaxSyntheticValues: visualize.DefaultMaxSyntheticValues,
			Theme:              "mocha",
		},
		Processing: ProcessingConfig{
			MaxBackwardLitres:  0.2,
			MaxLitresPerMinute: 60,
		},
		Golden: GoldenConfig{
			Glob:   "*.jpg",
			Repeat: 1,
		},
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	ProjectDir    string
	ConfigPath    string
	FlagOverrides map[string]any
}

// Load builds the effective configuration.
func Load(opts LoadOptions) (Config, error) {
	projectDir := opts.ProjectDir
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("getwd: %w", err)
		}
		projectDir = wd
	}

	if err := loadDotEnv(filepath.Join(projectDir, ".env")); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	userPath, projectPath := ConfigPaths(projectDir, opts.ConfigPath)
	if err := mergeConfigFile(v, userPath); err != nil {
		return Config{}, err
	}
	if err := mergeConfigFile(v, projectPath); err != nil {
		return Config{}, err
	}

	if err := applyEnv(v); err != nil {
		return Config{}, err
	}
	for key, value := range opts.FlagOverrides {
		if _, ok := keySpecs[key]; !ok {
			return Config{}, fmt.Errorf("unsupported config key: %s", key)
		}
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	cfg := DefaultConfig()
	for key := range keySpecs {
		value, _ := GetValue(cfg, key)
		v.SetDefault(key, value)
	}
}

// mergeConfigFile merges the TOML file at path into v. Empty or missing
// paths are ignored.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}

	var data map[string]any
	if _, err := toml.DecodeFile(path, &data); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := v.MergeConfigMap(data); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	return nil
}

func applyEnv(v *viper.Viper) error {
	for key, spec := range keySpecs {
		raw, ok := os.LookupEnv(spec.env)
		if !ok {
			continue
		}
		value, err := parseValueByKind(raw, spec.kind)
		if err != nil {
			return fmt.Errorf("%s: %w", spec.env, err)
		}
		v.Set(key, value)
	}
	return nil
}

// ConfigPaths returns the user and project config file paths. override
// replaces the project path.
func ConfigPaths(projectDir, override string) (user, project string) {
	if home, err := os.UserHomeDir(); err == nil {
		user = filepath.Join(home, StateDirName, "config.toml")
	}
	return user, projectConfigPath(projectDir, override)
}

func projectConfigPath(projectDir, override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(projectDir, StateDirName, "config.toml")
}

var monthRegex = regexp.MustCompile(`^[12][0-9]{3}-[01][0-9]$`)

// Validate checks cfg and reports all problems in one error.
func Validate(cfg Config) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if words, err := runner.SplitCommand(cfg.Reader.Command); err != nil || len(words) == 0 {
		add("reader.command must be a non-empty command line")
	}
	if len(cfg.Reader.ImageExtensions) == 0 {
		add("reader.image_extensions must not be empty")
	}
	for _, ext := range cfg.Reader.ImageExtensions {
		if !strings.HasPrefix(ext, ".") {
			add("reader.image_extensions: %q must start with a dot", ext)
		}
	}
	if cfg.Reader.BlockSize <= 0 {
		add("reader.block_size must be positive")
	}
	if cfg.Reader.TimeoutSecs < 0 {
		add("reader.timeout_seconds must be >= 0")
	}

	if strings.TrimSpace(cfg.Store.DatabasePath) == "" {
		add("store.database_path is required")
	}
	if cfg.Store.DoneBeforeMonth != "" && !monthRegex.MatchString(cfg.Store.DoneBeforeMonth) {
		add("store.done_before_month must be YYYY-MM, got %q", cfg.Store.DoneBeforeMonth)
	}
	if _, err := time.LoadLocation(cfg.Store.Timezone); err != nil {
		add("store.timezone: %v", err)
	}

	if cfg.Visualize.StartFrom != "" {
		if _, err := time.Parse(time.RFC3339, cfg.Visualize.StartFrom); err != nil {
			add("visualize.start_from must be RFC 3339, got %q", cfg.Visualize.StartFrom)
		}
	}
	if _, err := visualize.ParseResolution(cfg.Visualize.Resolution); err != nil {
		add("visualize.resolution: %v", err)
	}
	if cfg.Visualize.EURPerLitre < 0 {
		add("visualize.eur_per_litre must be >= 0")
	}
	if cfg.Visualize.MaxSyntheticValues < 0 {
		add("visualize.max_synthetic_values must be >= 0")
	}
	switch cfg.Visualize.Theme {
	case "", "mocha", "latte":
	default:
		add("visualize.theme must be mocha or latte, got %q", cfg.Visualize.Theme)
	}

	if cfg.Processing.MaxBackwardLitres < 0 {
		add("processing.max_backward_litres must be >= 0")
	}
	if cfg.Processing.MaxLitresPerMinute <= 0 {
		add("processing.max_litres_per_minute must be positive")
	}

	if cfg.Golden.Repeat < 1 {
		add("golden.repeat must be >= 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the configured time zone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Store.Timezone)
}

// StartFrom returns visualize.start_from, or the zero time when unset.
func (c Config) StartFrom() (time.Time, error) {
	if c.Visualize.StartFrom == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, c.Visualize.StartFrom)
}

// ResolvePath makes a configured relative path relative to projectDir.
func ResolvePath(projectDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
	kindStringSlice
)

type keySpec struct {
	kind valueKind
	env  string
	get  func(Config) any
}

func spec(kind valueKind, env string, get func(Config) any) keySpec {
	return keySpec{kind: kind, env: "METERELF_" + env, get: get}
}

var keySpecs = map[string]keySpec{
	"reader.command":          spec(kindString, "READER_COMMAND", func(c Config) any { return c.Reader.Command }),
	"reader.params_file":      spec(kindString, "PARAMS_FILE", func(c Config) any { return c.Reader.ParamsFile }),
	"reader.image_extensions": spec(kindStringSlice, "IMAGE_EXTENSIONS", func(c Config) any { return c.Reader.ImageExtensions }),
	"reader.block_size":       spec(kindInt, "BLOCK_SIZE", func(c Config) any { return c.Reader.BlockSize }),
	"reader.timeout_seconds":  spec(kindInt, "READER_TIMEOUT", func(c Config) any { return c.Reader.TimeoutSecs }),

	"store.database_path":     spec(kindString, "DATABASE_PATH", func(c Config) any { return c.Store.DatabasePath }),
	"store.images_dir":        spec(kindString, "IMAGES_DIR", func(c Config) any { return c.Store.ImagesDir }),
	"store.done_before_month": spec(kindString, "DONE_BEFORE_MONTH", func(c Config) any { return c.Store.DoneBeforeMonth }),
	"store.timezone":          spec(kindString, "TIMEZONE", func(c Config) any { return c.Store.Timezone }),

	"visualize.start_from":           spec(kindString, "START_FROM", func(c Config) any { return c.Visualize.StartFrom }),
	"visualize.resolution":           spec(kindString, "RESOLUTION", func(c Config) any { return c.Visualize.Resolution }),
	"visualize.amend_values":         spec(kindBool, "AMEND_VALUES", func(c Config) any { return c.Visualize.AmendValues }),
	"visualize.eur_per_litre":        spec(kindFloat, "EUR_PER_LITRE", func(c Config) any { return c.Visualize.EURPerLitre }),
	"visualize.max_synthetic_values": spec(kindInt, "MAX_SYNTHETIC_VALUES", func(c Config) any { return c.Visualize.MaxSyntheticValues }),
	"visualize.theme":                spec(kindString, "THEME", func(c Config) any { return c.Visualize.Theme }),

	"processing.max_backward_litres":   spec(kindFloat, "MAX_BACKWARD_LITRES", func(c Config) any { return c.Processing.MaxBackwardLitres }),
	"processing.max_litres_per_minute": spec(kindFloat, "MAX_LITRES_PER_MINUTE", func(c Config) any { return c.Processing.MaxLitresPerMinute }),

	"golden.sample_dir":      spec(kindString, "SAMPLE_DIR", func(c Config) any { return c.Golden.SampleDir }),
	"golden.glob":            spec(kindString, "GOLDEN_GLOB", func(c Config) any { return c.Golden.Glob }),
	"golden.expected_prefix": spec(kindString, "EXPECTED_PREFIX", func(c Config) any { return c.Golden.ExpectedPrefix }),
	"golden.repeat":          spec(kindInt, "GOLDEN_REPEAT", func(c Config) any { return c.Golden.Repeat }),
	"golden.tolerant":        spec(kindBool, "GOLDEN_TOLERANT", func(c Config) any { return c.Golden.Tolerant }),
}

// Keys returns every settable key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(keySpecs))
	for k := range keySpecs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) (string, bool) {
	s, ok := keySpecs[key]
	return s.env, ok
}

// GetValue returns the value of a dotted key, or of a whole section.
func GetValue(cfg Config, key string) (any, bool) {
	switch key {
	case "reader":
		return cfg.Reader, true
	case "store":
		return cfg.Store, true
	case "visualize":
		return cfg.Visualize, true
	case "processing":
		return cfg.Processing, true
	case "golden":
		return cfg.Golden, true
	}
	s, ok := keySpecs[key]
	if !ok {
		return nil, false
	}
	return s.get(cfg), true
}

// ParseValue converts raw into the type of key.
func ParseValue(key, raw string) (any, error) {
	s, ok := keySpecs[key]
	if !ok {
		return nil, fmt.Errorf("unsupported config key: %s", key)
	}
	return parseValueByKind(raw, s.kind)
}

func parseValueByKind(raw string, kind valueKind) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case kindString:
		return raw, nil
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", raw)
		}
		return f, nil
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q", raw)
		}
		return b, nil
	case kindStringSlice:
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %d", kind)
	}
}

// WriteValue sets a dotted key in the TOML file at path, creating the file
// and its directory if needed.
func WriteValue(path, key string, value any) error {
	if path == "" {
		return fmt.Errorf("config path is required")
	}

	data := map[string]any{}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	parts := strings.Split(key, ".")
	table := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := table[part]
		if !ok {
			child := map[string]any{}
			table[part] = child
			table = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("config key %s: %s is not a table", key, part)
		}
		table = child
	}
	table[parts[len(parts)-1]] = value

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(data); err != nil {
		return fmt.Errorf("encode config %s: %w", path, err)
	}
	return f.Close()
}
