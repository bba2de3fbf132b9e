package gosimulado

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/gosimulado/parser"
	"github.com/brunobiangulo/gosimulado/question"
	"github.com/brunobiangulo/gosimulado/retrieval"
	"github.com/brunobiangulo/gosimulado/segment"
	"github.com/brunobiangulo/gosimulado/theme"
)

// DefaultExamSize is the number of questions in one exam section.
const DefaultExamSize = 70

// Config holds all configuration for the extraction engine.
type Config struct {
	// Backend selects the PDF loader: "fitz" (MuPDF, default) or "native".
	// Plain text files always use the text loader.
	Backend string `json:"backend" yaml:"backend"`

	// ExamSize is the fixed number of questions per exam; it maps global
	// question ids to exam and local numbers.
	ExamSize int `json:"exam_size" yaml:"exam_size"`

	// Workers bounds the number of segments parsed concurrently.
	// Defaults to the number of CPUs.
	Workers int `json:"workers" yaml:"workers"`

	// ThemeRulesPath points to a YAML rule file. Empty uses the built-in
	// CEA themes.
	ThemeRulesPath string `json:"theme_rules_path" yaml:"theme_rules_path"`

	// AnswerKeyHeading is the regular expression that opens one exam's
	// answer key; its first group is the exam number.
	AnswerKeyHeading string `json:"answer_key_heading" yaml:"answer_key_heading"`

	// ImageFilter holds the decoration filter thresholds.
	ImageFilter segment.ImageFilter `json:"image_filter" yaml:"image_filter"`

	// Outputs written by Process. Empty paths are skipped.
	Output OutputConfig `json:"output" yaml:"output"`

	// Postgres, when DSN is set, receives every processed row set.
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`

	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.gosimulado/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.gosimulado/,
	// "local" uses the current working directory, "none" disables the
	// database.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// FingerprintDim is the size of the question similarity vectors.
	FingerprintDim int `json:"fingerprint_dim" yaml:"fingerprint_dim"`

	// Search tunes how keyword and fingerprint rankings are fused.
	Search retrieval.Config `json:"search" yaml:"search"`
}

// OutputConfig lists the files produced for each processed document.
type OutputConfig struct {
	CSV      string `json:"csv" yaml:"csv"`
	XLSX     string `json:"xlsx" yaml:"xlsx"`
	ImageDir string `json:"image_dir" yaml:"image_dir"`

	// StorageKeys writes images as CEA_07_1.png instead of CEA-07_1.png.
	StorageKeys bool `json:"storage_keys" yaml:"storage_keys"`
}

// PostgresConfig configures the remote questions table.
type PostgresConfig struct {
	DSN       string `json:"dsn" yaml:"dsn"`
	Table     string `json:"table" yaml:"table"`
	BatchSize int    `json:"batch_size" yaml:"batch_size"`
}

// DefaultConfig returns a Config that reproduces the CEA extraction: 70
// questions per exam, MuPDF backend, CSV and images in the working
// directory, database in ~/.gosimulado/gosimulado.db.
func DefaultConfig() Config {
	return Config{
		Backend:          "fitz",
		ExamSize:         DefaultExamSize,
		Workers:          runtime.NumCPU(),
		AnswerKeyHeading: `(?i)CEA:\s*SIMULADO\s*\((\d+)\)`,
		ImageFilter:      segment.DefaultImageFilter(),
		Output: OutputConfig{
			CSV:      "simulados.csv",
			ImageDir: "imagens",
		},
		Postgres: PostgresConfig{
			Table:     "questoes",
			BatchSize: 500,
		},
		DBName:         "gosimulado",
		StorageDir:     "home",
		FingerprintDim: question.DefaultFingerprintDim,
		Search:         retrieval.DefaultConfig(),
	}
}

// LoadConfig reads a YAML file over DefaultConfig, so a file only needs the
// fields it changes.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the configuration can be used.
func (c *Config) Validate() error {
	if c.Backend != "" {
		if _, err := parser.NewRegistry().Get(c.Backend); err != nil {
			return fmt.Errorf("%w: %w", ErrUnsupportedBackend, err)
		}
	}
	if c.ExamSize < 0 {
		return fmt.Errorf("%w: exam_size must not be negative, got %d", ErrInvalidConfig, c.ExamSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.FingerprintDim < 0 {
		return fmt.Errorf("%w: fingerprint_dim must not be negative, got %d", ErrInvalidConfig, c.FingerprintDim)
	}
	f := c.ImageFilter
	if f.FooterRatio < 0 || f.FooterRatio > 1 {
		return fmt.Errorf("%w: image_filter.footer_ratio must be within [0, 1]", ErrInvalidConfig)
	}
	if f.SquareMin > f.SquareMax {
		return fmt.Errorf("%w: image_filter.square_min exceeds square_max", ErrInvalidConfig)
	}
	if c.Search.WeightFTS < 0 || c.Search.WeightVector < 0 {
		return fmt.Errorf("%w: search weights must not be negative", ErrInvalidConfig)
	}
	switch c.StorageDir {
	case "", "home", "local", "cwd", "none":
	default:
		return fmt.Errorf("%w: unknown storage_dir %q", ErrInvalidConfig, c.StorageDir)
	}
	return nil
}

// ApplyEnv overrides fields from GOSIMULADO_* variables read through getenv
// (os.Getenv in the commands). DATABASE_URL is used for the Postgres DSN
// when GOSIMULADO_PG_DSN is unset. Malformed numbers are reported.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"GOSIMULADO_BACKEND", &c.Backend},
		{"GOSIMULADO_THEME_RULES", &c.ThemeRulesPath},
		{"GOSIMULADO_CSV", &c.Output.CSV},
		{"GOSIMULADO_XLSX", &c.Output.XLSX},
		{"GOSIMULADO_IMAGE_DIR", &c.Output.ImageDir},
		{"GOSIMULADO_DB_PATH", &c.DBPath},
		{"GOSIMULADO_STORAGE_DIR", &c.StorageDir},
		{"GOSIMULADO_PG_TABLE", &c.Postgres.Table},
		{"GOSIMULADO_PG_DSN", &c.Postgres.DSN},
	}
	for _, s := range strs {
		if v := getenv(s.key); v != "" {
			*s.dst = v
		}
	}
	if c.Postgres.DSN == "" {
		c.Postgres.DSN = getenv("DATABASE_URL")
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"GOSIMULADO_EXAM_SIZE", &c.ExamSize},
		{"GOSIMULADO_WORKERS", &c.Workers},
	}
	for _, n := range ints {
		v := getenv(n.key)
		if v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, n.key, v)
		}
		*n.dst = i
	}
	return nil
}

// applyDefaults fills zero values so a partially built Config still works.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.ExamSize == 0 {
		c.ExamSize = d.ExamSize
	}
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.ImageFilter == (segment.ImageFilter{}) {
		c.ImageFilter = d.ImageFilter
	}
	if c.FingerprintDim == 0 {
		c.FingerprintDim = d.FingerprintDim
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = d.Postgres.Table
	}
	if c.Postgres.BatchSize == 0 {
		c.Postgres.BatchSize = d.Postgres.BatchSize
	}
}

// themeRules loads the configured rule set, or the built-in one.
func (c *Config) themeRules() (*theme.RuleSet, error) {
	if c.ThemeRulesPath == "" {
		return theme.Default(), nil
	}
	rs, err := theme.LoadRules(c.ThemeRulesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return rs, nil
}

// resolveDBPath computes the final database path from config fields.
// An empty result means the database is disabled.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "gosimulado"
	}

	switch c.StorageDir {
	case "none":
		return ""
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".gosimulado", name+".db")
	}
}
