package gosimulado

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ExamSize != 70 || cfg.Postgres.BatchSize != 500 || cfg.Postgres.Table != "questoes" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
backend: native
exam_size: 50
output:
  csv: out.csv
image_filter:
  footer_ratio: 0.9
  square_min: 0.8
  square_max: 1.2
  square_max_side: 400
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != "native" || cfg.ExamSize != 50 {
		t.Errorf("backend=%q exam_size=%d", cfg.Backend, cfg.ExamSize)
	}
	if cfg.Output.CSV != "out.csv" || cfg.Output.ImageDir != "imagens" {
		t.Errorf("output = %+v, image dir default should survive", cfg.Output)
	}
	if cfg.ImageFilter.FooterRatio != 0.9 || cfg.ImageFilter.SquareMaxSide != 400 {
		t.Errorf("image filter = %+v", cfg.ImageFilter)
	}
	if cfg.DBName != "gosimulado" {
		t.Errorf("db name default lost: %q", cfg.DBName)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"bad yaml", "backend: [", ErrInvalidConfig},
		{"unknown backend", "backend: ocr", ErrUnsupportedBackend},
		{"negative exam size", "exam_size: -1", ErrInvalidConfig},
		{"bad storage dir", "storage_dir: cloud", ErrInvalidConfig},
		{"footer ratio", "image_filter: {footer_ratio: 1.5}", ErrInvalidConfig},
		{"negative search weight", "search: {weight_fts: -1}", ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestResolveDBPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit", Config{DBPath: "/tmp/x.db", StorageDir: "none"}, "/tmp/x.db"},
		{"none", Config{StorageDir: "none"}, ""},
		{"local", Config{StorageDir: "local", DBName: "exams"}, "exams.db"},
		{"cwd default name", Config{StorageDir: "cwd"}, "gosimulado.db"},
		{"home", Config{DBName: "exams"}, filepath.Join(home, ".gosimulado", "exams.db")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.resolveDBPath(); got != tt.want {
				t.Errorf("resolveDBPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestThemeRulesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	rules := `
fallback: Outros
rules:
  - label: Renda Fixa
    keywords: [CDB, LCI]
`
	if err := os.WriteFile(path, []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.ThemeRulesPath = path
	rs, err := cfg.themeRules()
	if err != nil {
		t.Fatalf("themeRules: %v", err)
	}
	if got := rs.Classify("rendimento do CDB"); got != "Renda Fixa" {
		t.Errorf("Classify = %q", got)
	}
	if got := rs.Classify("nada"); got != "Outros" {
		t.Errorf("fallback = %q", got)
	}

	cfg.ThemeRulesPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := cfg.themeRules(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GOSIMULADO_BACKEND":   "native",
		"GOSIMULADO_EXAM_SIZE": "60",
		"GOSIMULADO_CSV":       "x.csv",
		"DATABASE_URL":         "postgres://db/exams",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != "native" || cfg.ExamSize != 60 || cfg.Output.CSV != "x.csv" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Postgres.DSN != "postgres://db/exams" {
		t.Errorf("dsn = %q", cfg.Postgres.DSN)
	}

	env["GOSIMULADO_PG_DSN"] = "postgres://explicit"
	env["GOSIMULADO_WORKERS"] = "many"
	cfg = DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if cfg.Postgres.DSN != "postgres://explicit" {
		t.Errorf("explicit dsn lost: %q", cfg.Postgres.DSN)
	}
}
