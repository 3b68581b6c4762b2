package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/koltyakov/pgindexhealth/internal/analyze"
	"github.com/koltyakov/pgindexhealth/internal/diagnostic"
)

// TestNormalizeCode verifies that free-form names map to diagnostic names.
func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"unused_indexes", "unused_indexes"},
		{"Unused Indexes", "unused_indexes"},
		{"unused-indexes", "unused_indexes"},
		{"  Bloated   Tables  ", "bloated_tables"},
		{"Multiple---Hyphens", "multiple_hyphens"},
		{"MixedCase123Numbers", "mixedcase123numbers"},
		{"", ""},
		{"---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := normalizeCode(tt.input)
			if result != tt.expected {
				t.Errorf("normalizeCode(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestParseSuppressedSet verifies suppression list parsing.
func TestParseSuppressedSet(t *testing.T) {
	tests := []struct {
		input    string
		expected map[string]struct{}
	}{
		{
			"unused_indexes,bloated_tables",
			map[string]struct{}{"unused_indexes": {}, "bloated_tables": {}},
		},
		{
			"  unused-indexes , Bloated Tables  ",
			map[string]struct{}{"unused_indexes": {}, "bloated_tables": {}},
		},
		{"", map[string]struct{}{}},
		{"--", map[string]struct{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseSuppressedSet(tt.input)
			if diff := cmp.Diff(tt.expected, result); diff != "" {
				t.Errorf("parseSuppressedSet(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

// TestSplitCSV verifies CSV splitting behavior.
func TestSplitCSV(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{"  a , b , c  ", []string{"a", "b", "c"}},
		{"single", []string{"single"}},
		{"", nil},
		{"a,,b", []string{"a", "b"}},
		{"  ,  ,  ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := splitCSV(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("splitCSV(%q) = %v, expected %v", tt.input, result, tt.expected)
				return
			}
			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("splitCSV(%q)[%d] = %q, expected %q", tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}

func TestFlagsURLs(t *testing.T) {
	f := Flags{URL: " postgres://a:5432,b:5432/shop ; ;postgres://c/shop"}
	want := []string{"postgres://a:5432,b:5432/shop", "postgres://c/shop"}
	if diff := cmp.Diff(want, f.URLs()); diff != "" {
		t.Errorf("URLs() mismatch (-want +got):\n%s", diff)
	}
	if got := (Flags{}).URLs(); len(got) != 0 {
		t.Errorf("URLs() of empty flags = %v", got)
	}
}

func TestFlagsFilter(t *testing.T) {
	tests := map[string]diagnostic.Filter{
		"":        diagnostic.All,
		"static":  diagnostic.StaticOnly,
		"runtime": diagnostic.RuntimeOnly,
	}
	for only, want := range tests {
		if got := (Flags{Only: only}).Filter(); got != want {
			t.Errorf("Filter() for %q = %v, expected %v", only, got, want)
		}
	}
}

// TestExpandOutPlaceholders verifies timestamp placeholder expansion.
func TestExpandOutPlaceholders(t *testing.T) {
	testTime := time.Date(2024, 8, 30, 14, 25, 0, 0, time.UTC)

	tests := []struct {
		input    string
		expected string
	}{
		{"report_{ts}.html", "report_2024-08-30_1425.html"},
		{"{ts}_report.html", "2024-08-30_1425_report.html"},
		{"report.html", "report.html"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := expandOutPlaceholders(tt.input, testTime)
			if result != tt.expected {
				t.Errorf("expandOutPlaceholders(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestExpandOutPlaceholdersZeroTime verifies behavior with zero time.
func TestExpandOutPlaceholdersZeroTime(t *testing.T) {
	result := expandOutPlaceholders("report_{ts}.html", time.Time{})
	if result == "report_{ts}.html" {
		t.Error("expected {ts} placeholder to be replaced for zero time")
	}
}

// TestFirstNonEmpty verifies the first non-empty string selection.
func TestFirstNonEmpty(t *testing.T) {
	tests := []struct {
		input    []string
		expected string
	}{
		{[]string{"a", "b"}, "a"},
		{[]string{"", "b"}, "b"},
		{[]string{"", ""}, ""},
		{[]string{}, ""},
	}

	for _, tt := range tests {
		if result := firstNonEmpty(tt.input...); result != tt.expected {
			t.Errorf("firstNonEmpty(%v) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

// TestFlagsValidate verifies configuration validation.
func TestFlagsValidate(t *testing.T) {
	valid := func() Flags {
		return Flags{
			URL:         "postgres://localhost/test",
			Timeout:     30 * time.Second,
			Concurrency: 1,
			MaxConns:    1,
		}
	}

	tests := []struct {
		name      string
		mutate    func(f *Flags)
		expectErr bool
	}{
		{"valid configuration", func(*Flags) {}, false},
		{"static only", func(f *Flags) { f.Only = "static" }, false},
		{"missing URL", func(f *Flags) { f.URL = "" }, true},
		{"only separators", func(f *Flags) { f.URL = " ; " }, true},
		{"zero timeout", func(f *Flags) { f.Timeout = 0 }, true},
		{"negative timeout", func(f *Flags) { f.Timeout = -time.Second }, true},
		{"excessive timeout", func(f *Flags) { f.Timeout = time.Hour }, true},
		{"unknown only", func(f *Flags) { f.Only = "everything" }, true},
		{"zero concurrency", func(f *Flags) { f.Concurrency = 0 }, true},
		{"zero max conns", func(f *Flags) { f.MaxConns = 0 }, true},
		{"negative exclusion", func(f *Flags) { f.Exclusions.MinIndexSize = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid()
			tt.mutate(&f)
			err := f.Validate()
			if (err != nil) != tt.expectErr {
				t.Errorf("Validate() error = %v, expectErr = %v", err, tt.expectErr)
			}
		})
	}
}

// TestResolveOutputPath verifies output path resolution.
func TestResolveOutputPath(t *testing.T) {
	testTime := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		input    string
		expected string
	}{
		{"", defaultOutputFile},
		{"-", "-"},
		{"custom.html", "custom.html"},
		{"report_{ts}.html", "report_2024-01-15_1030.html"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := resolveOutputPath(tt.input, testTime); result != tt.expected {
				t.Errorf("resolveOutputPath(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PGURL", "DATABASE_URL", "PGUSER", "PGPASSWORD"} {
		t.Setenv(k, "")
	}
}

func TestParseFlags(t *testing.T) {
	clearEnv(t)

	f, err := parseFlags([]string{
		"-user", "app",
		"-only", "runtime",
		"-exclude-tables", "orders, audit",
		"-min-index-size", "8192",
		"-max-conns", "3",
		"postgres://pg1:5432,pg2:5432/shop",
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.URL != "postgres://pg1:5432,pg2:5432/shop" {
		t.Errorf("positional url not used, got %q", f.URL)
	}
	if f.User != "app" || f.Only != "runtime" || f.MaxConns != 3 {
		t.Errorf("unexpected flags %+v", f)
	}
	if f.Timeout != defaultTimeout || f.Output != defaultOutputFile {
		t.Errorf("defaults not applied: %+v", f)
	}
	want := analyze.Exclusions{Tables: []string{"orders", "audit"}, MinIndexSize: 8192}
	if diff := cmp.Diff(want, f.Exclusions); diff != "" {
		t.Errorf("exclusions mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlagsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env/shop")
	t.Setenv("PGUSER", "env_user")

	f, err := parseFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.URL != "postgres://env/shop" || f.User != "env_user" {
		t.Errorf("environment not applied: %+v", f)
	}
}

func TestParseFlagsVersion(t *testing.T) {
	clearEnv(t)
	if _, err := parseFlags([]string{"-version"}); !errors.Is(err, errShowVersion) {
		t.Errorf("expected errShowVersion, got %v", err)
	}
}

func TestParseFlagsConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pgindexhealth.yaml")
	raw := `
urls:
  - postgres://pg1:5432,pg2:5432/shop
  - postgres://pg3:5432/shop
user: file_user
password: file_pass
schema: sales
bloat_percentage_threshold: 25
timeout: 45s
checks: [unused_indexes, bloated_tables]
suppress: [invalid_indexes]
exclusions:
  tables: [audit]
  min_bloat_percentage: 5
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := parseFlags([]string{"-config", path, "-schema", "public", "-min-bloat-percentage", "7"})
	if err != nil {
		t.Fatal(err)
	}

	if f.URL != "postgres://pg1:5432,pg2:5432/shop;postgres://pg3:5432/shop" {
		t.Errorf("URL = %q", f.URL)
	}
	if f.User != "file_user" || f.Password != "file_pass" {
		t.Errorf("credentials not read from file: %+v", f)
	}
	if f.Schema != "public" {
		t.Errorf("explicit -schema must win, got %q", f.Schema)
	}
	if f.BloatThreshold != 25 || f.Timeout != 45*time.Second {
		t.Errorf("thresholds not read from file: %+v", f)
	}
	if f.Checks != "unused_indexes,bloated_tables" || f.Suppress != "invalid_indexes" {
		t.Errorf("lists not read from file: %q %q", f.Checks, f.Suppress)
	}
	if f.LogLevel != "debug" || f.LogFormat != "text" {
		t.Errorf("log settings = %q %q", f.LogLevel, f.LogFormat)
	}
	want := analyze.Exclusions{Tables: []string{"audit"}, MinBloatPercentage: 7}
	if diff := cmp.Diff(want, f.Exclusions); diff != "" {
		t.Errorf("exclusions mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlagsConfigFileErrors(t *testing.T) {
	clearEnv(t)
	if _, err := parseFlags([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("urls: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := parseFlags([]string{"-config", path}); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLevel(tt.input)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("parseLevel(%q) = %v, %v", tt.input, got, err)
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := setupLogger(&buf, "warn", "json"); err != nil {
		t.Fatal(err)
	}
	slog.Info("hidden")
	slog.Warn("shown", "host", "pg1:5432")
	if out := buf.String(); !strings.Contains(out, `"msg":"shown"`) || strings.Contains(out, "hidden") {
		t.Errorf("unexpected log output %q", out)
	}

	if err := setupLogger(&buf, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := setupLogger(&buf, "loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
}

// BenchmarkParseSuppressedSet benchmarks suppression list parsing.
func BenchmarkParseSuppressedSet(b *testing.B) {
	input := "unused_indexes,bloated-tables,Invalid Indexes,duplicated_indexes"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		parseSuppressedSet(input)
	}
}
