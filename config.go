package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koltyakov/pgindexhealth/internal/analyze"
)

// fileConfig is the YAML form of Flags. Flags given on the command line take
// precedence over values read from the file.
type fileConfig struct {
	URLs     []string `yaml:"urls"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`

	Schema             string   `yaml:"schema"`
	BloatThreshold     *float64 `yaml:"bloat_percentage_threshold"`
	RemainingThreshold *float64 `yaml:"remaining_percentage_threshold"`
	Checks             []string `yaml:"checks"`
	Only               string   `yaml:"only"`

	Output      string        `yaml:"out"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	MaxConns    int32         `yaml:"max_conns"`
	Suppress    []string      `yaml:"suppress"`

	Exclusions analyze.Exclusions `yaml:"exclusions"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func loadConfigFile(path string) (fileConfig, error) {
	var fc fileConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// applyFile copies values from fc into f for every flag not in set.
func (f *Flags) applyFile(fc fileConfig, set map[string]bool) {
	str := func(name string, dst *string, v string) {
		if !set[name] && v != "" {
			*dst = v
		}
	}
	str("url", &f.URL, strings.Join(fc.URLs, urlSeparator))
	str("user", &f.User, fc.User)
	str("password", &f.Password, fc.Password)
	str("schema", &f.Schema, fc.Schema)
	str("checks", &f.Checks, strings.Join(fc.Checks, ","))
	str("only", &f.Only, fc.Only)
	str("out", &f.Output, fc.Output)
	str("suppress", &f.Suppress, strings.Join(fc.Suppress, ","))
	str("log-level", &f.LogLevel, fc.Log.Level)
	str("log-format", &f.LogFormat, fc.Log.Format)

	if !set["bloat"] && fc.BloatThreshold != nil {
		f.BloatThreshold = *fc.BloatThreshold
	}
	if !set["remaining"] && fc.RemainingThreshold != nil {
		f.RemainingThreshold = *fc.RemainingThreshold
	}
	if !set["timeout"] && fc.Timeout > 0 {
		f.Timeout = fc.Timeout
	}
	if !set["concurrency"] && fc.Concurrency > 0 {
		f.Concurrency = fc.Concurrency
	}
	if !set["max-conns"] && fc.MaxConns > 0 {
		f.MaxConns = fc.MaxConns
	}

	ex := &f.Exclusions
	if !set["exclude-tables"] && len(fc.Exclusions.Tables) > 0 {
		ex.Tables = fc.Exclusions.Tables
	}
	if !set["exclude-indexes"] && len(fc.Exclusions.Indexes) > 0 {
		ex.Indexes = fc.Exclusions.Indexes
	}
	if !set["min-index-size"] && fc.Exclusions.MinIndexSize > 0 {
		ex.MinIndexSize = fc.Exclusions.MinIndexSize
	}
	if !set["min-table-size"] && fc.Exclusions.MinTableSize > 0 {
		ex.MinTableSize = fc.Exclusions.MinTableSize
	}
	if !set["min-bloat-size"] && fc.Exclusions.MinBloatSize > 0 {
		ex.MinBloatSize = fc.Exclusions.MinBloatSize
	}
	if !set["min-bloat-percentage"] && fc.Exclusions.MinBloatPercentage > 0 {
		ex.MinBloatPercentage = fc.Exclusions.MinBloatPercentage
	}
}

// explicitFlags returns the names of flags set on the command line.
func explicitFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return set
}

// setupLogger installs the default slog logger.
func setupLogger(w io.Writer, level, format string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
