// Package main provides the pgindexhealth command-line tool.
//
// pgindexhealth connects to every host of a PostgreSQL cluster, finds the
// primary, runs the index and schema diagnostics on the right hosts, merges
// the per-host answers and writes an HTML report.
//
// Usage:
//
//	pgindexhealth -url "postgres://pg1:5432,pg2:5432/shop" -user app -password secret
//	pgindexhealth -config pgindexhealth.yaml -only static -out report_{ts}.html
//
// Several cluster URLs may be given, separated by ";".
//
// Environment variables:
//
//	PGURL or DATABASE_URL - default connection string
//	PGUSER, PGPASSWORD    - default credentials
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koltyakov/pgindexhealth/internal/analyze"
	"github.com/koltyakov/pgindexhealth/internal/check"
	"github.com/koltyakov/pgindexhealth/internal/connection"
	"github.com/koltyakov/pgindexhealth/internal/diagnostic"
	"github.com/koltyakov/pgindexhealth/internal/model"
	"github.com/koltyakov/pgindexhealth/internal/pgurl"
	"github.com/koltyakov/pgindexhealth/internal/report"
	"github.com/koltyakov/pgindexhealth/internal/stats"
)

// version is the current application version, set at build time.
var version = "0.1.0"

const (
	defaultTimeout    = 2 * time.Minute
	maxTimeout        = 30 * time.Minute
	defaultOutputFile = "report.html"

	// timestampPlaceholder is replaced with the report generation timestamp.
	timestampPlaceholder = "{ts}"
	timestampFormat      = "2006-01-02_1504"

	// urlSeparator separates cluster URLs in -url.
	urlSeparator = ";"
)

// Exit codes for different error conditions.
const (
	exitSuccess     = 0
	exitUsageError  = 1
	exitClusterErr  = 2
	exitReportError = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the tool and returns an exit code.
//
// WORKFLOW:
//  1. Parse flags, merge the optional YAML config and validate
//  2. Discover the cluster and its primary
//  3. Either reset statistics on every host, or
//  4. run the selected diagnostics, apply exclusions and write the report
func run(args []string) int {
	cfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, errShowVersion) {
			fmt.Println(version)
			return exitSuccess
		}
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitUsageError
	}
	if err := setupLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitUsageError
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "reason", err)
		return exitUsageError
	}

	sc, err := model.NewSchemaContext(cfg.Schema, cfg.BloatThreshold, cfg.RemainingThreshold)
	if err != nil {
		slog.Error("invalid schema context", "reason", err)
		return exitUsageError
	}
	creds, err := connection.NewCredentials(cfg.User, cfg.Password, cfg.URLs()...)
	if err != nil {
		slog.Error("invalid credentials", "reason", err)
		return exitUsageError
	}
	registry, err := diagnostic.Default()
	if err != nil {
		slog.Error("cannot load diagnostics", "reason", err)
		return exitUsageError
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	start := time.Now()

	opts := connection.DefaultPoolOptions()
	opts.MaxConns = cfg.MaxConns
	factory, err := connection.NewPoolFactory(opts, prometheus.DefaultRegisterer)
	if err != nil {
		slog.Error("invalid pool options", "reason", err)
		return exitUsageError
	}
	cluster, err := connection.NewCluster(ctx, creds, factory, connection.PgPrimaryDeterminer{})
	if err != nil {
		slog.Error("cannot build cluster topology", "reason", err)
		return exitClusterErr
	}
	defer cluster.Close()

	if cfg.ResetStats {
		if err := stats.NewMaintenance(nil).ResetStatistics(ctx, cluster.Hosts()); err != nil {
			slog.Error("statistics reset failed", "reason", err)
			return exitClusterErr
		}
		fmt.Println("Statistics reset on", strings.Join(cluster.Addrs(), ", "))
		return exitSuccess
	}

	runner := check.NewRunner(cluster, registry, check.WithLimit(cfg.Concurrency))
	results, err := runner.CheckAll(ctx, sc, cfg.Filter(), splitCSV(cfg.Checks)...)
	if results == nil && err != nil {
		slog.Error("cannot run diagnostics", "reason", err)
		return exitUsageError
	}
	if err != nil {
		// Partial results are still worth reporting.
		slog.Warn("some diagnostics failed", "reason", err)
	}
	if ctx.Err() != nil {
		slog.Error("operation timed out", "timeout", cfg.Timeout)
		return exitClusterErr
	}

	analysis := analyze.Run(results, cfg.Exclusions).Suppress(parseSuppressedSet(cfg.Suppress))

	outPath := resolveOutputPath(cfg.Output, start)
	meta := report.NewMeta(version, start)
	meta.Duration = time.Since(start)
	meta.Schema = sc.SchemaName
	meta.Primary = cluster.Primary().Addr()
	meta.Hosts = cluster.Addrs()
	meta.Database, _ = pgurl.Database(creds.URLs[0])

	if err := report.WriteHTML(outPath, analysis, meta); err != nil {
		slog.Error("failed to write report", "reason", err)
		return exitReportError
	}
	fmt.Printf("Report written to %s (%d findings)\n", outPath, analysis.Total())

	if cfg.KeyValue {
		kv := report.HealthLog{Database: meta.Database}
		if path, err := kv.WriteSidecar(outPath, analysis.Sections); err != nil {
			slog.Warn("failed to write health log", "reason", err)
		} else if path != "" {
			fmt.Printf("Health log written to %s\n", path)
		}
	}
	if cfg.JSON {
		if path, err := report.WriteJSON(outPath, analysis, meta); err != nil {
			slog.Warn("failed to write json export", "reason", err)
		} else if path != "" {
			fmt.Printf("JSON written to %s\n", path)
		}
	}

	if cfg.Open && outPath != "-" {
		if err := openReport(outPath); err != nil {
			slog.Warn("failed to open report", "reason", err)
		}
	}
	return exitSuccess
}

// errShowVersion is returned when the -version flag is set.
var errShowVersion = errors.New("show version requested")

// Flags holds the command-line configuration options.
type Flags struct {
	URL      string // one or more cluster URLs separated by ";"
	User     string
	Password string

	Schema             string
	BloatThreshold     float64
	RemainingThreshold float64
	Checks             string // comma-separated diagnostic names
	Only               string // "", "static" or "runtime"

	Output      string
	Timeout     time.Duration
	Open        bool
	Suppress    string // comma-separated diagnostic names to hide from the summary
	KeyValue    bool
	JSON        bool
	ResetStats  bool
	Concurrency int
	MaxConns    int32

	ConfigPath string
	LogLevel   string
	LogFormat  string

	Exclusions analyze.Exclusions
}

// URLs returns the cluster URLs in f.URL.
func (f Flags) URLs() []string {
	var out []string
	for _, u := range strings.Split(f.URL, urlSeparator) {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Filter maps -only to a diagnostic filter.
func (f Flags) Filter() diagnostic.Filter {
	switch f.Only {
	case "static":
		return diagnostic.StaticOnly
	case "runtime":
		return diagnostic.RuntimeOnly
	}
	return diagnostic.All
}

// Validate checks that the configuration is valid and returns an error if not.
func (f Flags) Validate() error {
	if len(f.URLs()) == 0 {
		return errors.New("database URL is required: use -url flag or set PGURL/DATABASE_URL environment variable")
	}
	if f.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if f.Timeout > maxTimeout {
		return fmt.Errorf("timeout exceeds maximum allowed value of %s", maxTimeout)
	}
	switch f.Only {
	case "", "static", "runtime":
	default:
		return fmt.Errorf("-only must be static or runtime, got %q", f.Only)
	}
	if f.Concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	if f.MaxConns < 1 {
		return errors.New("max-conns must be at least 1")
	}
	return f.Exclusions.Validate()
}

// parseFlags parses command-line flags and returns the configuration.
// Returns errShowVersion if the -version flag was specified.
func parseFlags(args []string) (Flags, error) {
	var (
		f              Flags
		excludeTables  string
		excludeIndexes string
		maxConns       int
	)
	fs := flag.NewFlagSet("pgindexhealth", flag.ContinueOnError)

	fs.StringVar(&f.URL, "url", firstNonEmpty(os.Getenv("PGURL"), os.Getenv("DATABASE_URL")), "Cluster connection URL(s), hosts comma-separated, URLs separated by \";\"")
	fs.StringVar(&f.User, "user", os.Getenv("PGUSER"), "Database user")
	fs.StringVar(&f.Password, "password", os.Getenv("PGPASSWORD"), "Database password")
	fs.StringVar(&f.Schema, "schema", model.DefaultSchemaName, "Schema to inspect")
	fs.Float64Var(&f.BloatThreshold, "bloat", model.DefaultBloatPercentageThreshold, "Bloat percentage threshold for bloat diagnostics")
	fs.Float64Var(&f.RemainingThreshold, "remaining", model.DefaultRemainingPercentageThreshold, "Remaining percentage threshold for sequence overflow")
	fs.StringVar(&f.Checks, "checks", "", "Comma-separated diagnostic names to run (default all)")
	fs.StringVar(&f.Only, "only", "", "Run only \"static\" or \"runtime\" diagnostics")
	fs.StringVar(&f.Output, "out", defaultOutputFile, "Output HTML file path (supports {ts} -> 2006-01-02_1504)")
	fs.DurationVar(&f.Timeout, "timeout", defaultTimeout, "Overall timeout for database operations")
	fs.BoolVar(&f.Open, "open", false, "Open the report after generation")
	fs.StringVar(&f.Suppress, "suppress", "", "Comma-separated diagnostic names to hide from the summary")
	fs.BoolVar(&f.KeyValue, "kv", false, "Append a key-value health log (.kv.log) next to the report")
	fs.BoolVar(&f.JSON, "json", false, "Write a JSON export (.json) next to the report")
	fs.BoolVar(&f.ResetStats, "reset-stats", false, "Reset statistics on every host and exit")
	fs.IntVar(&f.Concurrency, "concurrency", check.DefaultLimit, "Diagnostics run at once")
	fs.IntVar(&maxConns, "max-conns", connection.DefaultMaxConns, "Pool size per host")
	fs.StringVar(&f.ConfigPath, "config", "", "YAML config file; flags override its values")
	fs.StringVar(&f.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.LogFormat, "log-format", "text", "Log format: text or json")
	fs.StringVar(&excludeTables, "exclude-tables", "", "Comma-separated table names to exclude")
	fs.StringVar(&excludeIndexes, "exclude-indexes", "", "Comma-separated index names to exclude")
	fs.Int64Var(&f.Exclusions.MinIndexSize, "min-index-size", 0, "Exclude indexes smaller than this many bytes")
	fs.Int64Var(&f.Exclusions.MinTableSize, "min-table-size", 0, "Exclude tables smaller than this many bytes")
	fs.Int64Var(&f.Exclusions.MinBloatSize, "min-bloat-size", 0, "Exclude bloat below this many bytes")
	fs.Float64Var(&f.Exclusions.MinBloatPercentage, "min-bloat-percentage", 0, "Exclude bloat below this percentage")
	showVersion := fs.Bool("version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if *showVersion {
		return Flags{}, errShowVersion
	}

	set := explicitFlags(fs)
	// Allow URL as positional argument for convenience
	if f.URL == "" && fs.NArg() >= 1 {
		f.URL = fs.Arg(0)
		set["url"] = true
	}
	f.MaxConns = int32(maxConns)
	f.Exclusions.Tables = splitCSV(excludeTables)
	f.Exclusions.Indexes = splitCSV(excludeIndexes)

	if f.ConfigPath != "" {
		fc, err := loadConfigFile(f.ConfigPath)
		if err != nil {
			return Flags{}, err
		}
		f.applyFile(fc, set)
	}
	return f, nil
}

// firstNonEmpty returns the first non-empty string from the provided values.
// Returns empty string if all values are empty.
func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

// openReport opens the generated report using the system's default browser.
func openReport(path string) error {
	if path == "" {
		return errors.New("empty path provided")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start browser command: %w", err)
	}
	return nil
}

// normalizeCode lowercases s and turns runs of other characters into a
// single '_', so "Unused Indexes" and "unused-indexes" both match
// "unused_indexes".
func normalizeCode(s string) string {
	b := make([]rune, 0, len(s))
	prevSep := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b = append(b, r)
			prevSep = false
			continue
		}
		if !prevSep {
			b = append(b, '_')
			prevSep = true
		}
	}
	return strings.Trim(string(b), "_")
}

func parseSuppressedSet(list string) map[string]struct{} {
	m := map[string]struct{}{}
	for _, code := range splitCSV(list) {
		if c := normalizeCode(code); c != "" {
			m[c] = struct{}{}
		}
	}
	return m
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// resolveOutputPath applies the default file name and placeholders.
// "-" is kept and means stdout.
func resolveOutputPath(path string, timestamp time.Time) string {
	if path == "" {
		path = defaultOutputFile
	}
	return expandOutPlaceholders(path, timestamp)
}

// expandOutPlaceholders replaces placeholder tokens in the output path.
// Currently supported placeholders:
//   - {ts} -> timestamp in format 2006-01-02_1504 (e.g., 2024-08-30_0823)
//
// If the provided time is zero, the current time is used.
func expandOutPlaceholders(p string, t time.Time) string {
	if p == "" {
		return p
	}
	if t.IsZero() {
		t = time.Now()
	}
	return strings.ReplaceAll(p, timestampPlaceholder, t.Format(timestampFormat))
}
