// Package report renders the outcome of a run as an HTML page, a key-value
// health log and a JSON export.
package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koltyakov/pgindexhealth/internal/analyze"
	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/model"
)

// Meta describes the run a report belongs to.
type Meta struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	Version   string
	Database  string
	Schema    string
	Primary   string
	Hosts     []string
}

// NewMeta returns metadata with a fresh run ID.
func NewMeta(version string, started time.Time) Meta {
	return Meta{RunID: uuid.New(), Version: version, StartedAt: started}
}

var tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return "n/a"
		}
		return t.Local().Format("2006-01-02 15:04:05 MST")
	},
	"fmtDur":  humanizeDuration,
	"join":    strings.Join,
	"details": details,
	"anchor":  func(code string) string { return "#sec-" + code },
}).Parse(reportHTML))

// WriteHTML renders the report to path. A path of "-" writes to stdout.
func WriteHTML(path string, a analyze.Analysis, meta Meta) error {
	if path == "-" {
		return RenderHTML(os.Stdout, a, meta)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewReportError("create", path, err)
	}
	defer f.Close()
	if err := RenderHTML(f, a, meta); err != nil {
		return apperrors.NewReportError("render", path, err)
	}
	return nil
}

// RenderHTML writes the report to w.
func RenderHTML(w io.Writer, a analyze.Analysis, meta Meta) error {
	// Sections with findings first, largest first; then failures; then the rest.
	sections := make([]analyze.Section, len(a.Sections))
	copy(sections, a.Sections)
	sort.SliceStable(sections, func(i, j int) bool {
		ri, rj := rank(sections[i]), rank(sections[j])
		if ri != rj {
			return ri < rj
		}
		return len(sections[i].Findings) > len(sections[j].Findings)
	})

	summary := func() string {
		total := a.Total()
		failed := 0
		for _, s := range a.Sections {
			if s.Err != nil {
				failed++
			}
		}
		switch {
		case total == 0 && failed == 0:
			return fmt.Sprintf("Healthy: %d diagnostics reported nothing.", len(a.Sections))
		case failed > 0:
			return fmt.Sprintf("Attention: %d findings; %d of %d diagnostics failed.", total, failed, len(a.Sections))
		default:
			return fmt.Sprintf("%d findings across %d diagnostics.", total, len(a.Sections))
		}
	}()

	data := struct {
		A        analyze.Analysis
		Meta     Meta
		Sections []analyze.Section
		Summary  string
	}{A: a, Meta: meta, Sections: sections, Summary: summary}
	return tmpl.Execute(w, data)
}

func rank(s analyze.Section) int {
	switch {
	case len(s.Findings) > 0:
		return 0
	case s.Err != nil:
		return 1
	}
	return 2
}

// Row is one finding flattened for the findings table.
type Row struct {
	Object string
	Table  string
	Size   string
	Extra  string
}

func details(f model.Finding) Row {
	r := Row{Object: f.ObjectName()}
	if t, ok := f.(model.TableNameAware); ok {
		r.Table = t.OnTable()
	}
	switch v := f.(type) {
	case model.IndexSizeAware:
		r.Size = fmtBytesStr(v.IndexSize())
	case model.TableSizeAware:
		r.Size = fmtBytesStr(v.TableSize())
	}
	switch v := f.(type) {
	case model.IndexWithBloat:
		r.Extra = fmt.Sprintf("bloat %s (%s%%)", fmtBytesStr(v.BloatSizeInBytes), fmtFloatPrecSep(v.BloatPercentage, 1))
	case model.TableWithBloat:
		r.Extra = fmt.Sprintf("bloat %s (%s%%)", fmtBytesStr(v.BloatSizeInBytes), fmtFloatPrecSep(v.BloatPercentage, 1))
	case model.TableWithMissingIndex:
		r.Extra = fmt.Sprintf("seq scans %s, index scans %s", addThousands(strconv.FormatInt(v.SeqScans, 10)), addThousands(strconv.FormatInt(v.IndexScans, 10)))
	case model.UnusedIndex:
		r.Extra = fmt.Sprintf("index scans %d", v.IndexScans)
	case model.IndexWithColumns:
		cols := make([]string, len(v.Columns))
		for i, c := range v.Columns {
			cols[i] = c.ColumnName
		}
		r.Extra = "columns " + strings.Join(cols, ", ")
	case model.ForeignKey:
		cols := make([]string, len(v.Columns))
		for i, c := range v.Columns {
			cols[i] = c.ColumnName
		}
		r.Extra = "columns " + strings.Join(cols, ", ")
	case model.ColumnWithType:
		r.Extra = v.ColumnType
	case model.ColumnWithSerialType:
		r.Extra = v.SerialType + " via " + v.SequenceName
	case model.SequenceState:
		r.Extra = fmt.Sprintf("%s, %s%% remaining", v.DataType, fmtFloatPrecSep(v.RemainingPercentage, 2))
	case model.Constraint:
		r.Extra = v.ConstraintType
	case model.AnyObject:
		r.Extra = v.ObjectType
	}
	return r
}

// fmtFloatPrecSep formats a float with fixed precision and thousands separators in the integer part
func fmtFloatPrecSep(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		return addThousands(s[:dot]) + s[dot:]
	}
	return addThousands(s)
}

// addThousands inserts commas as thousands separators into a numeric string (handles leading '-')
func addThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// humanizeDuration renders a duration like "4d 1h 25m" or "1h 25m 42s"
func humanizeDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Second {
		if d <= 0 {
			return "0ms"
		}
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}

	total := int64(d.Seconds())
	days := total / 86400
	total %= 86400
	hours := total / 3600
	total %= 3600
	mins := total / 60
	secs := total % 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	if secs > 0 && len(parts) < 3 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}

// fmtBytesStr converts bytes into a human readable string with units (B, KB, MB, GB, TB)
func fmtBytesStr(b int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	f := float64(b)
	i := 0
	for f >= 1024 && i < len(units)-1 {
		f /= 1024
		i++
	}
	return fmtFloatPrecSep(f, 2) + " " + units[i]
}

//go:embed template.html
var reportHTML string
