package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/koltyakov/pgindexhealth/internal/analyze"
	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
)

// HealthLog writes one line per diagnostic:
//
//	<timestamp>\t<database>\t<diagnostic>\t<count>
//
// Failed diagnostics are skipped. Timestamps are UTC with nanoseconds.
type HealthLog struct {
	Database string
	Now      func() time.Time
}

// Lines formats sections in order.
func (l HealthLog) Lines(sections []analyze.Section) []string {
	now := l.Now
	if now == nil {
		now = time.Now
	}
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.Err != nil {
			continue
		}
		ts := now().UTC().Format(time.RFC3339Nano)
		out = append(out, fmt.Sprintf("%s\t%s\t%s\t%d", ts, l.Database, s.Diagnostic, len(s.Findings)))
	}
	return out
}

// Write appends the lines for sections to w.
func (l HealthLog) Write(w io.Writer, sections []analyze.Section) error {
	bw := bufio.NewWriter(w)
	for _, line := range l.Lines(sections) {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteSidecar appends the log to a ".kv.log" file next to the HTML report
// and returns its path. Nothing is written when the report goes to stdout.
func (l HealthLog) WriteSidecar(htmlOutPath string, sections []analyze.Section) (string, error) {
	path := sidecarPath(htmlOutPath, ".kv.log")
	if path == "" {
		return "", nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", apperrors.NewReportError("create", path, err)
	}
	defer f.Close()
	if err := l.Write(f, sections); err != nil {
		return "", apperrors.NewReportError("write", path, err)
	}
	return path, nil
}

func sidecarPath(htmlOutPath, ext string) string {
	if htmlOutPath == "-" || strings.TrimSpace(htmlOutPath) == "" {
		return ""
	}
	return strings.TrimSuffix(htmlOutPath, filepath.Ext(htmlOutPath)) + ext
}
