// Package analyze turns cluster-level diagnostic results into a prioritized
// list of findings for the report.
package analyze

import (
	"fmt"
	"strings"

	"github.com/koltyakov/pgindexhealth/internal/check"
	"github.com/koltyakov/pgindexhealth/internal/diagnostic"
	"github.com/koltyakov/pgindexhealth/internal/model"
)

// Severity levels, in the order they are shown.
const (
	SeverityWarn = "warn"
	SeverityRec  = "rec"
	SeverityInfo = "info"
)

// maxListed is how many object names a finding description lists.
const maxListed = 5

// Analysis is the classified outcome of a run.
type Analysis struct {
	Recommendations []Finding
	Warnings        []Finding
	Infos           []Finding

	// Sections hold every diagnostic after exclusions, in registry order.
	Sections []Section
}

// Finding is one card in the report.
type Finding struct {
	Code        string // diagnostic name, used for suppression
	Title       string
	Severity    string // info, warn, rec
	Description string
	Action      string
}

// Section is one diagnostic's result after exclusions.
type Section struct {
	Diagnostic string
	Title      string
	Runtime    bool
	Findings   []model.Finding
	Excluded   int
	Err        error
}

type rule struct {
	title    string
	severity string
	action   string
}

var rules = map[string]rule{
	diagnostic.BloatedIndexes:                      {"Bloated indexes", SeverityWarn, "REINDEX CONCURRENTLY the affected indexes; review autovacuum for their tables."},
	diagnostic.BloatedTables:                       {"Bloated tables", SeverityWarn, "VACUUM the tables; for severe bloat use pg_repack and tune autovacuum scale factors."},
	diagnostic.DuplicatedIndexes:                   {"Duplicated indexes", SeverityWarn, "Drop all but one index of each group."},
	diagnostic.ForeignKeysWithoutIndex:             {"Foreign keys without index", SeverityWarn, "Create an index on the referencing columns to avoid sequential scans on delete and join."},
	diagnostic.IndexesWithNullValues:               {"Indexes with null values", SeverityRec, "Add a partial index predicate \"where column is not null\"."},
	diagnostic.IntersectedIndexes:                  {"Intersected indexes", SeverityRec, "Check whether the narrower index is covered by the wider one and drop it."},
	diagnostic.InvalidIndexes:                      {"Invalid indexes", SeverityWarn, "Drop and recreate indexes left invalid by a failed concurrent build."},
	diagnostic.TablesWithMissingIndexes:            {"Tables with missing indexes", SeverityWarn, "Inspect queries doing sequential scans on these tables and add indexes."},
	diagnostic.TablesWithoutPrimaryKey:             {"Tables without primary key", SeverityWarn, "Add a primary key; logical replication and many tools require one."},
	diagnostic.UnusedIndexes:                       {"Unused indexes", SeverityRec, "Validate with workload owners, then drop indexes that no host uses."},
	diagnostic.TablesWithoutDescription:            {"Tables without description", SeverityInfo, "Add COMMENT ON TABLE."},
	diagnostic.ColumnsWithoutDescription:           {"Columns without description", SeverityInfo, "Add COMMENT ON COLUMN."},
	diagnostic.ColumnsWithJSONType:                 {"Columns with json type", SeverityRec, "Use jsonb instead of json."},
	diagnostic.ColumnsWithSerialTypes:              {"Columns with serial types", SeverityRec, "Use identity columns instead of serial."},
	diagnostic.FunctionsWithoutDescription:         {"Functions without description", SeverityInfo, "Add COMMENT ON FUNCTION."},
	diagnostic.IndexesWithBoolean:                  {"Indexes with boolean columns", SeverityRec, "Replace the boolean key column with a partial index predicate."},
	diagnostic.NotValidConstraints:                 {"Not valid constraints", SeverityWarn, "Run ALTER TABLE ... VALIDATE CONSTRAINT."},
	diagnostic.BtreeIndexesOnArrayColumns:          {"B-tree indexes on array columns", SeverityRec, "Use a GIN index for array columns."},
	diagnostic.SequenceOverflow:                    {"Sequences close to overflow", SeverityWarn, "Switch the sequence and its columns to bigint before it runs out."},
	diagnostic.PrimaryKeysWithSerialTypes:          {"Primary keys with serial types", SeverityRec, "Use identity columns for primary keys."},
	diagnostic.DuplicatedForeignKeys:               {"Duplicated foreign keys", SeverityWarn, "Drop the redundant foreign keys."},
	diagnostic.IntersectedForeignKeys:              {"Intersected foreign keys", SeverityRec, "Check whether the overlapping foreign keys are both needed."},
	diagnostic.PossibleObjectNameOverflow:          {"Object names close to the length limit", SeverityRec, "Shorten names to keep generated names below 63 bytes."},
	diagnostic.TablesNotLinkedToOthers:             {"Tables not linked to others", SeverityInfo, "Check whether the tables are still used."},
	diagnostic.ForeignKeysWithUnmatchedColumnType:  {"Foreign keys with unmatched column types", SeverityWarn, "Align the referencing column types with the referenced ones."},
	diagnostic.TablesWithZeroOrOneColumn:           {"Tables with zero or one column", SeverityInfo, "Check whether the tables are still needed."},
	diagnostic.ObjectsNotFollowingNamingConvention: {"Objects not following naming convention", SeverityInfo, "Use lowercase unquoted names."},
	diagnostic.ColumnsNotFollowingNamingConvention: {"Columns not following naming convention", SeverityInfo, "Use lowercase unquoted column names."},
	diagnostic.PrimaryKeysWithVarchar:              {"Primary keys with varchar", SeverityRec, "Use uuid or bigint for surrogate keys."},
	diagnostic.ColumnsWithMoneyType:                {"Columns with money type", SeverityRec, "Use numeric instead of money."},
}

// Title returns the display title of a diagnostic.
func Title(name string) string {
	if r, ok := rules[name]; ok {
		return r.title
	}
	return name
}

// Run applies ex to every result and classifies what is left.
func Run(results []check.Result, ex Exclusions) Analysis {
	a := Analysis{Sections: make([]Section, 0, len(results))}
	passed := 0

	for _, res := range results {
		name := res.Diagnostic.Name
		r, ok := rules[name]
		if !ok {
			r = rule{title: name, severity: SeverityInfo}
		}

		sec := Section{Diagnostic: name, Title: r.title, Runtime: res.Diagnostic.Runtime, Err: res.Err}
		if res.Err == nil {
			sec.Findings = ex.Apply(res.Findings)
			sec.Excluded = len(res.Findings) - len(sec.Findings)
		}
		a.Sections = append(a.Sections, sec)

		switch {
		case res.Err != nil:
			a.Warnings = append(a.Warnings, Finding{
				Code:        name,
				Title:       r.title + ": diagnostic failed",
				Severity:    SeverityWarn,
				Description: res.Err.Error(),
				Action:      "Check the role's privileges and the server log; rerun the diagnostic.",
			})
		case len(sec.Findings) == 0:
			passed++
		default:
			f := Finding{
				Code:        name,
				Title:       r.title,
				Severity:    r.severity,
				Description: describe(sec.Findings),
				Action:      r.action,
			}
			switch r.severity {
			case SeverityWarn:
				a.Warnings = append(a.Warnings, f)
			case SeverityRec:
				a.Recommendations = append(a.Recommendations, f)
			default:
				a.Infos = append(a.Infos, f)
			}
		}
	}

	if passed > 0 {
		a.Infos = append(a.Infos, Finding{
			Code:        "passed",
			Title:       "Diagnostics passed",
			Severity:    SeverityInfo,
			Description: fmt.Sprintf("%d of %d diagnostics reported nothing", passed, len(results)),
		})
	}
	return a
}

// Total returns the number of findings across all sections.
func (a Analysis) Total() int {
	n := 0
	for _, s := range a.Sections {
		n += len(s.Findings)
	}
	return n
}

// Suppress drops findings whose code is in codes.
func (a Analysis) Suppress(codes map[string]struct{}) Analysis {
	if len(codes) == 0 {
		return a
	}
	keep := func(in []Finding) []Finding {
		out := make([]Finding, 0, len(in))
		for _, f := range in {
			if _, skip := codes[f.Code]; !skip {
				out = append(out, f)
			}
		}
		return out
	}
	a.Recommendations = keep(a.Recommendations)
	a.Warnings = keep(a.Warnings)
	a.Infos = keep(a.Infos)
	return a
}

func describe(fs []model.Finding) string {
	names := make([]string, 0, maxListed)
	var size int64
	for i, f := range fs {
		if i < maxListed {
			names = append(names, f.ObjectName())
		}
		if s, ok := f.(model.IndexSizeAware); ok {
			size += s.IndexSize()
		}
	}
	list := strings.Join(names, ", ")
	if len(fs) > maxListed {
		list += fmt.Sprintf(" and %d more", len(fs)-maxListed)
	}
	if size > 0 {
		return fmt.Sprintf("%d found (%s of indexes): %s", len(fs), fmtBytes(size), list)
	}
	return fmt.Sprintf("%d found: %s", len(fs), list)
}

func fmtBytes(b int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	f := float64(b)
	i := 0
	for f >= 1024 && i < len(units)-1 {
		f /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", f, units[i])
}
