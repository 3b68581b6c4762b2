package analyze

import (
	"strings"

	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/model"
)

// Exclusions hide findings the operator already knows about or considers
// too small to matter. The zero value excludes nothing.
type Exclusions struct {
	// Tables and Indexes are object names, matched case-insensitively.
	Tables  []string `yaml:"tables"`
	Indexes []string `yaml:"indexes"`

	MinIndexSize       int64   `yaml:"min_index_size"`
	MinTableSize       int64   `yaml:"min_table_size"`
	MinBloatSize       int64   `yaml:"min_bloat_size"`
	MinBloatPercentage float64 `yaml:"min_bloat_percentage"`
}

// Validate checks that thresholds are not negative.
func (e Exclusions) Validate() error {
	switch {
	case e.MinIndexSize < 0:
		return apperrors.NewValidationError("min_index_size", "", "must not be negative")
	case e.MinTableSize < 0:
		return apperrors.NewValidationError("min_table_size", "", "must not be negative")
	case e.MinBloatSize < 0:
		return apperrors.NewValidationError("min_bloat_size", "", "must not be negative")
	case e.MinBloatPercentage < 0 || e.MinBloatPercentage > 100:
		return apperrors.NewValidationError("min_bloat_percentage", "", "must be between 0 and 100")
	}
	return nil
}

// Apply returns the findings in fs that no exclusion matches. Excluded
// members of a duplicate group are removed from the group; a group left
// with fewer than two members is dropped.
func (e Exclusions) Apply(fs []model.Finding) []model.Finding {
	tables := lowerSet(e.Tables)
	indexes := lowerSet(e.Indexes)

	out := make([]model.Finding, 0, len(fs))
	for _, f := range fs {
		if g, ok := f.(model.DuplicatedIndexes); ok && len(indexes) > 0 {
			kept := g.Indexes[:0:0]
			for _, i := range g.Indexes {
				if _, skip := indexes[strings.ToLower(i.IndexName)]; !skip {
					kept = append(kept, i)
				}
			}
			if len(kept) < 2 {
				continue
			}
			g.Indexes = kept
			f = g
		}
		if e.excluded(f, tables, indexes) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (e Exclusions) excluded(f model.Finding, tables, indexes map[string]struct{}) bool {
	if t, ok := f.(model.TableNameAware); ok {
		if _, skip := tables[strings.ToLower(t.OnTable())]; skip {
			return true
		}
	}
	if s, ok := f.(model.IndexSizeAware); ok {
		if _, skip := indexes[strings.ToLower(f.ObjectName())]; skip {
			return true
		}
		if s.IndexSize() < e.MinIndexSize {
			return true
		}
	}
	if s, ok := f.(model.TableSizeAware); ok && s.TableSize() < e.MinTableSize {
		return true
	}
	if b, ok := f.(model.BloatAware); ok {
		if b.BloatSize() < e.MinBloatSize || b.BloatPct() < e.MinBloatPercentage {
			return true
		}
	}
	return false
}

func lowerSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			m[n] = struct{}{}
		}
	}
	return m
}
