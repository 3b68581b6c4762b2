// Package model defines the database objects reported by diagnostics.
//
// Every finding has a natural key used for deduplication and ordering when
// results from several hosts are merged. Keys never include counters such as
// scan counts or sizes, which legitimately differ between hosts.
package model

import (
	"sort"
	"strings"
)

// Finding is one reported instance of a detected anti-pattern.
type Finding interface {
	// Key identifies the database object the finding is about.
	Key() string
	// ObjectName is the human readable name of the offending object.
	ObjectName() string
}

// TableNameAware is implemented by findings that belong to a table.
type TableNameAware interface {
	OnTable() string
}

// IndexSizeAware is implemented by findings that carry an index size.
type IndexSizeAware interface {
	IndexSize() int64
}

// TableSizeAware is implemented by findings that carry a table size.
type TableSizeAware interface {
	TableSize() int64
}

// BloatAware is implemented by findings that carry bloat estimates.
type BloatAware interface {
	BloatSize() int64
	BloatPct() float64
}

const keySep = "\x00"

func key(parts ...string) string {
	return strings.Join(parts, keySep)
}

// SortByKey orders findings by Key in place.
func SortByKey[T Finding](fs []T) {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Key() < fs[j].Key() })
}
