package check

import (
	"fmt"

	"github.com/koltyakov/pgindexhealth/internal/model"
)

// Union returns every finding reported by at least one host, once per key,
// sorted by key.
func Union(perHost [][]model.Finding) []model.Finding {
	seen := make(map[string]model.Finding)
	for _, fs := range perHost {
		for _, f := range fs {
			seen[f.Key()] = pick(seen[f.Key()], f)
		}
	}
	return sorted(seen)
}

// Intersect returns the findings reported by every host, once per key,
// sorted by key. The result is empty when perHost is empty or any host
// reported nothing.
func Intersect(perHost [][]model.Finding) []model.Finding {
	if len(perHost) == 0 {
		return []model.Finding{}
	}

	counts := make(map[string]int)
	seen := make(map[string]model.Finding)
	for _, fs := range perHost {
		local := make(map[string]struct{}, len(fs))
		for _, f := range fs {
			k := f.Key()
			seen[k] = pick(seen[k], f)
			if _, dup := local[k]; dup {
				continue
			}
			local[k] = struct{}{}
			counts[k]++
		}
	}
	for k, n := range counts {
		if n != len(perHost) {
			delete(seen, k)
		}
	}
	return sorted(seen)
}

// pick chooses between two findings with the same key so that the outcome
// does not depend on host order: per-host counters differ, keys do not.
func pick(cur, f model.Finding) model.Finding {
	if cur == nil {
		return f
	}
	if fmt.Sprintf("%#v", f) < fmt.Sprintf("%#v", cur) {
		return f
	}
	return cur
}

func sorted(m map[string]model.Finding) []model.Finding {
	out := make([]model.Finding, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	model.SortByKey(out)
	return out
}
