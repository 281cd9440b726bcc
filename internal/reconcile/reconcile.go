// Package reconcile computes the difference between the previously known
// starred set and the current fetch. Pure functions, no side effects.
package reconcile

import "sort"

// Diff returns added = current - previous and removed = previous - current.
// Both results are sorted. Duplicate identifiers in the inputs are collapsed.
func Diff(previous, current []string) (added, removed []string) {
	prev := toSet(previous)
	curr := toSet(current)

	for id := range curr {
		if !prev[id] {
			added = append(added, id)
		}
	}
	for id := range prev {
		if !curr[id] {
			removed = append(removed, id)
		}
	}

	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// Candidates returns the repos that still need classification: everything in
// the current fetch without a mapping entry. Snapshot membership is not proof
// of categorization — a repo whose classification failed on a prior run is in
// the snapshot but not the mapping, and must be retried here.
func Candidates(current []string, mapping map[string]string) []string {
	var out []string
	seen := make(map[string]bool, len(current))
	for _, id := range current {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := mapping[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
