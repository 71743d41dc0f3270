package propagation

import "propagation-service/internal/feature"

// ConflictPolicy determines how an existing target record that differs
// from the source is handled.
type ConflictPolicy string

const (
	PolicyOverwrite      ConflictPolicy = "overwrite"
	PolicyMerge          ConflictPolicy = "merge"
	PolicySkipOnConflict ConflictPolicy = "skip_on_conflict"
)

// ValidPolicy reports whether p is a known conflict policy.
func ValidPolicy(p ConflictPolicy) bool {
	switch p {
	case PolicyOverwrite, PolicyMerge, PolicySkipOnConflict:
		return true
	}
	return false
}

// CategoryRules parameterize the generic merge logic per data category.
// Caps bound collection fields after union; zero means unbounded.
type CategoryRules struct {
	CollectionCaps map[string]int
}

// categoryRules holds the per-category merge configuration. GBP-style
// category assignments allow 1 primary plus 9 secondary categories;
// the primary is a scalar field, the secondaries a capped collection.
var categoryRules = map[feature.DataCategory]CategoryRules{
	feature.CategoryGBPCategorySync: {CollectionCaps: map[string]int{"secondary_categories": 9}},
	feature.CategoryCategories:      {CollectionCaps: map[string]int{"secondary_categories": 9}},
}

// RulesFor returns the merge rules for a category.
func RulesFor(category feature.DataCategory) CategoryRules {
	return categoryRules[category]
}

type actionKind int

const (
	actionCreate actionKind = iota
	actionUpdate
	actionSkip
	actionDelete
)

type action struct {
	kind   actionKind
	key    string
	record Record
}

// resolveActions computes the per-item actions that propagating source
// onto target implies under the given policy. It performs no writes;
// the same function backs both the dry-run preview and the live apply.
func resolveActions(source, target []Record, policy ConflictPolicy, rules CategoryRules) []action {
	targetByKey := make(map[string]Record, len(target))
	for _, rec := range target {
		targetByKey[rec.Key] = rec
	}

	actions := make([]action, 0, len(source))
	for _, src := range source {
		dst, exists := targetByKey[src.Key]
		if !exists {
			actions = append(actions, action{kind: actionCreate, key: src.Key, record: clampRecord(src, rules)})
			continue
		}
		switch policy {
		case PolicyOverwrite:
			actions = append(actions, action{kind: actionUpdate, key: src.Key, record: clampRecord(src, rules)})
		case PolicyMerge:
			merged, skipped := mergeRecords(src, dst, rules)
			if skipped || merged.Equal(dst) {
				actions = append(actions, action{kind: actionSkip, key: src.Key})
			} else {
				actions = append(actions, action{kind: actionUpdate, key: src.Key, record: merged})
			}
		case PolicySkipOnConflict:
			actions = append(actions, action{kind: actionSkip, key: src.Key})
		}
	}

	// Overwrite makes the target an exact copy of the source, so
	// target records absent from the source are removed.
	if policy == PolicyOverwrite {
		sourceKeys := make(map[string]struct{}, len(source))
		for _, rec := range source {
			sourceKeys[rec.Key] = struct{}{}
		}
		for _, rec := range target {
			if _, ok := sourceKeys[rec.Key]; !ok {
				actions = append(actions, action{kind: actionDelete, key: rec.Key})
			}
		}
	}

	return actions
}

// mergeRecords combines source into target field by field. Scalars take
// the source value unless the target pinned the field locally; a pinned
// field whose values conflict skips the whole item. Collections union,
// target values first, bounded by the category cap.
func mergeRecords(src, dst Record, rules CategoryRules) (Record, bool) {
	for field, sv := range src.Scalars {
		if dst.overridden(field) && dst.Scalars[field] != sv {
			return Record{}, true
		}
	}

	out := dst.Clone()
	if out.Scalars == nil && len(src.Scalars) > 0 {
		out.Scalars = make(map[string]string, len(src.Scalars))
	}
	for field, sv := range src.Scalars {
		out.Scalars[field] = sv
	}
	if out.Collections == nil && len(src.Collections) > 0 {
		out.Collections = make(map[string][]string, len(src.Collections))
	}
	for field, values := range src.Collections {
		out.Collections[field] = unionCapped(out.Collections[field], values, rules.CollectionCaps[field])
	}
	return out, false
}

// unionCapped appends the source values missing from dst, preserving
// target order, stopping at the cap when one is declared.
func unionCapped(dst, src []string, limit int) []string {
	out := append([]string(nil), dst...)
	seen := make(map[string]struct{}, len(out))
	for _, v := range out {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if _, ok := seen[v]; ok {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, v)
		seen[v] = struct{}{}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// clampRecord bounds a record's collections to the category caps.
func clampRecord(rec Record, rules CategoryRules) Record {
	if len(rules.CollectionCaps) == 0 {
		return rec
	}
	out := rec.Clone()
	for field, limit := range rules.CollectionCaps {
		if limit > 0 && len(out.Collections[field]) > limit {
			out.Collections[field] = out.Collections[field][:limit]
		}
	}
	return out
}

func countActions(actions []action) Summary {
	var s Summary
	for _, a := range actions {
		switch a.kind {
		case actionCreate:
			s.Created++
		case actionUpdate:
			s.Updated++
		case actionSkip:
			s.Skipped++
		case actionDelete:
			s.Deleted++
		}
	}
	return s
}
