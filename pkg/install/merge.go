package install

// PropMap is an unordered versioned-property list (spec.md §6's
// "regular versioned properties").
type PropMap map[string]string

// PropChange is a single property's proposed new value; Value == nil
// means the property is being removed.
type PropChange struct {
	Name  string
	Value *string
}

// DiffProps computes propchanges turning pristine into proposed,
// grounded on spec.md §4.4.3 step 3's "is_full_proplist: load pristine
// prop file, diff against supplied list".
func DiffProps(pristine, proposed PropMap) []PropChange {
	var changes []PropChange
	for name, val := range proposed {
		if old, ok := pristine[name]; !ok || old != val {
			v := val
			changes = append(changes, PropChange{Name: name, Value: &v})
		}
	}
	for name := range pristine {
		if _, ok := proposed[name]; !ok {
			changes = append(changes, PropChange{Name: name, Value: nil})
		}
	}
	return changes
}

// MergePropDiffs applies propchanges against a working copy's current
// property list, given the last-known pristine baseline. A change
// conflicts when the working copy has independently modified the same
// property away from base and the incoming change disagrees (spec.md
// §4.4.3 step 3: "merge_prop_diffs ... returns a prop_conflicts map").
//
// The merged result is returned by value; callers persist it via CP log
// commands rather than this function touching disk directly, keeping
// every durable mutation routed through the log.
func MergePropDiffs(base, working PropMap, changes []PropChange) (merged PropMap, conflicts map[string]bool) {
	merged = make(PropMap, len(working))
	for k, v := range working {
		merged[k] = v
	}
	conflicts = make(map[string]bool)

	for _, c := range changes {
		baseVal, hadBase := base[c.Name]
		workVal, hasWork := working[c.Name]
		locallyModified := hasWork != hadBase || workVal != baseVal

		if locallyModified {
			// Local edit exists: only a real conflict if the incoming
			// value disagrees with what the working copy already has.
			incomingMatches := (c.Value == nil && !hasWork) ||
				(c.Value != nil && hasWork && *c.Value == workVal)
			if !incomingMatches {
				conflicts[c.Name] = true
				continue
			}
		}

		if c.Value == nil {
			delete(merged, c.Name)
		} else {
			merged[c.Name] = *c.Value
		}
	}
	return merged, conflicts
}

// PropClassification buckets a property name by its namespace prefix
// (spec.md §6).
type PropClassification int

const (
	PropRegular PropClassification = iota
	PropEntry
	PropWC
)

const (
	entryPropPrefix = "svn:entry:"
	wcPropPrefix    = "svn:wc:"
)

// ClassifyProp routes a property name to its namespace (spec.md §4.4.3
// step 2: "Property sort").
func ClassifyProp(name string) PropClassification {
	switch {
	case len(name) > len(entryPropPrefix) && name[:len(entryPropPrefix)] == entryPropPrefix:
		return PropEntry
	case len(name) > len(wcPropPrefix) && name[:len(wcPropPrefix)] == wcPropPrefix:
		return PropWC
	default:
		return PropRegular
	}
}

// EntryPropAttr strips the entry-prop namespace prefix, yielding the bare
// WCE field name the value should be written to (spec.md §4.4.3 step 4).
func EntryPropAttr(name string) string {
	return name[len(entryPropPrefix):]
}
