package flowscope

import (
	"fmt"
	"strconv"
)

// NoChange is the sentinel a form or rule file uses for "leave this entry
// alone". Normalization strips NoChange entries before anything reaches a
// writer.
const NoChange = "no_change"

// TransitionFlags are the three independent switches a status pair carries.
// Always becomes one unconditional row (author=false, assignee=false);
// Author/Assignee together become a second row with whichever gates are
// enabled. A pair with all three false is delete-only: the writer clears it
// and inserts nothing.
type TransitionFlags struct {
	Always   bool
	Author   bool
	Assignee bool
}

// TransitionMatrix is the canonical desired-transition shape: old status id
// to new status id to flags. Presence of an (old, new) key marks the pair
// for replacement even when every flag is disabled.
type TransitionMatrix map[int64]map[int64]TransitionFlags

// PermissionMatrix is the canonical desired-permission shape: old status id
// to field name to rule. An empty Rule clears the field for that status
// without inserting a replacement.
type PermissionMatrix map[int64]map[string]Rule

// flagEnabled reports whether a raw form value enables a transition flag.
// Web forms post "1"/"0"; rule files may carry booleans rendered
// as "true"/"false".
func flagEnabled(value string) bool {
	return value == "1" || value == "true"
}

// ParseTransitionMatrix canonicalizes a raw nested form mapping
// (old status -> new status -> flag name -> value) into a TransitionMatrix.
// NoChange values leave the flag disabled but keep the pair key, so the
// writer still replaces the pair. Unparseable status ids fail the whole
// call with ErrMalformedMatrix.
func ParseTransitionMatrix(raw map[string]map[string]map[string]string) (TransitionMatrix, error) {
	m := make(TransitionMatrix, len(raw))
	for oldKey, byNew := range raw {
		oldID, err := parseStatusID(oldKey)
		if err != nil {
			return nil, err
		}
		pairs := make(map[int64]TransitionFlags, len(byNew))
		for newKey, byFlag := range byNew {
			newID, err := parseStatusID(newKey)
			if err != nil {
				return nil, err
			}
			pairs[newID] = TransitionFlags{
				Always:   flagEnabled(byFlag["always"]),
				Author:   flagEnabled(byFlag["author"]),
				Assignee: flagEnabled(byFlag["assignee"]),
			}
		}
		m[oldID] = pairs
	}
	return m, nil
}

// ParsePermissionMatrix canonicalizes a raw nested form mapping into a
// PermissionMatrix. Both nesting orders are accepted: status-major
// (status -> field -> rule, the stock form layout) and field-major
// (field -> status -> rule, posted by per-field widgets). The orientation is
// detected from the outer keys: when every outer key parses as a status id
// the mapping is status-major.
//
// NoChange entries are dropped entirely - the field keeps its current rule
// and is not part of the replace. An empty value keeps the field key, which
// clears the rule.
func ParsePermissionMatrix(raw map[string]map[string]string) (PermissionMatrix, error) {
	if statusMajor(raw) {
		m := make(PermissionMatrix, len(raw))
		for statusKey, byField := range raw {
			statusID, err := parseStatusID(statusKey)
			if err != nil {
				return nil, err
			}
			for field, rule := range byField {
				if rule == NoChange {
					continue
				}
				if m[statusID] == nil {
					m[statusID] = make(map[string]Rule)
				}
				m[statusID][field] = Rule(rule)
			}
		}
		return m, nil
	}

	m := make(PermissionMatrix)
	for field, byStatus := range raw {
		for statusKey, rule := range byStatus {
			statusID, err := parseStatusID(statusKey)
			if err != nil {
				return nil, err
			}
			if rule == NoChange {
				continue
			}
			if m[statusID] == nil {
				m[statusID] = make(map[string]Rule)
			}
			m[statusID][field] = Rule(rule)
		}
	}
	return m, nil
}

// statusMajor reports whether the outer keys of a raw permission mapping are
// all status ids. All-numeric field names don't occur for core fields;
// custom-field columns are posted field-major by the host forms.
func statusMajor(raw map[string]map[string]string) bool {
	if len(raw) == 0 {
		return true
	}
	for key := range raw {
		if _, err := strconv.ParseInt(key, 10, 64); err != nil {
			return false
		}
	}
	return true
}

func parseStatusID(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: status id %q", ErrMalformedMatrix, key)
	}
	return id, nil
}
