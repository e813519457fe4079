// Package ruleset loads declarative workflow rule files.
//
// A rule file is a YAML document naming a scope, tracker ids, role ids, and
// the desired transition and permission matrices. Applying a file replaces
// the named entries for every (tracker, role) combination in the target
// scope, so a file is a reproducible description of a workflow rather than
// a diff.
package ruleset

import (
	"fmt"
	"os"
	"strconv"

	"sigs.k8s.io/yaml"

	"github.com/tmaes/flowscope"
)

// Flags mirror the three switches of a transition entry.
// A pair present with all flags false is cleared without replacement.
type Flags struct {
	Always   bool `json:"always,omitempty"`
	Author   bool `json:"author,omitempty"`
	Assignee bool `json:"assignee,omitempty"`
}

// File is the parsed form of a rule file.
//
//	scope:
//	  project: 12        # omit for global rules
//	trackers: [1, 2]
//	roles: [3]
//	transitions:
//	  "1":
//	    "2": {always: true}
//	    "3": {author: true, assignee: true}
//	permissions:
//	  "1":
//	    due_date: readonly
//	    "8": required     # custom field by id
//
// Transition and permission keys are status ids. A permission value of ""
// clears the field for that status.
type File struct {
	Scope       ScopeSpec                    `json:"scope,omitempty"`
	Trackers    []int64                      `json:"trackers"`
	Roles       []int64                      `json:"roles"`
	Transitions map[string]map[string]Flags  `json:"transitions,omitempty"`
	Permissions map[string]map[string]string `json:"permissions,omitempty"`
}

// ScopeSpec selects the target scope. A nil Project means global.
type ScopeSpec struct {
	Project *int64 `json:"project,omitempty"`
}

// Parse decodes and validates rule file content.
func Parse(content []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalStrict(content, &f); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses the rule file at path.
func Load(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	f, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) validate() error {
	if len(f.Trackers) == 0 {
		return fmt.Errorf("rule file names no trackers")
	}
	if len(f.Roles) == 0 {
		return fmt.Errorf("rule file names no roles")
	}
	for _, id := range f.Trackers {
		if id <= 0 {
			return fmt.Errorf("invalid tracker id %d", id)
		}
	}
	for _, id := range f.Roles {
		if id <= 0 {
			return fmt.Errorf("invalid role id %d", id)
		}
	}
	if f.Scope.Project != nil && *f.Scope.Project <= 0 {
		return fmt.Errorf("invalid project id %d", *f.Scope.Project)
	}
	for oldKey, byNew := range f.Transitions {
		if _, err := statusID(oldKey); err != nil {
			return err
		}
		for newKey := range byNew {
			if _, err := statusID(newKey); err != nil {
				return err
			}
		}
	}
	for statusKey, byField := range f.Permissions {
		if _, err := statusID(statusKey); err != nil {
			return err
		}
		for field, rule := range byField {
			switch flowscope.Rule(rule) {
			case flowscope.RuleReadonly, flowscope.RuleRequired, "":
			default:
				return fmt.Errorf("invalid rule %q for field %q", rule, field)
			}
		}
	}
	return nil
}

// TargetScope returns the scope the file applies to.
func (f *File) TargetScope() flowscope.Scope {
	if f.Scope.Project == nil {
		return flowscope.Global
	}
	return flowscope.Project(*f.Scope.Project)
}

// TransitionMatrix converts the file's transition entries to the canonical
// matrix shape. Returns nil when the file carries no transitions.
func (f *File) TransitionMatrix() (flowscope.TransitionMatrix, error) {
	if len(f.Transitions) == 0 {
		return nil, nil
	}
	m := make(flowscope.TransitionMatrix, len(f.Transitions))
	for oldKey, byNew := range f.Transitions {
		oldID, err := statusID(oldKey)
		if err != nil {
			return nil, err
		}
		pairs := make(map[int64]flowscope.TransitionFlags, len(byNew))
		for newKey, flags := range byNew {
			newID, err := statusID(newKey)
			if err != nil {
				return nil, err
			}
			pairs[newID] = flowscope.TransitionFlags{
				Always:   flags.Always,
				Author:   flags.Author,
				Assignee: flags.Assignee,
			}
		}
		m[oldID] = pairs
	}
	return m, nil
}

// PermissionMatrix converts the file's permission entries to the canonical
// matrix shape. Returns nil when the file carries no permissions.
func (f *File) PermissionMatrix() (flowscope.PermissionMatrix, error) {
	if len(f.Permissions) == 0 {
		return nil, nil
	}
	m := make(flowscope.PermissionMatrix, len(f.Permissions))
	for statusKey, byField := range f.Permissions {
		id, err := statusID(statusKey)
		if err != nil {
			return nil, err
		}
		fields := make(map[string]flowscope.Rule, len(byField))
		for field, rule := range byField {
			fields[field] = flowscope.Rule(rule)
		}
		m[id] = fields
	}
	return m, nil
}

func statusID(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid status id %q", key)
	}
	return id, nil
}
