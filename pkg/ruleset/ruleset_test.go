package ruleset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmaes/flowscope"
)

const sampleFile = `
scope:
  project: 12
trackers: [1, 2]
roles: [3]
transitions:
  "1":
    "2": {always: true}
    "3": {author: true, assignee: true}
permissions:
  "1":
    due_date: readonly
    "8": required
    notes: ""
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleFile))
	require.NoError(t, err)

	assert.Equal(t, flowscope.Project(12), f.TargetScope())
	assert.Equal(t, []int64{1, 2}, f.Trackers)
	assert.Equal(t, []int64{3}, f.Roles)

	transitions, err := f.TransitionMatrix()
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, flowscope.TransitionFlags{Always: true}, transitions[1][2])
	assert.Equal(t, flowscope.TransitionFlags{Author: true, Assignee: true}, transitions[1][3])

	permissions, err := f.PermissionMatrix()
	require.NoError(t, err)
	require.Len(t, permissions, 1)
	assert.Equal(t, flowscope.RuleReadonly, permissions[1]["due_date"])
	assert.Equal(t, flowscope.RuleRequired, permissions[1]["8"])

	// An empty rule keeps the key so applying clears the field.
	rule, ok := permissions[1]["notes"]
	require.True(t, ok)
	assert.Equal(t, flowscope.Rule(""), rule)
}

func TestParseGlobalScope(t *testing.T) {
	f, err := Parse([]byte("trackers: [1]\nroles: [2]\n"))
	require.NoError(t, err)
	assert.Equal(t, flowscope.Global, f.TargetScope())

	transitions, err := f.TransitionMatrix()
	require.NoError(t, err)
	assert.Nil(t, transitions)

	permissions, err := f.PermissionMatrix()
	require.NoError(t, err)
	assert.Nil(t, permissions)
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no trackers", "roles: [1]\n"},
		{"no roles", "trackers: [1]\n"},
		{"bad tracker id", "trackers: [0]\nroles: [1]\n"},
		{"bad project id", "scope: {project: -1}\ntrackers: [1]\nroles: [1]\n"},
		{"bad status id", "trackers: [1]\nroles: [1]\ntransitions:\n  open:\n    \"2\": {always: true}\n"},
		{"bad rule value", "trackers: [1]\nroles: [1]\npermissions:\n  \"1\":\n    due_date: hidden\n"},
		{"unknown key", "trackers: [1]\nroles: [1]\nstatuses: [5]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.content))
			assert.Error(t, err)
		})
	}
}
