package flowscope

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure modes.
// Empty result sets are never errors: missing project, tracker, or role
// context legitimately means "no rules apply". These errors indicate setup
// problems or input-contract violations that abort the whole call.
var (
	// ErrMissingRulesTable is returned when the workflow_rules table doesn't
	// exist. Run `flowscope migrate` to create it.
	ErrMissingRulesTable = errors.New("flowscope: workflow_rules table not found")

	// ErrMissingProjectColumn is returned when workflow_rules exists but has
	// no project_id column, which means the host table predates flowscope.
	// Run `flowscope migrate` to add the column and indexes.
	ErrMissingProjectColumn = errors.New("flowscope: workflow_rules.project_id column missing")

	// ErrUnsavedEntity is returned when a copy operation is given an absent
	// or unpersisted tracker or role. The call aborts before touching any row.
	ErrUnsavedEntity = errors.New("flowscope: tracker and role must be persisted entities")

	// ErrMalformedMatrix is returned when a rule matrix carries identifiers
	// that don't parse as status ids.
	ErrMalformedMatrix = errors.New("flowscope: malformed rule matrix")
)

// IsMissingRulesTableErr returns true if err is or wraps ErrMissingRulesTable.
func IsMissingRulesTableErr(err error) bool {
	return errors.Is(err, ErrMissingRulesTable)
}

// IsUnsavedEntityErr returns true if err is or wraps ErrUnsavedEntity.
func IsUnsavedEntityErr(err error) bool {
	return errors.Is(err, ErrUnsavedEntity)
}

// IsMalformedMatrixErr returns true if err is or wraps ErrMalformedMatrix.
func IsMalformedMatrixErr(err error) bool {
	return errors.Is(err, ErrMalformedMatrix)
}

// PostgreSQL error codes used to map driver errors onto sentinels.
const (
	pgUndefinedTable  = "42P01" // undefined_table
	pgUndefinedColumn = "42703" // undefined_column
)

// mapError maps PostgreSQL errors to sentinel errors, wrapping everything
// else with the failing operation name.
func mapError(operation string, err error) error {
	switch sqlState(err) {
	case pgUndefinedTable:
		if strings.Contains(err.Error(), rulesTable) {
			return errors.Join(ErrMissingRulesTable, err)
		}
	case pgUndefinedColumn:
		if strings.Contains(err.Error(), "project_id") {
			return errors.Join(ErrMissingProjectColumn, err)
		}
	}
	return &opError{op: operation, err: err}
}

type opError struct {
	op  string
	err error
}

func (e *opError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *opError) Unwrap() error {
	return e.err
}

// sqlState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection:
//   - pgx/pgconn: SQLState() string
//   - lib/pq: Code field (via error interface)
//
// Returns empty string if the error doesn't contain a SQLSTATE.
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	if e, ok := err.(sqlStateErr); ok {
		return e.SQLState()
	}

	type codeErr interface{ Code() string }
	if e, ok := err.(codeErr); ok {
		return e.Code()
	}

	// Fallback: string matching for known patterns (last resort)
	errStr := err.Error()
	for _, prefix := range []string{"SQLSTATE ", "SQLSTATE: "} {
		if idx := strings.Index(errStr, prefix); idx >= 0 {
			start := idx + len(prefix)
			if start+5 <= len(errStr) {
				return errStr[start : start+5]
			}
		}
	}

	return ""
}
