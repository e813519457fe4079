package flowscope

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSQLStateErr struct {
	code string
	msg  string
}

func (e *fakeSQLStateErr) Error() string    { return e.msg }
func (e *fakeSQLStateErr) SQLState() string { return e.code }

func TestSQLState(t *testing.T) {
	t.Run("SQLState method", func(t *testing.T) {
		err := &fakeSQLStateErr{code: "42P01", msg: "relation does not exist"}
		assert.Equal(t, "42P01", sqlState(err))
	})

	t.Run("message fallback", func(t *testing.T) {
		err := errors.New(`ERROR: relation "workflow_rules" does not exist (SQLSTATE 42P01)`)
		assert.Equal(t, "42P01", sqlState(err))
	})

	t.Run("no state", func(t *testing.T) {
		assert.Equal(t, "", sqlState(errors.New("plain error")))
	})
}

func TestMapError(t *testing.T) {
	t.Run("missing table", func(t *testing.T) {
		err := mapError("querying", &fakeSQLStateErr{
			code: pgUndefinedTable,
			msg:  `relation "workflow_rules" does not exist`,
		})
		assert.True(t, IsMissingRulesTableErr(err))
	})

	t.Run("missing project column", func(t *testing.T) {
		err := mapError("querying", &fakeSQLStateErr{
			code: pgUndefinedColumn,
			msg:  `column "project_id" does not exist`,
		})
		assert.True(t, errors.Is(err, ErrMissingProjectColumn))
	})

	t.Run("other errors keep the operation", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := mapError("querying allowed statuses", inner)
		assert.ErrorContains(t, err, "querying allowed statuses")
		assert.True(t, errors.Is(err, inner))
	})
}

func TestSentinelHelpers(t *testing.T) {
	assert.True(t, IsUnsavedEntityErr(fmt.Errorf("wrap: %w", ErrUnsavedEntity)))
	assert.True(t, IsMalformedMatrixErr(fmt.Errorf("wrap: %w", ErrMalformedMatrix)))
	assert.False(t, IsMissingRulesTableErr(errors.New("other")))
}
