package ruleset

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tmaes/flowscope"
)

// Apply replaces the rules a file describes for its target scope.
//
// Both matrices are applied in a single transaction when db supports BeginTx,
// so a file either takes effect completely or not at all. Entries absent from
// the file are untouched.
func Apply(ctx context.Context, db flowscope.Execer, f *File) error {
	transitions, err := f.TransitionMatrix()
	if err != nil {
		return err
	}
	permissions, err := f.PermissionMatrix()
	if err != nil {
		return err
	}

	apply := func(db flowscope.Execer) error {
		scope := f.TargetScope()
		if len(transitions) > 0 {
			w := flowscope.NewTransitionWriter(db)
			if err := w.Replace(ctx, scope, f.Trackers, f.Roles, transitions); err != nil {
				return fmt.Errorf("applying transitions: %w", err)
			}
		}
		if len(permissions) > 0 {
			w := flowscope.NewPermissionWriter(db)
			if err := w.Replace(ctx, scope, f.Trackers, f.Roles, permissions); err != nil {
				return fmt.Errorf("applying permissions: %w", err)
			}
		}
		return nil
	}

	if txer, ok := db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := apply(tx); err != nil {
			return err
		}
		return tx.Commit()
	}

	return apply(db)
}
