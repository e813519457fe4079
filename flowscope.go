// Package flowscope layers per-project scoping onto an issue tracker's
// workflow engine backed by PostgreSQL.
//
// # Rule Model
//
// A tracker's workflow is a set of rules stored in the workflow_rules table.
// Rules come in two kinds sharing one table (discriminated by the kind
// column): transitions ("a user with role R may move an issue of tracker T
// from status A to status B") and field permissions ("for issues of tracker T
// in status S, field F is readonly/required for role R").
//
// Every rule carries a Scope. Global rules (scope Global) apply to all
// projects. A project-scoped rule for a (tracker, role) pair overrides - it
// does not merge with - the global rules for that pair. Override granularity
// is the (tracker, role) pair: the existence of any project row for the pair
// switches that role to the project's rule set entirely.
//
// # Components
//
// The resolution pipeline is built from small collaborating components, all
// operating on a Querier:
//
//	resolver := flowscope.NewResolver(db)
//	tq := flowscope.NewTransitionQuery(db)
//	statuses, err := tq.AllowedStatuses(ctx, flowscope.Project(14), trackerID,
//	    roleIDs, initialStatusID, author, assignee)
//
// TransitionQuery and PermissionQuery read effective rule sets,
// StatusListQuery computes the statuses a project actually uses, and
// TransitionWriter/PermissionWriter atomically replace rule subsets.
// Copier bulk-duplicates rules between scopes.
//
// # Host Integration
//
// flowscope does not own projects, trackers, roles, or statuses - those
// tables belong to the host tracker. The library consumes them read-only
// (issue_statuses for status resolution, roles for the workflow-capable
// default set, custom_fields for visibility-forced readonly rules). Hosts
// integrate through the RuleSource interface rather than by patching their
// models; see Source.
//
// # Transaction Support
//
// All components work with *sql.DB, *sql.Tx, or *sql.Conn. Writers open
// their own transaction when handed a handle that can begin one, and run
// inline when handed an existing *sql.Tx:
//
//	tx, _ := db.BeginTx(ctx, nil)
//	w := flowscope.NewTransitionWriter(tx)
//	err := w.Replace(ctx, flowscope.Project(14), trackerIDs, roleIDs, matrix)
//	// rows visible to the transaction, committed by the caller
package flowscope

import (
	"context"
	"database/sql"
	"fmt"
)

// rulesTable is the single table holding both rule kinds.
const rulesTable = "workflow_rules"

// RuleKind discriminates the two rule kinds stored in workflow_rules.
type RuleKind string

const (
	// KindTransition is a status-to-status move gated by role and
	// optionally by author/assignee.
	KindTransition RuleKind = "transition"

	// KindPermission is a per-status field readonly/required gate.
	KindPermission RuleKind = "permission"
)

// String returns the string representation of the rule kind.
func (k RuleKind) String() string {
	return string(k)
}

// Rule is a field permission value.
type Rule string

const (
	RuleReadonly Rule = "readonly"
	RuleRequired Rule = "required"
)

// Scope identifies the project context a rule or write operation applies to:
// either a specific project or the global scope. The zero value is Global.
//
// Scope replaces the "nullable project id" convention at the storage level
// with an explicit type, so override/fallback logic can't confuse "project 0"
// with "no project".
type Scope struct {
	projectID int64
	project   bool
}

// Global is the scope of rules that apply to every project lacking an
// override.
var Global = Scope{}

// Project returns the scope of a single project.
func Project(id int64) Scope {
	return Scope{projectID: id, project: true}
}

// IsGlobal reports whether the scope is the global scope.
func (s Scope) IsGlobal() bool {
	return !s.project
}

// ProjectID returns the project id and true for a project scope, or 0 and
// false for the global scope.
func (s Scope) ProjectID() (int64, bool) {
	return s.projectID, s.project
}

// String returns "global" or "project:<id>".
func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return fmt.Sprintf("project:%d", s.projectID)
}

// arg returns the value bound for the project_id column: the project id, or
// nil for the global scope (stored as SQL NULL).
func (s Scope) arg() any {
	if s.IsGlobal() {
		return nil
	}
	return s.projectID
}

// Tracker is the host's issue type. Only the fields flowscope consumes are
// modeled.
type Tracker struct {
	ID              int64
	Name            string
	Position        int
	DefaultStatusID int64
}

// Role is the host's role. ConsidersWorkflow reports whether the role
// participates in workflow resolution at all (anonymous/non-member roles
// typically do not).
type Role struct {
	ID                int64
	Name              string
	Position          int
	ConsidersWorkflow bool
}

// Status is the host's issue status. Position drives the canonical ordering
// of query results; IsClosed feeds the closable/reopenable filters during
// status assembly.
type Status struct {
	ID       int64
	Name     string
	Position int
	IsClosed bool
}

// Transition is one stored transition rule. Author and Assignee are
// independent gates: a row with both false applies unconditionally, a row
// with either set applies when the acting user matches either enabled gate
// (OR semantics at read time).
type Transition struct {
	TrackerID   int64
	RoleID      int64
	OldStatusID int64
	NewStatusID int64
	Author      bool
	Assignee    bool
	Scope       Scope
}

// Permission is one stored field permission rule.
type Permission struct {
	TrackerID   int64
	RoleID      int64
	OldStatusID int64
	FieldName   string
	Rule        Rule
	Scope       Scope
}

// Querier executes queries against PostgreSQL.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
//
// The minimal interface lets read components run inside host transactions,
// so rule lookups see uncommitted changes made earlier in the same request.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer extends Querier with ExecContext. Required by the writers, the
// copier, and migrations; read components only need Querier.
type Execer interface {
	Querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// txBeginner is satisfied by *sql.DB and *sql.Conn but not *sql.Tx. Writers
// use it to decide whether to open their own transaction.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// inTransaction runs fn atomically. When e can begin a transaction (a
// *sql.DB or *sql.Conn) one is opened and committed around fn, with rollback
// on error. When e is already a *sql.Tx, fn runs inline and atomicity is the
// caller's transaction boundary.
func inTransaction(ctx context.Context, e Execer, fn func(Execer) error) error {
	b, ok := e.(txBeginner)
	if !ok {
		return fn(e)
	}

	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
