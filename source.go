package flowscope

import (
	"context"
)

// RuleSource is the capability a host tracker composes into its issue and
// project models instead of patching them. Implementations answer the three
// questions the host's workflow paths ask: is the override path active for
// this tracker and role set, which statuses may this actor reach, and which
// field rules bind this issue.
type RuleSource interface {
	OverrideActive(ctx context.Context, kind RuleKind, trackerID int64, roleIDs []int64) (bool, error)
	AllowedStatuses(ctx context.Context, scope Scope, trackerID int64, roleIDs []int64, initialStatusID int64, author, assignee bool) ([]Status, error)
	RulesByAttribute(ctx context.Context, scope Scope, trackerID int64, roleIDs []int64, oldStatusID int64) (map[string]Rule, error)
}

// Source is the default RuleSource over a Querier, composing the query
// components. Sources are lightweight and safe to create per request; they
// hold no state beyond the database handle and the optional cache.
//
// On the first NewSource call with a non-nil Querier the schema is
// validated once per process. Issues are logged as warnings and never
// prevent Source creation.
type Source struct {
	q     Querier
	cache Cache
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithCache enables caching of override-active lookups. The cache is safe
// across goroutines but scoped to the Source instances sharing it; clear it
// after rule writes.
func WithCache(c Cache) SourceOption {
	return func(s *Source) {
		s.cache = c
	}
}

// NewSource creates a rule source over q, which may be a *sql.DB, *sql.Tx,
// or *sql.Conn.
func NewSource(q Querier, opts ...SourceOption) *Source {
	s := &Source{q: q}
	for _, opt := range opts {
		opt(s)
	}

	if q != nil {
		validateSchema(q)
	}

	return s
}

// OverrideActive reports whether the override path applies for the rule
// kind, tracker, and role set, consulting the cache when one is configured.
func (s *Source) OverrideActive(ctx context.Context, kind RuleKind, trackerID int64, roleIDs []int64) (bool, error) {
	if s.cache != nil {
		if active, ok := s.cache.Get(kind, trackerID, roleIDs); ok {
			return active, nil
		}
	}

	active, err := overrideActive(ctx, s.q, kind, trackerID, roleIDs)
	if err != nil {
		return false, err
	}

	if s.cache != nil {
		s.cache.Set(kind, trackerID, roleIDs, active)
	}
	return active, nil
}

// AllowedStatuses delegates to TransitionQuery.
func (s *Source) AllowedStatuses(ctx context.Context, scope Scope, trackerID int64, roleIDs []int64, initialStatusID int64, author, assignee bool) ([]Status, error) {
	return NewTransitionQuery(s.q).AllowedStatuses(ctx, scope, trackerID, roleIDs, initialStatusID, author, assignee)
}

// RulesByAttribute returns the effective per-field rule map for an issue:
// the overridden/global permission rows for the status, merged with
// hidden-custom-field readonly injection via EffectiveRules.
func (s *Source) RulesByAttribute(ctx context.Context, scope Scope, trackerID int64, roleIDs []int64, oldStatusID int64) (map[string]Rule, error) {
	pq := NewPermissionQuery(s.q)

	perms, err := pq.RulesFor(ctx, scope, trackerID, roleIDs, oldStatusID)
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		return map[string]Rule{}, nil
	}

	hidden, err := pq.HiddenFieldRoles(ctx)
	if err != nil {
		return nil, err
	}

	return EffectiveRules(perms, roleIDs, hidden), nil
}

// IssueContext carries the issue-side state NewStatuses needs: who is
// acting, where the issue stands, and which host business rules apply to
// the result. The host resolves roles, authorship, and assignee group
// membership before calling; flowscope stays out of its membership model.
type IssueContext struct {
	Scope     Scope
	TrackerID int64
	RoleIDs   []int64

	// InitialStatus is the status transitions start from; nil for new
	// records. DefaultStatus is the tracker's default, unioned in under the
	// conditions below.
	InitialStatus *Status
	DefaultStatus *Status

	Author   bool
	Assignee bool

	// NewRecord unions DefaultStatus in when no transition matched;
	// IncludeDefault unions it unconditionally.
	NewRecord      bool
	IncludeDefault bool

	// Closable and Reopenable apply the host's business filters: a
	// non-closable issue can't reach closed statuses, a non-reopenable one
	// can't leave them.
	Closable   bool
	Reopenable bool
}

// NewStatuses returns the statuses the acting user may move the issue to:
// the override-aware allowed set, the initial status itself (once any
// transition exists), the default status where applicable, filtered by the
// closable/reopenable flags and canonically ordered.
func (s *Source) NewStatuses(ctx context.Context, ic IssueContext) ([]Status, error) {
	var initialStatusID int64
	if ic.InitialStatus != nil {
		initialStatusID = ic.InitialStatus.ID
	}

	allowed, err := s.AllowedStatuses(ctx, ic.Scope, ic.TrackerID, ic.RoleIDs, initialStatusID, ic.Author, ic.Assignee)
	if err != nil {
		return nil, err
	}

	return assembleStatuses(allowed, ic), nil
}

// assembleStatuses applies the host-side status set rules on top of the
// queried allowed set. Pure function; the union/filter order follows the
// host's stock behavior.
func assembleStatuses(allowed []Status, ic IssueContext) []Status {
	statuses := make([]Status, 0, len(allowed)+2)
	statuses = append(statuses, allowed...)

	if len(statuses) > 0 && ic.InitialStatus != nil {
		statuses = append(statuses, *ic.InitialStatus)
	}
	if ic.DefaultStatus != nil && (ic.IncludeDefault || (ic.NewRecord && len(statuses) == 0)) {
		statuses = append(statuses, *ic.DefaultStatus)
	}

	seen := make(map[int64]struct{}, len(statuses))
	var result []Status
	for _, st := range statuses {
		if _, ok := seen[st.ID]; ok {
			continue
		}
		seen[st.ID] = struct{}{}

		if !ic.Closable && st.IsClosed {
			continue
		}
		if !ic.Reopenable && !st.IsClosed {
			continue
		}
		result = append(result, st)
	}

	sortStatuses(result)
	return result
}

// NopSource is a RuleSource that reports no overrides and no rules. Hosts
// compose it in where flowscope is installed but not yet enabled, keeping
// their stock global-only behavior byte for byte.
type NopSource struct{}

// OverrideActive always reports false.
func (NopSource) OverrideActive(context.Context, RuleKind, int64, []int64) (bool, error) {
	return false, nil
}

// AllowedStatuses always returns nil.
func (NopSource) AllowedStatuses(context.Context, Scope, int64, []int64, int64, bool, bool) ([]Status, error) {
	return nil, nil
}

// RulesByAttribute always returns an empty map.
func (NopSource) RulesByAttribute(context.Context, Scope, int64, []int64, int64) (map[string]Rule, error) {
	return map[string]Rule{}, nil
}

// Ensure both implementations satisfy RuleSource.
var (
	_ RuleSource = (*Source)(nil)
	_ RuleSource = NopSource{}
)
