package softdelete

import "errors"

// FieldDeletedAt is the reserved filter key for deletion state. Stores
// reject filters that set it directly; deletion visibility goes through
// Scope so there is a single auditable source of truth for what a default
// read returns.
const FieldDeletedAt = "deleted_at"

// ErrManualDeletedFilter is returned at query-build time when a filter
// carries a literal deleted_at condition without the scope opt-out. This is
// a programmer error and fails loudly; it is never retried or downgraded to
// a warning.
var ErrManualDeletedFilter = errors.New(
	"manual deleted_at filter is not allowed: use IncludeDeleted or OnlyDeleted")

// Filter is an ad-hoc field/value query filter accepted by store reads,
// counts and aggregations. Keys are column names.
type Filter map[string]any

type visibility int

const (
	visibleLive visibility = iota
	visibleAll
	visibleDeletedOnly
)

// Scope determines which deletion states a query sees. The zero value (and
// Default()) excludes deleted entities.
type Scope struct {
	v visibility
}

// Default scopes a query to live entities only.
func Default() Scope { return Scope{} }

// IncludeDeleted scopes a query to both live and deleted entities. This is
// the sanctioned escape hatch from the default exclusion.
func IncludeDeleted() Scope { return Scope{v: visibleAll} }

// OnlyDeleted scopes a query to deleted entities only.
func OnlyDeleted() Scope { return Scope{v: visibleDeletedOnly} }

// Matches reports whether an entity with the given metadata is visible
// under the scope.
func (s Scope) Matches(meta *Metadata) bool {
	switch s.v {
	case visibleAll:
		return true
	case visibleDeletedOnly:
		return !meta.Live()
	default:
		return meta.Live()
	}
}

// SQLCondition renders the scope as a SQL condition on the given column.
// An empty string means no condition.
func (s Scope) SQLCondition(column string) string {
	switch s.v {
	case visibleAll:
		return ""
	case visibleDeletedOnly:
		return column + " IS NOT NULL"
	default:
		return column + " IS NULL"
	}
}

// ValidateFilter enforces the manual-filter guard for every read-style
// query (find, count, aggregate). A literal deleted_at key is rejected
// unless the caller opted out of the default scope.
func ValidateFilter(filter Filter, scope Scope) error {
	if _, ok := filter[FieldDeletedAt]; !ok {
		return nil
	}
	if scope.v == visibleLive {
		return ErrManualDeletedFilter
	}
	return nil
}

// EffectiveFilter strips the reserved deletion key from the filter once the
// scope has been validated; the scope, not the literal value, drives
// deletion visibility.
func EffectiveFilter(filter Filter) Filter {
	if _, ok := filter[FieldDeletedAt]; !ok {
		return filter
	}
	out := make(Filter, len(filter))
	for k, v := range filter {
		if k == FieldDeletedAt {
			continue
		}
		out[k] = v
	}
	return out
}
