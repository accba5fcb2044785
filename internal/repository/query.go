package repository

const (
	// DefaultLimit is the number of rows returned when a query sets no limit.
	DefaultLimit = 10
	maxLimit     = 100

	StatusField QueryField = "status"
)

type Query struct {
	Values map[QueryField]string

	Limit int
}

type QueryField string

func NewQuery() *Query {
	return &Query{
		Values: map[QueryField]string{},
	}
}

func (q *Query) With(field QueryField, val string) *Query {
	q.Values[field] = val
	return q
}

// WithLimit sets the row limit, clamped to (0, 100]; non-positive values select DefaultLimit.
func (q *Query) WithLimit(limit int) *Query {
	q.Limit = DefaultLimit
	if limit > 0 {
		q.Limit = min(maxLimit, limit)
	}
	return q
}

// EffectiveLimit returns Limit or DefaultLimit when Limit is unset.
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}
