package vectorstore

import "time"

// TableName is the documents table managed by the store.
const TableName = "documents"

// Record is a stored content chunk with its embedding vector.
type Record struct {
	ID        string         // caller-assigned unique identifier
	Content   string         // non-empty text payload
	Metadata  map[string]any // open key/value mapping, never nil after a read
	Embedding []float32      // length must equal the store dimension
	CreatedAt time.Time      // set once at insert
	UpdatedAt time.Time      // refreshed on every write
}

// Match is a query result: a record with its cosine distance to the
// query vector (0 = identical, 2 = opposite).
type Match struct {
	Record
	Distance float64
}

// Score converts cosine distance to a similarity score in [0, 1],
// higher is more similar.
func (m Match) Score() float64 {
	return 1 - m.Distance/2
}

// QueryOption configures a similarity query using the functional
// options pattern.
type QueryOption func(*queryConfig)

type queryConfig struct {
	filter   map[string]any
	minScore float64
	hasMin   bool
}

// WithFilter restricts candidates to records whose metadata contains
// the given key/value pair. Multiple calls combine with AND logic;
// a record missing a filtered key is excluded.
func WithFilter(key string, value any) QueryOption {
	return func(c *queryConfig) {
		if c.filter == nil {
			c.filter = make(map[string]any)
		}
		c.filter[key] = value
	}
}

// WithFilterMap adds all pairs of the given map as equality constraints.
func WithFilterMap(filter map[string]any) QueryOption {
	return func(c *queryConfig) {
		if len(filter) == 0 {
			return
		}
		if c.filter == nil {
			c.filter = make(map[string]any, len(filter))
		}
		for k, v := range filter {
			c.filter[k] = v
		}
	}
}

// WithMinScore drops results whose similarity score is below s.
// Score s maps to a maximum cosine distance of 2*(1-s).
func WithMinScore(s float64) QueryOption {
	return func(c *queryConfig) {
		c.minScore = s
		c.hasMin = true
	}
}

func buildQueryConfig(opts []QueryOption) *queryConfig {
	cfg := &queryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
