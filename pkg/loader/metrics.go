package loader

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Query kinds reported by Metrics
const (
	queryList    = "list"
	queryCount   = "count"
	querySingle  = "single"
	queryArchive = "archive"
	queryAuthors = "authors"
	queryFiles   = "files"
	queryTags    = "tags"
)

// Cache lookup outcomes reported by Metrics
const (
	outcomeHit     = "hit"
	outcomeMiss    = "miss"
	outcomePartial = "partial"
	outcomeError   = "error"
)

// Metrics counts loader queries and cache lookups
type Metrics struct {
	Queries      *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	CacheWrites  *prometheus.CounterVec
}

// NewMetrics creates loader metrics and registers them on reg. Collectors
// already registered by another loader are reused. A nil reg skips
// registration.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "queries_total",
				Help:      "Total number of SQL queries issued by post loaders",
			},
			[]string{"kind"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "cache_lookups_total",
				Help:      "Total number of loader cache lookups by entry point and outcome",
			},
			[]string{"entry", "outcome"},
		),
		CacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "cache_writes_total",
				Help:      "Total number of loader cache writes by entry point and result",
			},
			[]string{"entry", "result"},
		),
	}
	if reg != nil {
		m.Queries = register(reg, m.Queries)
		m.CacheLookups = register(reg, m.CacheLookups)
		m.CacheWrites = register(reg, m.CacheWrites)
	}
	return m
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) query(kind string) {
	if m != nil {
		m.Queries.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) lookup(entry, outcome string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(entry, outcome).Inc()
	}
}

func (m *Metrics) write(entry string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CacheWrites.WithLabelValues(entry, result).Inc()
}
