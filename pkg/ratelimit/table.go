package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for budget reservations.
var (
	budgetReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_budget_reservations_total",
		Help: "Budget reservation attempts by endpoint class and result",
	}, []string{"class", "result"})
)

// Table is the credential/endpoint budget table.
//
// TryReserve is the only mutating operation. It checks every requested class
// and, only if all are eligible, records now as their last dispatch time in
// one atomic step. Entries are updated at dispatch, not at completion, so an
// in-flight call still occupies its slot.
type Table interface {
	// IsEligible reports whether a call on (cred, class) is permitted at now.
	IsEligible(ctx context.Context, cred riot.Credential, class EndpointClass, now time.Time) (bool, error)

	// TryReserve atomically checks and reserves all classes for cred at now.
	TryReserve(ctx context.Context, cred riot.Credential, now time.Time, classes ...EndpointClass) (bool, error)
}

type budgetKey struct {
	cred  riot.Credential
	class EndpointClass
}

// Compile-time interface check.
var _ Table = (*MemoryTable)(nil)

// MemoryTable is an in-process Table. It is safe for concurrent use.
type MemoryTable struct {
	mu     sync.Mutex
	limits Limits
	last   map[budgetKey]time.Time
}

// NewMemoryTable creates an empty table using the given limits.
func NewMemoryTable(limits Limits) *MemoryTable {
	return &MemoryTable{
		limits: limits.Clone(),
		last:   make(map[budgetKey]time.Time),
	}
}

// IsEligible reports whether now is at least one interval after the last
// reservation. A key that was never reserved is eligible.
func (t *MemoryTable) IsEligible(_ context.Context, cred riot.Credential, class EndpointClass, now time.Time) (bool, error) {
	interval, err := t.limits.Interval(class)
	if err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eligibleLocked(budgetKey{cred, class}, interval, now), nil
}

// TryReserve reserves every class or none of them.
func (t *MemoryTable) TryReserve(_ context.Context, cred riot.Credential, now time.Time, classes ...EndpointClass) (bool, error) {
	intervals := make([]time.Duration, len(classes))
	for i, class := range classes {
		interval, err := t.limits.Interval(class)
		if err != nil {
			return false, err
		}
		intervals[i] = interval
	}

	t.mu.Lock()
	for i, class := range classes {
		if !t.eligibleLocked(budgetKey{cred, class}, intervals[i], now) {
			t.mu.Unlock()
			budgetReservationsTotal.WithLabelValues(string(class), "denied").Inc()
			return false, nil
		}
	}
	for _, class := range classes {
		t.last[budgetKey{cred, class}] = now
	}
	t.mu.Unlock()

	for _, class := range classes {
		budgetReservationsTotal.WithLabelValues(string(class), "reserved").Inc()
	}
	return true, nil
}

// LastReserved returns the last reservation time for (cred, class).
func (t *MemoryTable) LastReserved(cred riot.Credential, class EndpointClass) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[budgetKey{cred, class}]
	return last, ok
}

func (t *MemoryTable) eligibleLocked(key budgetKey, interval time.Duration, now time.Time) bool {
	last, ok := t.last[key]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}
