// Package ratelimit implements the per-(credential, endpoint class) budget
// table that gates every remote call made by the collector.
//
// The provider publishes limits of the form "N calls per T". The table
// converts each limit to a fixed minimum spacing T/N and applies it
// independently per credential, so adding credentials multiplies throughput
// linearly. No burst allowance is modeled.
package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownClass is returned when a class has no configured interval.
var ErrUnknownClass = errors.New("unknown endpoint class")

// EndpointClass groups remote operations that share one rate limit definition.
type EndpointClass string

const (
	// ClassLeague covers the league endpoints used during seed discovery.
	ClassLeague EndpointClass = "league"

	// ClassIdentity covers summoner lookups by encrypted summoner id.
	ClassIdentity EndpointClass = "identity"

	// ClassMatchHistory covers match id lists by puuid.
	ClassMatchHistory EndpointClass = "match_history"

	// ClassMatchRecord covers full match lookups by match id.
	ClassMatchRecord EndpointClass = "match_record"
)

// Classes returns every endpoint class in a stable order.
func Classes() []EndpointClass {
	return []EndpointClass{ClassLeague, ClassIdentity, ClassMatchHistory, ClassMatchRecord}
}

// DefaultInterval is the provider's development limit of 100 calls per two
// minutes, padded by one second.
const DefaultInterval = (2*time.Minute + time.Second) / 100

// Limits maps each endpoint class to its minimum inter-call interval.
type Limits map[EndpointClass]time.Duration

// DefaultLimits returns DefaultInterval for every class.
func DefaultLimits() Limits {
	return UniformLimits(DefaultInterval)
}

// UniformLimits returns interval for every class.
func UniformLimits(interval time.Duration) Limits {
	limits := make(Limits, len(Classes()))
	for _, class := range Classes() {
		limits[class] = interval
	}
	return limits
}

// IntervalFromLimit converts "calls per window" into a minimum spacing.
func IntervalFromLimit(calls int, per time.Duration) (time.Duration, error) {
	if calls <= 0 {
		return 0, fmt.Errorf("calls must be > 0 (got %d)", calls)
	}
	if per <= 0 {
		return 0, fmt.Errorf("window must be > 0 (got %s)", per)
	}
	return per / time.Duration(calls), nil
}

// Interval returns the configured interval for class.
func (l Limits) Interval(class EndpointClass) (time.Duration, error) {
	interval, ok := l[class]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	return interval, nil
}

// Validate checks that every class has a non-negative interval.
func (l Limits) Validate() error {
	for _, class := range Classes() {
		interval, ok := l[class]
		if !ok {
			return fmt.Errorf("%w: %q has no interval", ErrUnknownClass, class)
		}
		if interval < 0 {
			return fmt.Errorf("interval for %q must be >= 0 (got %s)", class, interval)
		}
	}
	return nil
}

// Clone returns an independent copy.
func (l Limits) Clone() Limits {
	out := make(Limits, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}
