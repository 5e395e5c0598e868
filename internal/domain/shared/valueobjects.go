// Package shared contains common domain types, errors, events, and value objects.
package shared

import (
	"math"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Percent
// ─────────────────────────────────────────────────────────────────────────────

// Percent is a completion percentage in [0, 100]. Module and course roll-ups
// are always stored as Percent, never as raw ratios.
type Percent int

// IsValid reports whether the percentage is within [0, 100].
func (p Percent) IsValid() bool {
	return p >= 0 && p <= 100
}

// Int returns the percentage as a plain int.
func (p Percent) Int() int {
	return int(p)
}

// IsComplete reports whether the percentage represents full completion.
func (p Percent) IsComplete() bool {
	return p == 100
}

// NewPercent validates and creates a Percent.
func NewPercent(v int) (Percent, error) {
	p := Percent(v)
	if !p.IsValid() {
		return 0, ErrValueOutOfRange
	}
	return p, nil
}

// RatioPercent converts completed/total into a Percent using round-half-up,
// matching learner-facing expectations (1/3 of lessons shows as 33%, 2/3 as
// 67%). A zero total yields 0.
func RatioPercent(completed, total int) Percent {
	if total <= 0 {
		return 0
	}
	return Percent(int(math.Round(100 * float64(completed) / float64(total))))
}

// ─────────────────────────────────────────────────────────────────────────────
// Ordem
// ─────────────────────────────────────────────────────────────────────────────

// Ordem is the position of a module within a course or of a lesson within a
// module. The original catalog stores it as "ordem"; it is unique within its
// parent and drives the "next lesson" resolution.
type Ordem int

// IsValid reports whether the order value is positive.
func (o Ordem) IsValid() bool {
	return o > 0
}

// Int returns the order as a plain int.
func (o Ordem) Int() int {
	return int(o)
}

// Before reports whether o sorts before other.
func (o Ordem) Before(other Ordem) bool {
	return o < other
}

// ─────────────────────────────────────────────────────────────────────────────
// Identifiers
// ─────────────────────────────────────────────────────────────────────────────

// ID is a generic entity identifier. Catalog IDs come from the catalog
// subsystem as opaque strings; grant and request IDs are UUIDs minted here.
type ID string

// IsValid reports whether the ID is non-empty after trimming.
func (id ID) IsValid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// String returns the ID as a string.
func (id ID) String() string {
	return string(id)
}

// NewID validates and creates an ID.
func NewID(raw string) (ID, error) {
	id := ID(strings.TrimSpace(raw))
	if !id.IsValid() {
		return "", ErrInvalidID
	}
	return id, nil
}
