// Package numbering produces human-facing request numbers of the form
// PREFIX-YYYYMMDD-NNNN, where NNNN restarts at 0001 every calendar day in the
// configured timezone.
package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dayLayout = "20060102"

// Sequencer hands out the next per-day counter value. It must be atomic with
// respect to concurrent callers; store.Tx satisfies it.
type Sequencer interface {
	NextSequence(ctx context.Context, day string) (int, error)
}

// Allocator formats numbers from a Sequencer.
type Allocator struct {
	prefix string
	loc    *time.Location
}

// NewAllocator returns an allocator for prefix whose day boundary follows loc.
// A nil loc means time.Local.
func NewAllocator(prefix string, loc *time.Location) *Allocator {
	if loc == nil {
		loc = time.Local
	}
	return &Allocator{prefix: prefix, loc: loc}
}

// Prefix returns the configured prefix.
func (a *Allocator) Prefix() string {
	return a.prefix
}

// DayKey returns the counter key for now in the allocator's timezone.
func (a *Allocator) DayKey(now time.Time) string {
	return now.In(a.loc).Format(dayLayout)
}

// Allocate reserves the next number for the day containing now.
func (a *Allocator) Allocate(ctx context.Context, seq Sequencer, now time.Time) (string, error) {
	day := a.DayKey(now)
	n, err := seq.NextSequence(ctx, day)
	if err != nil {
		return "", err
	}
	if n <= 0 {
		return "", fmt.Errorf("sequence for %s returned %d", day, n)
	}
	return a.prefix + "-" + day + "-" + fmt.Sprintf("%04d", n), nil
}

// Number is a parsed request number.
type Number struct {
	Prefix   string
	Day      time.Time
	Sequence int
}

// Parse splits a request number into its parts. The day is returned at
// midnight in loc; a nil loc means UTC.
func Parse(value string, loc *time.Location) (Number, error) {
	if loc == nil {
		loc = time.UTC
	}
	parts := strings.Split(value, "-")
	if len(parts) != 3 {
		return Number{}, fmt.Errorf("request number %q: expected PREFIX-YYYYMMDD-NNNN", value)
	}
	if parts[0] == "" {
		return Number{}, fmt.Errorf("request number %q: empty prefix", value)
	}
	day, err := time.ParseInLocation(dayLayout, parts[1], loc)
	if err != nil {
		return Number{}, fmt.Errorf("request number %q: bad date: %w", value, err)
	}
	if len(parts[2]) < 4 {
		return Number{}, fmt.Errorf("request number %q: sequence must have at least four digits", value)
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq <= 0 {
		return Number{}, fmt.Errorf("request number %q: bad sequence", value)
	}
	return Number{Prefix: parts[0], Day: day, Sequence: seq}, nil
}
