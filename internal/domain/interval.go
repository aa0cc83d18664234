package domain

import (
	"sort"
	"time"
)

// Interval is a half-open time span [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely within iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// SubtractIntervals removes every busy interval from the free set and returns
// the remaining free intervals, ordered by start time. Inputs need not be
// sorted; zero-length remainders are dropped.
func SubtractIntervals(free, busy []Interval) []Interval {
	out := make([]Interval, 0, len(free))
	for _, f := range free {
		if !f.End.After(f.Start) {
			continue
		}
		out = append(out, f)
	}

	for _, b := range busy {
		if !b.End.After(b.Start) {
			continue
		}
		next := make([]Interval, 0, len(out)+1)
		for _, f := range out {
			if !f.Overlaps(b) {
				next = append(next, f)
				continue
			}
			if b.Start.After(f.Start) {
				next = append(next, Interval{Start: f.Start, End: b.Start})
			}
			if b.End.Before(f.End) {
				next = append(next, Interval{Start: b.End, End: f.End})
			}
		}
		out = next
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// SliceSlots cuts each free interval into candidate slots of the given size,
// stepping by granularity. Candidates that would spill past the end of their
// free interval are discarded.
func SliceSlots(free []Interval, size, granularity time.Duration) []Interval {
	if size <= 0 {
		return nil
	}
	if granularity <= 0 {
		granularity = size
	}

	var slots []Interval
	for _, f := range free {
		for cur := alignUp(f.Start, granularity); !cur.Add(size).After(f.End); cur = cur.Add(granularity) {
			slots = append(slots, Interval{Start: cur, End: cur.Add(size)})
		}
	}
	return slots
}

// alignUp rounds t up to the next multiple of granularity since midnight of
// t's day, in t's location.
func alignUp(t time.Time, granularity time.Duration) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := t.Sub(midnight)
	rem := offset % granularity
	if rem == 0 {
		return t
	}
	return midnight.Add(offset - rem + granularity)
}
