package calendar

import (
	"cmp"
	"slices"
	"time"

	"github.com/rdleal/intervalst/interval"

	"calendarapp/internal/model"
)

// probeMargin widens tree lookups so boundary semantics are decided by the
// exact filters in overlaps / intersects, not by the tree.
const probeMargin = time.Minute

type spanKey struct {
	start int64
	end   int64
}

type indexed struct {
	occ model.Occurrence
	seq int
}

// occurrenceIndex is an interval search tree over occurrences. Occurrences
// sharing identical bounds share one tree node and are kept in a bucket.
type occurrenceIndex struct {
	tree      *interval.SearchTree[spanKey, time.Time]
	buckets   map[spanKey][]indexed
	unindexed []indexed
	seq       int
}

func newOccurrenceIndex() *occurrenceIndex {
	return &occurrenceIndex{
		tree:    interval.NewSearchTree[spanKey](func(x, y time.Time) int { return x.Compare(y) }),
		buckets: make(map[spanKey][]indexed),
	}
}

// add indexes every occurrence of e. seq preserves insertion order so that
// equal start times sort stably.
func (ix *occurrenceIndex) add(e Entry) {
	for _, o := range e.Occurrences() {
		item := indexed{occ: o, seq: ix.seq}
		ix.seq++

		key := spanKey{start: o.Start.UnixNano(), end: o.End.UnixNano()}
		if _, ok := ix.buckets[key]; ok {
			ix.buckets[key] = append(ix.buckets[key], item)
			continue
		}
		if err := ix.tree.Insert(o.Start, o.End, key); err != nil {
			ix.unindexed = append(ix.unindexed, item)
			continue
		}
		ix.buckets[key] = []indexed{item}
	}
}

// candidates returns every occurrence that may touch [start, end], in
// insertion order. Callers apply the exact rule.
func (ix *occurrenceIndex) candidates(start, end time.Time) []indexed {
	keys, _ := ix.tree.AllIntersections(start.Add(-probeMargin), end.Add(probeMargin))
	out := append([]indexed(nil), ix.unindexed...)
	for _, k := range keys {
		out = append(out, ix.buckets[k]...)
	}
	slices.SortFunc(out, func(a, b indexed) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

// within returns occurrences intersecting [start, end] inclusively, sorted
// by start time with insertion order breaking ties.
func (ix *occurrenceIndex) within(start, end time.Time) []model.Occurrence {
	var hits []indexed
	for _, c := range ix.candidates(start, end) {
		if intersects(c.occ.Start, c.occ.End, start, end) {
			hits = append(hits, c)
		}
	}
	slices.SortFunc(hits, func(a, b indexed) int {
		if c := a.occ.Start.Compare(b.occ.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]model.Occurrence, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.occ)
	}
	return out
}

// overlapping reports whether any indexed occurrence overlaps [start, end)
// under the exclusive conflict rule.
func (ix *occurrenceIndex) overlapping(start, end time.Time) bool {
	for _, c := range ix.candidates(start, end) {
		if overlaps(c.occ.Start, c.occ.End, start, end) {
			return true
		}
	}
	return false
}
