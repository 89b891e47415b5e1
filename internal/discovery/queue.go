package discovery

import (
	"container/heap"
	"strings"
)

// Queue is a priority queue of search queries. Higher priority pops first
// and equal priorities pop in push order. It accepts at most limit queries
// over its lifetime and ignores repeats, so a run never issues more than
// limit searches per source.
type Queue struct {
	items    queryHeap
	seen     map[string]bool
	limit    int
	accepted int
}

// NewQueue creates a queue that accepts at most limit queries. A limit of
// zero or less means no cap.
func NewQueue(limit int) *Queue {
	return &Queue{seen: make(map[string]bool), limit: limit}
}

// Push adds q and reports whether it was accepted.
func (qu *Queue) Push(q Query) bool {
	if strings.TrimSpace(q.Term) == "" {
		return false
	}
	k := q.key()
	if qu.seen[k] {
		return false
	}
	if qu.limit > 0 && qu.accepted >= qu.limit {
		return false
	}
	qu.seen[k] = true
	q.seq = qu.accepted
	qu.accepted++
	heap.Push(&qu.items, q)
	return true
}

// Pop removes the highest-priority query.
func (qu *Queue) Pop() (Query, bool) {
	if len(qu.items) == 0 {
		return Query{}, false
	}
	return heap.Pop(&qu.items).(Query), true
}

// Len returns the number of queued queries.
func (qu *Queue) Len() int {
	return len(qu.items)
}

type queryHeap []Query

func (h queryHeap) Len() int { return len(h) }

func (h queryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h queryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *queryHeap) Push(x any) { *h = append(*h, x.(Query)) }

func (h *queryHeap) Pop() any {
	old := *h
	n := len(old)
	q := old[n-1]
	*h = old[:n-1]
	return q
}

// BuildQueries expands a term and location into prioritized queries: the
// plain term first, then each modifier, then the bare city when the
// location carries a state.
func BuildQueries(term, location string, modifiers []string) []Query {
	term = strings.TrimSpace(term)
	location = strings.TrimSpace(location)
	if term == "" {
		return nil
	}

	n := len(modifiers) + 1
	out := []Query{{Term: term, Location: location, Priority: n + 1}}
	for i, m := range modifiers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		out = append(out, Query{Term: m + " " + term, Location: location, Priority: n - i})
	}

	if city, _, ok := strings.Cut(location, ","); ok {
		if city = strings.TrimSpace(city); city != "" {
			out = append(out, Query{Term: term, Location: city, Priority: 0})
		}
	}
	return out
}
