package inbox

import (
	"sort"

	"strathyterm/internal/model"
)

// Merge folds an incoming snapshot into the existing store, keyed by thread
// id, and returns a new store sorted by ReceivedAt descending. Neither input
// is modified.
//
// For a thread present on both sides the incoming record wins field by field
// except:
//   - Status: the higher-ranked status wins (ties keep the existing one).
//   - AIReply, AIRepliedAt: the existing value wins when set.
//   - Messages: the incoming history wins unless it is empty.
//
// Merging a sorted store with itself returns an equal store.
func Merge(existing, incoming []model.Thread) []model.Thread {
	out := make([]model.Thread, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	add := func(t model.Thread) {
		if i, ok := index[t.ID]; ok {
			out[i] = mergeThread(out[i], t)
			return
		}
		index[t.ID] = len(out)
		out = append(out, t)
	}
	for _, t := range existing {
		add(t)
	}
	for _, t := range incoming {
		add(t)
	}

	SortByReceived(out)
	return out
}

func mergeThread(prev, next model.Thread) model.Thread {
	m := next
	if next.Status.Rank() <= prev.Status.Rank() {
		m.Status = prev.Status
	}
	if prev.AIReply != "" {
		m.AIReply = prev.AIReply
	}
	if !prev.AIRepliedAt.IsZero() {
		m.AIRepliedAt = prev.AIRepliedAt
	}
	if len(next.Messages) == 0 {
		m.Messages = prev.Messages
	}
	return m
}

// Reconcile merges a full refresh and then ages out threads the refresh did
// not return. Each missing thread's StalePolls is incremented (returned ones
// reset to 0); when evictAfter > 0 a thread is dropped once it has been
// missing for evictAfter consecutive refreshes. evictAfter <= 0 keeps stale
// threads indefinitely.
func Reconcile(existing, incoming []model.Thread, evictAfter int) []model.Thread {
	seen := make(map[string]struct{}, len(incoming))
	for _, t := range incoming {
		seen[t.ID] = struct{}{}
	}

	merged := Merge(existing, incoming)
	out := merged[:0]
	for _, t := range merged {
		if _, ok := seen[t.ID]; ok {
			t.StalePolls = 0
		} else {
			t.StalePolls++
		}
		if evictAfter > 0 && t.StalePolls >= evictAfter {
			continue
		}
		out = append(out, t)
	}
	return out
}

// SortByReceived orders threads newest first. Ties keep insertion order.
func SortByReceived(threads []model.Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].ReceivedAt.After(threads[j].ReceivedAt)
	})
}
