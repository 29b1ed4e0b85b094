package inbox

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"strathyterm/internal/model"
)

var allStatuses = []model.Status{
	model.StatusNew,
	model.StatusPending,
	model.StatusBlocked,
	model.StatusEscalated,
	model.StatusReplied,
}

var epoch = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func genStore(statuses []int, offsets []int) []model.Thread {
	n := min(len(statuses), len(offsets))
	out := make([]model.Thread, 0, n)
	for i := 0; i < n; i++ {
		t := model.Thread{
			ID:         fmt.Sprintf("t%d", i),
			Subject:    fmt.Sprintf("subject %d", i),
			Status:     allStatuses[statuses[i]],
			ReceivedAt: epoch.Add(time.Duration(offsets[i]) * time.Minute),
		}
		if i%2 == 0 {
			t.Messages = []model.Message{{ID: fmt.Sprintf("m%d", i), Role: model.RoleStudent, Body: "hello"}}
		}
		out = append(out, t)
	}
	SortByReceived(out)
	return out
}

func TestProperty_MergeStatusMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("merged status has the higher rank", prop.ForAll(
		func(a, b int) bool {
			e := model.Thread{ID: "x", Status: allStatuses[a], ReceivedAt: epoch}
			i := model.Thread{ID: "x", Status: allStatuses[b], ReceivedAt: epoch.Add(time.Minute)}
			got := Merge([]model.Thread{e}, []model.Thread{i})
			if len(got) != 1 {
				return false
			}
			return got[0].Status.Rank() == max(e.Status.Rank(), i.Status.Rank())
		},
		gen.IntRange(0, len(allStatuses)-1),
		gen.IntRange(0, len(allStatuses)-1),
	))

	properties.TestingRun(t)
}

func TestProperty_MergeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("merge(S, S) == S", prop.ForAll(
		func(statuses, offsets []int) bool {
			s := genStore(statuses, offsets)
			return reflect.DeepEqual(Merge(s, s), s)
		},
		gen.SliceOf(gen.IntRange(0, len(allStatuses)-1)),
		gen.SliceOf(gen.IntRange(0, 10000)),
	))

	properties.TestingRun(t)
}

func TestProperty_MergeKeepsHistory(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("empty incoming history keeps existing history", prop.ForAll(
		func(n int, body string) bool {
			msgs := make([]model.Message, n)
			for i := range msgs {
				msgs[i] = model.Message{ID: fmt.Sprintf("m%d", i), Role: model.RoleStudent, Body: body}
			}
			e := model.Thread{ID: "x", Messages: msgs}
			i := model.Thread{ID: "x", Subject: "updated"}
			got := Merge([]model.Thread{e}, []model.Thread{i})
			return len(got) == 1 && reflect.DeepEqual(got[0].Messages, msgs) && got[0].Subject == "updated"
		},
		gen.IntRange(1, 8),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestProperty_AutomatedReplyDedup(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("applying a reply twice adds one assistant message", prop.ForAll(
		func(reply string, byID bool) bool {
			store := []model.Thread{
				{ID: "t1", Subject: "Fees", Messages: []model.Message{{ID: "m1", Role: model.RoleStudent, Body: "?"}}},
				{ID: "t2", Subject: "Other"},
			}
			ev := model.AutomatedReply{Subject: "Fees", ReplyBody: reply, SentAt: epoch}
			if byID {
				ev = model.AutomatedReply{ThreadID: "t1", ReplyBody: reply, SentAt: epoch}
			}
			once := ApplyAutomatedReply(store, ev, epoch)
			twice := ApplyAutomatedReply(once, ev, epoch)

			count := 0
			for _, m := range twice[0].Messages {
				if m.Role == model.RoleAssistant && m.Body == reply {
					count++
				}
			}
			return count == 1 &&
				twice[0].Status == model.StatusReplied &&
				len(twice[1].Messages) == 0 &&
				len(store[0].Messages) == 1
		},
		gen.Identifier(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
