package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/krskas/slack-task-tracker/internal/catalog"
	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/engine"
	"github.com/krskas/slack-task-tracker/internal/store/memory"
)

var propertyEmoji = []string{"eyes", "hammer", "mag", "white_check_mark", "tada", "thumbsup"}

func drawEvent(rt *rapid.T, i int) domain.ReactionEvent {
	dir := domain.Added
	if rapid.Bool().Draw(rt, fmt.Sprintf("removed_%d", i)) {
		dir = domain.Removed
	}
	return domain.ReactionEvent{
		Emoji:     rapid.SampledFrom(propertyEmoji).Draw(rt, fmt.Sprintf("emoji_%d", i)),
		User:      rapid.SampledFrom([]string{"U1", "U2", "U3"}).Draw(rt, fmt.Sprintf("user_%d", i)),
		Channel:   "C1",
		MessageTS: rapid.SampledFrom([]string{"1.0", "2.0"}).Draw(rt, fmt.Sprintf("ts_%d", i)),
		Direction: dir,
	}
}

func TestProperty_EntryInvariant(t *testing.T) {
	cat, err := catalog.New(catalog.DefaultStates())
	if err != nil {
		t.Fatal(err)
	}
	rapid.Check(t, func(rt *rapid.T) {
		st := memory.New()
		e := engine.New(cat, st)
		n := rapid.IntRange(1, 20).Draw(rt, "num_events")
		for i := 0; i < n; i++ {
			ev := drawEvent(rt, i)
			ev.Direction = domain.Added
			if ev.Emoji == "eyes" {
				continue
			}
			if _, err := e.Handle(context.Background(), ev); err != nil {
				rt.Fatalf("handle: %v", err)
			}
		}
		if got := len(st.All()); got != 0 {
			rt.Fatalf("non-entry reactions created %d tasks", got)
		}
	})
}

func TestProperty_StateMachine(t *testing.T) {
	cat, err := catalog.New(catalog.DefaultStates())
	if err != nil {
		t.Fatal(err)
	}
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		st := &recordingStore{Store: memory.New()}
		clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		e := engine.New(cat, st, engine.WithClock(clk.now))

		n := rapid.IntRange(1, 40).Draw(rt, "num_events")
		for i := 0; i < n; i++ {
			ev := drawEvent(rt, i)
			before, _ := st.Find(ctx, ev.Key())
			pairsBefore := len(st.pairs)

			d, err := e.Handle(ctx, ev)
			if err != nil {
				rt.Fatalf("handle: %v", err)
			}
			after, _ := st.Find(ctx, ev.Key())

			// every forward move follows the transition graph
			if ev.Direction == domain.Added {
				for _, p := range st.pairs[pairsBefore:] {
					if !cat.TransitionAllowed(p[0], p[1]) {
						rt.Fatalf("added %s moved %s -> %s", ev.Emoji, p[0], p[1])
					}
				}
			}

			// entering a terminal state stamps completion with the actor
			if d.Action == engine.ActionTransition && d.State.IsTerminal {
				if after.CompletedAt == nil || after.CompletedBy != ev.User {
					rt.Fatalf("terminal transition without completion stamp: %+v", after)
				}
			}

			// reverting keeps whatever completion was there
			if d.Action == engine.ActionRevert && before.CompletedAt != nil {
				if after.CompletedAt == nil || !after.CompletedAt.Equal(*before.CompletedAt) || after.CompletedBy != before.CompletedBy {
					rt.Fatalf("revert changed completion: before %+v after %+v", before, after)
				}
			}

			// removing a reaction that does not govern the status changes nothing
			if ev.Direction == domain.Removed && before != nil {
				if state, ok := cat.ByEmoji(ev.Emoji); ok && state.Name != before.Status {
					if after == nil || *after != *before {
						rt.Fatalf("non-authoritative removal mutated task: before %+v after %+v", before, after)
					}
				}
			}

			// creation happens only in the entry state
			if before == nil && after != nil && after.Status != cat.Entry().Name {
				rt.Fatalf("task born in %q", after.Status)
			}
		}
	})
}

func TestProperty_EntryReactionIdempotent(t *testing.T) {
	cat, err := catalog.New(catalog.DefaultStates())
	if err != nil {
		t.Fatal(err)
	}
	rapid.Check(t, func(rt *rapid.T) {
		st := memory.New()
		e := engine.New(cat, st)
		repeats := rapid.IntRange(2, 5).Draw(rt, "repeats")
		for i := 0; i < repeats; i++ {
			user := rapid.SampledFrom([]string{"U1", "U2"}).Draw(rt, fmt.Sprintf("user_%d", i))
			if _, err := e.Handle(context.Background(), ev("eyes", user, domain.Added)); err != nil {
				rt.Fatalf("handle: %v", err)
			}
		}
		if got := len(st.All()); got != 1 {
			rt.Fatalf("want exactly one task, got %d", got)
		}
	})
}
