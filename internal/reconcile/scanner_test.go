package reconcile_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/krskas/slack-task-tracker/internal/catalog"
	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/reconcile"
	"github.com/krskas/slack-task-tracker/internal/store/memory"
)

// ── mocks ────────────────────────────────────────────────────────────────────

type fakeHistory struct {
	messages map[string][]domain.ChatMessage
	errs     map[string]error
	channels []domain.Channel
	listErr  error

	oldest time.Time
	max    int
}

func (h *fakeHistory) History(_ context.Context, channel string, oldest time.Time, max int) ([]domain.ChatMessage, error) {
	h.oldest, h.max = oldest, max
	if err := h.errs[channel]; err != nil {
		return nil, err
	}
	return h.messages[channel], nil
}

func (h *fakeHistory) MemberChannels(context.Context) ([]domain.Channel, error) {
	return h.channels, h.listErr
}

type fakeNotifier struct{ notices []domain.Notice }

func (n *fakeNotifier) Notify(_ context.Context, notice domain.Notice) error {
	n.notices = append(n.notices, notice)
	return nil
}

var (
	_ reconcile.History  = (*fakeHistory)(nil)
	_ reconcile.Notifier = (*fakeNotifier)(nil)
)

// ── helpers ──────────────────────────────────────────────────────────────────

func defaultCatalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(catalog.DefaultStates())
	require.NoError(t, err)
	return c
}

func msg(ts, user string, reactions ...domain.Reaction) domain.ChatMessage {
	return domain.ChatMessage{TS: ts, User: user, Text: "do the thing", Reactions: reactions}
}

func r(name string, count int) domain.Reaction { return domain.Reaction{Name: name, Count: count} }

func keys(tasks []domain.Task) []string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.Key().String())
	}
	sort.Strings(out)
	return out
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// ── tests ────────────────────────────────────────────────────────────────────

func TestFirstState(t *testing.T) {
	cat := defaultCatalog(t)

	tests := []struct {
		name      string
		reactions []domain.Reaction
		want      string
		wantOK    bool
	}{
		{"none", nil, "", false},
		{"only unknown", []domain.Reaction{r("tada", 1)}, "", false},
		{"single entry", []domain.Reaction{r("tada", 3), r("eyes", 1)}, "open", true},
		{"fewest reactors wins", []domain.Reaction{r("eyes", 2), r("hammer", 1)}, "working", true},
		{"tie keeps platform order", []domain.Reaction{r("eyes", 1), r("hammer", 1)}, "open", true},
		{"tie keeps platform order reversed", []domain.Reaction{r("mag", 1), r("eyes", 1)}, "review", true},
		{"skin tone suffix", []domain.Reaction{r("eyes::skin-tone-2", 1)}, "open", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := reconcile.FirstState(cat, tt.reactions)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, st.Name)
		})
	}
}

func TestScanChannel_CreatesOnlyEntryQualified(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	notes := &fakeNotifier{}
	hist := &fakeHistory{messages: map[string][]domain.ChatMessage{
		"C1": {
			msg("1.0", "U1", r("eyes", 1)),
			msg("2.0", "U2", r("mag", 1)),
			msg("3.0", "U3", r("tada", 4)),
			msg("4.0", "", r("eyes", 1)),
			msg("5.0", "U5"),
			msg("6.0", "U6", r("hammer", 2), r("eyes", 1)),
		},
	}}
	s := reconcile.NewScanner(defaultCatalog(t), st, hist,
		reconcile.WithClock(func() time.Time { return fixedNow }),
		reconcile.WithNotifier(notes),
	)

	res, err := s.ScanChannel(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.NotEntry)
	assert.Equal(t, []string{"C1:1.0", "C1:6.0"}, keys(st.All()))

	task, err := st.Find(ctx, domain.TaskKey{Channel: "C1", MessageTS: "6.0"})
	require.NoError(t, err)
	assert.Equal(t, "open", task.Status)
	assert.Equal(t, "U6", task.Author)
	assert.Equal(t, "U6", task.StateChangedBy)
	assert.Equal(t, fixedNow, task.CreatedAt)

	assert.Equal(t, fixedNow.Add(-reconcile.DefaultLookback), hist.oldest)
	assert.Equal(t, reconcile.DefaultMaxMessages, hist.max)

	require.Len(t, notes.notices, 2)
	assert.Equal(t, domain.OriginReconcile, notes.notices[0].Origin)
}

func TestScanChannel_NeverTouchesTrackedTasks(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, err := st.Create(ctx, &domain.Task{Channel: "C1", MessageTS: "1.0", Author: "U9", Status: "working"})
	require.NoError(t, err)

	hist := &fakeHistory{messages: map[string][]domain.ChatMessage{
		"C1": {msg("1.0", "U1", r("eyes", 1))},
	}}
	s := reconcile.NewScanner(defaultCatalog(t), st, hist)

	res, err := s.ScanChannel(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.AlreadyTracked)

	task, _ := st.Find(ctx, domain.TaskKey{Channel: "C1", MessageTS: "1.0"})
	assert.Equal(t, "working", task.Status)
	assert.Equal(t, "U9", task.Author)
}

func TestScanAllChannels_CreatesOnlyWhereUntracked(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, err := st.Create(ctx, &domain.Task{Channel: "A", MessageTS: "M", Status: "open"})
	require.NoError(t, err)

	hist := &fakeHistory{
		channels: []domain.Channel{{ID: "A", Name: "alpha"}, {ID: "B", Name: "beta"}},
		messages: map[string][]domain.ChatMessage{
			"A": {msg("M", "U1", r("eyes", 1))},
			"B": {msg("M", "U1", r("eyes", 1))},
		},
	}
	s := reconcile.NewScanner(defaultCatalog(t), st, hist)

	res, err := s.ScanAllChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Channels)
	assert.Equal(t, 1, res.Created())
	assert.Equal(t, []string{"A:M", "B:M"}, keys(st.All()))
}

func TestScanAllChannels_ContinuesPastFailures(t *testing.T) {
	st := memory.New()
	hist := &fakeHistory{
		channels: []domain.Channel{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		messages: map[string][]domain.ChatMessage{
			"C": {msg("1.0", "U1", r("eyes", 1))},
		},
		errs: map[string]error{
			"A": &domain.NotInChannelError{Channel: "A", Reason: "not_in_channel"},
			"B": errors.New("ratelimited"),
		},
	}
	s := reconcile.NewScanner(defaultCatalog(t), st, hist)

	res, err := s.ScanAllChannels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, res.Failed)
	assert.Equal(t, 1, res.Created())
}

func TestScanAllChannels_ListFailure(t *testing.T) {
	hist := &fakeHistory{listErr: errors.New("invalid_auth")}
	_, err := reconcile.NewScanner(defaultCatalog(t), memory.New(), hist).ScanAllChannels(context.Background())
	require.Error(t, err)
}

func TestScanChannel_HistoryErrorKeepsType(t *testing.T) {
	hist := &fakeHistory{errs: map[string]error{"C1": &domain.NotInChannelError{Channel: "C1", Reason: "not_in_channel"}}}
	_, err := reconcile.NewScanner(defaultCatalog(t), memory.New(), hist).ScanChannel(context.Background(), "C1")
	assert.True(t, domain.IsNotInChannel(err))
}

func TestProperty_ScanTwiceEqualsScanOnce(t *testing.T) {
	cat := defaultCatalog(t)
	emoji := []string{"eyes", "hammer", "mag", "white_check_mark", "tada"}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 15).Draw(rt, "num_messages")
		var msgs []domain.ChatMessage
		for i := 0; i < n; i++ {
			var reactions []domain.Reaction
			k := rapid.IntRange(0, 3).Draw(rt, "num_reactions")
			for j := 0; j < k; j++ {
				reactions = append(reactions, r(
					rapid.SampledFrom(emoji).Draw(rt, "emoji"),
					rapid.IntRange(1, 4).Draw(rt, "count"),
				))
			}
			msgs = append(msgs, msg(rapid.StringMatching(`[1-5]\.0`).Draw(rt, "ts"), "U1", reactions...))
		}
		hist := &fakeHistory{messages: map[string][]domain.ChatMessage{"C1": msgs}}

		once := memory.New()
		twice := memory.New()
		clk := func() time.Time { return fixedNow }
		a := reconcile.NewScanner(cat, once, hist, reconcile.WithClock(clk))
		b := reconcile.NewScanner(cat, twice, hist, reconcile.WithClock(clk))

		if _, err := a.ScanChannel(context.Background(), "C1"); err != nil {
			rt.Fatal(err)
		}
		for i := 0; i < 2; i++ {
			if _, err := b.ScanChannel(context.Background(), "C1"); err != nil {
				rt.Fatal(err)
			}
		}

		ka, kb := keys(once.All()), keys(twice.All())
		if len(ka) != len(kb) {
			rt.Fatalf("once %v, twice %v", ka, kb)
		}
		for i := range ka {
			if ka[i] != kb[i] {
				rt.Fatalf("once %v, twice %v", ka, kb)
			}
		}
	})
}
