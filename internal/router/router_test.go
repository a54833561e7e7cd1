package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pushwatch/internal/change"
	"pushwatch/internal/delivery"
	"pushwatch/internal/source"
	"pushwatch/pkg/logx"
)

type captureDeliverer struct {
	mu  sync.Mutex
	got []delivery.Notification
	ch  chan struct{}
}

func newCapture() *captureDeliverer { return &captureDeliverer{ch: make(chan struct{}, 16)} }

func (c *captureDeliverer) Deliver(_ context.Context, n delivery.Notification) error {
	c.mu.Lock()
	c.got = append(c.got, n)
	c.mu.Unlock()
	c.ch <- struct{}{}
	return nil
}

func (c *captureDeliverer) all() []delivery.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]delivery.Notification(nil), c.got...)
}

type countingClient struct {
	source.Client
	registrations map[string]int
}

func (c *countingClient) OnVideoState(entity string, h source.IntHandler) {
	c.registrations[entity]++
	c.Client.OnVideoState(entity, h)
}

var testNow = time.Date(2026, 1, 2, 20, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := testNow
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func testDirectory(t *testing.T) *delivery.Directory {
	t.Helper()
	dir, err := delivery.NewDirectory(map[string]string{"phone": "100", "tablet": "200"})
	require.NoError(t, err)
	return dir
}

func newTestRouter(t *testing.T, routes Routes, debounce time.Duration) (*Router, *source.Hub, *captureDeliverer) {
	t.Helper()
	hub := source.NewHub(logx.Nop(), 0)
	out := newCapture()
	r := New(Config{Debounce: debounce}, hub, out, WithClock(fixedClock()))
	require.NoError(t, r.Configure(routes, testDirectory(t)))
	return r, hub, out
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func TestTwoTargetsInOneWindowDeliverOnce(t *testing.T) {
	t.Parallel()
	r, hub, out := newTestRouter(t, Routes{
		"phone":  {"alice": {"rank"}},
		"tablet": {"alice": {"topic"}},
	}, time.Hour)

	hub.Apply(source.Observation{Entity: "alice", Rank: intp(5)})
	hub.Apply(source.Observation{Entity: "alice", Topic: strp("hello")})
	require.Equal(t, 2, r.Flush(context.Background()))

	got := out.all()
	require.Len(t, got, 1)
	require.Equal(t, []string{"100", "200"}, got[0].Targets)
	require.Equal(t, "PW: alice", got[0].Title)
	require.Equal(t, "[20:00:02] New topic: hello\n[20:00:01] Has moved to rank 5.", got[0].Body)
	require.NotEmpty(t, got[0].BatchID)
}

func TestWildcardTargetDominates(t *testing.T) {
	t.Parallel()
	r, hub, out := newTestRouter(t, Routes{
		delivery.AllTargets: {"alice": {"rank"}},
		"tablet":            {"alice": {"topic"}},
	}, time.Hour)

	hub.Apply(source.Observation{Entity: "alice", Rank: intp(5), Topic: strp("hi")})
	r.Flush(context.Background())

	got := out.all()
	require.Len(t, got, 1)
	require.True(t, got[0].All())
}

func TestRankFiltering(t *testing.T) {
	t.Parallel()
	r, hub, out := newTestRouter(t, Routes{"phone": {"alice": {"rank"}}}, time.Hour)

	hub.Apply(source.Observation{Entity: "alice", Rank: intp(0)})
	require.Zero(t, r.Flush(context.Background()))

	hub.Apply(source.Observation{Entity: "alice", Rank: intp(5)})
	hub.Apply(source.Observation{Entity: "alice", Rank: intp(0)})
	require.Equal(t, 2, r.Flush(context.Background()))

	got := out.all()
	require.Len(t, got, 1)
	require.Contains(t, got[0].Body, "Has moved from rank 5 to rank over 1000.")
	require.Contains(t, got[0].Body, "Has moved from rank over 1000 to rank 5.")
}

func TestOnlineEdgesOnly(t *testing.T) {
	t.Parallel()
	r, hub, out := newTestRouter(t, Routes{"phone": {"alice": {"onoff"}}}, time.Hour)

	for _, vs := range []int{127, 0, 90, 127} {
		hub.Apply(source.Observation{Entity: "alice", VideoState: intp(vs)})
	}
	require.Equal(t, 3, r.Flush(context.Background()))

	got := out.all()
	require.Len(t, got, 1)
	require.Equal(t,
		"[20:00:04] Is now off after 2 seconds on.\n"+
			"[20:00:02] Is now on after 1 second off.\n"+
			"[20:00:01] Is now off.",
		got[0].Body)
}

func TestVideoStatesSeedPriorState(t *testing.T) {
	t.Parallel()
	r, hub, out := newTestRouter(t, Routes{"phone": {"alice": {"video_states"}}}, time.Hour)

	hub.Apply(source.Observation{Entity: "alice", VideoState: intp(127)})
	hub.Apply(source.Observation{Entity: "alice", VideoState: intp(0)})
	r.Flush(context.Background())

	got := out.all()
	require.Len(t, got, 1)
	require.Equal(t,
		"[20:00:02] Is now in state FreeChat after 1 second in state Offline.\n"+
			"[20:00:01] Is now in state Offline.",
		got[0].Body)
}

func TestCountdownForwardedWithoutTopicSubscription(t *testing.T) {
	t.Parallel()
	r, hub, out := newTestRouter(t, Routes{"phone": {"alice": {"countdown_start"}}}, time.Hour)

	for _, topic := range []string{"[10] to go", "[8] to go", "[6] to go"} {
		hub.Apply(source.Observation{Entity: "alice", Topic: strp(topic)})
	}
	require.Equal(t, 1, r.Flush(context.Background()))

	got := out.all()
	require.Len(t, got, 1)
	require.Equal(t, "[20:00:03] Countdown detected, 6 remaining:\n[6] to go", got[0].Body)
}

func TestUnsubscribedEntityIgnored(t *testing.T) {
	t.Parallel()
	r, hub, out := newTestRouter(t, Routes{"phone": {"alice": {"all"}}}, time.Hour)

	hub.Apply(source.Observation{Entity: "bob", Rank: intp(3), Topic: strp("x")})
	require.Zero(t, r.Flush(context.Background()))
	require.Empty(t, out.all())
	require.Equal(t, []string{"alice"}, r.Entities())
}

func TestBurstFlushesOnceAfterDebounce(t *testing.T) {
	t.Parallel()
	_, hub, out := newTestRouter(t, Routes{"phone": {"alice": {"rank"}}}, 30*time.Millisecond)

	for _, rank := range []int{9, 8, 7} {
		hub.Apply(source.Observation{Entity: "alice", Rank: intp(rank)})
	}
	select {
	case <-out.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
	time.Sleep(60 * time.Millisecond)

	got := out.all()
	require.Len(t, got, 1)
	require.Equal(t,
		"[20:00:03] Has moved from rank 8 to rank 7.\n"+
			"[20:00:02] Has moved from rank 9 to rank 8.\n"+
			"[20:00:01] Has moved to rank 9.",
		got[0].Body)
}

func TestConfigureRegistersCallbacksOnce(t *testing.T) {
	t.Parallel()
	client := &countingClient{Client: source.NewHub(logx.Nop(), 0), registrations: map[string]int{}}
	r := New(Config{}, client, newCapture())
	dir := testDirectory(t)

	require.NoError(t, r.Configure(Routes{"phone": {"alice": {"rank"}}, "tablet": {"alice": {"topic"}}}, dir))
	require.NoError(t, r.Configure(Routes{"phone": {"alice": {"onoff"}}}, dir))
	require.Equal(t, 1, client.registrations["alice"])

	sub, ok := r.Subscription("alice")
	require.True(t, ok)
	target, ok := sub.Target(change.Rank)
	require.True(t, ok)
	require.Equal(t, "100", target)
}

func TestConfigureErrors(t *testing.T) {
	t.Parallel()
	dir := testDirectory(t)
	tests := []struct {
		name   string
		routes Routes
		want   error
	}{
		{name: "unknown kind", routes: Routes{"phone": {"alice": {"sparkles"}}}, want: ErrUnknownKind},
		{name: "empty kinds", routes: Routes{"phone": {"alice": {}}}, want: ErrEmptyKinds},
		{name: "unknown target", routes: Routes{"watch": {"alice": {"rank"}}}, want: delivery.ErrUnknownTarget},
		{name: "empty entity", routes: Routes{"phone": {"": {"rank"}}}, want: ErrNoEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := New(Config{}, source.NewHub(logx.Nop(), 0), newCapture())
			require.ErrorIs(t, r.Configure(tt.routes, dir), tt.want)
		})
	}
}
