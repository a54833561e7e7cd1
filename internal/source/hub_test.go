package source

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pushwatch/pkg/logx"
)

type intCall struct {
	entity        string
	before, after *int
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func TestHubReportsBeforeAndAfter(t *testing.T) {
	t.Parallel()
	h := NewHub(logx.Nop(), 0)
	var calls []intCall
	h.OnVideoState("alice", func(entity string, before, after *int) {
		calls = append(calls, intCall{entity, before, after})
	})

	h.Apply(Observation{Entity: "alice", VideoState: intp(127)})
	h.Apply(Observation{Entity: "alice", VideoState: intp(127)})
	h.Apply(Observation{Entity: "alice", VideoState: intp(0)})
	h.Apply(Observation{Entity: "bob", VideoState: intp(0)})

	require.Len(t, calls, 2)
	require.Nil(t, calls[0].before)
	require.Equal(t, 127, *calls[0].after)
	require.Equal(t, 127, *calls[1].before)
	require.Equal(t, 0, *calls[1].after)
}

func TestHubTopicAndRank(t *testing.T) {
	t.Parallel()
	h := NewHub(logx.Nop(), 0)
	var topics []string
	var ranks []int
	h.OnTopic("alice", func(_ string, _, after *string) { topics = append(topics, *after) })
	h.OnRank("alice", func(_ string, _, after *int) { ranks = append(ranks, *after) })

	h.Apply(Observation{Entity: "alice", Topic: strp("hello"), Rank: intp(5)})
	h.Apply(Observation{Entity: "alice", Topic: strp("hello"), Rank: intp(0)})
	h.Apply(Observation{Entity: "alice", Topic: strp("")})

	require.Equal(t, []string{"hello", ""}, topics)
	require.Equal(t, []int{5, 0}, ranks)
}

func TestHubRunDispatchesSerially(t *testing.T) {
	t.Parallel()
	h := NewHub(logx.Nop(), 4)
	var (
		mu  sync.Mutex
		got []int
	)
	done := make(chan struct{})
	h.OnRank("alice", func(_ string, _, after *int) {
		mu.Lock()
		got = append(got, *after)
		n := len(got)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()

	for _, r := range []int{1, 2, 3} {
		require.NoError(t, h.Publish(ctx, Observation{Entity: "alice", Rank: intp(r)}))
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, got)

	h.Close()
	require.ErrorIs(t, h.Publish(ctx, Observation{Entity: "alice"}), ErrHubClosed)
}

type recordingPublisher struct{ obs []Observation }

func (p *recordingPublisher) Publish(_ context.Context, obs Observation) error {
	p.obs = append(p.obs, obs)
	return nil
}

func TestReplay(t *testing.T) {
	t.Parallel()
	input := `{"entity":"alice","video_state":127}
{"entity":"alice","video_state":0,"wait":"1ms"}
{"entity":"alice","topic":"[10] tokens left"}
`
	var p recordingPublisher
	n, err := Replay(context.Background(), strings.NewReader(input), &p)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 0, *p.obs[1].VideoState)
	require.Equal(t, "[10] tokens left", *p.obs[2].Topic)
}

func TestReplayRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	var p recordingPublisher
	n, err := Replay(context.Background(), strings.NewReader(`{"entity":"a","rank":1}
{"entity":"a","colour":"red"}`), &p)
	require.Error(t, err)
	require.Equal(t, 1, n)
}
