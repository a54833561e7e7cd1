package countdown

import (
	"reflect"
	"testing"
)

func observeAll(e *Engine, topics ...string) []Event {
	var out []Event
	prev := ""
	for _, t := range topics {
		out = append(out, e.Observe(prev, t)...)
		prev = t
	}
	return out
}

func TestExtractNumbers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []int
	}{
		{in: "", want: nil},
		{in: "no digits", want: nil},
		{in: "10 tokens left", want: []int{10}},
		{in: "5 viewers, goal 10", want: []int{5, 10}},
		{in: "a1b22c333", want: []int{1, 22, 333}},
		{in: "007", want: []int{7}},
	}
	for _, tt := range tests {
		if got := ExtractNumbers(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ExtractNumbers(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStartedOnlyOnce(t *testing.T) {
	t.Parallel()
	e := New(Config{})
	events := observeAll(e, "10 left", "8 left", "6 left", "4 left")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	if events[0].Kind != Started || events[0].Remaining != 6 {
		t.Fatalf("unexpected event %+v", events[0])
	}
	if idx, ok := e.Active(); !ok || idx != 0 {
		t.Fatalf("Active() = %d, %v", idx, ok)
	}
}

func TestCompletesAtZero(t *testing.T) {
	t.Parallel()
	e := New(Config{})
	observeAll(e, "10 left", "8 left", "6 left")
	events := e.Observe("6 left", "0 left")
	if len(events) != 1 || events[0].Kind != Completed {
		t.Fatalf("expected completion, got %+v", events)
	}
	if _, ok := e.Active(); ok {
		t.Fatal("engine should be inactive after completion")
	}
	if got := e.Baseline(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("Baseline() = %v, want [0]", got)
	}
	if got := e.Decrements(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("Decrements() = %v, want [0]", got)
	}
}

func TestPlaceholderCountsAsZero(t *testing.T) {
	t.Parallel()
	e := New(Config{})
	observeAll(e, "30 to go", "20 to go", "10 to go")
	events := e.Observe("10 to go", "[none] to go")
	if len(events) != 1 || events[0].Kind != Completed {
		t.Fatalf("expected completion, got %+v", events)
	}
	if events[0].After != "[none] to go" {
		t.Fatalf("completion should cite the raw topic, got %q", events[0].After)
	}
}

func TestIndependentPositions(t *testing.T) {
	t.Parallel()
	e := New(Config{})
	events := observeAll(e, "5 viewers, goal 10", "5 viewers, goal 8", "3 viewers, goal 8")
	if len(events) != 0 {
		t.Fatalf("no countdown expected yet, got %+v", events)
	}
	events = e.Observe("3 viewers, goal 8", "3 viewers, goal 6")
	if len(events) != 1 || events[0].Kind != Started || events[0].Remaining != 6 {
		t.Fatalf("expected start at the goal position, got %+v", events)
	}
	if idx, _ := e.Active(); idx != 1 {
		t.Fatalf("active index = %d, want 1", idx)
	}
}

func TestConflictingPositionAbandons(t *testing.T) {
	t.Parallel()
	e := New(Config{})
	observeAll(e, "9 a 50 b", "8 a 49 b")
	// position 0 reaches the threshold first and starts the countdown
	events := e.Observe("8 a 49 b", "7 a 49 b")
	if len(events) != 1 || events[0].Kind != Started {
		t.Fatalf("expected start, got %+v", events)
	}
	// position 1 now qualifies while position 0 is active: abandon
	events = e.Observe("7 a 49 b", "7 a 48 b")
	if len(events) != 0 {
		t.Fatalf("abandon must not emit, got %+v", events)
	}
	if _, ok := e.Active(); ok {
		t.Fatal("engine should have abandoned the countdown")
	}
	if got := e.Decrements(); !reflect.DeepEqual(got, []int{0, 0}) {
		t.Fatalf("Decrements() = %v, want zeroed", got)
	}
}

func TestFirstQualifyingPositionDecides(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		topics []string
		want   []Event
		active bool
	}{
		{
			name:   "two positions falling together run to completion",
			topics: []string{"goal 10 tips 50", "goal 8 tips 40", "goal 6 tips 30", "goal 4 tips 20", "goal 2 tips 10", "goal 0 tips 5"},
			want: []Event{
				{Kind: Started, Remaining: 6, Before: "goal 8 tips 40", After: "goal 6 tips 30"},
				{Kind: Completed, Before: "goal 2 tips 10", After: "goal 0 tips 5"},
			},
		},
		{
			name:   "later qualifying position is ignored while the active one ticks",
			topics: []string{"goal 10 tips 50", "goal 8 tips 40", "goal 6 tips 30", "goal 4 tips 20"},
			want: []Event{
				{Kind: Started, Remaining: 6, Before: "goal 8 tips 40", After: "goal 6 tips 30"},
			},
			active: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := New(Config{})
			got := observeAll(e, tt.topics...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("events = %+v, want %+v", got, tt.want)
			}
			idx, ok := e.Active()
			if ok != tt.active || (ok && idx != 0) {
				t.Fatalf("Active() = %d, %v; want index 0 active=%v", idx, ok, tt.active)
			}
		})
	}
}

func TestShapeChangeCompletesActive(t *testing.T) {
	t.Parallel()
	e := New(Config{})
	observeAll(e, "3 left", "2 left", "1 left")
	events := e.Observe("1 left", "thanks everyone!")
	if len(events) != 1 || events[0].Kind != Completed {
		t.Fatalf("expected completion on shape change, got %+v", events)
	}
	if got := e.Baseline(); len(got) != 0 {
		t.Fatalf("Baseline() = %v, want empty", got)
	}
}

func TestShapeChangeWhileInactiveIsSilent(t *testing.T) {
	t.Parallel()
	e := New(Config{})
	if events := observeAll(e, "10 left", "8 left", "hello 1 2"); len(events) != 0 {
		t.Fatalf("unexpected events %+v", events)
	}
	if got := e.Baseline(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("Baseline() = %v", got)
	}
}

func TestDeterministic(t *testing.T) {
	t.Parallel()
	seq := []string{"goal 100", "goal 90", "goal 80", "goal 70 x 1", "goal 60 x 1", "goal 50 x 0", "goal 40 x 0", "done"}
	a := observeAll(New(Config{}), seq...)
	b := observeAll(New(Config{}), seq...)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("non-deterministic output:\n%+v\n%+v", a, b)
	}
}

func TestEventMessage(t *testing.T) {
	t.Parallel()
	start := Event{Kind: Started, Remaining: 42, After: "42 to go"}
	if got, want := start.Message(), "Countdown detected, 42 remaining:\n42 to go"; got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}
	done := Event{Kind: Completed, Before: "1 to go", After: "party"}
	if got, want := done.Message(), "Countdown completed! New topic: party\nOld topic: 1 to go"; got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}
}
