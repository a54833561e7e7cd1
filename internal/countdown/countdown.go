// Package countdown infers whether free-form topic text is counting a number
// down toward zero.
//
// An Engine watches the integers embedded in successive topic observations.
// Once one position has decreased Threshold times it is treated as a
// countdown; reaching zero at that position (or the topic changing shape)
// completes it. The inference is a heuristic: it is deterministic for a given
// observation sequence but makes no claim about what the topic author meant.
//
// An Engine is not safe for concurrent use; callers own the locking.
package countdown

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultPlaceholder is the token some topics show in place of a
	// countdown that reached zero.
	DefaultPlaceholder = "[none]"
	// DefaultThreshold is how many decrements a position needs before it is
	// considered a countdown.
	DefaultThreshold = 2
)

// Kind distinguishes emitted events.
type Kind int

const (
	Started Kind = iota + 1
	Completed
)

func (k Kind) String() string {
	switch k {
	case Started:
		return "started"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Event is emitted when a countdown is detected or concluded.
type Event struct {
	Kind Kind
	// Remaining is the value at the tracked position (Started only).
	Remaining int
	Before    string
	After     string
}

// Message renders the human-readable notification line for e.
func (e Event) Message() string {
	switch e.Kind {
	case Started:
		return fmt.Sprintf("Countdown detected, %d remaining:\n%s", e.Remaining, e.After)
	case Completed:
		return fmt.Sprintf("Countdown completed! New topic: %s\nOld topic: %s", e.After, e.Before)
	default:
		return ""
	}
}

type Config struct {
	Placeholder string
	Threshold   int
}

// Engine holds the countdown state of a single entity.
type Engine struct {
	placeholder string
	threshold   int

	numbers     []int
	decrements  []int
	activeIndex int
	active      bool
}

func New(cfg Config) *Engine {
	if cfg.Placeholder == "" {
		cfg.Placeholder = DefaultPlaceholder
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Engine{placeholder: cfg.Placeholder, threshold: cfg.Threshold, activeIndex: -1}
}

// Observe feeds one topic change and returns the events it produced.
func (e *Engine) Observe(before, after string) []Event {
	normalized := strings.ReplaceAll(after, e.placeholder, "0")
	next := ExtractNumbers(normalized)

	if len(next) == 0 || len(next) != len(e.numbers) {
		var out []Event
		if e.active {
			out = append(out, Event{Kind: Completed, Before: before, After: after})
		}
		e.reset(next)
		return out
	}

	for i, v := range next {
		if v >= e.numbers[i] {
			continue
		}
		e.decrements[i]++
		if e.decrements[i] < e.threshold {
			continue
		}
		switch {
		case !e.active:
			e.active = true
			e.activeIndex = i
			e.numbers = next
			return []Event{{Kind: Started, Remaining: v, Before: before, After: after}}
		case i != e.activeIndex:
			e.reset(next)
			return nil
		case v == 0:
			e.reset(next)
			return []Event{{Kind: Completed, Before: before, After: after}}
		default:
			// the active position ticked down; later positions are not consulted
			e.numbers = next
			return nil
		}
	}
	e.numbers = next
	return nil
}

// Active reports whether a countdown is believed to be running, and at
// which number position.
func (e *Engine) Active() (index int, ok bool) {
	if !e.active {
		return -1, false
	}
	return e.activeIndex, true
}

// Baseline returns a copy of the currently tracked numbers.
func (e *Engine) Baseline() []int {
	return append([]int(nil), e.numbers...)
}

// Decrements returns a copy of the per-position decrement counters.
func (e *Engine) Decrements() []int {
	return append([]int(nil), e.decrements...)
}

func (e *Engine) reset(numbers []int) {
	e.numbers = numbers
	e.decrements = make([]int, len(numbers))
	e.activeIndex = -1
	e.active = false
}

// ExtractNumbers returns every maximal run of ASCII digits in s, in order.
// Runs too large for an int saturate at math.MaxInt.
func ExtractNumbers(s string) []int {
	var out []int
	start := -1
	for i := 0; i <= len(s); i++ {
		digit := i < len(s) && s[i] >= '0' && s[i] <= '9'
		if digit {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(s[start:i])
			if err != nil {
				n = math.MaxInt
			}
			out = append(out, n)
			start = -1
		}
	}
	return out
}
