// Package change defines the immutable record describing one observed
// property change of a tracked entity.
package change

import (
	"errors"
	"strconv"
	"time"
)

// Property tags the kind of change a Record describes.
type Property int

const (
	OnlineState Property = iota + 1
	VideoState
	Rank
	Topic
	CountdownStarted
	CountdownCompleted
)

// Properties lists every concrete property in rendering/config order.
var Properties = []Property{OnlineState, VideoState, Rank, Topic, CountdownStarted, CountdownCompleted}

func (p Property) String() string {
	switch p {
	case OnlineState:
		return "online_state"
	case VideoState:
		return "video_state"
	case Rank:
		return "rank"
	case Topic:
		return "topic"
	case CountdownStarted:
		return "countdown_started"
	case CountdownCompleted:
		return "countdown_completed"
	default:
		return "property(" + strconv.Itoa(int(p)) + ")"
	}
}

// Valid reports whether p is one of the known properties.
func (p Property) Valid() bool { return p >= OnlineState && p <= CountdownCompleted }

var (
	ErrMixedPayload    = errors.New("change record has both values and a message")
	ErrEmptyPayload    = errors.New("change record has neither values nor a message")
	ErrInvalidProperty = errors.New("change record has an unknown property")
)

// Record is one observed change. Exactly one of the Before/After pair or
// Message is populated.
type Record struct {
	Property   Property
	Before     Value
	After      Value
	Message    string
	ObservedAt time.Time
}

// NewValueChange builds a Record carrying a before/after pair.
func NewValueChange(p Property, before, after Value, at time.Time) Record {
	return Record{Property: p, Before: before, After: after, ObservedAt: at}
}

// NewMessage builds a synthetic Record carrying a pre-formatted message.
func NewMessage(p Property, msg string, at time.Time) Record {
	return Record{Property: p, Message: msg, ObservedAt: at}
}

// IsSynthetic reports whether r carries a message instead of values.
func (r Record) IsSynthetic() bool { return r.Message != "" }

// Validate checks the payload invariant.
func (r Record) Validate() error {
	if !r.Property.Valid() {
		return ErrInvalidProperty
	}
	hasValues := r.Before.Present() || r.After.Present()
	switch {
	case hasValues && r.Message != "":
		return ErrMixedPayload
	case !hasValues && r.Message == "":
		return ErrEmptyPayload
	}
	return nil
}
