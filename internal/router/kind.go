package router

import (
	"errors"
	"fmt"
	"strings"

	"pushwatch/internal/change"
)

// Kind is a routes-config subscription keyword.
type Kind string

const (
	KindAll               Kind = "all"
	KindOnOff             Kind = "onoff"
	KindVideoStates       Kind = "video_states"
	KindRank              Kind = "rank"
	KindTopic             Kind = "topic"
	KindCountdownStart    Kind = "countdown_start"
	KindCountdownComplete Kind = "countdown_complete"
)

var ErrUnknownKind = errors.New("unknown subscription kind")

var kindProperties = map[Kind][]change.Property{
	KindAll:               change.Properties,
	KindOnOff:             {change.OnlineState},
	KindVideoStates:       {change.VideoState},
	KindRank:              {change.Rank},
	KindTopic:             {change.Topic},
	KindCountdownStart:    {change.CountdownStarted},
	KindCountdownComplete: {change.CountdownCompleted},
}

// ParseKind accepts a kind keyword, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kindProperties[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Properties returns the change properties k subscribes to.
func (k Kind) Properties() []change.Property {
	return append([]change.Property(nil), kindProperties[k]...)
}

// Kinds lists every valid keyword.
func Kinds() []Kind {
	return []Kind{KindAll, KindOnOff, KindVideoStates, KindRank, KindTopic, KindCountdownStart, KindCountdownComplete}
}
