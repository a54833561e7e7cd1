// Package compose renders a drained batch of change records into one
// notification: a title, a newest-first body and the resolved target set.
package compose

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"pushwatch/internal/change"
	"pushwatch/internal/delivery"
)

const (
	DefaultTitlePrefix = "PW: "
	DefaultRankCeiling = 1000
	lineTimeFormat     = "15:04:05"
)

var (
	// ErrNoTarget means a record arrived for a property the entity never
	// subscribed to. It indicates a wiring bug.
	ErrNoTarget        = errors.New("no target configured for property")
	ErrUnknownProperty = errors.New("unknown change property")
)

type Config struct {
	TitlePrefix string
	// RankCeiling is the rank shown for the below-threshold sentinel (0).
	RankCeiling int
	// NetworkLabel is appended to online/offline lines ("Is now off <label>").
	NetworkLabel string
}

// State is the per-entity rendering context. The caller owns its locking.
type State struct {
	Targets    map[change.Property]string
	LastVideo  *change.Record
	LastOnline *change.Record
}

type Composer struct {
	cfg Config
}

func New(cfg Config) *Composer {
	if cfg.TitlePrefix == "" {
		cfg.TitlePrefix = DefaultTitlePrefix
	}
	if cfg.RankCeiling <= 0 {
		cfg.RankCeiling = DefaultRankCeiling
	}
	return &Composer{cfg: cfg}
}

// Title returns the notification title for entity.
func (c *Composer) Title(entity string) string { return c.cfg.TitlePrefix + entity }

// Render builds the notification for records (oldest first). Lines are
// prepended so the body lists the newest change first. Render advances the
// prior-state pointers in st.
func (c *Composer) Render(entity string, st *State, records []change.Record) (delivery.Notification, error) {
	var (
		body    string
		all     bool
		targets []string
		seen    = map[string]struct{}{}
	)
	for i := range records {
		r := records[i]
		target, ok := st.Targets[r.Property]
		if !ok {
			if !r.Property.Valid() {
				return delivery.Notification{}, fmt.Errorf("%w: %s", ErrUnknownProperty, r.Property)
			}
			return delivery.Notification{}, fmt.Errorf("%w: %s (entity %s)", ErrNoTarget, r.Property, entity)
		}
		line, err := c.line(st, &records[i])
		if err != nil {
			return delivery.Notification{}, err
		}
		if target == delivery.AllTargets {
			all = true
		} else if _, dup := seen[target]; !dup {
			seen[target] = struct{}{}
			targets = append(targets, target)
		}
		body = "[" + r.ObservedAt.Format(lineTimeFormat) + "] " + line + "\n" + body
	}

	n := delivery.Notification{
		Entity:  entity,
		Title:   c.Title(entity),
		Body:    strings.TrimSuffix(body, "\n"),
		Targets: targets,
	}
	if all {
		n.Targets = nil
	}
	return n, nil
}

func (c *Composer) line(st *State, r *change.Record) (string, error) {
	switch r.Property {
	case change.VideoState:
		after, _ := r.After.AsInt()
		line := "Is now in state " + change.VideoStateName(after)
		if prev := st.LastVideo; prev != nil && !prev.ObservedAt.Equal(r.ObservedAt) {
			prevState, _ := prev.After.AsInt()
			line += " after " + elapsed(prev, r) + " in state " + change.VideoStateName(prevState)
		}
		st.LastVideo = r
		return line + ".", nil

	case change.OnlineState:
		after, _ := r.After.AsInt()
		offline := after == change.VideoOffline
		line := "Is now on"
		if offline {
			line = "Is now off"
		}
		if c.cfg.NetworkLabel != "" {
			line += " " + c.cfg.NetworkLabel
		}
		if prev := st.LastOnline; prev != nil && !prev.ObservedAt.Equal(r.ObservedAt) {
			line += " after " + elapsed(prev, r)
			if offline {
				line += " on"
			} else {
				line += " off"
			}
		}
		st.LastOnline = r
		return line + ".", nil

	case change.Rank:
		from := ""
		if r.Before.Present() {
			from = " from rank " + c.rank(r.Before)
		}
		return "Has moved" + from + " to rank " + c.rank(r.After) + ".", nil

	case change.Topic:
		return "New topic: " + r.After.String(), nil

	case change.CountdownStarted, change.CountdownCompleted:
		return r.Message, nil

	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownProperty, r.Property)
	}
}

func (c *Composer) rank(v change.Value) string {
	if n, ok := v.AsInt(); ok && n == 0 {
		return "over " + strconv.Itoa(c.cfg.RankCeiling)
	}
	return v.String()
}

// elapsedMagnitudes is humanize's default table with sub-second gaps read
// as "a few seconds" instead of "now".
var elapsedMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "a few seconds %s", DivBy: 1},
	{D: 2 * time.Second, Format: "1 second %s", DivBy: 1},
	{D: time.Minute, Format: "%d seconds %s", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: humanize.Day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day %s", DivBy: 1},
	{D: humanize.Week, Format: "%d days %s", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "1 week %s", DivBy: 1},
	{D: humanize.Month, Format: "%d weeks %s", DivBy: humanize.Week},
	{D: 2 * humanize.Month, Format: "1 month %s", DivBy: 1},
	{D: humanize.Year, Format: "%d months %s", DivBy: humanize.Month},
	{D: 18 * humanize.Month, Format: "1 year %s", DivBy: 1},
	{D: 2 * humanize.Year, Format: "2 years %s", DivBy: 1},
	{D: humanize.LongTime, Format: "%d years %s", DivBy: humanize.Year},
	{D: math.MaxInt64, Format: "a long while %s", DivBy: 1},
}

func elapsed(prev, cur *change.Record) string {
	return strings.TrimSpace(humanize.CustomRelTime(prev.ObservedAt, cur.ObservedAt, "", "", elapsedMagnitudes))
}
