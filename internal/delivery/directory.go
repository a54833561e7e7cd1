package delivery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownTarget  = errors.New("unknown delivery target")
	ErrReservedTarget = errors.New("target name is reserved")
)

// Directory maps configured target names to transport ids.
// It is immutable after construction.
type Directory struct {
	byName map[string]string
	ids    []string
}

// NewDirectory validates entries (name -> transport id).
func NewDirectory(entries map[string]string) (*Directory, error) {
	d := &Directory{byName: make(map[string]string, len(entries))}
	seen := map[string]struct{}{}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id := strings.TrimSpace(entries[name])
		if strings.EqualFold(strings.TrimSpace(name), AllTargets) {
			return nil, fmt.Errorf("%w: %q", ErrReservedTarget, name)
		}
		if id == "" {
			return nil, fmt.Errorf("delivery target %q has an empty id", name)
		}
		if id == AllTargets {
			return nil, fmt.Errorf("%w: target %q uses id %q", ErrReservedTarget, name, id)
		}
		d.byName[name] = id
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			d.ids = append(d.ids, id)
		}
	}
	return d, nil
}

// Resolve maps a configured target name to its transport id. The reserved
// AllTargets name resolves to itself.
func (d *Directory) Resolve(name string) (string, error) {
	if name == AllTargets {
		return AllTargets, nil
	}
	if id, ok := d.byName[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, name)
}

// IDs returns every distinct transport id, in name order.
func (d *Directory) IDs() []string { return append([]string(nil), d.ids...) }

// Names returns the configured target names, sorted.
func (d *Directory) Names() []string {
	out := make([]string, 0, len(d.byName))
	for name := range d.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (d *Directory) Len() int { return len(d.byName) }
