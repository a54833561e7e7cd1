package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// Publisher accepts observations; *Hub implements it.
type Publisher interface {
	Publish(ctx context.Context, obs Observation) error
}

// Replay streams JSON observations from r into p, honoring each
// observation's wait. It returns the number of observations published.
func Replay(ctx context.Context, r io.Reader, p Publisher) (int, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	n := 0
	for {
		var obs Observation
		if err := dec.Decode(&obs); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("replay observation %d: %w", n+1, err)
		}
		wait, err := waitFor(obs)
		if err != nil {
			return n, fmt.Errorf("replay observation %d: invalid wait: %w", n+1, err)
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return n, ctx.Err()
			case <-t.C:
			}
		}
		if err := p.Publish(ctx, obs); err != nil {
			return n, err
		}
		n++
	}
}

// ReplayFile replays path, or stdin when path is "-".
func ReplayFile(ctx context.Context, path string, p Publisher) (int, error) {
	if path == "-" {
		return Replay(ctx, os.Stdin, p)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Replay(ctx, f, p)
}
