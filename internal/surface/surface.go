// Package surface drives the periodic render tick. Every tick reads the
// display state once and hands the same snapshot to each surface.
package surface

import (
	"context"
	"time"

	"github.com/petems/live-classify/internal/classify"
	"github.com/rs/zerolog"
)

// StateReader is implemented by *classify.DisplayState.
type StateReader interface {
	Snapshot() classify.Snapshot
}

// Surface displays a snapshot. Render must not block for long; it runs on
// the tick goroutine.
type Surface interface {
	Render(snap classify.Snapshot)
}

// Func adapts a plain function to Surface.
type Func func(snap classify.Snapshot)

func (f Func) Render(snap classify.Snapshot) { f(snap) }

// Run renders every surface fps times a second until ctx is done.
func Run(ctx context.Context, state StateReader, fps int, surfaces ...Surface) {
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := state.Snapshot()
			for _, s := range surfaces {
				s.Render(snap)
			}
		}
	}
}

// OnChange forwards to s only when classify.Changed reports a difference
// from the last forwarded snapshot.
func OnChange(s Surface) Surface {
	var (
		last classify.Snapshot
		seen bool
	)
	return Func(func(snap classify.Snapshot) {
		if seen && !classify.Changed(last, snap) {
			return
		}
		seen = true
		last = snap
		s.Render(snap)
	})
}

// Log writes every label change to log, for headless runs.
func Log(log zerolog.Logger) Surface {
	var last string
	return Func(func(snap classify.Snapshot) {
		if snap.Label == last {
			return
		}
		last = snap.Label
		log.Info().
			Str("label", snap.Label).
			Str("phase", snap.Phase.String()).
			Float64("confidence", snap.Confidence).
			Msg("Label")
	})
}
