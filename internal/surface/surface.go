package surface

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"log/slog"
	"sync"

	"github.com/mapglyph/mapglyph/internal/tile"
	"github.com/mapglyph/mapglyph/pkg/cellgrid"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

// Phase tracks where the current render pass is.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResolving
	PhaseFetching
	PhaseRendering
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResolving:
		return "resolving"
	case PhaseFetching:
		return "fetching"
	case PhaseRendering:
		return "rendering"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the desired view. Either Query or an explicit Center drives the
// pass; HasCenter wins when both are set so panning does not re-geocode.
type State struct {
	Query     string
	Center    slippy.Coordinate
	HasCenter bool
	Zoom      int
	Cols      int
	Rows      int
	Mode      cellgrid.Mode
}

// Snapshot is what the surface currently shows. A failed pass after at least
// one successful render keeps the previous grid so the view never blanks; a
// failure before any render shows the placeholder pattern.
type Snapshot struct {
	Phase      Phase
	Grid       cellgrid.Grid
	Center     slippy.Coordinate
	Zoom       int
	Mode       cellgrid.Mode
	Err        error
	Generation uint64
}

// Surface serializes render passes over a Pipeline. Each Update supersedes
// the one before it: the older pass is cancelled and its result dropped even
// if it finishes first.
type Surface struct {
	logger *slog.Logger
	pipe   *Pipeline

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	snap     Snapshot
	hasReady bool
	notify   func(Snapshot)
}

func New(logger *slog.Logger, pipe *Pipeline) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{
		logger: logger,
		pipe:   pipe,
		snap:   Snapshot{Phase: PhaseIdle},
	}
}

// Notify registers a callback invoked after every snapshot change, outside
// the surface lock. Hosts use it to schedule a redraw.
func (s *Surface) Notify(fn func(Snapshot)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Snapshot returns the current view state.
func (s *Surface) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Update starts a render pass for the given state and returns immediately.
// Any in-flight pass is cancelled; only the newest pass may publish.
func (s *Surface) Update(ctx context.Context, st State) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	passCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(passCtx, gen, st)
}

// Stop cancels any in-flight pass.
func (s *Surface) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

func (s *Surface) run(ctx context.Context, gen uint64, st State) {
	center := st.Center
	if !st.HasCenter {
		if !s.publish(gen, func(sn *Snapshot) { sn.Phase = PhaseResolving; sn.Err = nil }) {
			return
		}
		var err error
		center, err = s.pipe.Resolve(ctx, st.Query)
		if err != nil {
			s.fail(gen, st, err)
			return
		}
	}

	if !s.publish(gen, func(sn *Snapshot) { sn.Phase = PhaseFetching; sn.Err = nil }) {
		return
	}
	img, cov, err := s.pipe.Stitch(ctx, center, st.Zoom, st.Cols, st.Rows)
	if err != nil {
		s.fail(gen, st, err)
		return
	}

	if !s.publish(gen, func(sn *Snapshot) { sn.Phase = PhaseRendering }) {
		return
	}
	grid := s.pipe.Project(img, st.Mode, st.Cols, st.Rows)

	s.publish(gen, func(sn *Snapshot) {
		sn.Phase = PhaseReady
		sn.Grid = grid
		sn.Center = center
		sn.Zoom = cov.Zoom
		sn.Mode = st.Mode
		sn.Err = nil
		s.hasReady = true
	})
}

func (s *Surface) fail(gen uint64, st State, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.publish(gen, func(sn *Snapshot) {
		sn.Phase = PhaseFailed
		sn.Err = err
		if !s.hasReady {
			sn.Grid = diagnosticGrid(st.Cols, st.Rows, st.Mode)
			sn.Mode = st.Mode
		}
	})
	s.logger.Warn("render pass failed", "query", st.Query, "err", err)
}

// publish applies fn to the snapshot if gen is still the newest pass and
// fires the notify callback. It reports whether the pass is still current.
func (s *Surface) publish(gen uint64, fn func(*Snapshot)) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	fn(&s.snap)
	s.snap.Generation = gen
	snap := s.snap
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
	return true
}

// diagnosticGrid projects the placeholder pattern so a view that never
// rendered still shows something structured instead of a blank screen.
func diagnosticGrid(cols, rows int, mode cellgrid.Mode) cellgrid.Grid {
	if cols <= 0 || rows <= 0 {
		return cellgrid.NewGrid(0, 0)
	}
	w, h := cols*DefaultCellSize.W, rows*DefaultCellSize.H
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	ph := tile.Placeholder(slippy.TileSize)
	for y := 0; y < h; y += slippy.TileSize {
		for x := 0; x < w; x += slippy.TileSize {
			r := image.Rect(x, y, x+slippy.TileSize, y+slippy.TileSize)
			draw.Draw(canvas, r, ph, image.Point{}, draw.Src)
		}
	}
	return cellgrid.Project(canvas, mode, cols, rows)
}
