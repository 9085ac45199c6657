package surface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mapglyph/mapglyph/internal/geocode"
	"github.com/mapglyph/mapglyph/internal/tile"
	"github.com/mapglyph/mapglyph/pkg/cellgrid"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// coordResolver resolves "lat,lon" queries only. Queries matching gateQuery
// park until the gate channel closes, so a test can hold a pass in flight.
type coordResolver struct {
	gate      chan struct{}
	gateQuery string
	err       error
}

func (r *coordResolver) Resolve(ctx context.Context, query string) (slippy.Coordinate, error) {
	if r.gate != nil && query == r.gateQuery {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return slippy.Coordinate{}, ctx.Err()
		}
	}
	if r.err != nil {
		return slippy.Coordinate{}, r.err
	}
	c, ok, err := geocode.ParseCoordinate(query)
	if !ok {
		return slippy.Coordinate{}, geocode.ErrNoMatch
	}
	return c, err
}

func solidSource(r, g, b uint8) tile.Source {
	return tile.SourceFunc(func(ctx context.Context, id slippy.TileID) (image.Image, error) {
		img := image.NewRGBA(image.Rect(0, 0, slippy.TileSize, slippy.TileSize))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 255
		}
		return img, nil
	})
}

func waitFor(t *testing.T, snaps <-chan Snapshot, want Phase) Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case sn := <-snaps:
			if sn.Phase == want {
				return sn
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %s", want)
		}
	}
}

func newTestSurface(t *testing.T, res geocode.Resolver, src tile.Source) (*Surface, <-chan Snapshot) {
	t.Helper()
	pipe := NewPipeline(discard(), res, src, WithWorkers(2))
	s := New(discard(), pipe)
	snaps := make(chan Snapshot, 64)
	s.Notify(func(sn Snapshot) { snaps <- sn })
	t.Cleanup(s.Stop)
	return s, snaps
}

func TestSurface_RenderToReady(t *testing.T) {
	s, snaps := newTestSurface(t, &coordResolver{}, solidSource(40, 80, 160))

	s.Update(context.Background(), State{
		Query: "48.8584,2.2945", Zoom: 12, Cols: 40, Rows: 12, Mode: cellgrid.ModeHalf,
	})

	sn := waitFor(t, snaps, PhaseReady)
	if sn.Grid.Cols != 40 || sn.Grid.Rows != 12 {
		t.Fatalf("grid is %dx%d, want 40x12", sn.Grid.Cols, sn.Grid.Rows)
	}
	if sn.Zoom != 12 {
		t.Fatalf("zoom %d, want 12", sn.Zoom)
	}
	want := cellgrid.RGB{R: 40, G: 80, B: 160}
	cell := sn.Grid.At(20, 6)
	if cell.Fg != want || cell.Bg != want {
		t.Fatalf("cell %+v, want uniform %+v", cell, want)
	}
	if sn.Err != nil {
		t.Fatalf("unexpected err: %v", sn.Err)
	}
}

func TestSurface_PhaseProgression(t *testing.T) {
	s, snaps := newTestSurface(t, &coordResolver{}, solidSource(10, 10, 10))

	s.Update(context.Background(), State{
		Query: "0,0", Zoom: 4, Cols: 10, Rows: 4, Mode: cellgrid.ModeFull,
	})

	var phases []Phase
	deadline := time.After(5 * time.Second)
	for {
		select {
		case sn := <-snaps:
			phases = append(phases, sn.Phase)
			if sn.Phase == PhaseReady {
				goto done
			}
		case <-deadline:
			t.Fatalf("timed out, saw %v", phases)
		}
	}
done:
	want := []Phase{PhaseResolving, PhaseFetching, PhaseRendering, PhaseReady}
	if len(phases) != len(want) {
		t.Fatalf("phases %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases %v, want %v", phases, want)
		}
	}
}

func TestSurface_ExplicitCenterSkipsResolver(t *testing.T) {
	res := &coordResolver{err: errors.New("resolver must not run")}
	s, snaps := newTestSurface(t, res, solidSource(1, 2, 3))

	s.Update(context.Background(), State{
		Center: slippy.Coordinate{Lat: -23.55, Lon: -46.63}, HasCenter: true,
		Zoom: 10, Cols: 20, Rows: 8, Mode: cellgrid.ModeQuadrant,
	})

	sn := waitFor(t, snaps, PhaseReady)
	if sn.Center.Lat != -23.55 {
		t.Fatalf("center %+v", sn.Center)
	}
}

func TestSurface_NewerUpdateWins(t *testing.T) {
	gate := make(chan struct{})
	res := &coordResolver{gate: gate, gateQuery: "10,10"}
	s, snaps := newTestSurface(t, res, solidSource(200, 0, 0))

	// First pass parks inside the resolver.
	s.Update(context.Background(), State{Query: "10,10", Zoom: 6, Cols: 10, Rows: 4, Mode: cellgrid.ModeHalf})

	// Second pass supersedes it, then the gate opens. The first pass is
	// cancelled and must never publish.
	s.Update(context.Background(), State{Query: "-30,-60", Zoom: 6, Cols: 10, Rows: 4, Mode: cellgrid.ModeHalf})
	close(gate)

	sn := waitFor(t, snaps, PhaseReady)
	if sn.Center.Lat != -30 || sn.Center.Lon != -60 {
		t.Fatalf("center %+v, want the newer request", sn.Center)
	}

	// Drain briefly: nothing from the stale generation may appear.
	timeout := time.After(200 * time.Millisecond)
	for {
		select {
		case extra := <-snaps:
			if extra.Generation != sn.Generation {
				t.Fatalf("stale generation published: %+v", extra)
			}
		case <-timeout:
			return
		}
	}
}

func TestSurface_FirstFailureShowsDiagnosticGrid(t *testing.T) {
	res := &coordResolver{err: geocode.ErrNoMatch}
	s, snaps := newTestSurface(t, res, solidSource(0, 0, 0))

	s.Update(context.Background(), State{Query: "nowhere", Zoom: 8, Cols: 16, Rows: 6, Mode: cellgrid.ModeHalf})

	sn := waitFor(t, snaps, PhaseFailed)
	if !errors.Is(sn.Err, geocode.ErrNoMatch) {
		t.Fatalf("err = %v", sn.Err)
	}
	if sn.Grid.Cols != 16 || sn.Grid.Rows != 6 {
		t.Fatalf("diagnostic grid is %dx%d", sn.Grid.Cols, sn.Grid.Rows)
	}
	// The placeholder pattern is light gray, never black.
	cell := sn.Grid.At(0, 0)
	if cell.Bg == (cellgrid.RGB{}) {
		t.Fatal("diagnostic grid cell is blank")
	}
}

func TestSurface_LaterFailureKeepsLastGrid(t *testing.T) {
	res := &coordResolver{}
	s, snaps := newTestSurface(t, res, solidSource(50, 100, 150))

	s.Update(context.Background(), State{Query: "0,0", Zoom: 5, Cols: 12, Rows: 5, Mode: cellgrid.ModeHalf})
	ready := waitFor(t, snaps, PhaseReady)

	res.err = fmt.Errorf("geocoder down")
	s.Update(context.Background(), State{Query: "somewhere else", Zoom: 5, Cols: 12, Rows: 5, Mode: cellgrid.ModeHalf})

	sn := waitFor(t, snaps, PhaseFailed)
	if sn.Err == nil {
		t.Fatal("expected error on snapshot")
	}
	if sn.Grid.At(3, 3) != ready.Grid.At(3, 3) {
		t.Fatal("failed pass should keep the last rendered grid")
	}
}

func TestPipeline_RenderCoordinateQuery(t *testing.T) {
	pipe := NewPipeline(discard(), &coordResolver{}, solidSource(9, 9, 9), WithCellSize(CellSize{W: 4, H: 8}))

	res, err := pipe.Render(context.Background(), "51.5,-0.12", 11, 30, 10, cellgrid.ModeFull)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Grid.Cols != 30 || res.Grid.Rows != 10 {
		t.Fatalf("grid %dx%d", res.Grid.Cols, res.Grid.Rows)
	}
	if res.Coverage.Zoom != 11 {
		t.Fatalf("coverage zoom %d", res.Coverage.Zoom)
	}
	if res.Coverage.Size.X != 30*4 || res.Coverage.Size.Y != 10*8 {
		t.Fatalf("viewport %v", res.Coverage.Size)
	}
}

func TestPipeline_MaxColorsCapsPalette(t *testing.T) {
	// Each tile gets its own color so the canvas carries many more colors
	// than the cap allows.
	src := tile.SourceFunc(func(ctx context.Context, id slippy.TileID) (image.Image, error) {
		img := image.NewRGBA(image.Rect(0, 0, slippy.TileSize, slippy.TileSize))
		r := uint8(id.X * 37)
		g := uint8(id.Y * 53)
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, 200, 255
		}
		return img, nil
	})
	pipe := NewPipeline(discard(), &coordResolver{}, src, WithMaxColors(4))

	res, err := pipe.Render(context.Background(), "0,0", 6, 60, 20, cellgrid.ModeHalf)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	distinct := map[cellgrid.RGB]bool{}
	for _, c := range res.Grid.Cells {
		distinct[c.Fg] = true
		distinct[c.Bg] = true
	}
	if len(distinct) > 4 {
		t.Fatalf("%d distinct colors, want at most 4", len(distinct))
	}
}

func TestPipeline_RenderBadZoom(t *testing.T) {
	pipe := NewPipeline(discard(), &coordResolver{}, solidSource(0, 0, 0))
	if _, err := pipe.Render(context.Background(), "0,0", 99, 10, 4, cellgrid.ModeHalf); err == nil {
		t.Fatal("expected zoom error")
	}
}
