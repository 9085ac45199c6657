// Command mapglyph renders an interactive street map in the terminal.
//
// Usage:
//
//	mapglyph [flags] <address or lat,lon>
//
// Arrow keys pan, z and x zoom, m cycles the render mode, Space drops the
// marker at the view center, Enter recenters on the marker, q quits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/mapglyph/mapglyph/internal/config"
	"github.com/mapglyph/mapglyph/internal/geocode"
	"github.com/mapglyph/mapglyph/internal/httpclient"
	"github.com/mapglyph/mapglyph/internal/logger"
	"github.com/mapglyph/mapglyph/internal/surface"
	"github.com/mapglyph/mapglyph/internal/tile"
	"github.com/mapglyph/mapglyph/internal/tilecache"
	"github.com/mapglyph/mapglyph/pkg/cellgrid"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

const markerGlyph = '◉'

type app struct {
	screen tcell.Screen
	surf   *surface.Surface
	cell   surface.CellSize

	state     surface.State
	marker    slippy.Coordinate
	hasMarker bool
}

func main() {
	zoom := flag.Int("zoom", 0, "initial zoom level (defaults to DEFAULT_ZOOM)")
	mode := flag.String("mode", "", "render mode: full, half or quadrant")
	colors := flag.Int("colors", 0, "cap the palette for terminals without truecolor (0 = full color)")
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: mapglyph [flags] <address or lat,lon>")
		os.Exit(2)
	}

	cfg := config.FromEnv()
	if *zoom != 0 {
		cfg.DefaultZoom = *zoom
	}
	if *mode != "" {
		cfg.DefaultMode = *mode
	}
	if *colors > 0 {
		cfg.MaxColors = *colors
	}

	if err := run(cfg, query); err != nil {
		fmt.Fprintln(os.Stderr, "mapglyph:", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, query string) error {
	// The terminal owns stdout, so logs only go to a file when asked for.
	var logOut io.Writer = io.Discard
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Component: "mapglyph"}, logOut)
	log := logger.NewSlog(&zl)

	httpClient := httpclient.NewOutbound()
	upstream := tile.NewOSM(log, cfg.TileURL,
		tile.WithClient(httpClient),
		tile.WithUserAgent(cfg.UserAgent))
	cache := tilecache.NewTiered(log, upstream, tilecache.NewMemory(cfg.MemCacheTiles))
	resolver := geocode.NewNominatim(log, cfg.NominatimURL,
		geocode.WithClient(httpClient),
		geocode.WithUserAgent(cfg.UserAgent),
		geocode.WithCacheSize(cfg.GeocodeCache))

	cell := surface.CellSize{W: cfg.CellPxW, H: cfg.CellPxH}
	pipe := surface.NewPipeline(log, resolver, cache,
		surface.WithCellSize(cell),
		surface.WithWorkers(cfg.FetchWorkers),
		surface.WithMaxColors(cfg.MaxColors))

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()

	a := &app{
		screen: screen,
		surf:   surface.New(log, pipe),
		cell:   cell,
	}

	cols, rows := screen.Size()
	a.state = surface.State{
		Query: query,
		Zoom:  cfg.DefaultZoom,
		Cols:  cols,
		Rows:  mapRows(rows),
		Mode:  cellgrid.ParseMode(cfg.DefaultMode),
	}

	// Completed passes wake the event loop through a synthetic event.
	a.surf.Notify(func(sn surface.Snapshot) {
		_ = screen.PostEvent(tcell.NewEventInterrupt(sn))
	})

	ctx := context.Background()
	a.surf.Update(ctx, a.state)
	defer a.surf.Stop()

	for {
		switch ev := screen.PollEvent().(type) {
		case *tcell.EventInterrupt:
			sn, ok := ev.Data().(surface.Snapshot)
			if !ok {
				continue
			}
			if sn.Phase == surface.PhaseReady && !a.state.HasCenter {
				// First resolve pins the view and the marker.
				a.state.Center = sn.Center
				a.state.HasCenter = true
				a.marker = sn.Center
				a.hasMarker = true
			}
			a.draw(sn)

		case *tcell.EventResize:
			cols, rows := screen.Size()
			a.state.Cols = cols
			a.state.Rows = mapRows(rows)
			screen.Sync()
			a.surf.Update(ctx, a.state)

		case *tcell.EventKey:
			if !a.handleKey(ctx, ev) {
				return nil
			}
		}
	}
}

// mapRows reserves the bottom line for status.
func mapRows(screenRows int) int {
	if screenRows <= 1 {
		return 1
	}
	return screenRows - 1
}

func (a *app) handleKey(ctx context.Context, ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyUp:
		a.pan(ctx, 0, -1)
	case tcell.KeyDown:
		a.pan(ctx, 0, 1)
	case tcell.KeyLeft:
		a.pan(ctx, -1, 0)
	case tcell.KeyRight:
		a.pan(ctx, 1, 0)
	case tcell.KeyEnter:
		if a.hasMarker {
			a.state.Center = a.marker
			a.state.HasCenter = true
			a.surf.Update(ctx, a.state)
		}
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return false
		case 'z', '+':
			a.zoomBy(ctx, 1)
		case 'x', '-':
			a.zoomBy(ctx, -1)
		case 'm':
			a.state.Mode = nextMode(a.state.Mode)
			a.surf.Update(ctx, a.state)
		case ' ':
			if a.state.HasCenter {
				a.marker = a.state.Center
				a.hasMarker = true
				a.draw(a.surf.Snapshot())
			}
		}
	}
	return true
}

// pan shifts the view center by a quarter viewport in world pixels.
func (a *app) pan(ctx context.Context, dx, dy int) {
	if !a.state.HasCenter {
		return
	}
	px, py := slippy.WorldPixel(a.state.Center, a.state.Zoom)
	px += float64(dx*a.state.Cols*a.cell.W) / 4
	py += float64(dy*a.state.Rows*a.cell.H) / 4
	a.state.Center = slippy.FromWorldPixel(px, py, a.state.Zoom)
	a.surf.Update(ctx, a.state)
}

func (a *app) zoomBy(ctx context.Context, delta int) {
	z := a.state.Zoom + delta
	if z < slippy.MinZoom || z > slippy.MaxZoom {
		return
	}
	a.state.Zoom = z
	a.surf.Update(ctx, a.state)
}

func nextMode(m cellgrid.Mode) cellgrid.Mode {
	switch m {
	case cellgrid.ModeFull:
		return cellgrid.ModeHalf
	case cellgrid.ModeHalf:
		return cellgrid.ModeQuadrant
	default:
		return cellgrid.ModeFull
	}
}

func (a *app) draw(sn surface.Snapshot) {
	a.screen.Clear()

	for y := 0; y < sn.Grid.Rows; y++ {
		for x := 0; x < sn.Grid.Cols; x++ {
			c := sn.Grid.At(x, y)
			st := tcell.StyleDefault.
				Foreground(tcell.NewRGBColor(int32(c.Fg.R), int32(c.Fg.G), int32(c.Fg.B))).
				Background(tcell.NewRGBColor(int32(c.Bg.R), int32(c.Bg.G), int32(c.Bg.B)))
			a.screen.SetContent(x, y, c.Rune, nil, st)
		}
	}

	if a.hasMarker && a.state.HasCenter {
		if mx, my, ok := a.markerCell(); ok {
			st := tcell.StyleDefault.
				Foreground(tcell.ColorRed).
				Background(tcell.ColorWhite)
			a.screen.SetContent(mx, my, markerGlyph, nil, st)
		}
	}

	a.drawStatus(sn)
	a.screen.Show()
}

// markerCell projects the marker into cell coordinates, reporting whether it
// falls inside the viewport.
func (a *app) markerCell() (int, int, bool) {
	cx, cy := slippy.WorldPixel(a.state.Center, a.state.Zoom)
	mx, my := slippy.WorldPixel(a.marker, a.state.Zoom)

	left := cx - float64(a.state.Cols*a.cell.W)/2
	top := cy - float64(a.state.Rows*a.cell.H)/2
	col := int((mx - left) / float64(a.cell.W))
	row := int((my - top) / float64(a.cell.H))
	if col < 0 || col >= a.state.Cols || row < 0 || row >= a.state.Rows {
		return 0, 0, false
	}
	return col, row, true
}

func (a *app) drawStatus(sn surface.Snapshot) {
	_, rows := a.screen.Size()
	y := rows - 1

	var b strings.Builder
	fmt.Fprintf(&b, " %s  z%d  %s  %s", a.state.Center, a.state.Zoom, a.state.Mode, sn.Phase)
	if sn.Err != nil {
		fmt.Fprintf(&b, "  %v", sn.Err)
	}
	b.WriteString("  [arrows pan | z/x zoom | m mode | space mark | enter goto | q quit]  (c) OpenStreetMap contributors")

	st := tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.NewRGBColor(40, 40, 60))
	cols, _ := a.screen.Size()
	line := b.String()
	for x := 0; x < cols; x++ {
		r := ' '
		if x < len(line) {
			r = rune(line[x])
		}
		a.screen.SetContent(x, y, r, nil, st)
	}
}
