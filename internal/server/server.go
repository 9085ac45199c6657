package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mapglyph/mapglyph/internal/config"
	"github.com/mapglyph/mapglyph/internal/geocode"
	"github.com/mapglyph/mapglyph/internal/surface"
	"github.com/mapglyph/mapglyph/internal/tile"
	"github.com/mapglyph/mapglyph/pkg/cellgrid"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

const (
	maxCols = 500
	maxRows = 200
)

// MapRequest is a normalized /map query.
type MapRequest struct {
	Query string
	Zoom  int
	Cols  int
	Rows  int
	Mode  cellgrid.Mode
}

// ParseMapRequest validates user input for /map. The location comes either
// from address (or its alias q; a street address or "lat,lon") or from
// separate lat and lon parameters.
func ParseMapRequest(r *http.Request, cfg config.Config) (MapRequest, error) {
	qv := r.URL.Query()

	query := strings.TrimSpace(qv.Get("address"))
	if query == "" {
		query = strings.TrimSpace(qv.Get("q"))
	}
	lat, lon := strings.TrimSpace(qv.Get("lat")), strings.TrimSpace(qv.Get("lon"))
	switch {
	case query != "" && (lat != "" || lon != ""):
		return MapRequest{}, errors.New("address and lat/lon are mutually exclusive")
	case query == "" && lat == "" && lon == "":
		return MapRequest{}, errors.New("missing required parameter: address or lat+lon")
	case query == "":
		if lat == "" || lon == "" {
			return MapRequest{}, errors.New("lat and lon must be supplied together")
		}
		query = lat + "," + lon
	}

	zoom, err := intParam(qv.Get("zoom"), cfg.DefaultZoom)
	if err != nil {
		return MapRequest{}, fmt.Errorf("invalid zoom: %w", err)
	}
	if err := slippy.ValidateZoom(zoom); err != nil {
		return MapRequest{}, err
	}

	cols, err := intParam(qv.Get("cols"), cfg.DefaultCols)
	if err != nil {
		return MapRequest{}, fmt.Errorf("invalid cols: %w", err)
	}
	rows, err := intParam(qv.Get("rows"), cfg.DefaultRows)
	if err != nil {
		return MapRequest{}, fmt.Errorf("invalid rows: %w", err)
	}
	if cols < 1 || cols > maxCols || rows < 1 || rows > maxRows {
		return MapRequest{}, fmt.Errorf("viewport out of range: %dx%d (max %dx%d)", cols, rows, maxCols, maxRows)
	}

	mode := cfg.DefaultMode
	if m := strings.TrimSpace(qv.Get("mode")); m != "" {
		mode = m
	}

	return MapRequest{
		Query: query,
		Zoom:  zoom,
		Cols:  cols,
		Rows:  rows,
		Mode:  cellgrid.ParseMode(mode),
	}, nil
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// NewRouter wires the render pipeline behind the HTTP surface.
func NewRouter(logger *slog.Logger, cfg config.Config, pipe *surface.Pipeline) http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(logger))
	r.Use(Logging(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/map", mapHandler(logger, cfg, pipe))

	return r
}

func mapHandler(logger *slog.Logger, cfg config.Config, pipe *surface.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		mr, err := ParseMapRequest(req, cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		res, err := pipe.Render(req.Context(), mr.Query, mr.Zoom, mr.Cols, mr.Rows, mr.Mode)
		if err != nil {
			writeRenderError(w, logger, mr.Query, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Map-Center", fmt.Sprintf("%.6f,%.6f", res.Center.Lat, res.Center.Lon))
		w.Header().Set("X-Map-Zoom", strconv.Itoa(res.Coverage.Zoom))
		_, _ = w.Write([]byte(cellgrid.ANSI(res.Grid)))
	}
}

func writeRenderError(w http.ResponseWriter, logger *slog.Logger, query string, err error) {
	switch {
	case errors.Is(err, geocode.ErrNoMatch):
		http.Error(w, "no match for query", http.StatusNotFound)
	case errors.Is(err, geocode.ErrAmbiguous):
		http.Error(w, "query is ambiguous", http.StatusConflict)
	case errors.Is(err, slippy.ErrInvalidCoordinate), errors.Is(err, slippy.ErrUnsupportedZoom):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tile.ErrNotFound):
		http.Error(w, "tile not found upstream", http.StatusBadGateway)
	case errors.Is(err, context.Canceled):
		// client went away, nothing useful to send
	default:
		logger.Error("render failed", "query", query, "err", err)
		http.Error(w, "upstream render failed", http.StatusBadGateway)
	}
}

// Run serves until the context is cancelled, then drains with a grace period.
func Run(ctx context.Context, logger *slog.Logger, cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
