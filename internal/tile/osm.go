package tile

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mapglyph/mapglyph/internal/observability"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

// OSM fetches tiles from an OpenStreetMap-compatible {z}/{x}/{y} endpoint.
type OSM struct {
	logger    *slog.Logger
	client    *http.Client
	baseURL   string
	userAgent string
}

type OSMOption func(*OSM)

func WithClient(c *http.Client) OSMOption {
	return func(o *OSM) { o.client = c }
}

func WithUserAgent(ua string) OSMOption {
	return func(o *OSM) { o.userAgent = ua }
}

// NewOSM creates a tile source for the given base URL
// (e.g. "https://tile.openstreetmap.org").
func NewOSM(logger *slog.Logger, baseURL string, opts ...OSMOption) *OSM {
	if logger == nil {
		logger = slog.Default()
	}
	o := &OSM{
		logger:    logger,
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "mapglyph/1.0 (+https://github.com/mapglyph/mapglyph)",
	}
	for _, f := range opts {
		f(o)
	}
	return o
}

// URL returns the tile endpoint for an id.
func (o *OSM) URL(id slippy.TileID) string {
	return fmt.Sprintf("%s/%d/%d/%d.png", o.baseURL, id.Z, id.X, id.Y)
}

func (o *OSM) Fetch(ctx context.Context, id slippy.TileID) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build tile request %s: %w", id.Key(), err)
	}
	req.Header.Set("User-Agent", o.userAgent)
	req.Header.Set("Accept", "image/png,image/*")

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		observability.ObserveTileFetch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("fetch tile %s: %w", id.Key(), err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			o.logger.Warn("close tile body", "tile", id.Key(), "err", cerr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		observability.ObserveTileFetch("not_found", time.Since(start).Seconds())
		return nil, fmt.Errorf("tile %s: %w", id.Key(), ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		observability.ObserveTileFetch("error", time.Since(start).Seconds())
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tile %s status=%d body=%q", id.Key(), resp.StatusCode, strings.TrimSpace(string(b)))
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		observability.ObserveTileFetch("decode_error", time.Since(start).Seconds())
		return nil, fmt.Errorf("decode tile %s: %w", id.Key(), err)
	}
	observability.ObserveTileFetch("ok", time.Since(start).Seconds())

	o.logger.Debug("tile fetched", "tile", id.Key(),
		"duration", time.Since(start).String())
	return img, nil
}
