package tilecache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"time"

	"github.com/mapglyph/mapglyph/internal/hotness"
	"github.com/mapglyph/mapglyph/internal/observability"
	"github.com/mapglyph/mapglyph/internal/tile"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

const keyPrefix = "tile:"

// Key returns the cache key for a tile.
func Key(id slippy.TileID) string {
	return keyPrefix + id.Key()
}

// Tiered decorates an upstream tile source with the memory and redis tiers:
// memory first, then redis, then upstream with write-back. Cache tier
// failures degrade to the upstream fetch instead of failing the lookup.
type Tiered struct {
	logger *slog.Logger
	src    tile.Source
	mem    *Memory
	shared *Redis          // optional
	policy *hotness.Policy // optional, drives the shared-tier TTL
	ttl    time.Duration   // fallback TTL when no policy is set
}

type TieredOption func(*Tiered)

func WithShared(r *Redis) TieredOption {
	return func(t *Tiered) { t.shared = r }
}

func WithPolicy(p *hotness.Policy) TieredOption {
	return func(t *Tiered) { t.policy = p }
}

func WithFallbackTTL(d time.Duration) TieredOption {
	return func(t *Tiered) { t.ttl = d }
}

func NewTiered(logger *slog.Logger, src tile.Source, mem *Memory, opts ...TieredOption) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	if mem == nil {
		mem = NewMemory(0)
	}
	t := &Tiered{
		logger: logger,
		src:    src,
		mem:    mem,
		ttl:    10 * time.Minute,
	}
	for _, f := range opts {
		f(t)
	}
	return t
}

var _ tile.Source = (*Tiered)(nil)

func (t *Tiered) Fetch(ctx context.Context, id slippy.TileID) (image.Image, error) {
	key := Key(id)

	if img, ok := t.mem.Get(key); ok {
		observability.IncCacheHit("memory")
		return img, nil
	}
	observability.IncCacheMiss("memory")

	if t.shared != nil {
		b, ok, err := t.shared.Get(ctx, key)
		switch {
		case err != nil:
			t.logger.Warn("shared tier read failed", "key", key, "err", err)
		case ok:
			img, derr := png.Decode(bytes.NewReader(b))
			if derr == nil {
				observability.IncCacheHit("redis")
				t.mem.Add(key, img)
				return img, nil
			}
			t.logger.Warn("cached tile undecodable, refetching", "key", key, "err", derr)
		}
		observability.IncCacheMiss("redis")
	}

	img, err := t.src.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	t.mem.Add(key, img)
	t.writeBack(ctx, id, key, img)
	return img, nil
}

func (t *Tiered) writeBack(ctx context.Context, id slippy.TileID, key string, img image.Image) {
	if t.shared == nil {
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.logger.Warn("encode tile for cache", "key", key, "err", err)
		return
	}
	ttl := t.ttl
	if t.policy != nil {
		if d := t.policy.TTLFor(slippy.TileCenter(id)); d > 0 {
			ttl = d
		}
	}
	if err := t.shared.Set(ctx, key, buf.Bytes(), ttl); err != nil {
		t.logger.Warn("shared tier write failed", "key", key, "err", err)
	}
}

// Remove drops keys from every tier. Used by cache invalidation.
func (t *Tiered) Remove(ctx context.Context, keys ...string) error {
	t.mem.Remove(keys...)
	if t.shared == nil {
		return nil
	}
	if err := t.shared.Del(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate %d keys: %w", len(keys), err)
	}
	return nil
}
