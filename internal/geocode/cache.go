package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/store"
)

const missMarker = "miss"

// Reverser is satisfied by Client and by CachedGeocoder itself.
type Reverser interface {
	Reverse(ctx context.Context, lng, lat float64) (*Result, error)
}

// CachedGeocoder memoizes lookups in the shared store. Failed lookups are
// remembered for missTTL so a broken coordinate does not hammer AMap.
// Store failures never fail a lookup; they are logged and bypassed.
type CachedGeocoder struct {
	next    Reverser
	kv      store.KV
	ttl     time.Duration
	missTTL time.Duration
	logger  *slog.Logger
}

func NewCachedGeocoder(next Reverser, kv store.KV, ttl, missTTL time.Duration, logger *slog.Logger) *CachedGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGeocoder{next: next, kv: kv, ttl: ttl, missTTL: missTTL, logger: logger}
}

func (c *CachedGeocoder) Reverse(ctx context.Context, lng, lat float64) (*Result, error) {
	key := cacheKey(lat, lng)
	if cached, hit := c.lookup(ctx, key); hit {
		if cached == nil {
			observability.RecordGeocodeLookup(ctx, "cache", "negative_hit")
			return nil, fmt.Errorf("%w: cached miss", ErrLookupFailed)
		}
		observability.RecordGeocodeLookup(ctx, "cache", "hit")
		return cached, nil
	}
	observability.RecordGeocodeLookup(ctx, "cache", "miss")

	res, err := c.next.Reverse(ctx, lng, lat)
	if err != nil {
		if errors.Is(err, ErrLookupFailed) && c.missTTL > 0 {
			c.store(ctx, key, missMarker, c.missTTL)
		}
		return nil, err
	}
	if c.ttl > 0 {
		if raw, mErr := json.Marshal(res); mErr == nil {
			c.store(ctx, key, string(raw), c.ttl)
		}
	}
	return res, nil
}

// lookup returns (nil, true) for a remembered miss.
func (c *CachedGeocoder) lookup(ctx context.Context, key string) (*Result, bool) {
	if c.kv == nil {
		return nil, false
	}
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("geocode cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	if raw == missMarker {
		return nil, true
	}
	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		c.logger.Warn("geocode cache entry corrupt", "key", key, "error", err)
		_ = c.kv.Delete(ctx, key)
		return nil, false
	}
	return &res, true
}

func (c *CachedGeocoder) store(ctx context.Context, key, value string, ttl time.Duration) {
	if c.kv == nil {
		return
	}
	if err := c.kv.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("geocode cache write failed", "key", key, "error", err)
	}
}

// Five decimal places is roughly one metre.
func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("geocode:%.5f,%.5f", lat, lng)
}
