package menu

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/sitegate/internal/cache"
	"github.com/dropDatabas3/sitegate/internal/metrics"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
)

// Resolver consulta el Store con cache y deduplicación de lookups concurrentes.
// Los errores nunca se cachean.
type Resolver struct {
	store Store
	cache cache.Client // opcional
	ttl   time.Duration
	group singleflight.Group
}

// NewResolver crea un Resolver. c puede ser nil (sin cache).
func NewResolver(store Store, c cache.Client, ttl time.Duration) *Resolver {
	return &Resolver{store: store, cache: c, ttl: ttl}
}

// Language devuelve el idioma del ítem de menú del sitio id.
func (r *Resolver) Language(ctx context.Context, id int64) (Language, error) {
	it, err := r.Item(ctx, id)
	if err != nil {
		return "", err
	}
	return it.Language, nil
}

// Item devuelve el ítem de menú del sitio id. Falla con *LookupError.
func (r *Resolver) Item(ctx context.Context, id int64) (Item, error) {
	key := "menu:item:" + strconv.FormatInt(id, 10)
	it, err := r.load(ctx, key, func(ctx context.Context) (Item, error) {
		return r.store.ItemByID(ctx, SiteClient, id)
	})
	if err != nil {
		return Item{}, &LookupError{ID: id, Err: err}
	}
	return it, nil
}

// Default devuelve el home del sitio para lang, cayendo al home "*".
func (r *Resolver) Default(ctx context.Context, lang Language) (Item, error) {
	candidates := []Language{AllLanguages}
	if lang != "" && !lang.IsAll() {
		candidates = []Language{lang, AllLanguages}
	}

	var lastErr error
	for _, l := range candidates {
		it, err := r.load(ctx, "menu:home:"+string(l), func(ctx context.Context) (Item, error) {
			return r.store.DefaultItem(ctx, SiteClient, l)
		})
		if err == nil {
			return it, nil
		}
		lastErr = err
		if !errors.Is(err, ErrItemNotFound) {
			break
		}
	}
	return Item{}, &LookupError{Lang: string(lang), Err: lastErr}
}

func (r *Resolver) load(ctx context.Context, key string, fetch func(context.Context) (Item, error)) (Item, error) {
	log := logger.From(ctx).With(logger.Component("menu.resolver"))

	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key); err == nil {
			var it Item
			if json.Unmarshal([]byte(raw), &it) == nil {
				metrics.MenuLookups.WithLabelValues("cache_hit").Inc()
				return it, nil
			}
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		start := time.Now()
		it, err := fetch(ctx)
		metrics.MenuLookupLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
		if err != nil {
			return Item{}, err
		}
		if r.cache != nil {
			if b, mErr := json.Marshal(it); mErr == nil {
				if sErr := r.cache.Set(ctx, key, string(b), r.ttl); sErr != nil {
					log.Debug("menu cache set failed", logger.Err(sErr))
				}
			}
		}
		return it, nil
	})
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			metrics.MenuLookups.WithLabelValues("not_found").Inc()
		} else {
			metrics.MenuLookups.WithLabelValues("error").Inc()
			log.Warn("menu store lookup failed", logger.Err(err))
		}
		return Item{}, err
	}
	metrics.MenuLookups.WithLabelValues("store").Inc()
	return v.(Item), nil
}
