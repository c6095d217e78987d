package redirect

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/dropDatabas3/sitegate/internal/menu"
	"github.com/dropDatabas3/sitegate/internal/metrics"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
)

// LanguageResolver es la parte del resolver de menú que usa este paquete.
type LanguageResolver interface {
	Language(ctx context.Context, id int64) (menu.Language, error)
}

type Resolver struct {
	site  *Site
	langs LanguageResolver
}

func NewResolver(site *Site, langs LanguageResolver) *Resolver {
	return &Resolver{site: site, langs: langs}
}

func (r *Resolver) Site() *Site { return r.site }

// Resolve decodifica el return y devuelve un destino interno o fallback.
// El único error posible es *menu.LookupError: el caller debe abortar la
// operación completa sin redirigir.
func (r *Resolver) Resolve(ctx context.Context, raw string, multilingual bool, fallback Destination) (Destination, error) {
	log := logger.From(ctx).With(logger.Component("redirect"), logger.Op("Resolve"))

	decoded := Decode(raw)
	if decoded == "" {
		metrics.ReturnResolutions.WithLabelValues("fallback").Inc()
		return fallback, nil
	}

	switch tok := Parse(decoded).(type) {
	case MenuItemToken:
		if !tok.Valid() {
			log.Debug("return rejected, menu id out of range")
			metrics.ReturnResolutions.WithLabelValues("rejected").Inc()
			return fallback, nil
		}
		dest, err := r.itemURL(ctx, tok.ID, tok.Digits, multilingual)
		if err != nil {
			log.Warn("menu lookup failed", logger.MenuItemID(tok.ID), logger.Err(err))
			return "", err
		}
		metrics.ReturnResolutions.WithLabelValues("menu_item").Inc()
		return dest, nil
	case OpaqueToken:
		if r.site.IsInternal(tok.Raw) {
			metrics.ReturnResolutions.WithLabelValues("internal").Inc()
			return Destination(tok.Raw), nil
		}
		// no se loguea el valor: es input del cliente
		log.Debug("return rejected, not internal")
		metrics.ReturnResolutions.WithLabelValues("rejected").Inc()
	}
	return fallback, nil
}

// MenuItemURL compone index.php?Itemid=<id>[&lang=<code>].
func (r *Resolver) MenuItemURL(ctx context.Context, id int64, multilingual bool) (Destination, error) {
	return r.itemURL(ctx, id, strconv.FormatInt(id, 10), multilingual)
}

func (r *Resolver) itemURL(ctx context.Context, id int64, digits string, multilingual bool) (Destination, error) {
	dest := "index.php?Itemid=" + digits
	if !multilingual {
		return Destination(dest), nil
	}
	lang, err := r.langs.Language(ctx, id)
	if err != nil {
		var le *menu.LookupError
		if errors.As(err, &le) {
			return "", le
		}
		return "", &menu.LookupError{ID: id, Err: err}
	}
	if !lang.IsAll() {
		dest += "&lang=" + url.QueryEscape(string(lang))
	}
	return Destination(dest), nil
}
