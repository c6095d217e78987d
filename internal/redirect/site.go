package redirect

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Site describe el origen del sitio para validar y rutear destinos.
type Site struct {
	base   *url.URL
	scheme string
	host   string // host:port normalizado (sin puerto default)
	path   string // path base, siempre termina en "/"
}

// NewSite parsea la URL base absoluta del sitio (p.ej. https://example.org/portal/).
func NewSite(baseURL string) (*Site, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("redirect: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("redirect: base url must be absolute: %q", baseURL)
	}
	p := u.Path
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return &Site{
		base:   u,
		scheme: strings.ToLower(u.Scheme),
		host:   normalizeHost(u.Scheme, u.Host),
		path:   p,
	}, nil
}

// MustSite es NewSite que hace panic; para tests y wiring con config ya validada.
func MustSite(baseURL string) *Site {
	s, err := NewSite(baseURL)
	if err != nil {
		panic(err)
	}
	return s
}

// Path es el path base del sitio, siempre terminado en "/".
func (s *Site) Path() string { return s.path }

// Root es la URL raíz del sitio (destino por defecto tras logout).
func (s *Site) Root() Destination {
	return Destination(s.scheme + "://" + s.base.Host + s.path)
}

// IsInternal reporta si u apunta al mismo origen que el sitio: mismo
// scheme/host/port bajo el path base, o una referencia relativa sin prefijo "//".
func (s *Site) IsInternal(u string) bool {
	if u == "" {
		return false
	}
	for i := 0; i < len(u); i++ {
		c := u[i]
		if c < 0x20 || c == 0x7f || c == '\\' {
			return false
		}
	}
	if strings.HasPrefix(u, "//") {
		return false
	}
	p, err := url.Parse(u)
	if err != nil {
		return false
	}
	if p.Scheme == "" && p.Host == "" && p.Opaque == "" {
		return true
	}
	if p.User != nil || p.Opaque != "" {
		return false
	}
	if strings.ToLower(p.Scheme) != s.scheme || normalizeHost(p.Scheme, p.Host) != s.host {
		return false
	}
	path := p.Path
	if path == "" {
		path = "/"
	}
	return strings.HasPrefix(path+"/", s.path) || strings.HasPrefix(path, s.path)
}

// Route convierte un destino interno en el valor del header Location:
// absolutas y root-relative pasan tal cual, el resto se resuelve contra el path base.
func (s *Site) Route(d Destination) string {
	v := string(d)
	if v == "" {
		return s.path
	}
	if strings.HasPrefix(v, "/") {
		return v
	}
	if p, err := url.Parse(v); err == nil && p.Scheme != "" {
		return v
	}
	return s.path + v
}

func normalizeHost(scheme, hostport string) string {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.ToLower(hostport)
	}
	host = strings.ToLower(host)
	switch {
	case port == "80" && strings.EqualFold(scheme, "http"),
		port == "443" && strings.EqualFold(scheme, "https"):
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}
