package middlewares

import "net/http"

type Middleware func(http.Handler) http.Handler

// Chain envuelve h: Chain(h, A, B) ejecuta A -> B -> h.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
