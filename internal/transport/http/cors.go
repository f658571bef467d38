package http

import (
	"net/http"
	"strings"
)

type originList struct {
	any     bool
	origins map[string]struct{}
}

func newOriginList(allowedOrigins []string) originList {
	list := originList{origins: make(map[string]struct{}, len(allowedOrigins))}
	for _, origin := range allowedOrigins {
		switch origin = strings.TrimSpace(origin); origin {
		case "":
		case "*":
			list.any = true
		default:
			list.origins[origin] = struct{}{}
		}
	}
	return list
}

func (l originList) allows(origin string) bool {
	if l.any {
		return true
	}
	_, ok := l.origins[origin]
	return ok
}

// preflight reports whether r is a CORS preflight rather than a plain OPTIONS.
func preflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

// CORS adds basic CORS headers for a configured allow-list. Preflights
// from unknown origins are refused; other requests pass through unmarked.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	list := newOriginList(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
			case !list.allows(origin):
				if preflight(r) {
					writeError(w, http.StatusForbidden, codeForbidden, "forbidden")
					return
				}
			default:
				if list.any {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				if preflight(r) {
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
