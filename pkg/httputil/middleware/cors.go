package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSOptions configures CORSWithOptions. Empty fields take the defaults
// below; AllowedOrigins may contain "*".
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPatch, http.MethodDelete}
	defaultCORSHeaders = []string{"Content-Type", "Authorization", "Prefer", "Range", "Accept", RequestIDHeader}
	defaultCORSExposed = []string{"Content-Range", "Location", "Preference-Applied", RequestIDHeader}
)

const defaultCORSMaxAge = 10 * time.Minute

type cors struct {
	origins     []string
	anyOrigin   bool
	methods     string
	headers     string
	exposed     string
	credentials bool
	maxAge      string
}

func newCORS(o *CORSOptions) *cors {
	if o == nil {
		o = &CORSOptions{}
	}
	pick := func(v, def []string) string {
		if len(v) == 0 {
			v = def
		}
		return strings.Join(v, ", ")
	}
	c := &cors{
		origins:     o.AllowedOrigins,
		methods:     pick(o.AllowedMethods, defaultCORSMethods),
		headers:     pick(o.AllowedHeaders, defaultCORSHeaders),
		exposed:     pick(o.ExposedHeaders, defaultCORSExposed),
		credentials: o.AllowCredentials,
		maxAge:      strconv.Itoa(int(defaultCORSMaxAge.Seconds())),
	}
	if len(c.origins) == 0 {
		c.origins = []string{"*"}
	}
	c.anyOrigin = slices.Contains(c.origins, "*")
	if o.MaxAge > 0 {
		c.maxAge = strconv.Itoa(int(o.MaxAge.Seconds()))
	}
	return c
}

func (c *cors) allowed(origin string) bool {
	return c.anyOrigin || slices.ContainsFunc(c.origins, func(o string) bool {
		return strings.EqualFold(o, origin)
	})
}

// CORSWithOptions answers preflight requests and decorates cross-origin
// responses. Requests without an Origin header pass through untouched.
// With credentials enabled the request origin is echoed instead of "*".
func CORSWithOptions(options *CORSOptions) func(http.Handler) http.Handler {
	c := newCORS(options)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !c.allowed(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if c.anyOrigin && !c.credentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if c.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if preflight {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				h.Set("Access-Control-Allow-Methods", c.methods)
				h.Set("Access-Control-Allow-Headers", c.headers)
				h.Set("Access-Control-Max-Age", c.maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h.Set("Access-Control-Expose-Headers", c.exposed)
			next.ServeHTTP(w, r)
		})
	}
}
