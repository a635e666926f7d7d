package rest

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/httputil"
	"github.com/edgeflare/pgsynth/pkg/metrics"
	pg "github.com/edgeflare/pgsynth/pkg/pgx"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"go.uber.org/zap"
)

const pingTimeout = 3 * time.Second

// Register mounts the metadata and health routes and the generated routes
// on router. The generated routes take every path the others leave.
func (s *Server) Register(router *httputil.Router) {
	dt := router.Group("/dt")
	dt.HandleFunc("GET /schemas", s.artifacts(s.schemas))
	dt.HandleFunc("GET /diagnostics", s.artifacts(func(w http.ResponseWriter, r *http.Request, a *synth.Artifacts) {
		httputil.JSON(w, http.StatusOK, a.Diagnostics)
	}))
	dt.HandleFunc("GET /routes", s.artifacts(func(w http.ResponseWriter, r *http.Request, a *synth.Artifacts) {
		httputil.JSON(w, http.StatusOK, a.Routes)
	}))
	dt.HandleFunc("GET /{schema}/{kind}", s.artifacts(s.objects))

	router.Handle("GET /health", noStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})))
	health := router.Group("/health")
	health.Use(noStore)
	health.HandleFunc("GET /ping", s.ping)
	health.HandleFunc("GET /cache", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, s.reg.Status())
	})
	health.HandleFunc("POST /clear-cache", s.clearCache)

	router.Handle("/", s)
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// artifacts adapts h to the current artifacts, answering 503 before the
// first successful pass.
func (s *Server) artifacts(h func(http.ResponseWriter, *http.Request, *synth.Artifacts)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a := s.reg.Current()
		if a == nil {
			httputil.Error(w, http.StatusServiceUnavailable, "schema not loaded")
			return
		}
		h(w, r, a)
	}
}

func (s *Server) schemas(w http.ResponseWriter, r *http.Request, a *synth.Artifacts) {
	var names []string
	add := func(schema string) {
		if !slices.Contains(names, schema) {
			names = append(names, schema)
		}
	}
	for _, t := range a.Graph.Tables() {
		add(t.Schema)
	}
	for _, e := range a.Graph.Enums() {
		add(e.Schema)
	}
	for _, rt := range a.Graph.Routines() {
		add(rt.Schema)
	}
	slices.Sort(names)
	if names == nil {
		names = []string{}
	}
	httputil.JSON(w, http.StatusOK, names)
}

func (s *Server) objects(w http.ResponseWriter, r *http.Request, a *synth.Artifacts) {
	schema := r.PathValue("schema")
	switch kind := r.PathValue("kind"); kind {
	case "tables", "views":
		out := []*graph.Table{}
		for _, t := range a.Graph.Tables() {
			if t.Schema == schema && t.Kind.IsView() == (kind == "views") {
				out = append(out, t)
			}
		}
		httputil.JSON(w, http.StatusOK, out)
	case "enums":
		out := []*graph.Enum{}
		for _, e := range a.Graph.Enums() {
			if e.Schema == schema {
				out = append(out, e)
			}
		}
		httputil.JSON(w, http.StatusOK, out)
	case "functions", "procedures", "triggers":
		out := []*graph.Routine{}
		for _, rt := range a.Graph.Routines() {
			if rt.Schema != schema {
				continue
			}
			var match bool
			switch kind {
			case "triggers":
				match = rt.Trigger
			case "functions":
				match = !rt.Trigger && rt.Kind == catalog.KindFunction
			case "procedures":
				match = rt.Kind == catalog.KindProcedure
			}
			if match {
				out = append(out, rt)
			}
		}
		httputil.JSON(w, http.StatusOK, out)
	default:
		httputil.Error(w, http.StatusNotFound, "unknown object kind "+kind)
	}
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	pinger, ok := s.exec.(pg.Pinger)
	if !ok {
		httputil.Error(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		s.log(r).Warn("database ping failed", zap.Error(err))
		httputil.Error(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	metrics.Triggers.WithLabelValues("manual").Inc()
	if _, err := s.reg.Regenerate(r.Context()); err != nil {
		s.log(r).Error("manual regeneration failed", zap.Error(err))
		httputil.ErrorWithDetails(w, http.StatusInternalServerError, "regeneration failed", s.reg.Status())
		return
	}
	httputil.JSON(w, http.StatusOK, s.reg.Status())
}
