package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/httputil"
	"github.com/edgeflare/pgsynth/pkg/httputil/middleware"
	"github.com/edgeflare/pgsynth/pkg/metrics"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/registry"
	"github.com/edgeflare/pgsynth/pkg/route"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Executor runs generated statements. *pgxpool.Pool and *pgx.Conn satisfy it.
type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Registry is the part of *registry.Registry the server reads.
type Registry interface {
	Current() *synth.Artifacts
	Status() registry.Status
	Regenerate(ctx context.Context) (*synth.Artifacts, error)
}

// Policy inspects a request after its route is resolved. A non-nil error
// rejects the request with 403.
type Policy func(*http.Request, route.Route) error

// Server serves the routes of the live artifacts.
type Server struct {
	reg    Registry
	exec   Executor
	policy Policy
	logger *zap.Logger
	index  atomic.Pointer[index]
}

// Option configures a Server.
type Option func(*Server)

// WithPolicy installs a request policy.
func WithPolicy(p Policy) Option {
	return func(s *Server) { s.policy = p }
}

// WithLogger sets the logger used outside request scope.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer returns a Server answering from reg and executing through exec.
func NewServer(reg Registry, exec Executor, opts ...Option) *Server {
	s := &Server{reg: reg, exec: exec, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// indexFor returns the index of a, rebuilding it when the artifacts changed.
func (s *Server) indexFor(a *synth.Artifacts) *index {
	if ix := s.index.Load(); ix != nil && ix.artifacts == a {
		return ix
	}
	ix := newIndex(a)
	s.index.Store(ix)
	return ix
}

// request carries what one handler needs.
type request struct {
	w      http.ResponseWriter
	r      *http.Request
	a      *synth.Artifacts
	ix     *index
	route  route.Route
	params map[string]string
	prefer Prefer
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a := s.reg.Current()
	if a == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "schema not loaded")
		return
	}
	ix := s.indexFor(a)
	rt, params, allowed, ok := ix.match(r.Method, r.URL.EscapedPath())
	if !ok {
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("no route for %s", r.URL.Path))
		return
	}
	if s.policy != nil {
		if err := s.policy(r, rt); err != nil {
			httputil.Error(w, http.StatusForbidden, err.Error())
			return
		}
	}

	start := time.Now()
	rec := middleware.NewResponseRecorder(w)
	req := &request{w: rec, r: r, a: a, ix: ix, route: rt, params: params, prefer: parsePrefer(r)}

	var err error
	switch rt.Operation {
	case route.List:
		err = s.list(req)
	case route.Get:
		err = s.get(req)
	case route.Create:
		err = s.create(req)
	case route.Update:
		err = s.update(req)
	case route.Delete:
		err = s.delete(req)
	case route.Call:
		err = s.call(req)
	default:
		err = fmt.Errorf("unsupported operation %q", rt.Operation)
	}
	if err != nil {
		s.fail(rec, r, err)
	}

	op := string(rt.Operation)
	metrics.Requests.WithLabelValues(op, strconv.Itoa(rec.StatusCode)).Inc()
	metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (req *request) table() (*graph.Table, error) {
	t, ok := req.a.Graph.Lookup(req.route.Entity)
	if !ok {
		return nil, fmt.Errorf("route %s has no table %s", req.route.Pattern(), req.route.Entity)
	}
	return t, nil
}

func (req *request) model(name string) (*model.Model, error) {
	m, ok := req.a.Models.Get(name)
	if !ok {
		return nil, fmt.Errorf("route %s has no model %s", req.route.Pattern(), name)
	}
	return m, nil
}

// key validates and converts the path parameters of an item route.
func (req *request) key() (map[string]any, error) {
	km, ok := req.a.Models.For(req.route.Entity, model.Key)
	if !ok {
		return nil, fmt.Errorf("%s has no key model", req.route.Entity)
	}
	raw := make(map[string]any, len(req.route.PathParams))
	for _, p := range req.route.PathParams {
		raw[p.Name] = req.params[p.Name]
	}
	if err := km.Validate(raw); err != nil {
		return nil, &QueryError{Param: "path", Message: err.Error()}
	}
	key := make(map[string]any, len(raw))
	for _, p := range req.route.PathParams {
		f, _ := km.Field(p.Name)
		v, err := coerce(f.Type, req.params[p.Name])
		if err != nil {
			return nil, &QueryError{Param: p.Name, Message: err.Error()}
		}
		key[p.Column] = v
	}
	return key, nil
}

// body decodes a JSON object. An empty body decodes as {} when allowEmpty.
func (req *request) body(allowEmpty bool) (map[string]any, error) {
	dec := json.NewDecoder(req.r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, &QueryError{Param: "body", Message: "expected a JSON object: " + err.Error()}
	}
	if body == nil {
		return nil, &QueryError{Param: "body", Message: "expected a JSON object"}
	}
	return body, nil
}

func (s *Server) queryJSON(ctx context.Context, st Statement, extra ...any) ([]byte, error) {
	var body []byte
	if err := s.exec.QueryRow(ctx, st.SQL, st.Args...).Scan(append([]any{&body}, extra...)...); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *Server) list(req *request) error {
	t, err := req.table()
	if err != nil {
		return err
	}
	read, err := req.model(req.route.Output)
	if err != nil {
		return err
	}
	q, err := parseQuery(req.r.URL.Query(), req.route, read)
	if err != nil {
		return err
	}
	count := req.prefer.WantsCountExact()
	st, err := listStatement(req.a.Graph, t, q, count)
	if err != nil {
		return err
	}

	total := int64(-1)
	var extra []any
	if count {
		extra = append(extra, &total)
	}
	body, err := s.queryJSON(req.r.Context(), st, extra...)
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return err
	}
	req.w.Header().Set("Content-Range", contentRange(q.Offset, len(rows), total))
	if applied := req.prefer.applied(false); applied != "" {
		req.w.Header().Set("Preference-Applied", applied)
	}
	httputil.Blob(req.w, http.StatusOK, body, httputil.ContentTypeJSON)
	return nil
}

func (s *Server) get(req *request) error {
	t, err := req.table()
	if err != nil {
		return err
	}
	read, err := req.model(req.route.Output)
	if err != nil {
		return err
	}
	key, err := req.key()
	if err != nil {
		return err
	}
	q, err := parseQuery(req.r.URL.Query(), req.route, read)
	if err != nil {
		return err
	}
	st, err := getStatement(req.a.Graph, t, q, key)
	if err != nil {
		return err
	}
	body, err := s.queryJSON(req.r.Context(), st)
	if err != nil {
		return err
	}
	httputil.Blob(req.w, http.StatusOK, body, httputil.ContentTypeJSON)
	return nil
}

func (s *Server) create(req *request) error {
	t, err := req.table()
	if err != nil {
		return err
	}
	in, err := req.model(req.route.Input)
	if err != nil {
		return err
	}
	read, err := req.model(req.route.Output)
	if err != nil {
		return err
	}
	body, err := req.body(false)
	if err != nil {
		return err
	}
	if err := in.Validate(body); err != nil {
		return err
	}
	values, err := columnValues(in, body)
	if err != nil {
		return err
	}
	st, err := insertStatement(t, values, scalarFields(read))
	if err != nil {
		return err
	}
	row, err := s.queryJSON(req.r.Context(), st)
	if err != nil {
		return err
	}
	if get, ok := req.ix.itemRoute(req.route.Entity); ok {
		if loc, ok := location(get, row); ok {
			req.w.Header().Set("Location", loc)
		}
	}
	s.respondMutation(req, http.StatusCreated, http.StatusCreated, row)
	return nil
}

func (s *Server) update(req *request) error {
	t, err := req.table()
	if err != nil {
		return err
	}
	in, err := req.model(req.route.Input)
	if err != nil {
		return err
	}
	read, err := req.model(req.route.Output)
	if err != nil {
		return err
	}
	key, err := req.key()
	if err != nil {
		return err
	}
	body, err := req.body(false)
	if err != nil {
		return err
	}
	// Key fields come from the path; a body may repeat but not change them.
	for _, p := range req.route.PathParams {
		if v, ok := body[p.Name]; ok && fmt.Sprint(v) != req.params[p.Name] {
			return &QueryError{Param: p.Name, Message: "key fields cannot be changed"}
		}
		body[p.Name] = req.params[p.Name]
	}
	if err := in.Validate(body); err != nil {
		return err
	}
	for _, p := range req.route.PathParams {
		delete(body, p.Name)
	}
	if len(body) == 0 {
		return &QueryError{Param: "body", Message: "no fields to update"}
	}
	values, err := columnValues(in, body)
	if err != nil {
		return err
	}
	st, err := updateStatement(t, key, values, scalarFields(read))
	if err != nil {
		return err
	}
	row, err := s.queryJSON(req.r.Context(), st)
	if err != nil {
		return err
	}
	s.respondMutation(req, http.StatusOK, http.StatusNoContent, row)
	return nil
}

func (s *Server) delete(req *request) error {
	t, err := req.table()
	if err != nil {
		return err
	}
	read, err := req.model(req.route.Output)
	if err != nil {
		return err
	}
	key, err := req.key()
	if err != nil {
		return err
	}
	st, err := deleteStatement(t, key, scalarFields(read))
	if err != nil {
		return err
	}
	row, err := s.queryJSON(req.r.Context(), st)
	if err != nil {
		return err
	}
	s.respondMutation(req, http.StatusOK, http.StatusNoContent, row)
	return nil
}

// respondMutation honors Prefer: return. Without a representation the
// response carries headers only.
func (s *Server) respondMutation(req *request, withBody, without int, row []byte) {
	if applied := req.prefer.applied(true); applied != "" {
		req.w.Header().Set("Preference-Applied", applied)
	}
	if req.prefer.WantsRepresentation() {
		httputil.Blob(req.w, withBody, row, httputil.ContentTypeJSON)
		return
	}
	req.w.WriteHeader(without)
}

func (s *Server) call(req *request) error {
	r, ok := req.ix.routines[req.route.Entity]
	if !ok {
		return fmt.Errorf("route %s has no routine %s", req.route.Pattern(), req.route.Entity)
	}
	in, err := req.model(req.route.Input)
	if err != nil {
		return err
	}
	body, err := req.body(true)
	if err != nil {
		return err
	}
	if err := in.Validate(body); err != nil {
		return err
	}
	values, err := columnValues(in, body)
	if err != nil {
		return err
	}
	var out *model.Model
	if req.route.Output != "" {
		if out, err = req.model(req.route.Output); err != nil {
			return err
		}
	}
	st, err := callStatement(r, values, out)
	if err != nil {
		return err
	}

	ctx := req.r.Context()
	switch {
	case out == nil:
		if _, err := s.exec.Exec(ctx, st.SQL, st.Args...); err != nil {
			return err
		}
		req.w.WriteHeader(http.StatusNoContent)
	case r.Kind == catalog.KindProcedure:
		// Procedures return their output parameters as a single row.
		vals := make([]any, len(out.Fields))
		dest := make([]any, len(out.Fields))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := s.exec.QueryRow(ctx, st.SQL, st.Args...).Scan(dest...); err != nil {
			return err
		}
		obj := make(map[string]any, len(out.Fields))
		for i, f := range out.Fields {
			obj[f.Name] = vals[i]
		}
		httputil.JSON(req.w, http.StatusOK, obj)
	default:
		body, err := s.queryJSON(ctx, st)
		if errors.Is(err, pgx.ErrNoRows) {
			body, err = []byte("null"), nil
		}
		if err != nil {
			return err
		}
		httputil.Blob(req.w, http.StatusOK, body, httputil.ContentTypeJSON)
	}
	return nil
}
