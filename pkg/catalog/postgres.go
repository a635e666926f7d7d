package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/pgsynth/pkg/diag"
	pg "github.com/edgeflare/pgsynth/pkg/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PostgresSource extracts descriptors from a live PostgreSQL catalog. It only
// issues read-only catalog queries.
type PostgresSource struct {
	conn        pg.Querier
	concurrency int
	retries     uint64
	logger      *zap.Logger
}

// PostgresOption configures a PostgresSource.
type PostgresOption func(*PostgresSource)

// WithConcurrency bounds the number of catalog queries in flight. Use 1 when
// conn is a single *pgx.Conn, which cannot run queries concurrently.
func WithConcurrency(n int) PostgresOption {
	return func(s *PostgresSource) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetries sets how many times an unreachable catalog is retried.
func WithRetries(n uint64) PostgresOption {
	return func(s *PostgresSource) { s.retries = n }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) PostgresOption {
	return func(s *PostgresSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewPostgresSource returns a Source reading through conn. A *pgxpool.Pool
// allows the per-kind queries to run in parallel.
func NewPostgresSource(conn pg.Querier, opts ...PostgresOption) *PostgresSource {
	s := &PostgresSource{
		conn:        conn,
		concurrency: 4,
		retries:     3,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type relationRow struct {
	Schema     string
	Name       string
	Kind       string
	Readable   bool
	Definition string
	Comment    string
}

type columnRow struct {
	Schema     string
	Table      string
	Name       string
	Position   int32
	Native     string
	IsArray    bool
	Nullable   bool
	HasDefault bool
	Default    string
	Generated  bool
	EnumRef    string
	Comment    string
}

type constraintRow struct {
	Schema        string
	Table         string
	Name          string
	Type          string
	Columns       []string
	TargetSchema  string
	TargetTable   string
	TargetColumns []string
	OnDelete      string
	OnUpdate      string
}

type enumRow struct {
	Schema string
	Name   string
	Labels []string
}

type routineRow struct {
	Schema         string
	Name           string
	Kind           string
	ReturnsSet     bool
	Volatility     string
	IsTrigger      bool
	ReturnsVoid    bool
	ReturnType     string
	ReturnRelation string
	ArgNames       []string
	ArgModes       []string
	ArgTypes       []string
	NDefaults      int32
	Comment        string
}

// Extract lists the namespaces, fetches every object kind concurrently and
// assembles the snapshot once all fetches have returned.
func (s *PostgresSource) Extract(ctx context.Context, scope Scope) (*Snapshot, error) {
	if err := scope.Validate(); err != nil {
		return nil, &diag.ExtractionError{Op: "scope", Cause: err}
	}
	start := time.Now()

	if err := s.ping(ctx); err != nil {
		return nil, classify(ctx, "connect", err)
	}

	all, err := collect(ctx, s.conn, queryNamespaces, pgx.RowTo[string])
	if err != nil {
		return nil, classify(ctx, "query", err)
	}

	snap := &Snapshot{}
	var schemas []string
	for _, ns := range all {
		if scope.Allows(ns) {
			schemas = append(schemas, ns)
		} else {
			snap.Excluded = append(snap.Excluded, ns)
		}
	}
	if len(schemas) == 0 {
		s.logger.Warn("no namespace in scope", zap.Strings("include", scope.Include), zap.Strings("exclude", scope.Exclude))
		return snap, nil
	}

	var (
		relations   []relationRow
		columns     []columnRow
		constraints []constraintRow
		enums       []enumRow
		routines    []routineRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	g.Go(func() (err error) {
		relations, err = collect(gctx, s.conn, queryRelations, pgx.RowToStructByPos[relationRow], schemas)
		return err
	})
	g.Go(func() (err error) {
		columns, err = collect(gctx, s.conn, queryColumns, pgx.RowToStructByPos[columnRow], schemas)
		return err
	})
	g.Go(func() (err error) {
		constraints, err = collect(gctx, s.conn, queryConstraints, pgx.RowToStructByPos[constraintRow], schemas)
		return err
	})
	g.Go(func() (err error) {
		enums, err = collect(gctx, s.conn, queryEnums, pgx.RowToStructByPos[enumRow], schemas)
		return err
	})
	g.Go(func() (err error) {
		routines, err = collect(gctx, s.conn, queryRoutines, pgx.RowToStructByPos[routineRow], schemas)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, classify(ctx, "query", err)
	}

	assembleRelations(snap, relations, columns, constraints)
	for _, e := range enums {
		snap.Enums = append(snap.Enums, Enum{Schema: e.Schema, Name: e.Name, Values: e.Labels})
	}
	for _, r := range routines {
		assembleRoutine(snap, r)
	}
	snap.Sort()

	s.logger.Info("catalog extracted",
		zap.Strings("namespaces", schemas),
		zap.Int("relations", len(snap.Relations)),
		zap.Int("enums", len(snap.Enums)),
		zap.Int("routines", len(snap.Routines)),
		zap.Int("warnings", len(snap.Warnings)),
		zap.Duration("took", time.Since(start)),
	)
	return snap, nil
}

func collect[T any](ctx context.Context, conn pg.Querier, sql string, fn pgx.RowToFunc[T], args ...any) ([]T, error) {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, fn)
}

func (s *PostgresSource) ping(ctx context.Context) error {
	p, ok := s.conn.(pg.Pinger)
	if !ok {
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries), ctx)
	return backoff.Retry(func() error {
		err := p.Ping(ctx)
		if err == nil {
			return nil
		}
		if isPermission(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		s.logger.Debug("catalog ping failed, retrying", zap.Error(err))
		return err
	}, b)
}

func assembleRelations(snap *Snapshot, relations []relationRow, columns []columnRow, constraints []constraintRow) {
	index := make(map[string]int, len(relations))
	for _, r := range relations {
		q := Qualify(r.Schema, r.Name)
		kind, ok := relationKinds[r.Kind]
		if !ok {
			snap.Opaque = append(snap.Opaque, Opaque{Schema: r.Schema, Name: r.Name, Kind: "relkind " + r.Kind, Reason: "unsupported relation kind"})
			snap.Warnings.Add(diag.KindOpaqueObject, q, "relation kind %q is not supported", r.Kind)
			continue
		}
		if !r.Readable {
			snap.Omitted = append(snap.Omitted, q)
			snap.Warnings.Add(diag.KindOmittedTable, q, "no SELECT privilege")
			continue
		}
		index[q] = len(snap.Relations)
		snap.Relations = append(snap.Relations, Relation{
			Schema:         r.Schema,
			Name:           r.Name,
			Kind:           kind,
			ViewDefinition: r.Definition,
			Comment:        r.Comment,
		})
	}

	for _, c := range columns {
		i, ok := index[Qualify(c.Schema, c.Table)]
		if !ok {
			continue
		}
		snap.Relations[i].Columns = append(snap.Relations[i].Columns, Column{
			Name:       c.Name,
			Position:   int(c.Position),
			NativeType: c.Native,
			Nullable:   c.Nullable,
			HasDefault: c.HasDefault,
			Default:    c.Default,
			Generated:  c.Generated || strings.HasPrefix(c.Default, "nextval("),
			EnumRef:    c.EnumRef,
			Array:      c.IsArray,
			Comment:    c.Comment,
		})
	}

	for _, c := range constraints {
		i, ok := index[Qualify(c.Schema, c.Table)]
		if !ok {
			continue
		}
		rel := &snap.Relations[i]
		switch c.Type {
		case "p":
			rel.PrimaryKey = c.Columns
		case "u":
			rel.Uniques = append(rel.Uniques, Unique{Name: c.Name, Columns: c.Columns})
		case "f":
			rel.ForeignKeys = append(rel.ForeignKeys, ForeignKey{
				Name:          c.Name,
				Columns:       c.Columns,
				TargetSchema:  c.TargetSchema,
				TargetTable:   c.TargetTable,
				TargetColumns: c.TargetColumns,
				OnDelete:      fkActions[c.OnDelete],
				OnUpdate:      fkActions[c.OnUpdate],
			})
		}
	}
}

func assembleRoutine(snap *Snapshot, r routineRow) {
	q := Qualify(r.Schema, r.Name)
	kind, ok := routineKinds[r.Kind]
	if !ok {
		snap.Opaque = append(snap.Opaque, Opaque{Schema: r.Schema, Name: r.Name, Kind: "prokind " + r.Kind, Reason: "unsupported routine kind"})
		snap.Warnings.Add(diag.KindOpaqueObject, q, "routine kind %q is not supported", r.Kind)
		return
	}
	if len(r.ArgNames) > len(r.ArgTypes) || len(r.ArgModes) > len(r.ArgTypes) {
		snap.Opaque = append(snap.Opaque, Opaque{Schema: r.Schema, Name: r.Name, Kind: string(kind), Reason: "argument metadata is inconsistent"})
		snap.Warnings.Add(diag.KindOpaqueObject, q, "cannot read argument list")
		return
	}

	params := make([]Param, len(r.ArgTypes))
	for i, typ := range r.ArgTypes {
		p := Param{Type: typ, Mode: ModeIn}
		if i < len(r.ArgNames) {
			p.Name = r.ArgNames[i]
		}
		if i < len(r.ArgModes) {
			p.Mode = paramModes[r.ArgModes[i]]
		}
		if p.Name == "" {
			p.Name = fmt.Sprintf("arg%d", i+1)
		}
		params[i] = p
	}
	// Defaults belong to the trailing input parameters.
	remaining := int(r.NDefaults)
	for i := len(params) - 1; i >= 0 && remaining > 0; i-- {
		if params[i].Mode.IsInput() {
			params[i].HasDefault = true
			remaining--
		}
	}

	routine := Routine{
		Schema:     r.Schema,
		Name:       r.Name,
		Kind:       kind,
		Params:     params,
		Volatility: volatilities[r.Volatility],
		Trigger:    r.IsTrigger,
		Comment:    r.Comment,
	}

	var outputs []Param
	for _, p := range params {
		if p.Mode.IsOutput() {
			outputs = append(outputs, p)
		}
	}
	switch {
	case r.IsTrigger:
		routine.Returns = Return{Kind: ReturnNone, Type: "trigger"}
	case kind == KindProcedure && len(outputs) == 0, r.ReturnsVoid:
		routine.Returns = Return{Kind: ReturnNone}
	case len(outputs) > 0 && (kind == KindProcedure || len(outputs) > 1 || slices.ContainsFunc(outputs, func(p Param) bool { return p.Mode == ModeTable })):
		routine.Returns = Return{Kind: ReturnRowSet, Set: r.ReturnsSet, Columns: outputs}
	case r.ReturnRelation != "":
		routine.Returns = Return{Kind: ReturnRowSet, Set: r.ReturnsSet, Type: r.ReturnType, Relation: r.ReturnRelation}
	case r.ReturnType == "record":
		snap.Opaque = append(snap.Opaque, Opaque{Schema: r.Schema, Name: r.Name, Kind: string(kind), Reason: "returns an untyped record"})
		snap.Warnings.Add(diag.KindOpaqueObject, q, "result shape is an untyped record")
		return
	default:
		routine.Returns = Return{Kind: ReturnScalar, Set: r.ReturnsSet, Type: r.ReturnType}
	}
	snap.Routines = append(snap.Routines, routine)
}

var relationKinds = map[string]RelationKind{
	"r": KindTable,
	"p": KindPartitionedTable,
	"f": KindForeignTable,
	"v": KindView,
	"m": KindMaterializedView,
}

var routineKinds = map[string]RoutineKind{
	"f": KindFunction,
	"p": KindProcedure,
	"a": KindAggregate,
	"w": KindWindow,
}

var paramModes = map[string]ParamMode{
	"i": ModeIn,
	"o": ModeOut,
	"b": ModeInOut,
	"v": ModeVariadic,
	"t": ModeTable,
}

var fkActions = map[string]string{
	"a": "NO ACTION",
	"r": "RESTRICT",
	"c": "CASCADE",
	"n": "SET NULL",
	"d": "SET DEFAULT",
}

var volatilities = map[string]string{
	"i": "immutable",
	"s": "stable",
	"v": "volatile",
}

func isPermission(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42501"
}

// classify wraps err into an *diag.ExtractionError naming what went wrong.
func classify(ctx context.Context, op string, err error) error {
	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		op = "timeout"
	case isPermission(err):
		op = "permission"
	case errors.As(err, &connErr):
		op = "connect"
	}
	return &diag.ExtractionError{Op: op, Cause: err}
}
