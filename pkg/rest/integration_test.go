package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/edgeflare/pgsynth/internal/testutil/pgtest"
	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/httputil"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/registry"
	"github.com/edgeflare/pgsynth/pkg/route"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestRoundTrip creates rows through the generated routes of a live schema
// and reads them back with the read model.
func TestRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := pgtest.Pool(ctx, t)

	pgtest.Exec(ctx, t, pool,
		`DROP SCHEMA IF EXISTS pgsynth_it CASCADE`,
		`CREATE SCHEMA pgsynth_it`,
		`CREATE TYPE pgsynth_it.genre AS ENUM ('fiction', 'essay')`,
		`CREATE TABLE pgsynth_it.authors (
			id serial PRIMARY KEY,
			name text NOT NULL,
			born date
		)`,
		`CREATE TABLE pgsynth_it.books (
			id bigserial PRIMARY KEY,
			author_id integer NOT NULL REFERENCES pgsynth_it.authors(id) ON DELETE CASCADE,
			title varchar(200) NOT NULL,
			genre pgsynth_it.genre NOT NULL DEFAULT 'fiction',
			price numeric(8,2)
		)`,
		`CREATE FUNCTION pgsynth_it.book_count(author integer) RETURNS bigint
			LANGUAGE sql STABLE AS $$ SELECT count(*) FROM pgsynth_it.books WHERE author_id = author $$`,
	)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS pgsynth_it CASCADE`)
	})

	logger := zaptest.NewLogger(t)
	gen := synth.NewGenerator(catalog.NewPostgresSource(pool, catalog.WithLogger(logger)), synth.Options{
		Scope:   catalog.Scope{Include: []string{"pgsynth_it"}},
		Model:   model.Options{MaxNestedDepth: 1, ExposeRoutines: true},
		Route:   route.Options{DefaultPageSize: 10, MaxPageSize: 50, ExposeRoutines: true},
		Timeout: 20 * time.Second,
	}, logger)
	reg := registry.New(gen, registry.WithLogger(logger))
	_, err := reg.Regenerate(ctx)
	require.NoError(t, err)

	router := httputil.NewRouter()
	NewServer(reg, pool, WithLogger(logger)).Register(router)
	h := &harness{router: router}

	w := h.do(http.MethodPost, "/pgsynth_it/authors", `{"name":"Ursula","born":"1929-10-21"}`, "Prefer", "return=representation")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var author map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &author))
	assert.Equal(t, "Ursula", author["name"])
	assert.Equal(t, "1929-10-21", author["born"])
	location := w.Header().Get("Location")
	require.NotEmpty(t, location)

	w = h.do(http.MethodPost, "/pgsynth_it/books", `{"author_id":`+jsonNumber(author["id"])+`,"title":"The Dispossessed","price":"12.50"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodPost, "/pgsynth_it/books", `{"author_id":`+jsonNumber(author["id"])+`,"title":"x","genre":"poetry"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "enum values outside the type are rejected")

	w = h.do(http.MethodGet, "/pgsynth_it/books?genre=eq.fiction&embed=author", "", "Prefer", "count=exact")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "0-0/1", w.Header().Get("Content-Range"))
	var books []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Equal(t, "The Dispossessed", books[0]["title"])
	assert.Equal(t, 12.5, books[0]["price"])
	assert.Equal(t, "Ursula", books[0]["author"].(map[string]any)["name"])

	w = h.do(http.MethodPatch, location, `{"name":"Ursula K. Le Guin"}`, "Prefer", "return=representation")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Le Guin")

	w = h.do(http.MethodPost, "/pgsynth_it/fn/book_count", `{"author":`+jsonNumber(author["id"])+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"book_count":1}`, w.Body.String())

	w = h.do(http.MethodPost, "/pgsynth_it/books", `{"author_id":999999,"title":"orphan"}`)
	assert.Equal(t, http.StatusConflict, w.Code, "foreign key violations map to 409")

	w = h.do(http.MethodDelete, location, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(http.MethodGet, location, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func jsonNumber(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
