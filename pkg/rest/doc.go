// Package rest serves the generated routes of the live artifacts over HTTP,
// in the manner of PostgREST.
//
// Tables and views are exposed at /{schema}/{name}, items at
// /{schema}/{name}/{key...}. Functions are called with POST
// /{schema}/fn/{name} and procedures with POST /{schema}/proc/{name}; an
// overloaded routine adds a segment naming its input types.
//
// Query parameters of list routes:
//
//	Parameter             | Description
//	----------------------|------------------------------------------------
//	?select=a,b           | Return only the named fields
//	?embed=rel1,rel2      | Add related rows as nested fields
//	?order=a.desc,b       | Order (asc|desc, nullsfirst|nullslast)
//	?limit=100            | Page size, clamped to the route's maximum
//	?offset=0             | Page offset
//	?a=eq.1               | Filter: eq neq gt gte lt lte like ilike
//	?a=in.(1,2,3)         | Filter by value list (notin negates)
//	?a=is.null            | IS NULL, TRUE, FALSE or UNKNOWN
//	?a=not.eq.1           | Negate any filter
//	?or=(a.eq.1,b.lt.2)   | Combine filters; and/or nest, not.and/not.or negate
//
// Headers honored on requests:
//
//	Header                         | Description
//	-------------------------------|----------------------------------------
//	Prefer: return=minimal         | Mutations answer with headers only (default)
//	Prefer: return=representation  | Mutations answer with the affected row
//	Prefer: count=exact            | Lists report the total in Content-Range
//
// Every read is rendered by PostgreSQL itself as JSON, so the server copies
// result bytes to the client without decoding rows.
//
// Example usage:
//
//	srv := rest.NewServer(reg, pool, rest.WithLogger(logger))
//	router := httputil.NewRouter()
//	srv.Register(router)
//	log.Fatal(router.ListenAndServe(":8080"))
package rest
