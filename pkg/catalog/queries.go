package catalog

const queryNamespaces = `
SELECT n.nspname::text
FROM pg_catalog.pg_namespace n
WHERE n.nspname NOT LIKE 'pg\_%'
  AND n.nspname <> 'information_schema'
ORDER BY 1`

const queryRelations = `
SELECT n.nspname::text,
       c.relname::text,
       c.relkind::text,
       has_schema_privilege(n.oid, 'USAGE') AND has_table_privilege(c.oid, 'SELECT') AS readable,
       CASE WHEN c.relkind IN ('v', 'm') THEN COALESCE(pg_get_viewdef(c.oid, true), '') ELSE '' END AS definition,
       COALESCE(obj_description(c.oid, 'pg_class'), '') AS comment
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = ANY($1)
  AND c.relkind NOT IN ('i', 'I', 'S', 't', 'c')
  AND NOT c.relispartition
ORDER BY 1, 2`

// Domains are resolved to their base type so the type mapper sees a known tag.
const queryColumns = `
SELECT n.nspname::text,
       c.relname::text,
       a.attname::text,
       a.attnum::int,
       CASE WHEN t.typtype = 'd' THEN format_type(t.typbasetype, t.typtypmod)
            ELSE format_type(a.atttypid, a.atttypmod) END AS native,
       t.typcategory = 'A' AS is_array,
       NOT a.attnotnull AS nullable,
       a.atthasdef AS has_default,
       COALESCE(pg_get_expr(d.adbin, d.adrelid), '') AS default_expr,
       (a.attidentity <> '' OR a.attgenerated <> '') AS generated,
       COALESCE(en.nspname::text || '.' || e.typname::text, '') AS enum_ref,
       COALESCE(col_description(c.oid, a.attnum), '') AS comment
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_type t ON t.oid = a.atttypid
LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
LEFT JOIN pg_catalog.pg_type e
       ON e.oid = CASE WHEN t.typcategory = 'A' THEN t.typelem ELSE t.oid END
      AND e.typtype = 'e'
LEFT JOIN pg_catalog.pg_namespace en ON en.oid = e.typnamespace
WHERE n.nspname = ANY($1)
  AND c.relkind IN ('r', 'p', 'v', 'm', 'f')
  AND a.attnum > 0
  AND NOT a.attisdropped
  AND has_column_privilege(c.oid, a.attnum, 'SELECT')
ORDER BY 1, 2, 4`

// Composite keys keep their column pairing through WITH ORDINALITY.
const queryConstraints = `
SELECT n.nspname::text,
       c.relname::text,
       con.conname::text,
       con.contype::text,
       ARRAY(SELECT a.attname::text
             FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
             JOIN pg_catalog.pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
             ORDER BY k.ord) AS columns,
       COALESCE(fn.nspname::text, '') AS target_schema,
       COALESCE(fc.relname::text, '') AS target_table,
       ARRAY(SELECT a.attname::text
             FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
             JOIN pg_catalog.pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum
             ORDER BY k.ord) AS target_columns,
       con.confdeltype::text,
       con.confupdtype::text
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_catalog.pg_class fc ON fc.oid = con.confrelid
LEFT JOIN pg_catalog.pg_namespace fn ON fn.oid = fc.relnamespace
WHERE n.nspname = ANY($1)
  AND con.contype IN ('p', 'u', 'f')
ORDER BY 1, 2, 3`

const queryEnums = `
SELECT n.nspname::text,
       t.typname::text,
       array_agg(e.enumlabel::text ORDER BY e.enumsortorder) AS labels
FROM pg_catalog.pg_type t
JOIN pg_catalog.pg_enum e ON e.enumtypid = t.oid
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = ANY($1)
GROUP BY 1, 2
ORDER BY 1, 2`

// Routines owned by extensions are left out.
const queryRoutines = `
SELECT n.nspname::text,
       p.proname::text,
       p.prokind::text,
       p.proretset,
       p.provolatile::text,
       p.prorettype = 'pg_catalog.trigger'::regtype AS is_trigger,
       p.prorettype = 'pg_catalog.void'::regtype AS returns_void,
       COALESCE(format_type(p.prorettype, NULL), '') AS return_type,
       COALESCE(rn.nspname::text || '.' || rc.relname::text, '') AS return_relation,
       COALESCE(p.proargnames::text[], ARRAY[]::text[]) AS arg_names,
       COALESCE(p.proargmodes::text[], ARRAY[]::text[]) AS arg_modes,
       ARRAY(SELECT format_type(a.t, NULL)
             FROM unnest(COALESCE(p.proallargtypes, p.proargtypes::oid[])) WITH ORDINALITY AS a(t, ord)
             ORDER BY a.ord) AS arg_types,
       p.pronargdefaults::int AS n_defaults,
       COALESCE(obj_description(p.oid, 'pg_proc'), '') AS comment
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
LEFT JOIN pg_catalog.pg_type rt ON rt.oid = p.prorettype
LEFT JOIN pg_catalog.pg_class rc
       ON rc.oid = rt.typrelid
      AND rt.typtype = 'c'
      AND rc.relkind IN ('r', 'p', 'v', 'm', 'f')
LEFT JOIN pg_catalog.pg_namespace rn ON rn.oid = rc.relnamespace
WHERE n.nspname = ANY($1)
  AND NOT EXISTS (
      SELECT 1 FROM pg_catalog.pg_depend d
      WHERE d.classid = 'pg_catalog.pg_proc'::regclass
        AND d.objid = p.oid
        AND d.deptype = 'e')
ORDER BY 1, 2, p.oid`
