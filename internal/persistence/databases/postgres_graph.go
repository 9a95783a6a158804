package databases

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pgGraph struct{ pool *pgxpool.Pool }

// NewPostgresGraph returns a GraphDB backed by two tables: nodes keyed on
// (type_tag, natural_key) — uniqueness is per node type, so types sharing a
// natural key never clobber each other — and edges keyed on the full
// composite uniqueness tuple (type_tag, src_ref, dst_ref, source_doc_id,
// extractor_version). Both tables enforce their uniqueness at the
// constraint level so the writer rejects duplicates in the store rather
// than in application memory.
func NewPostgresGraph(pool *pgxpool.Pool) GraphDB {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS nodes (
  type_tag    TEXT NOT NULL,
  natural_key TEXT NOT NULL,
  status      TEXT NOT NULL DEFAULT '',
  props       JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (type_tag, natural_key)
);
`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS nodes_natural_key ON nodes(natural_key)`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS edges (
  type_tag          TEXT NOT NULL,
  src_ref           TEXT NOT NULL,
  dst_ref           TEXT NOT NULL,
  source_doc_id     TEXT NOT NULL,
  extractor_version TEXT NOT NULL,
  tier              TEXT NOT NULL,
  confidence        DOUBLE PRECISION NOT NULL,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  source_timestamp  TIMESTAMPTZ,
  props             JSONB NOT NULL DEFAULT '{}'::jsonb,
  PRIMARY KEY (type_tag, src_ref, dst_ref, source_doc_id, extractor_version)
);
`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS edges_src ON edges(src_ref, type_tag)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS edges_source_doc ON edges(source_doc_id, extractor_version)`)
	return &pgGraph{pool: pool}
}

func (g *pgGraph) UpsertNode(ctx context.Context, n Node) error {
	if n.Props == nil {
		n.Props = map[string]any{}
	}
	if n.Status == "" {
		// A full write supersedes any stub previously inserted for a
		// dangling edge endpoint with the same natural key.
		if _, err := g.pool.Exec(ctx, `DELETE FROM nodes WHERE type_tag=$1 AND natural_key=$2`, StubTypeTag, n.NaturalKey); err != nil {
			return err
		}
	}
	_, err := g.pool.Exec(ctx, `
INSERT INTO nodes(type_tag, natural_key, status, props) VALUES($1,$2,$3,$4)
ON CONFLICT (type_tag, natural_key) DO UPDATE SET
  status=CASE WHEN EXCLUDED.status='' THEN '' ELSE nodes.status END,
  props=EXCLUDED.props,
  updated_at=now()
`, n.TypeTag, n.NaturalKey, n.Status, n.Props)
	return err
}

func (g *pgGraph) UpsertEdge(ctx context.Context, e EdgeWrite) error {
	if e.Props == nil {
		e.Props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx, `
INSERT INTO edges(type_tag, src_ref, dst_ref, source_doc_id, extractor_version, tier, confidence, source_timestamp, props)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (type_tag, src_ref, dst_ref, source_doc_id, extractor_version) DO UPDATE SET
  tier=EXCLUDED.tier,
  confidence=EXCLUDED.confidence,
  source_timestamp=EXCLUDED.source_timestamp,
  props=EXCLUDED.props
WHERE EXCLUDED.confidence > edges.confidence
   OR (EXCLUDED.confidence = edges.confidence AND EXCLUDED.source_timestamp > edges.source_timestamp)
`, e.TypeTag, e.SrcRef, e.DstRef, e.SourceDocID, e.ExtractorVersion, e.Tier, e.Confidence, e.SourceTimestamp, e.Props)
	return err
}

func (g *pgGraph) NodeExists(ctx context.Context, typeTag, naturalKey string) (bool, error) {
	var exists bool
	if typeTag == "" {
		err := g.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM nodes WHERE natural_key=$1)`, naturalKey).Scan(&exists)
		return exists, err
	}
	err := g.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM nodes WHERE type_tag=$1 AND natural_key=$2)`, typeTag, naturalKey).Scan(&exists)
	return exists, err
}

func (g *pgGraph) GetNode(ctx context.Context, typeTag, naturalKey string) (Node, bool) {
	row := g.pool.QueryRow(ctx, `SELECT status, props FROM nodes WHERE type_tag=$1 AND natural_key=$2`, typeTag, naturalKey)
	var n Node
	n.TypeTag = typeTag
	n.NaturalKey = naturalKey
	if err := row.Scan(&n.Status, &n.Props); err != nil {
		return Node{}, false
	}
	return n, true
}

func (g *pgGraph) Neighbors(ctx context.Context, naturalKey string, edgeTag string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT dst_ref FROM edges WHERE src_ref=$1 ORDER BY dst_ref LIMIT $2`
	args := []any{naturalKey, limit}
	if edgeTag != "" {
		query = `SELECT dst_ref FROM edges WHERE src_ref=$1 AND type_tag=$2 ORDER BY dst_ref LIMIT $3`
		args = []any{naturalKey, edgeTag, limit}
	}
	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (g *pgGraph) DeleteEdgesBySourceDoc(ctx context.Context, sourceDocID, extractorVersion string) (int, error) {
	tag, err := g.pool.Exec(ctx, `DELETE FROM edges WHERE source_doc_id=$1 AND extractor_version=$2`, sourceDocID, extractorVersion)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
