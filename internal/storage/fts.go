package storage

import (
	"context"
	"database/sql"
	"strings"
)

// ftsStripped are characters removed from raw queries before building the
// MATCH expression. They are FTS5 syntax and would otherwise turn user input
// into query operators.
const ftsStripped = `"()*-+:^`

// prepareFTSQuery converts a free-text query into a safe FTS5 MATCH
// expression. Each term becomes a quoted prefix query and terms are OR'd so
// partial matches still rank. An empty or fully-stripped query yields the
// empty phrase, which matches nothing.
func prepareFTSQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(ftsStripped, r) {
			return ' '
		}
		return r
	}, query)

	terms := strings.Fields(cleaned)
	if len(terms) == 0 {
		return `""`
	}

	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + term + `"*`
	}
	return strings.Join(quoted, " OR ")
}

// searchLexical runs BM25-ranked full-text search over chunks_fts. Distance
// carries abs(bm25), so smaller stays better, matching the vector leg.
func searchLexical(ctx context.Context, db *sql.DB, query string, filters SearchFilters) ([]ChunkHit, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
		SELECT c.id, c.document_id, d.url, c.content, abs(bm25(chunks_fts)) AS rank
		FROM chunks_fts
		JOIN chunks c ON chunks_fts.rowid = c.id
		JOIN documents d ON c.document_id = d.id
		JOIN sources s ON d.source_id = s.id
		WHERE chunks_fts MATCH ?
	`
	args := []interface{}{prepareFTSQuery(query)}

	if filters.Source != "" {
		sqlQuery += ` AND s.name = ?`
		args = append(args, filters.Source)
	}
	if filters.PathPrefix != "" {
		sqlQuery += ` AND d.path LIKE ? || '%'`
		args = append(args, filters.PathPrefix)
	}
	if filters.Section != "" {
		sqlQuery += ` AND json_extract(d.metadata, '$.section') = ?`
		args = append(args, filters.Section)
	}

	sqlQuery += ` ORDER BY bm25(chunks_fts) LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hits := make([]ChunkHit, 0, limit)
	for rows.Next() {
		var hit ChunkHit
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &hit.URL, &hit.Content, &hit.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
