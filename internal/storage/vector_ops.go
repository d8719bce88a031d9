package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// serializeVector converts a float32 slice to a little-endian byte slice
// for BLOB storage. The format matches what sqlite-vec expects.
func serializeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector converts a BLOB back to a float32 slice.
func deserializeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

// cosineDistance computes 1 - cosine similarity between two vectors.
// Returns 1 (maximally distant) for mismatched or zero vectors.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// searchVector returns the chunks nearest to the query embedding by cosine
// distance, smallest first. With the sqlite-vec build the distance is
// computed in SQL; otherwise candidate rows are scanned and scored in Go.
func searchVector(ctx context.Context, db *sql.DB, embedding []float32, filters SearchFilters) ([]ChunkHit, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 10
	}

	if VectorExtensionAvailable {
		return searchVectorSQL(ctx, db, embedding, filters, limit)
	}
	return searchVectorScan(ctx, db, embedding, filters, limit)
}

// searchVectorSQL pushes the distance computation into SQLite via
// vec_distance_cosine.
func searchVectorSQL(ctx context.Context, db *sql.DB, embedding []float32, filters SearchFilters, limit int) ([]ChunkHit, error) {
	query := `
		SELECT c.id, c.document_id, d.url, c.content,
		       vec_distance_cosine(c.embedding, ?) AS distance
		FROM chunks c
		JOIN documents d ON c.document_id = d.id
		JOIN sources s ON d.source_id = s.id
		WHERE 1=1
	`
	args := []interface{}{serializeVector(embedding)}

	query, args = appendVectorFilters(query, args, filters)
	query += ` ORDER BY distance ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
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

// searchVectorScan is the pure Go fallback: fetch candidate chunks, compute
// cosine distance per row, sort, truncate.
func searchVectorScan(ctx context.Context, db *sql.DB, embedding []float32, filters SearchFilters, limit int) ([]ChunkHit, error) {
	query := `
		SELECT c.id, c.document_id, d.url, c.content, c.embedding
		FROM chunks c
		JOIN documents d ON c.document_id = d.id
		JOIN sources s ON d.source_id = s.id
		WHERE 1=1
	`
	args := []interface{}{}
	query, args = appendVectorFilters(query, args, filters)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hits := make([]ChunkHit, 0)
	for rows.Next() {
		var hit ChunkHit
		var blob []byte
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &hit.URL, &hit.Content, &blob); err != nil {
			return nil, err
		}
		vec, err := deserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", hit.ChunkID, err)
		}
		hit.Distance = cosineDistance(embedding, vec)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func appendVectorFilters(query string, args []interface{}, filters SearchFilters) (string, []interface{}) {
	if filters.Source != "" {
		query += ` AND s.name = ?`
		args = append(args, filters.Source)
	}
	if filters.PathPrefix != "" {
		query += ` AND d.path LIKE ? || '%'`
		args = append(args, filters.PathPrefix)
	}
	if filters.Section != "" {
		query += ` AND json_extract(d.metadata, '$.section') = ?`
		args = append(args, filters.Section)
	}
	return query, args
}
