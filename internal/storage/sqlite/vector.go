package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// vectorCandidateCap bounds the brute-force similarity pass to the most
// recently updated rows. Without a vector index the scan cost is linear
// in candidates, so the cap keeps SEARCH inside its complexity budget
// at the price of recall over older rows.
const vectorCandidateCap = 1000

// VectorSearch brute-forces cosine similarity over one kind's
// recency-capped candidates, applying the structured predicate in
// memory. Rows without an embedding never match.
func (s *Store) VectorSearch(ctx context.Context, vec []float32, opts storage.VectorOptions, scope types.Scope) ([]storage.ScoredEntity, *storage.ScanStats, error) {
	if err := scope.Validate(); err != nil {
		return nil, nil, err
	}
	if len(vec) == 0 {
		return nil, nil, fmt.Errorf("sqlite: vector search requires a query vector: %w", types.ErrInvalidInput)
	}
	opts.Normalize()

	querySQL := fmt.Sprintf(`
		SELECT `+entitySelectColumns+`
		FROM %s
		WHERE tenant_id = ? AND owner_id IN (?, ?) AND deleted_at IS NULL AND embedding IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT ?
	`, opts.Kind.Table())

	rows, err := s.db.QueryContext(ctx, querySQL,
		scope.TenantID, scope.OwnerID, types.SharedOwner, vectorCandidateCap)
	if err != nil {
		return nil, nil, types.StoreErr("sqlite: vector search", err)
	}
	defer func() { _ = rows.Close() }()

	var results []storage.ScoredEntity
	scanned := 0
	for rows.Next() {
		entity, err := scanEntityRow(rows, opts.Kind)
		if err != nil {
			return nil, nil, err
		}
		scanned++

		if len(entity.Embedding) != len(vec) {
			continue
		}
		if !opts.Predicate.Matches(entity) {
			continue
		}
		results = append(results, storage.ScoredEntity{
			Entity: entity,
			Score:  cosineSimilarity(vec, entity.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, types.StoreErr("sqlite: vector search rows", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entity.Label < results[j].Entity.Label
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, &storage.ScanStats{RowsScanned: scanned}, nil
}

// cosineSimilarity computes the cosine of the angle between two equal-
// length vectors, 0 when either is zero-length in magnitude.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// serializeEmbedding packs a float32 vector as little-endian bytes.
func serializeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding unpacks little-endian bytes into a float32 vector.
func deserializeEmbedding(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, fmt.Errorf("embedding blob is %d bytes, expected %d for dimension %d", len(buf), 4*dim, dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
