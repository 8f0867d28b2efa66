package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// fuzzyCandidateCap bounds the in-process ranking pass. SQLite has no
// trigram index, so candidates are the most recently updated index rows
// in scope; matches older than the cap are not found. The Postgres
// backend does not share this limitation.
const fuzzyCandidateCap = 2000

// FuzzySearch ranks labels by normalized edit-distance similarity over
// a capped candidate set drawn from the label index.
func (s *Store) FuzzySearch(ctx context.Context, opts storage.FuzzyOptions, scope types.Scope) ([]storage.ScoredEntity, *storage.ScanStats, error) {
	if err := scope.Validate(); err != nil {
		return nil, nil, err
	}
	if opts.Text == "" {
		return nil, nil, fmt.Errorf("sqlite: fuzzy search requires text: %w", types.ErrInvalidInput)
	}
	opts.Normalize()

	const querySQL = `
		SELECT kind, label, summary
		FROM label_index
		WHERE tenant_id = ? AND owner_id IN (?, ?)
		ORDER BY updated_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, querySQL,
		scope.TenantID, scope.OwnerID, types.SharedOwner, fuzzyCandidateCap)
	if err != nil {
		return nil, nil, types.StoreErr("sqlite: fuzzy search", err)
	}
	defer func() { _ = rows.Close() }()

	type match struct {
		kind  types.EntityKind
		label string
		score float64
	}
	var matches []match
	scanned := 0
	needle := strings.ToLower(opts.Text)

	for rows.Next() {
		var kind, label, summary string
		if err := rows.Scan(&kind, &label, &summary); err != nil {
			return nil, nil, types.StoreErr("sqlite: fuzzy search scan", err)
		}
		scanned++

		score := similarity(needle, strings.ToLower(label))
		if s2 := similarity(needle, strings.ToLower(summary)); s2 > score {
			score = s2
		}
		if score >= opts.Threshold {
			matches = append(matches, match{kind: types.EntityKind(kind), label: label, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, types.StoreErr("sqlite: fuzzy search rows", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].label < matches[j].label
	})
	if len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	stats := &storage.ScanStats{RowsScanned: scanned}
	results := make([]storage.ScoredEntity, 0, len(matches))
	for _, m := range matches {
		entity, err := s.GetEntity(ctx, m.kind, m.label, scope)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		stats.RowsScanned++
		results = append(results, storage.ScoredEntity{Entity: entity, Score: m.score})
	}
	return results, stats, nil
}

// similarity maps Levenshtein distance to [0,1], where 1 is an exact
// match. A needle contained verbatim in a longer haystack scores as if
// only the surplus text differed, so substring hits rank usefully.
func similarity(needle, haystack string) float64 {
	if needle == haystack {
		return 1
	}
	if needle == "" || haystack == "" {
		return 0
	}

	longest := len(needle)
	if len(haystack) > longest {
		longest = len(haystack)
	}

	dist := fuzzy.LevenshteinDistance(needle, haystack)
	if strings.Contains(haystack, needle) {
		surplus := len(haystack) - len(needle)
		if surplus < dist {
			dist = surplus
		}
	}
	return 1 - float64(dist)/float64(longest)
}
