// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package search defines the three-index full-text search gateway (spec
// §4.8, C8): index settings, idempotent provisioning, filter-string
// validation, and fan-out unified search. The remote search engine is
// treated as an opaque external collaborator per the source's Non-goals —
// no example repo in the corpus ships a matching wire client for a
// hosted search service, so the Backend port below is the stdlib-only
// boundary; everything behind it (validation, provisioning, fan-out) is
// grounded on xg2g's config/idempotent-setup conventions.
package search

import "errors"

// IndexName identifies one of the three managed indexes.
type IndexName string

const (
	IndexTracks  IndexName = "tracks"
	IndexAlbums  IndexName = "albums"
	IndexArtists IndexName = "artists"
)

// Settings describes one index's declared schema and ranking behavior.
type Settings struct {
	PrimaryKey   string
	Searchable   []string
	Filterable   []string
	Sortable     []string
	RankingRules []string
}

// defaultRankingRules is the tie-break chain shared by all indexes, ending
// in an index-specific tie-break rule.
func defaultRankingRules(tieBreak string) []string {
	return []string{"words", "typo", "proximity", "attribute", "sort", "exactness", tieBreak}
}

// Indexes is the full declared schema for the three managed indexes.
var Indexes = map[IndexName]Settings{
	IndexTracks: {
		PrimaryKey:   "id",
		Searchable:   []string{"title", "artist_name", "album_title", "genres"},
		Filterable:   []string{"artist_id", "album_id", "genres", "moods", "explicit", "duration_ms"},
		Sortable:     []string{"title", "play_count", "created_at", "duration_ms"},
		RankingRules: defaultRankingRules("play_count:desc"),
	},
	IndexAlbums: {
		PrimaryKey:   "id",
		Searchable:   []string{"title", "artist_name", "genres"},
		Filterable:   []string{"artist_id", "genres", "album_type", "release_year"},
		Sortable:     []string{"title", "release_year"},
		RankingRules: defaultRankingRules("release_year:desc"),
	},
	IndexArtists: {
		PrimaryKey:   "id",
		Searchable:   []string{"name", "genres"},
		Filterable:   []string{"genres"},
		Sortable:     []string{"name"},
		RankingRules: defaultRankingRules("name:asc"),
	},
}

// filterableAllowlist mirrors Indexes[...].Filterable per index, used by
// the filter-string validator (duplicated as a set for O(1) lookups).
var filterableAllowlist = map[IndexName]map[string]struct{}{
	IndexTracks:  toSet(Indexes[IndexTracks].Filterable),
	IndexAlbums:  toSet(Indexes[IndexAlbums].Filterable),
	IndexArtists: toSet(Indexes[IndexArtists].Filterable),
}

func toSet(values []string) map[string]struct{} {
	s := make(map[string]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// ErrIndexAlreadyExists is returned by a Backend's CreateIndex when the
// index is already provisioned.
var ErrIndexAlreadyExists = errors.New("index already exists")

// Hit is one matched document; the concrete payload is left to the
// backend's native representation since it varies per index.
type Hit struct {
	ID      string
	Payload map[string]any
}

// Result is one index's search outcome.
type Result struct {
	Index            IndexName
	Hits             []Hit
	Total            int
	ProcessingTimeMs int64
}

// Backend is the opaque remote search collaborator. Concrete adapters
// live outside this package; tests use an in-memory fake.
type Backend interface {
	CreateIndex(name IndexName, settings Settings) error
	UpdateSettings(name IndexName, settings Settings) error
	Search(name IndexName, query, filter string, limit int) (Result, error)
}

// EnsureIndexes provisions all three indexes idempotently: on
// ErrIndexAlreadyExists, creation is skipped but settings are always
// re-applied unconditionally (adopted per spec §9's Open Question
// resolution — settings drift is always corrected, never silently kept).
func EnsureIndexes(backend Backend) error {
	for name, settings := range Indexes {
		err := backend.CreateIndex(name, settings)
		if err != nil && !errors.Is(err, ErrIndexAlreadyExists) {
			return err
		}
		if err := backend.UpdateSettings(name, settings); err != nil {
			return err
		}
	}
	return nil
}
