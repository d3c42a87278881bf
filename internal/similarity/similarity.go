// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package similarity implements the semantic, acoustic, categorical, and
// combined track-similarity operations of spec §4.7 (C7). Combined runs its
// three signals concurrently with errgroup (candidates are scored
// sequentially within each signal), grounded on the concurrency style of
// xg2g's bounded-worker code (internal/proxy's context-scoped goroutines,
// generalized here to a CPU-bound errgroup fan-out rather than I/O-bound
// network calls).
package similarity

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/resonance-audio/resonance/internal/domain"
)

const (
	minLimit = 1
	maxLimit = 100
)

// ClampLimit enforces the [1, 100] bound from spec §4.7.
func ClampLimit(limit int) int {
	if limit < minLimit {
		return minLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Candidate is a track considered against a seed.
type Candidate struct {
	Track     domain.Track
	Embedding *domain.TrackEmbedding
}

// Semantic computes cosine similarity between the seed embedding and all
// candidate embeddings, mapping distance d in [0,2] to score 1-d/2.
// Candidates without an embedding are skipped. Fails NotFound if the seed
// has no embedding.
func Semantic(ctx context.Context, seed *domain.TrackEmbedding, candidates []Candidate, limit int) ([]domain.SimilarityResult, error) {
	if seed == nil {
		return nil, apierr.Of(apierr.KindNotFound, "track embedding")
	}
	limit = ClampLimit(limit)

	results := make([]domain.SimilarityResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Embedding == nil {
			continue
		}
		d := cosineDistance(seed.Vector, c.Embedding.Vector)
		score := domain.SanitizeScore(1 - d/2)
		results = append(results, domain.SimilarityResult{
			TrackID:    c.Track.ID.String(),
			Title:      c.Track.Title,
			ArtistName: c.Track.ArtistName,
			AlbumTitle: c.Track.AlbumTitle,
			Score:      score,
			Type:       domain.SimilaritySemantic,
		})
	}
	sortDescending(results)
	return topN(results, limit), nil
}

func cosineDistance(a, b [domain.EmbeddingDimension]float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2 // maximally dissimilar
	}
	cosine := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	cosine = math.Max(-1, math.Min(1, cosine))
	return 1 - cosine
}

func acousticValue(f *domain.AudioFeatures) map[string]*float64 {
	values := map[string]*float64{}
	if f.BPM != nil {
		v := *f.BPM / 200
		values["bpm"] = &v
	}
	if f.Energy != nil {
		values["energy"] = f.Energy
	}
	if f.Danceability != nil {
		values["danceability"] = f.Danceability
	}
	if f.Valence != nil {
		values["valence"] = f.Valence
	}
	if f.Loudness != nil {
		v := math.Max(-1, math.Min(1, *f.Loudness/60))
		values["loudness"] = &v
	}
	return values
}

// Acoustic computes weighted Euclidean distance over {bpm/200, energy,
// danceability, valence, loudness/60 clamped}, using only features shared
// between seed and candidate, normalized by the shared-feature count.
// Fails NotFound if the seed has no non-null audio feature.
func Acoustic(ctx context.Context, seed *domain.Track, candidates []Candidate, limit int) ([]domain.SimilarityResult, error) {
	if !seed.Features.HasAny() {
		return nil, apierr.Of(apierr.KindNotFound, "track audio features")
	}
	limit = ClampLimit(limit)
	seedValues := acousticValue(&seed.Features)

	results := make([]domain.SimilarityResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Track.ID == seed.ID {
			continue
		}
		candValues := acousticValue(&c.Track.Features)

		var sumSq float64
		shared := 0
		for key, sv := range seedValues {
			if cv, ok := candValues[key]; ok {
				diff := *sv - *cv
				sumSq += diff * diff
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		d := math.Sqrt(sumSq / float64(shared))
		score := domain.SanitizeScore(1 / (1 + d))

		results = append(results, domain.SimilarityResult{
			TrackID:    c.Track.ID.String(),
			Title:      c.Track.Title,
			ArtistName: c.Track.ArtistName,
			AlbumTitle: c.Track.AlbumTitle,
			Score:      score,
			Type:       domain.SimilarityAcoustic,
		})
	}
	sortDescending(results)
	return topN(results, limit), nil
}

var categoricalWeights = map[string]float64{"genres": 0.5, "ai_mood": 0.3, "ai_tags": 0.2}

// Categorical computes weighted Jaccard similarity across genres, ai_mood
// and ai_tags. A track with no tags returns an empty list without error.
func Categorical(ctx context.Context, seed *domain.Track, candidates []Candidate, limit int) ([]domain.SimilarityResult, error) {
	limit = ClampLimit(limit)
	if len(seed.Genres) == 0 && len(seed.AIMood) == 0 && len(seed.AITags) == 0 {
		return []domain.SimilarityResult{}, nil
	}

	results := make([]domain.SimilarityResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Track.ID == seed.ID {
			continue
		}
		score := categoricalWeights["genres"]*jaccard(seed.Genres, c.Track.Genres) +
			categoricalWeights["ai_mood"]*jaccard(seed.AIMood, c.Track.AIMood) +
			categoricalWeights["ai_tags"]*jaccard(seed.AITags, c.Track.AITags)

		results = append(results, domain.SimilarityResult{
			TrackID:    c.Track.ID.String(),
			Title:      c.Track.Title,
			ArtistName: c.Track.ArtistName,
			AlbumTitle: c.Track.AlbumTitle,
			Score:      domain.SanitizeScore(score),
			Type:       domain.SimilarityCategorical,
		})
	}
	sortDescending(results)
	return topN(results, limit), nil
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Combined blends semantic (0.5), acoustic (0.3) and categorical (0.2).
// When a signal is unavailable for the seed, its weight is redistributed
// proportionally among the remaining available signals. Per-candidate
// scores are union-reduced (max across signals) before sorting. Combined
// may succeed even when individual signals would fail outright.
func Combined(ctx context.Context, seed *domain.Track, seedEmbedding *domain.TrackEmbedding, candidates []Candidate, limit int) ([]domain.SimilarityResult, error) {
	limit = ClampLimit(limit)

	type weighted struct {
		weight  float64
		results []domain.SimilarityResult
	}

	g, gctx := errgroup.WithContext(ctx)
	var semanticRes, acousticRes, categoricalRes []domain.SimilarityResult
	haveSemantic := seedEmbedding != nil
	haveAcoustic := seed.Features.HasAny()

	if haveSemantic {
		g.Go(func() error {
			r, err := Semantic(gctx, seedEmbedding, candidates, maxLimit)
			if err != nil {
				return nil // NotFound from an individual signal must not fail Combined
			}
			semanticRes = r
			return nil
		})
	}
	if haveAcoustic {
		g.Go(func() error {
			r, err := Acoustic(gctx, seed, candidates, maxLimit)
			if err != nil {
				return nil
			}
			acousticRes = r
			return nil
		})
	}
	g.Go(func() error {
		r, err := Categorical(gctx, seed, candidates, maxLimit)
		if err != nil {
			return nil
		}
		categoricalRes = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	signals := []weighted{}
	if haveSemantic {
		signals = append(signals, weighted{weight: 0.5, results: semanticRes})
	}
	if haveAcoustic {
		signals = append(signals, weighted{weight: 0.3, results: acousticRes})
	}
	signals = append(signals, weighted{weight: 0.2, results: categoricalRes})

	totalWeight := 0.0
	for _, s := range signals {
		totalWeight += s.weight
	}
	if totalWeight == 0 {
		return []domain.SimilarityResult{}, nil
	}

	byTrack := map[string]float64{}
	meta := map[string]domain.SimilarityResult{}
	for _, s := range signals {
		rescaledWeight := s.weight / totalWeight
		for _, r := range s.results {
			contribution := domain.SanitizeScore(r.Score * rescaledWeight)
			if existing, ok := byTrack[r.TrackID]; !ok || contribution > existing {
				byTrack[r.TrackID] = contribution
				meta[r.TrackID] = r
			}
		}
	}

	results := make([]domain.SimilarityResult, 0, len(byTrack))
	for trackID, score := range byTrack {
		m := meta[trackID]
		results = append(results, domain.SimilarityResult{
			TrackID:    trackID,
			Title:      m.Title,
			ArtistName: m.ArtistName,
			AlbumTitle: m.AlbumTitle,
			Score:      domain.SanitizeScore(score),
			Type:       domain.SimilarityCombined,
		})
	}
	sortDescending(results)
	return topN(results, limit), nil
}

func sortDescending(results []domain.SimilarityResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

func topN(results []domain.SimilarityResult, n int) []domain.SimilarityResult {
	if len(results) <= n {
		return results
	}
	return results[:n]
}
