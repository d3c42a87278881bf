// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package similarity

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/resonance-audio/resonance/internal/domain"
)

func embeddingOf(values ...float32) *domain.TrackEmbedding {
	var e domain.TrackEmbedding
	copy(e.Vector[:], values)
	return &e
}

func f64(v float64) *float64 { return &v }

func TestSemantic_RequiresSeedEmbedding(t *testing.T) {
	_, err := Semantic(context.Background(), nil, nil, 10)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindNotFound, apiErr.Kind)
}

func TestSemantic_IdenticalVectorScoresOne(t *testing.T) {
	seed := embeddingOf(1, 0, 0)
	track := domain.Track{ID: uuid.New(), Title: "identical"}
	candidates := []Candidate{{Track: track, Embedding: embeddingOf(1, 0, 0)}}

	results, err := Semantic(context.Background(), seed, candidates, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSemantic_OpposingVectorScoresZero(t *testing.T) {
	seed := embeddingOf(1, 0, 0)
	track := domain.Track{ID: uuid.New()}
	candidates := []Candidate{{Track: track, Embedding: embeddingOf(-1, 0, 0)}}

	results, err := Semantic(context.Background(), seed, candidates, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.0, results[0].Score, 1e-6)
}

func TestAcoustic_RequiresNonNullFeature(t *testing.T) {
	seed := &domain.Track{ID: uuid.New()}
	_, err := Acoustic(context.Background(), seed, nil, 10)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindNotFound, apiErr.Kind)
}

func TestAcoustic_IdenticalFeaturesScoreOne(t *testing.T) {
	seed := &domain.Track{ID: uuid.New(), Features: domain.AudioFeatures{Energy: f64(0.8)}}
	candidate := domain.Track{ID: uuid.New(), Features: domain.AudioFeatures{Energy: f64(0.8)}}

	results, err := Acoustic(context.Background(), seed, []Candidate{{Track: candidate}}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestAcoustic_ExcludesSeedFromCandidates(t *testing.T) {
	seedID := uuid.New()
	seed := &domain.Track{ID: seedID, Features: domain.AudioFeatures{Energy: f64(0.8)}}
	self := domain.Track{ID: seedID, Features: domain.AudioFeatures{Energy: f64(0.8)}}

	results, err := Acoustic(context.Background(), seed, []Candidate{{Track: self}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAcoustic_NoSharedFeaturesExcludesCandidate(t *testing.T) {
	seed := &domain.Track{ID: uuid.New(), Features: domain.AudioFeatures{Energy: f64(0.8)}}
	candidate := domain.Track{ID: uuid.New(), Features: domain.AudioFeatures{Valence: f64(0.5)}}

	results, err := Acoustic(context.Background(), seed, []Candidate{{Track: candidate}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCategorical_NoTagsReturnsEmptyWithoutError(t *testing.T) {
	seed := &domain.Track{ID: uuid.New()}
	results, err := Categorical(context.Background(), seed, []Candidate{{Track: domain.Track{ID: uuid.New()}}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCategorical_IdenticalGenresScoreFull(t *testing.T) {
	seed := &domain.Track{ID: uuid.New(), Genres: map[string]struct{}{"rock": {}}}
	candidate := domain.Track{ID: uuid.New(), Genres: map[string]struct{}{"rock": {}}}

	results, err := Categorical(context.Background(), seed, []Candidate{{Track: candidate}}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.5, results[0].Score, 1e-6) // genres weight is 0.5; no mood/tags overlap contributes
}

func TestCombined_RedistributesWeightWhenSemanticMissing(t *testing.T) {
	seedID := uuid.New()
	seed := &domain.Track{
		ID:     seedID,
		Genres: map[string]struct{}{"rock": {}},
	}
	candidate := domain.Track{ID: uuid.New(), Genres: map[string]struct{}{"rock": {}}}

	results, err := Combined(context.Background(), seed, nil, []Candidate{{Track: candidate}}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	// Only categorical is available; its weight (0.2) is rescaled to 1.0,
	// and categorical score itself is 0.5 (genres only) => 0.5 * 1.0.
	assert.InDelta(t, 0.5, results[0].Score, 1e-6)
}

func TestCombined_NoSignalsAvailableReturnsEmpty(t *testing.T) {
	seed := &domain.Track{ID: uuid.New()}
	results, err := Combined(context.Background(), seed, nil, []Candidate{{Track: domain.Track{ID: uuid.New()}}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClampLimit_Bounds(t *testing.T) {
	assert.Equal(t, 1, ClampLimit(0))
	assert.Equal(t, 1, ClampLimit(-5))
	assert.Equal(t, 100, ClampLimit(1000))
	assert.Equal(t, 50, ClampLimit(50))
}

func TestSanitizeScore_NaNAndOutOfRange(t *testing.T) {
	assert.Equal(t, 0.0, domain.SanitizeScore(math.NaN()))
	assert.Equal(t, 1.0, domain.SanitizeScore(1.5))
	assert.Equal(t, 0.0, domain.SanitizeScore(-0.5))
}
