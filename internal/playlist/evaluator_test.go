// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resonance-audio/resonance/internal/apierr"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestCompile_UnknownFieldRejected(t *testing.T) {
	_, err := Compile(RuleSet{
		Rules:     []Rule{{Field: "secret_column", Operator: OpEquals, Value: "x"}},
		MatchMode: MatchAll,
	})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
}

func TestCompile_InvalidMatchModeRejected(t *testing.T) {
	_, err := Compile(RuleSet{MatchMode: "xor"})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
}

func TestCompile_EqualsBindsParameter(t *testing.T) {
	plan, err := Compile(RuleSet{
		Rules:     []Rule{{Field: "title", Operator: OpEquals, Value: "Song"}},
		MatchMode: MatchAll,
	})
	require.NoError(t, err)
	assert.Equal(t, "title = ?", plan.WhereSQL)
	assert.Equal(t, []any{"Song"}, plan.Args)
}

func TestCompile_InOperatorBindsArrayNeverCommaJoined(t *testing.T) {
	plan, err := Compile(RuleSet{
		Rules:     []Rule{{Field: "duration_ms", Operator: OpIn, Value: []int{1000, 2000, 3000}}},
		MatchMode: MatchAll,
	})
	require.NoError(t, err)
	assert.Equal(t, "duration_ms IN (?,?,?)", plan.WhereSQL)
	assert.Equal(t, []any{1000, 2000, 3000}, plan.Args)
}

func TestCompile_InOperatorRejectsCommaJoinedString(t *testing.T) {
	_, err := Compile(RuleSet{
		Rules:     []Rule{{Field: "duration_ms", Operator: OpIn, Value: "1000,2000"}},
		MatchMode: MatchAll,
	})
	require.Error(t, err)
}

func TestCompile_JSONNumericFieldCastsToReal(t *testing.T) {
	plan, err := Compile(RuleSet{
		Rules:     []Rule{{Field: "bpm", Operator: OpGreaterThan, Value: 120}},
		MatchMode: MatchAll,
	})
	require.NoError(t, err)
	assert.Contains(t, plan.WhereSQL, "CAST(json_extract(audio_features, '$.bpm') AS REAL)")
}

func TestCompile_ArrayFieldUsesSetMembership(t *testing.T) {
	plan, err := Compile(RuleSet{
		Rules:     []Rule{{Field: "genres", Operator: OpContains, Value: "rock"}},
		MatchMode: MatchAll,
	})
	require.NoError(t, err)
	assert.Contains(t, plan.WhereSQL, "json_each(genres)")
}

func TestCompile_MultipleRulesJoinedByMatchMode(t *testing.T) {
	planAll, err := Compile(RuleSet{
		Rules: []Rule{
			{Field: "title", Operator: OpEquals, Value: "A"},
			{Field: "play_count", Operator: OpGreaterThan, Value: 5},
		},
		MatchMode: MatchAll,
	})
	require.NoError(t, err)
	assert.Contains(t, planAll.WhereSQL, " AND ")

	planAny, err := Compile(RuleSet{
		Rules: []Rule{
			{Field: "title", Operator: OpEquals, Value: "A"},
			{Field: "play_count", Operator: OpGreaterThan, Value: 5},
		},
		MatchMode: MatchAny,
	})
	require.NoError(t, err)
	assert.Contains(t, planAny.WhereSQL, " OR ")
}

func TestCompile_SortByUnknownFieldRejected(t *testing.T) {
	_, err := Compile(RuleSet{MatchMode: MatchAll, SortBy: strPtr("secret")})
	require.Error(t, err)
}

func TestCompile_SortAppliesNullsLast(t *testing.T) {
	plan, err := Compile(RuleSet{MatchMode: MatchAll, SortBy: strPtr("play_count"), SortOrder: SortDesc})
	require.NoError(t, err)
	assert.Contains(t, plan.OrderBySQL, "NULLS LAST")
	assert.Contains(t, plan.OrderBySQL, "DESC")
}

func TestCompile_NegativeLimitTreatedAsZero(t *testing.T) {
	plan, err := Compile(RuleSet{MatchMode: MatchAll, Limit: intPtr(-5)})
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Limit)
}

func TestCompile_SimilarToExtractedNotInlinedSQL(t *testing.T) {
	plan, err := Compile(RuleSet{
		Rules: []Rule{{
			Field:    "similar_to",
			Operator: OpSimilarCombined,
			Value:    SimilarToValue{TrackIDs: []string{"t1", "t2"}, MinScore: 0.5},
		}},
		MatchMode: MatchAll,
	})
	require.NoError(t, err)
	assert.Empty(t, plan.WhereSQL)
	require.Len(t, plan.SimilarTo, 1)
	assert.Equal(t, []string{"t1", "t2"}, plan.SimilarTo[0].SeedIDs)
}

func TestMerge_AllIntersectsFromSmallestSet(t *testing.T) {
	result := Merge(MatchAll, []string{"a", "b", "c"}, []string{"b", "c", "d"})
	assert.ElementsMatch(t, []string{"b", "c"}, result)
}

func TestMerge_AnyUnions(t *testing.T) {
	result := Merge(MatchAny, []string{"a", "b"}, []string{"b", "c"})
	assert.ElementsMatch(t, []string{"a", "b", "c"}, result)
}
