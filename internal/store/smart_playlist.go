// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/resonance-audio/resonance/internal/domain"
	"github.com/resonance-audio/resonance/internal/playlist"
	"github.com/resonance-audio/resonance/internal/similarity"
)

// ruleSetFromArgs decodes a chat tool call's raw arguments into a
// playlist.RuleSet. Rule values are passed through as decoded JSON except
// for the similar_to field, whose value is reshaped into a
// playlist.SimilarToValue per evaluator.go's contract.
func ruleSetFromArgs(args map[string]any) (playlist.RuleSet, error) {
	rawRules, _ := args["rules"].([]any)
	rules := make([]playlist.Rule, 0, len(rawRules))
	for _, rr := range rawRules {
		m, ok := rr.(map[string]any)
		if !ok {
			return playlist.RuleSet{}, apierr.Of(apierr.KindValidation, "each rule must be an object")
		}
		field, _ := m["field"].(string)
		operator, _ := m["operator"].(string)
		rule := playlist.Rule{Field: field, Operator: playlist.Operator(operator)}

		if field == "similar_to" {
			valueMap, _ := m["value"].(map[string]any)
			rawIDs, _ := valueMap["track_ids"].([]any)
			ids := make([]string, 0, len(rawIDs))
			for _, id := range rawIDs {
				if s, ok := id.(string); ok {
					ids = append(ids, s)
				}
			}
			minScore, _ := valueMap["min_score"].(float64)
			rule.Value = playlist.SimilarToValue{TrackIDs: ids, MinScore: minScore}
		} else {
			rule.Value = m["value"]
		}
		rules = append(rules, rule)
	}

	rs := playlist.RuleSet{Rules: rules, MatchMode: playlist.MatchAll}
	if mm, ok := args["match_mode"].(string); ok && mm != "" {
		rs.MatchMode = playlist.MatchMode(mm)
	}
	if sb, ok := args["sort_by"].(string); ok && sb != "" {
		rs.SortBy = &sb
	}
	if so, ok := args["sort_order"].(string); ok && so != "" {
		rs.SortOrder = playlist.SortOrder(so)
	}
	if lim, ok := args["limit"]; ok {
		n := defaultInt(lim, 0)
		rs.Limit = &n
	}
	return rs, nil
}

// resolveSimilarTo runs one similar_to delegation against the candidate
// pool and returns the matching track ids above MinScore. A signal that
// cannot be computed (e.g. semantic similarity with no stored embedding)
// degrades to an empty set rather than failing the whole evaluation,
// mirroring similarity.Combined's per-signal fault tolerance.
func (t *ToolExecutor) resolveSimilarTo(ctx context.Context, rule playlist.SimilarToRule) []string {
	if len(rule.SeedIDs) == 0 {
		return nil
	}
	seedID, err := uuid.Parse(rule.SeedIDs[0])
	if err != nil {
		return nil
	}
	seed, err := t.Store.GetTrack(ctx, seedID)
	if err != nil || seed == nil {
		return nil
	}
	candidateTracks, err := t.Store.CandidateTracks(ctx, seedID, 500)
	if err != nil {
		return nil
	}
	candidates := make([]similarity.Candidate, 0, len(candidateTracks))
	for i := range candidateTracks {
		candidates = append(candidates, similarity.Candidate{Track: candidateTracks[i]})
	}

	var results []domain.SimilarityResult
	switch rule.Operator {
	case playlist.OpSimilarSemantic:
		results, err = similarity.Semantic(ctx, nil, candidates, maxSimilarToLimit)
	case playlist.OpSimilarAcoustic:
		results, err = similarity.Acoustic(ctx, seed, candidates, maxSimilarToLimit)
	case playlist.OpSimilarCategorical:
		results, err = similarity.Categorical(ctx, seed, candidates, maxSimilarToLimit)
	case playlist.OpSimilarCombined:
		results, err = similarity.Combined(ctx, seed, nil, candidates, maxSimilarToLimit)
	}
	if err != nil {
		return nil
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.Score >= rule.MinScore {
			ids = append(ids, r.TrackID)
		}
	}
	return ids
}

const maxSimilarToLimit = 100

// CreateSmartPlaylist implements chat.ToolExecutor: compiles a rule set
// (internal/playlist.Compile), runs the WHERE/ORDER BY plan against the
// catalog, resolves any similar_to delegations against the Similarity
// Engine, merges the two result sets per match_mode
// (internal/playlist.Merge), and materializes the result as a playlist.
func (t *ToolExecutor) CreateSmartPlaylist(ctx context.Context, userID uuid.UUID, name, description string, args map[string]any) (json.RawMessage, error) {
	rs, err := ruleSetFromArgs(args)
	if err != nil {
		return nil, err
	}
	plan, err := playlist.Compile(rs)
	if err != nil {
		return nil, err
	}

	limit := plan.Limit
	if limit <= 0 {
		limit = 100
	}

	var sqlMatches []string
	if plan.WhereSQL != "" || len(plan.SimilarTo) == 0 {
		query := "SELECT id FROM tracks"
		if plan.WhereSQL != "" {
			query += " WHERE " + plan.WhereSQL
		}
		if plan.OrderBySQL != "" {
			query += " ORDER BY " + plan.OrderBySQL
		}
		query += " LIMIT ?"
		rows, err := t.Store.DB.QueryContext(ctx, query, append(append([]any{}, plan.Args...), limit)...)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindDatabase, "smart playlist query failed", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, apierr.Wrap(apierr.KindDatabase, "smart playlist query failed", err)
			}
			sqlMatches = append(sqlMatches, id)
		}
		if err := rows.Err(); err != nil {
			return nil, apierr.Wrap(apierr.KindDatabase, "smart playlist query failed", err)
		}
	}

	sets := [][]string{sqlMatches}
	for _, similarRule := range plan.SimilarTo {
		sets = append(sets, t.resolveSimilarTo(ctx, similarRule))
	}
	merged := playlist.Merge(plan.MatchMode, sets...)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	trackIDs := make([]uuid.UUID, 0, len(merged))
	for _, idStr := range merged {
		if id, err := uuid.Parse(idStr); err == nil {
			trackIDs = append(trackIDs, id)
		}
	}

	return t.CreatePlaylist(ctx, userID, name, description, trackIDs)
}
