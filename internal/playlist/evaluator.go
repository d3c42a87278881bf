// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package playlist compiles a smart-playlist ruleset into a parameterized
// SQL WHERE/ORDER BY plan (spec §4.9, C9). Every identifier interpolated
// into SQL passes through the field whitelist first; values are always
// bound as parameters, never string-concatenated. Grounded on the
// field-allowlist discipline also used by internal/search's filter
// validator (C8) — both treat user-controlled field names as the
// injection-critical boundary.
package playlist

import (
	"fmt"
	"strings"

	"github.com/resonance-audio/resonance/internal/apierr"
)

// MatchMode combines a ruleset's rules.
type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

// SortOrder for the ruleset's optional sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Operator is the rule comparison DSL.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIsEmpty     Operator = "is_empty"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpGTE         Operator = "gte"
	OpLTE         Operator = "lte"
	OpBetween     Operator = "between"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"

	// OpSimilarSemantic and siblings are the similar_to delegation
	// operators (field == "similar_to" only).
	OpSimilarSemantic    Operator = "semantic"
	OpSimilarAcoustic    Operator = "acoustic"
	OpSimilarCategorical Operator = "categorical"
	OpSimilarCombined    Operator = "combined"
)

// FieldKind distinguishes direct columns from JSON-extracted numerics and
// array-valued columns (which use set-membership semantics).
type FieldKind int

const (
	FieldDirect FieldKind = iota
	FieldJSONNumeric
	FieldArray
)

// FieldSpec is the resolved SQL shape of a whitelisted field.
type FieldSpec struct {
	Column string
	Kind   FieldKind
}

// Whitelist is the only set of identifiers ever interpolated into SQL.
// Any field outside this map fails validation.
var Whitelist = map[string]FieldSpec{
	"title":            {Column: "title", Kind: FieldDirect},
	"artist":           {Column: "artist_name", Kind: FieldDirect},
	"album":            {Column: "album_title", Kind: FieldDirect},
	"genre":            {Column: "genres", Kind: FieldArray},
	"genres":           {Column: "genres", Kind: FieldArray},
	"ai_mood":          {Column: "ai_mood", Kind: FieldArray},
	"ai_tags":          {Column: "ai_tags", Kind: FieldArray},
	"duration_ms":      {Column: "duration_ms", Kind: FieldDirect},
	"play_count":       {Column: "play_count", Kind: FieldDirect},
	"skip_count":       {Column: "skip_count", Kind: FieldDirect},
	"created_at":       {Column: "created_at", Kind: FieldDirect},
	"last_played_at":   {Column: "last_played_at", Kind: FieldDirect},
	"bpm":              {Column: "bpm", Kind: FieldJSONNumeric},
	"energy":           {Column: "energy", Kind: FieldJSONNumeric},
	"danceability":     {Column: "danceability", Kind: FieldJSONNumeric},
	"valence":          {Column: "valence", Kind: FieldJSONNumeric},
	"acousticness":     {Column: "acousticness", Kind: FieldJSONNumeric},
	"instrumentalness": {Column: "instrumentalness", Kind: FieldJSONNumeric},
	"speechiness":      {Column: "speechiness", Kind: FieldJSONNumeric},
	"loudness":         {Column: "loudness", Kind: FieldJSONNumeric},
}

const similarToField = "similar_to"

// Rule is one condition in a ruleset.
type Rule struct {
	Field    string
	Operator Operator
	Value    any
}

// SimilarToValue is the Value payload for a similar_to rule.
type SimilarToValue struct {
	TrackIDs []string
	MinScore float64
}

// RuleSet is the full smart-playlist query description.
type RuleSet struct {
	Rules     []Rule
	MatchMode MatchMode
	SortBy    *string
	SortOrder SortOrder
	Limit     *int
}

// Plan is the compiled, injection-safe query: a WHERE fragment bound to
// parameterized args, plus any similar_to delegation extracted for the
// caller to resolve against the Similarity Engine and merge (intersect
// for "all", union for "any") with the SQL-filtered row set.
type Plan struct {
	WhereSQL   string
	Args       []any
	OrderBySQL string
	Limit      int
	MatchMode  MatchMode
	SimilarTo  []SimilarToRule
}

// SimilarToRule is one extracted similar_to delegation.
type SimilarToRule struct {
	Operator Operator // semantic | acoustic | categorical | combined
	SeedIDs  []string
	MinScore float64
}

// Compile validates and compiles a RuleSet into a Plan. Any field outside
// Whitelist, any unknown operator, or an invalid match_mode/sort_order
// fails with ValidationError.
func Compile(rs RuleSet) (Plan, error) {
	switch rs.MatchMode {
	case MatchAll, MatchAny:
	default:
		return Plan{}, apierr.Of(apierr.KindValidation, "invalid match_mode")
	}

	joiner := " AND "
	if rs.MatchMode == MatchAny {
		joiner = " OR "
	}

	var clauses []string
	var args []any
	var similarTo []SimilarToRule

	for _, rule := range rs.Rules {
		if rule.Field == similarToField {
			str, ok := rule.Value.(SimilarToValue)
			if !ok {
				return Plan{}, apierr.Of(apierr.KindValidation, "similar_to requires a SimilarToValue")
			}
			switch rule.Operator {
			case OpSimilarSemantic, OpSimilarAcoustic, OpSimilarCategorical, OpSimilarCombined:
			default:
				return Plan{}, apierr.Of(apierr.KindValidation, "invalid similar_to operator")
			}
			similarTo = append(similarTo, SimilarToRule{
				Operator: rule.Operator,
				SeedIDs:  str.TrackIDs,
				MinScore: str.MinScore,
			})
			continue
		}

		spec, ok := Whitelist[rule.Field]
		if !ok {
			return Plan{}, apierr.Of(apierr.KindValidation, "unknown field: "+rule.Field)
		}

		clause, clauseArgs, err := compileRule(spec, rule)
		if err != nil {
			return Plan{}, err
		}
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}

	orderBy := ""
	if rs.SortBy != nil {
		spec, ok := Whitelist[*rs.SortBy]
		if !ok {
			return Plan{}, apierr.Of(apierr.KindValidation, "unknown sort field: "+*rs.SortBy)
		}
		order := rs.SortOrder
		switch order {
		case "":
			order = SortAsc
		case SortAsc, SortDesc:
		default:
			return Plan{}, apierr.Of(apierr.KindValidation, "invalid sort_order")
		}
		orderBy = fmt.Sprintf("%s %s NULLS LAST", columnExpr(spec), strings.ToUpper(string(order)))
	}

	limit := 0
	if rs.Limit != nil {
		limit = *rs.Limit
		if limit < 0 {
			limit = 0
		}
	}

	where := ""
	if len(clauses) > 0 {
		where = strings.Join(clauses, joiner)
	}

	return Plan{
		WhereSQL:   where,
		Args:       args,
		OrderBySQL: orderBy,
		Limit:      limit,
		MatchMode:  rs.MatchMode,
		SimilarTo:  similarTo,
	}, nil
}

func columnExpr(spec FieldSpec) string {
	if spec.Kind == FieldJSONNumeric {
		return fmt.Sprintf("CAST(json_extract(audio_features, '$.%s') AS REAL)", spec.Column)
	}
	return spec.Column
}

func compileRule(spec FieldSpec, rule Rule) (string, []any, error) {
	col := columnExpr(spec)

	if spec.Kind == FieldArray {
		return compileArrayRule(col, rule)
	}

	switch rule.Operator {
	case OpEquals:
		return col + " = ?", []any{rule.Value}, nil
	case OpNotEquals:
		return col + " != ?", []any{rule.Value}, nil
	case OpContains:
		return col + " LIKE ?", []any{"%" + fmt.Sprint(rule.Value) + "%"}, nil
	case OpNotContains:
		return col + " NOT LIKE ?", []any{"%" + fmt.Sprint(rule.Value) + "%"}, nil
	case OpStartsWith:
		return col + " LIKE ?", []any{fmt.Sprint(rule.Value) + "%"}, nil
	case OpEndsWith:
		return col + " LIKE ?", []any{"%" + fmt.Sprint(rule.Value)}, nil
	case OpIsEmpty:
		return "(" + col + " IS NULL OR " + col + " = '')", nil, nil
	case OpGreaterThan:
		return col + " > ?", []any{rule.Value}, nil
	case OpLessThan:
		return col + " < ?", []any{rule.Value}, nil
	case OpGTE:
		return col + " >= ?", []any{rule.Value}, nil
	case OpLTE:
		return col + " <= ?", []any{rule.Value}, nil
	case OpBetween:
		bounds, ok := rule.Value.([2]any)
		if !ok {
			return "", nil, apierr.Of(apierr.KindValidation, "between requires a [2]any value")
		}
		return col + " BETWEEN ? AND ?", []any{bounds[0], bounds[1]}, nil
	case OpIn:
		values, err := asSlice(rule.Value)
		if err != nil {
			return "", nil, err
		}
		return col + " IN (" + placeholders(len(values)) + ")", values, nil
	case OpNotIn:
		values, err := asSlice(rule.Value)
		if err != nil {
			return "", nil, err
		}
		return col + " NOT IN (" + placeholders(len(values)) + ")", values, nil
	default:
		return "", nil, apierr.Of(apierr.KindValidation, "unknown operator: "+string(rule.Operator))
	}
}

// compileArrayRule handles genres/ai_mood/ai_tags set-membership semantics.
func compileArrayRule(col string, rule Rule) (string, []any, error) {
	switch rule.Operator {
	case OpContains, OpEquals:
		return "EXISTS (SELECT 1 FROM json_each(" + col + ") WHERE value = ?)", []any{rule.Value}, nil
	case OpNotContains, OpNotEquals:
		return "NOT EXISTS (SELECT 1 FROM json_each(" + col + ") WHERE value = ?)", []any{rule.Value}, nil
	case OpIsEmpty:
		return "(" + col + " IS NULL OR json_array_length(" + col + ") = 0)", nil, nil
	case OpIn:
		values, err := asSlice(rule.Value)
		if err != nil {
			return "", nil, err
		}
		return "EXISTS (SELECT 1 FROM json_each(" + col + ") WHERE value IN (" + placeholders(len(values)) + "))", values, nil
	case OpNotIn:
		values, err := asSlice(rule.Value)
		if err != nil {
			return "", nil, err
		}
		return "NOT EXISTS (SELECT 1 FROM json_each(" + col + ") WHERE value IN (" + placeholders(len(values)) + "))", values, nil
	default:
		return "", nil, apierr.Of(apierr.KindValidation, "unsupported operator for array field: "+string(rule.Operator))
	}
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// asSlice binds in/not_in values as a genuine parameter slice — never a
// comma-joined string — per spec §4.9.
func asSlice(v any) ([]any, error) {
	switch vv := v.(type) {
	case []any:
		return vv, nil
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, nil
	default:
		return nil, apierr.Of(apierr.KindValidation, "in/not_in requires an array value")
	}
}

// Merge combines a SQL-filtered id set with similar_to-delegated id sets
// per the ruleset's match_mode: "all" intersects (starting from the
// smallest set), "any" unions.
func Merge(mode MatchMode, sets ...[]string) []string {
	nonEmpty := make([][]string, 0, len(sets))
	for _, s := range sets {
		if s != nil {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	if len(nonEmpty) == 1 {
		return nonEmpty[0]
	}

	if mode == MatchAny {
		seen := map[string]struct{}{}
		var out []string
		for _, s := range nonEmpty {
			for _, id := range s {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					out = append(out, id)
				}
			}
		}
		return out
	}

	// MatchAll: intersect starting from the smallest set.
	smallestIdx := 0
	for i, s := range nonEmpty {
		if len(s) < len(nonEmpty[smallestIdx]) {
			smallestIdx = i
		}
	}
	smallest := nonEmpty[smallestIdx]

	others := make([]map[string]struct{}, 0, len(nonEmpty)-1)
	for i, s := range nonEmpty {
		if i == smallestIdx {
			continue
		}
		set := make(map[string]struct{}, len(s))
		for _, id := range s {
			set[id] = struct{}{}
		}
		others = append(others, set)
	}

	var out []string
	for _, id := range smallest {
		inAll := true
		for _, set := range others {
			if _, ok := set[id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, id)
		}
	}
	return out
}
