package types

// JoinStyle is the closed vocabulary for FeatureVector's join_style feature.
type JoinStyle string

const (
	JoinExplicit      JoinStyle = "explicit"
	JoinImplicitComma JoinStyle = "implicit_comma"
	JoinMixed         JoinStyle = "mixed"
	JoinNone          JoinStyle = "none"
)

// AggregationType is the closed vocabulary for aggregation_type.
type AggregationType string

const (
	AggNone         AggregationType = "none"
	AggSimple       AggregationType = "simple"
	AggConditional  AggregationType = "conditional"
	AggNested       AggregationType = "nested"
	AggMultiStage   AggregationType = "multi_stage"
)

// Complexity is the closed vocabulary for estimated_complexity.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// FeatureVector is the typed, bounded structural summary of a SQL query.
// Unknown/uncomputed features are simply left nil in the fields below
// rather than set to a wrong value.
type FeatureVector struct {
	// Static (always attempted during extraction).
	JoinStyle                      *JoinStyle       `json:"join_style,omitempty"`
	TableCount                     *int             `json:"table_count,omitempty"`
	DimensionTableCount             *int            `json:"dimension_table_count,omitempty"`
	IsStarSchema                   *bool            `json:"is_star_schema,omitempty"`
	FactTableMaxScans              *int             `json:"fact_table_max_scans,omitempty"`
	TablesWithMultipleScans        *int             `json:"tables_with_multiple_scans,omitempty"`
	CorrelatedSubqueryCount        *int             `json:"correlated_subquery_count,omitempty"`
	CorrelatedWithAggregate        *int             `json:"correlated_with_aggregate,omitempty"`
	ScalarSubqueryInSelect         *int             `json:"scalar_subquery_in_select,omitempty"`
	OrChainCount                   *int             `json:"or_chain_count,omitempty"`
	OrBranchesMax                  *int             `json:"or_branches_max,omitempty"`
	OrBranchesTouchDifferentIndexes *bool           `json:"or_branches_touch_different_indexes,omitempty"`
	CteCount                       *int             `json:"cte_count,omitempty"`
	MultiRefCteCount               *int             `json:"multi_ref_cte_count,omitempty"`
	CteMaxDepth                    *int             `json:"cte_max_depth,omitempty"`
	ConditionalAggregateCount      *int             `json:"conditional_aggregate_count,omitempty"`
	AggregationType                *AggregationType `json:"aggregation_type,omitempty"`
	HasHaving                      *bool            `json:"has_having,omitempty"`
	HasWindowFunctions             *bool            `json:"has_window_functions,omitempty"`
	SelfJoinCount                  *int             `json:"self_join_count,omitempty"`
	UnionBranchCount               *int             `json:"union_branch_count,omitempty"`
	HasLateral                     *bool            `json:"has_lateral,omitempty"`
	EstimatedComplexity             *Complexity     `json:"estimated_complexity,omitempty"`

	// Runtime-only: requires an explain() capability, always optional.
	HasDiskSort            *bool    `json:"has_disk_sort,omitempty"`
	DiskSortSizeMB         *float64 `json:"disk_sort_size_mb,omitempty"`
	HasLargeSeqScan        *bool    `json:"has_large_seqscan,omitempty"`
	BaselineMS             *float64 `json:"baseline_ms,omitempty"`
	NestedLoopOnDimensionPK *bool   `json:"nested_loop_on_dimension_pk,omitempty"`
	ParallelWorkersUsed    *int     `json:"parallel_workers_used,omitempty"`

	// Extra carries any feature not modeled above as a first-class field,
	// keeping the vocabulary closed for the named features while still
	// letting the predicate evaluator fail closed (unknown features
	// evaluate false) on genuinely unrecognized names.
	Extra map[string]any `json:"extra,omitempty"`
}

// FeatureKind is the value type of a named feature, recorded in
// Vocabulary so the rule validator can reject an operator/type mismatch
// at load time.
type FeatureKind string

const (
	KindBool    FeatureKind = "bool"
	KindInt     FeatureKind = "int"
	KindFloat   FeatureKind = "float"
	KindEnum    FeatureKind = "enum"
)

// Vocabulary maps every known feature name to its kind; the closed value
// sets of the enum features are in EnumValues. It is the single source of
// truth consulted by internal/rules at detection-rule load time.
var Vocabulary = map[string]FeatureKind{
	"join_style":                          KindEnum,
	"table_count":                         KindInt,
	"dimension_table_count":               KindInt,
	"is_star_schema":                      KindBool,
	"fact_table_max_scans":                KindInt,
	"tables_with_multiple_scans":          KindInt,
	"correlated_subquery_count":           KindInt,
	"correlated_with_aggregate":           KindInt,
	"scalar_subquery_in_select":           KindInt,
	"or_chain_count":                      KindInt,
	"or_branches_max":                     KindInt,
	"or_branches_touch_different_indexes": KindBool,
	"cte_count":                           KindInt,
	"multi_ref_cte_count":                 KindInt,
	"cte_max_depth":                       KindInt,
	"conditional_aggregate_count":         KindInt,
	"aggregation_type":                    KindEnum,
	"has_having":                          KindBool,
	"has_window_functions":                KindBool,
	"self_join_count":                     KindInt,
	"union_branch_count":                  KindInt,
	"has_lateral":                         KindBool,
	"estimated_complexity":                KindEnum,
	"has_disk_sort":                       KindBool,
	"disk_sort_size_mb":                   KindFloat,
	"has_large_seqscan":                   KindBool,
	"baseline_ms":                         KindFloat,
	"nested_loop_on_dimension_pk":         KindBool,
	"parallel_workers_used":               KindInt,
}

// EnumValues is the closed vocabulary for enum-kind features.
var EnumValues = map[string][]string{
	"join_style":           {string(JoinExplicit), string(JoinImplicitComma), string(JoinMixed), string(JoinNone)},
	"aggregation_type":     {string(AggNone), string(AggSimple), string(AggConditional), string(AggNested), string(AggMultiStage)},
	"estimated_complexity": {string(ComplexitySimple), string(ComplexityModerate), string(ComplexityComplex)},
}

// Get returns the raw value of a named feature and whether it is present.
// Unknown/absent features return (nil, false); predicate leaves referencing
// them must evaluate to false.
func (fv FeatureVector) Get(name string) (any, bool) {
	switch name {
	case "join_style":
		if fv.JoinStyle == nil {
			return nil, false
		}
		return string(*fv.JoinStyle), true
	case "table_count":
		return derefInt(fv.TableCount)
	case "dimension_table_count":
		return derefInt(fv.DimensionTableCount)
	case "is_star_schema":
		return derefBool(fv.IsStarSchema)
	case "fact_table_max_scans":
		return derefInt(fv.FactTableMaxScans)
	case "tables_with_multiple_scans":
		return derefInt(fv.TablesWithMultipleScans)
	case "correlated_subquery_count":
		return derefInt(fv.CorrelatedSubqueryCount)
	case "correlated_with_aggregate":
		return derefInt(fv.CorrelatedWithAggregate)
	case "scalar_subquery_in_select":
		return derefInt(fv.ScalarSubqueryInSelect)
	case "or_chain_count":
		return derefInt(fv.OrChainCount)
	case "or_branches_max":
		return derefInt(fv.OrBranchesMax)
	case "or_branches_touch_different_indexes":
		return derefBool(fv.OrBranchesTouchDifferentIndexes)
	case "cte_count":
		return derefInt(fv.CteCount)
	case "multi_ref_cte_count":
		return derefInt(fv.MultiRefCteCount)
	case "cte_max_depth":
		return derefInt(fv.CteMaxDepth)
	case "conditional_aggregate_count":
		return derefInt(fv.ConditionalAggregateCount)
	case "aggregation_type":
		if fv.AggregationType == nil {
			return nil, false
		}
		return string(*fv.AggregationType), true
	case "has_having":
		return derefBool(fv.HasHaving)
	case "has_window_functions":
		return derefBool(fv.HasWindowFunctions)
	case "self_join_count":
		return derefInt(fv.SelfJoinCount)
	case "union_branch_count":
		return derefInt(fv.UnionBranchCount)
	case "has_lateral":
		return derefBool(fv.HasLateral)
	case "estimated_complexity":
		if fv.EstimatedComplexity == nil {
			return nil, false
		}
		return string(*fv.EstimatedComplexity), true
	case "has_disk_sort":
		return derefBool(fv.HasDiskSort)
	case "disk_sort_size_mb":
		return derefFloat(fv.DiskSortSizeMB)
	case "has_large_seqscan":
		return derefBool(fv.HasLargeSeqScan)
	case "baseline_ms":
		return derefFloat(fv.BaselineMS)
	case "nested_loop_on_dimension_pk":
		return derefBool(fv.NestedLoopOnDimensionPK)
	case "parallel_workers_used":
		return derefInt(fv.ParallelWorkersUsed)
	default:
		if fv.Extra == nil {
			return nil, false
		}
		v, ok := fv.Extra[name]
		return v, ok
	}
}

func derefInt(p *int) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}

func derefBool(p *bool) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}

func derefFloat(p *float64) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}
