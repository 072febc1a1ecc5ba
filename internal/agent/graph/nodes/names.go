package nodes

// Graph node keys. Each key is also the state name recorded in AppState.Path.
const (
	NodeRoute           = "route"
	NodeRetrieve        = "retrieve"
	NodeGradeEvidence   = "grade_evidence"
	NodeTransformQuery  = "transform_query"
	NodeWebSearch       = "web_search"
	NodeGenerate        = "generate"
	NodeGradeGeneration = "grade_generation"
	NodeDone            = "done"
	NodeBudgetExceeded  = "budget_exceeded"
)
