package model

// Route is the evidence-acquisition strategy chosen for a question.
type Route string

const (
	RouteIndex Route = "INDEX"
	RouteWeb   Route = "WEB"
)

// Relevance is the verdict on a single evidence item.
type Relevance string

const (
	Relevant   Relevance = "RELEVANT"
	Irrelevant Relevance = "IRRELEVANT"
)

// Grounding is the verdict on whether an answer is supported by its evidence.
type Grounding string

const (
	Grounded   Grounding = "GROUNDED"
	Ungrounded Grounding = "UNGROUNDED"
)

// Usefulness is the verdict on whether an answer addresses the question.
type Usefulness string

const (
	Addresses Usefulness = "ADDRESSES"
	Misses    Usefulness = "MISSES"
)

// Outcome is the terminal state reached by one run of the workflow.
type Outcome string

const (
	OutcomeDone           Outcome = "DONE"
	OutcomeBudgetExceeded Outcome = "BUDGET_EXCEEDED"
)

// ClassifyInput is the prompt-shaped input of a Classifier: a criterion
// identifying the judgment to make and the variables it is made over.
type ClassifyInput struct {
	Criterion string
	Vars      map[string]string
}

// Decision is the structured output of a Classifier.
type Decision struct {
	Fields map[string]string
	Raw    string
}

// Get returns a decision field.
func (d Decision) Get(key string) (string, bool) {
	if d.Fields == nil {
		return "", false
	}
	v, ok := d.Fields[key]
	return v, ok
}

// SearchResult is one hit returned by a WebSearch provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}
