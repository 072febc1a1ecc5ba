package model

import (
	"time"
)

// Budget holds the remaining corrective cycles for one question. Counters
// only ever decrease; a branch must check Can* before taking a retry edge.
// Past Deadline no retry edge is taken at all; a zero Deadline never expires.
type Budget struct {
	RegenerationsLeft int
	RewritesLeft      int
	Deadline          time.Time
}

// NewBudget builds a budget, treating negative limits as zero.
func NewBudget(maxRegenerations, maxRewrites int) Budget {
	return Budget{
		RegenerationsLeft: max(maxRegenerations, 0),
		RewritesLeft:      max(maxRewrites, 0),
	}
}

// WithTimeout sets the deadline d from now; d <= 0 leaves it unset.
func (b Budget) WithTimeout(d time.Duration) Budget {
	if d > 0 {
		b.Deadline = time.Now().Add(d)
	}
	return b
}

// Expired reports whether the time budget is spent.
func (b Budget) Expired() bool {
	return !b.Deadline.IsZero() && time.Now().After(b.Deadline)
}

func (b Budget) CanRegenerate() bool { return b.RegenerationsLeft > 0 && !b.Expired() }

func (b Budget) CanRewrite() bool { return b.RewritesLeft > 0 && !b.Expired() }

// SpendRegeneration consumes one regeneration; false when none was left.
func (b *Budget) SpendRegeneration() bool {
	if b.RegenerationsLeft <= 0 {
		return false
	}
	b.RegenerationsLeft--
	return true
}

// SpendRewrite consumes one rewrite; false when none was left.
func (b *Budget) SpendRewrite() bool {
	if b.RewritesLeft <= 0 {
		return false
	}
	b.RewritesLeft--
	return true
}

// Fallback is the most recent generation together with the evidence it was
// generated from. It survives question and evidence changes so a budget
// exhaustion can still return the best available answer.
type Fallback struct {
	Answer   string
	Evidence []Evidence
}

// WorkflowState is the value threaded through every step of one question.
// Question and Evidence must only change through SetQuestion,
// ReplaceEvidence and FilterEvidence, which drop the current Answer so an
// answer never outlives the inputs it was generated from.
type WorkflowState struct {
	OriginalQuestion string
	Question         string
	Route            Route
	Evidence         []Evidence
	Answer           string

	// Verdicts on the current Answer; reset whenever Answer changes.
	Grounding  Grounding
	Usefulness Usefulness

	Budget        Budget
	Fallback      Fallback
	Generations   int
	Regenerations int
	Rewrites      int
}

// NewWorkflowState starts a run for question with the given budget.
func NewWorkflowState(question string, budget Budget) *WorkflowState {
	return &WorkflowState{
		OriginalQuestion: question,
		Question:         question,
		Budget:           budget,
	}
}

// SetQuestion replaces the working question and invalidates the answer.
func (s *WorkflowState) SetQuestion(q string) {
	s.Question = q
	s.clearAnswer()
}

// ReplaceEvidence swaps the whole evidence set and invalidates the answer.
func (s *WorkflowState) ReplaceEvidence(ev []Evidence) {
	s.Evidence = ev
	s.clearAnswer()
}

// FilterEvidence narrows the evidence set to keep and invalidates the answer.
func (s *WorkflowState) FilterEvidence(keep []Evidence) {
	s.Evidence = keep
	s.clearAnswer()
}

// SetAnswer records a generation for the current evidence set.
func (s *WorkflowState) SetAnswer(answer string) {
	s.Answer = answer
	s.Grounding = ""
	s.Usefulness = ""
	s.Generations++
	ev := make([]Evidence, len(s.Evidence))
	copy(ev, s.Evidence)
	s.Fallback = Fallback{Answer: answer, Evidence: ev}
}

func (s *WorkflowState) clearAnswer() {
	s.Answer = ""
	s.Grounding = ""
	s.Usefulness = ""
}

// AppState stores per-invocation bookkeeping for the eino graph.
// It is registered as graph local state via compose.WithGenLocalState and is
// only touched inside state handlers or compose.ProcessState.
type AppState struct {
	RequestID string
	Path      []string // states entered, in order
	StartedAt time.Time
}

// QueryInput is the graph input.
type QueryInput struct {
	RequestID string `json:"request_id,omitempty"`
	Question  string `json:"question"`
}

// Answer is the result of answering one question.
type Answer struct {
	Answer        string    `json:"answer"`
	Sources       []Source  `json:"sources"`
	Outcome       Outcome   `json:"outcome"`
	LowConfidence bool      `json:"low_confidence"`
	Route         Route     `json:"route"`
	Question      string    `json:"question"`
	Generations   int       `json:"generations"`
	Rewrites      int       `json:"rewrites"`
	Path          []string  `json:"path,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}
