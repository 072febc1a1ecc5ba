package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

// UnableToAnswer is returned when the budget runs out before any answer was generated.
const UnableToAnswer = "I'm unable to answer this question from the available information."

type (
	Router interface {
		Route(ctx context.Context, question string) (model.Route, error)
	}
	Retriever interface {
		Retrieve(ctx context.Context, question string) ([]model.Evidence, error)
	}
	RelevanceFilter interface {
		Filter(ctx context.Context, question string, evidence []model.Evidence) ([]model.Evidence, error)
	}
	Rewriter interface {
		Rewrite(ctx context.Context, question string) (string, error)
	}
	WebSearcher interface {
		Search(ctx context.Context, question string) (model.Evidence, error)
	}
	Generator interface {
		Generate(ctx context.Context, question string, evidence []model.Evidence) (string, error)
	}
	GroundingGrader interface {
		Grade(ctx context.Context, evidence []model.Evidence, answer string) (model.Grounding, error)
	}
	UsefulnessGrader interface {
		Grade(ctx context.Context, question, answer string) (model.Usefulness, error)
	}
)

// Components are the workflow collaborators the nodes call into.
type Components struct {
	Router        Router
	Retriever     Retriever
	Relevance     RelevanceFilter
	Rewriter      Rewriter
	WebSearch     WebSearcher
	Generator     Generator
	Hallucination GroundingGrader
	Answer        UsefulnessGrader
}

// NewRoutePreHandler seeds the graph-local state for a new question.
func NewRoutePreHandler() compose.StatePreHandler[model.QueryInput, *model.AppState] {
	base := enter[model.QueryInput](NodeRoute)
	return func(ctx context.Context, in model.QueryInput, state *model.AppState) (model.QueryInput, error) {
		state.RequestID = in.RequestID
		state.Path = state.Path[:0]
		state.StartedAt = time.Now()
		return base(ctx, in, state)
	}
}

// NewPreHandler returns the shared pre-handler for a node taking the workflow state.
func NewPreHandler(node string) compose.StatePreHandler[*model.WorkflowState, *model.AppState] {
	return enter[*model.WorkflowState](node)
}

// NewRouteNode creates the WorkflowState for the question and picks a route.
func NewRouteNode(c *Components, budget func() model.Budget) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (*model.WorkflowState, error) {
		st := model.NewWorkflowState(strings.TrimSpace(in.Question), budget())
		route, err := c.Router.Route(ctx, st.Question)
		if err != nil {
			return nil, err
		}
		st.Route = route
		logx.Debug().
			Str("request_id", in.RequestID).
			Str("node", NodeRoute).
			Str("question", st.Question).
			Str("route", string(route)).
			Msg("question routed")
		return st, nil
	})
}

// NewRouteCondition follows the routing decision.
func NewRouteCondition() func(context.Context, *model.WorkflowState) (string, error) {
	return func(ctx context.Context, st *model.WorkflowState) (string, error) {
		if st.Route == model.RouteWeb {
			return NodeWebSearch, nil
		}
		return NodeRetrieve, nil
	}
}

// NewRetrieveNode replaces the evidence with the index's top-k for the current question.
func NewRetrieveNode(c *Components) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.WorkflowState) (*model.WorkflowState, error) {
		ev, err := c.Retriever.Retrieve(ctx, st.Question)
		if err != nil {
			return nil, err
		}
		st.ReplaceEvidence(ev)
		logx.Debug().
			Str("node", NodeRetrieve).
			Str("question", st.Question).
			Int("retrieved", len(ev)).
			Msg("evidence retrieved")
		return st, nil
	})
}

// NewGradeEvidenceNode keeps only the evidence judged relevant to the question.
func NewGradeEvidenceNode(c *Components) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.WorkflowState) (*model.WorkflowState, error) {
		before := len(st.Evidence)
		kept, err := c.Relevance.Filter(ctx, st.Question, st.Evidence)
		if err != nil {
			return nil, err
		}
		st.FilterEvidence(kept)
		logx.Debug().
			Str("node", NodeGradeEvidence).
			Int("retrieved", before).
			Int("kept", len(kept)).
			Msg("evidence graded")
		return st, nil
	})
}

// NewGradeEvidenceCondition generates from any relevant evidence, otherwise
// rewrites while the rewrite budget lasts.
func NewGradeEvidenceCondition() func(context.Context, *model.WorkflowState) (string, error) {
	return func(ctx context.Context, st *model.WorkflowState) (string, error) {
		if len(st.Evidence) > 0 {
			return NodeGenerate, nil
		}
		if st.Budget.CanRewrite() {
			logx.Debug().
				Str("node", NodeGradeEvidence).
				Int("remaining_rewrites", st.Budget.RewritesLeft).
				Msg("no relevant evidence, transforming query")
			return NodeTransformQuery, nil
		}
		logx.Info().
			Str("node", NodeGradeEvidence).
			Bool("time_expired", st.Budget.Expired()).
			Msg("no relevant evidence and rewrite budget exhausted")
		return NodeBudgetExceeded, nil
	}
}

// NewTransformQueryNode rewrites the working question and spends one rewrite.
func NewTransformQueryNode(c *Components) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.WorkflowState) (*model.WorkflowState, error) {
		if !spendRewriteAndCheck(st) {
			return nil, errx.Fatal("nodes."+NodeTransformQuery, fmt.Errorf("rewrite budget already exhausted"))
		}
		q, err := c.Rewriter.Rewrite(ctx, st.Question)
		if err != nil {
			return nil, err
		}
		logx.Debug().
			Str("node", NodeTransformQuery).
			Str("from", st.Question).
			Str("to", q).
			Int("remaining_rewrites", st.Budget.RewritesLeft).
			Msg("question rewritten")
		st.SetQuestion(q)
		return st, nil
	})
}

// NewWebSearchNode replaces the evidence with a single web search result.
func NewWebSearchNode(c *Components) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.WorkflowState) (*model.WorkflowState, error) {
		ev, err := c.WebSearch.Search(ctx, st.Question)
		if err != nil {
			return nil, err
		}
		st.ReplaceEvidence([]model.Evidence{ev})
		logx.Debug().
			Str("node", NodeWebSearch).
			Str("question", st.Question).
			Int("content_len", len(ev.Content)).
			Msg("web evidence fetched")
		return st, nil
	})
}

// NewGenerateNode drafts an answer. Entering with an answer still present
// means the same question and evidence are being retried, which spends one
// regeneration.
func NewGenerateNode(c *Components) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.WorkflowState) (*model.WorkflowState, error) {
		if st.Answer != "" {
			if !spendRegenerationAndCheck(st) {
				return nil, errx.Fatal("nodes."+NodeGenerate, fmt.Errorf("regeneration budget already exhausted"))
			}
		}
		answer, err := c.Generator.Generate(ctx, st.Question, st.Evidence)
		if err != nil {
			return nil, err
		}
		st.SetAnswer(answer)
		logx.Debug().
			Str("node", NodeGenerate).
			Int("evidence", len(st.Evidence)).
			Int("generations", st.Generations).
			Int("remaining_regenerations", st.Budget.RegenerationsLeft).
			Msg("answer generated")
		return st, nil
	})
}

// NewGradeGenerationNode checks grounding first and usefulness only for
// grounded answers.
func NewGradeGenerationNode(c *Components) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.WorkflowState) (*model.WorkflowState, error) {
		grounding, err := c.Hallucination.Grade(ctx, st.Evidence, st.Answer)
		if err != nil {
			return nil, err
		}
		st.Grounding = grounding
		if grounding == model.Grounded {
			usefulness, err := c.Answer.Grade(ctx, st.Question, st.Answer)
			if err != nil {
				return nil, err
			}
			st.Usefulness = usefulness
		}
		logx.Debug().
			Str("node", NodeGradeGeneration).
			Str("grounding", string(st.Grounding)).
			Str("usefulness", string(st.Usefulness)).
			Msg("generation graded")
		return st, nil
	})
}

// NewGradeGenerationCondition picks the next state from the generation verdicts.
func NewGradeGenerationCondition() func(context.Context, *model.WorkflowState) (string, error) {
	return func(ctx context.Context, st *model.WorkflowState) (string, error) {
		switch {
		case st.Grounding != model.Grounded:
			if st.Budget.CanRegenerate() {
				return NodeGenerate, nil
			}
			logx.Info().Str("node", NodeGradeGeneration).Msg("answer ungrounded and regeneration budget exhausted")
			return NodeBudgetExceeded, nil
		case st.Usefulness == model.Addresses:
			return NodeDone, nil
		default:
			if st.Budget.CanRewrite() {
				return NodeTransformQuery, nil
			}
			logx.Info().Str("node", NodeGradeGeneration).Msg("answer misses the question and rewrite budget exhausted")
			return NodeBudgetExceeded, nil
		}
	}
}

// NewDoneNode returns the accepted answer with its sources.
func NewDoneNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.WorkflowState) (*model.Answer, error) {
		out := newAnswer(ctx, st, model.OutcomeDone)
		out.Answer = st.Answer
		out.Sources = model.SourcesFrom(st.Evidence)
		return out, nil
	})
}

// NewBudgetExceededNode returns the last generated answer flagged as low
// confidence, or an explicit refusal when nothing was ever generated.
func NewBudgetExceededNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.WorkflowState) (*model.Answer, error) {
		out := newAnswer(ctx, st, model.OutcomeBudgetExceeded)
		out.LowConfidence = true
		if st.Fallback.Answer != "" {
			out.Answer = st.Fallback.Answer
			out.Sources = model.SourcesFrom(st.Fallback.Evidence)
		} else {
			out.Answer = UnableToAnswer
			out.Sources = []model.Source{}
		}
		return out, nil
	})
}

func newAnswer(ctx context.Context, st *model.WorkflowState, outcome model.Outcome) *model.Answer {
	requestID, p, startedAt := path(ctx)
	ev := logx.Info()
	if outcome != model.OutcomeDone {
		ev = logx.Warn()
	}
	ev.Str("request_id", requestID).
		Str("outcome", string(outcome)).
		Str("route", string(st.Route)).
		Int("generations", st.Generations).
		Int("rewrites", st.Rewrites).
		Int("regenerations", st.Regenerations).
		Strs("path", p).
		Dur("elapsed", time.Since(startedAt)).
		Msg("question answered")
	return &model.Answer{
		Outcome:     outcome,
		Route:       st.Route,
		Question:    st.Question,
		Generations: st.Generations,
		Rewrites:    st.Rewrites,
		Path:        p,
		GeneratedAt: time.Now().UTC(),
	}
}
