package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/aptify/knowledge-rag/internal/agent/graph/graders"
	"github.com/aptify/knowledge-rag/internal/agent/graph/nodes"
	"github.com/aptify/knowledge-rag/internal/agent/graph/observers"
	"github.com/aptify/knowledge-rag/internal/agent/graph/retrieval"
	"github.com/aptify/knowledge-rag/internal/agent/graph/websearch"
	"github.com/aptify/knowledge-rag/internal/agent/graph/writers"
	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

const graphName = "adaptive_rag"

// Settings tunes one orchestrator instance.
type Settings struct {
	MaxRegenerations     int
	MaxRewrites          int
	Timeout              time.Duration
	TopK                 int
	RelevanceConcurrency int
}

// SettingsFrom maps environment configuration onto Settings.
func SettingsFrom(wf model.WorkflowConfig, rc model.RetrievalConfig) Settings {
	return Settings{
		MaxRegenerations:     wf.MaxRegenerations,
		MaxRewrites:          wf.MaxRewrites,
		Timeout:              wf.Timeout,
		TopK:                 rc.TopK,
		RelevanceConcurrency: rc.RelevanceConcurrency,
	}
}

// Dependencies are the capabilities the workflow is built over. All are
// required and must be safe for concurrent use.
type Dependencies struct {
	Classifier model.Classifier
	Generator  model.TextGenerator
	// Rewriter defaults to Generator.
	Rewriter  model.TextGenerator
	Index     model.Index
	WebSearch model.WebSearch
	// Metrics is optional.
	Metrics *observers.Metrics
}

// Runner answers questions with a compiled workflow graph.
type Runner struct {
	runnable compose.Runnable[model.QueryInput, *model.Answer]
	metrics  *observers.Metrics
	settings Settings
}

// GraphBuilder handles the construction of the answering graph.
type GraphBuilder struct {
	settings   Settings
	components *nodes.Components
	graph      *compose.Graph[model.QueryInput, *model.Answer]
}

// BuildAnswerGraph wires the components over deps and compiles the graph.
func BuildAnswerGraph(ctx context.Context, deps Dependencies, settings Settings) (*Runner, error) {
	if deps.Classifier == nil || deps.Generator == nil || deps.Index == nil || deps.WebSearch == nil {
		return nil, fmt.Errorf("graph dependencies are not properly initialized")
	}
	if deps.Rewriter == nil {
		deps.Rewriter = deps.Generator
	}
	settings.MaxRegenerations = normalize(settings.MaxRegenerations, nodes.DefaultMaxRegenerations)
	settings.MaxRewrites = normalize(settings.MaxRewrites, nodes.DefaultMaxRewrites)

	builder := &GraphBuilder{
		settings: settings,
		components: &nodes.Components{
			Router:        graders.NewRouter(deps.Classifier),
			Retriever:     retrieval.New(deps.Index, settings.TopK),
			Relevance:     graders.NewRelevanceGrader(deps.Classifier, settings.RelevanceConcurrency),
			Rewriter:      writers.NewRewriter(deps.Rewriter),
			WebSearch:     websearch.NewFallback(deps.WebSearch),
			Generator:     writers.NewGenerator(deps.Generator),
			Hallucination: graders.NewHallucinationGrader(deps.Classifier),
			Answer:        graders.NewAnswerGrader(deps.Classifier),
		},
		graph: compose.NewGraph[model.QueryInput, *model.Answer](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	runnable, err := builder.compile(ctx)
	if err != nil {
		return nil, err
	}
	return &Runner{runnable: runnable, metrics: deps.Metrics, settings: settings}, nil
}

// addNodes adds all workflow states to the graph
func (b *GraphBuilder) addNodes() error {
	c := b.components
	s := b.settings
	budget := func() model.Budget {
		return nodes.NewBudget(s.MaxRegenerations, s.MaxRewrites, s.Timeout)
	}

	if err := b.graph.AddLambdaNode(nodes.NodeRoute,
		nodes.NewRouteNode(c, budget),
		compose.WithNodeName(nodes.NodeRoute),
		compose.WithStatePreHandler(nodes.NewRoutePreHandler()),
	); err != nil {
		return fmt.Errorf("add node %s: %w", nodes.NodeRoute, err)
	}

	lambdas := []struct {
		key    string
		lambda *compose.Lambda
	}{
		{nodes.NodeRetrieve, nodes.NewRetrieveNode(c)},
		{nodes.NodeGradeEvidence, nodes.NewGradeEvidenceNode(c)},
		{nodes.NodeTransformQuery, nodes.NewTransformQueryNode(c)},
		{nodes.NodeWebSearch, nodes.NewWebSearchNode(c)},
		{nodes.NodeGenerate, nodes.NewGenerateNode(c)},
		{nodes.NodeGradeGeneration, nodes.NewGradeGenerationNode(c)},
		{nodes.NodeDone, nodes.NewDoneNode()},
		{nodes.NodeBudgetExceeded, nodes.NewBudgetExceededNode()},
	}
	for _, l := range lambdas {
		if err := b.graph.AddLambdaNode(l.key, l.lambda,
			compose.WithNodeName(l.key),
			compose.WithStatePreHandler(nodes.NewPreHandler(l.key)),
		); err != nil {
			return fmt.Errorf("add node %s: %w", l.key, err)
		}
	}
	return nil
}

// addEdges creates the unconditional transitions
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeRoute},
		{nodes.NodeWebSearch, nodes.NodeGenerate},
		{nodes.NodeRetrieve, nodes.NodeGradeEvidence},
		{nodes.NodeTransformQuery, nodes.NodeRetrieve},
		{nodes.NodeGenerate, nodes.NodeGradeGeneration},
		{nodes.NodeDone, compose.END},
		{nodes.NodeBudgetExceeded, compose.END},
	}
	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates the decision points
func (b *GraphBuilder) addBranches() error {
	branches := []struct {
		from   string
		cond   func(context.Context, *model.WorkflowState) (string, error)
		toward []string
	}{
		{
			from:   nodes.NodeRoute,
			cond:   nodes.NewRouteCondition(),
			toward: []string{nodes.NodeRetrieve, nodes.NodeWebSearch},
		},
		{
			from:   nodes.NodeGradeEvidence,
			cond:   nodes.NewGradeEvidenceCondition(),
			toward: []string{nodes.NodeGenerate, nodes.NodeTransformQuery, nodes.NodeBudgetExceeded},
		},
		{
			from:   nodes.NodeGradeGeneration,
			cond:   nodes.NewGradeGenerationCondition(),
			toward: []string{nodes.NodeGenerate, nodes.NodeTransformQuery, nodes.NodeDone, nodes.NodeBudgetExceeded},
		},
	}
	for _, br := range branches {
		ends := make(map[string]bool, len(br.toward))
		for _, n := range br.toward {
			ends[n] = true
		}
		if err := b.graph.AddBranch(br.from, compose.NewGraphBranch(br.cond, ends)); err != nil {
			logx.Error().Err(err).Str("node", br.from).Msg("Error adding branch")
			return fmt.Errorf("error adding %s branch: %w", br.from, err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.Answer], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithMaxRunSteps(maxSteps(b.settings)),
		compose.WithGraphName(graphName),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	logx.Debug().Int("max_steps", maxSteps(b.settings)).Msg("Graph compiled successfully")
	return runnable, nil
}

// maxSteps bounds a run as a backstop behind the budgets: the route, one
// retrieve and grade per evidence set plus a rewrite per extra set, and a
// generate and grade per generation.
func maxSteps(s Settings) int {
	evidenceSets := s.MaxRewrites + 1
	generations := evidenceSets + s.MaxRegenerations
	return 10 + 3*evidenceSets + 2*generations
}

func normalize(n, def int) int {
	if n < 0 {
		return def
	}
	return n
}

// Answer runs the workflow for one question. BudgetExceeded is a normal
// outcome; errors are always *errx.Error.
func (r *Runner) Answer(ctx context.Context, question string) (*model.Answer, error) {
	const op = "graph.Answer"
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errx.Invalid(op, "question must not be empty")
	}
	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	start := time.Now()
	out, err := r.runnable.Invoke(ctx,
		model.QueryInput{RequestID: requestID, Question: question},
		compose.WithCallbacks(observers.NewAllCallbacks(r.metrics)),
	)
	if err != nil {
		err = classify(ctx, op, err)
		logx.Error().Str("request_id", requestID).Str("kind", string(errx.KindOf(err))).Err(err).Msg("question failed")
		return nil, err
	}
	if out == nil {
		return nil, errx.Fatal(op, fmt.Errorf("graph produced no answer"))
	}
	r.metrics.ObserveAnswer(string(out.Outcome), string(out.Route), time.Since(start))
	return out, nil
}

// classify turns graph errors into typed workflow errors.
func classify(ctx context.Context, op string, err error) error {
	var e *errx.Error
	switch {
	case errors.As(err, &e):
		return e
	case ctx.Err() != nil:
		return errx.Cancelled(op, ctx.Err())
	case errors.Is(err, compose.ErrExceedMaxSteps):
		return errx.Fatal(op, fmt.Errorf("workflow exceeded its step limit: %w", err))
	default:
		return errx.Fatal(op, err)
	}
}

type requestIDKey struct{}

// WithRequestID tags ctx with the caller's request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id set by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
