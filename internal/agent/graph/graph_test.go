package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/aptify/knowledge-rag/internal/agent/graph/nodes"
	"github.com/aptify/knowledge-rag/internal/agent/graph/parsers"
	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// scriptedClassifier answers each criterion through a test-provided function.
// Unset functions answer the happy path.
type scriptedClassifier struct {
	mu            sync.Mutex
	route         func(question string) string
	relevant      func(question, document string) bool
	grounded      func(call int) bool
	useful        func(question, answer string) bool
	hallucination int
	calls         map[string]int
}

func (c *scriptedClassifier) Classify(_ context.Context, in model.ClassifyInput) (model.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[in.Criterion]++
	raw := ""
	switch in.Criterion {
	case "route":
		ds := "vectorstore"
		if c.route != nil {
			ds = c.route(in.Vars["question"])
		}
		raw = fmt.Sprintf(`{"datasource": %q}`, ds)
	case "relevance":
		raw = yesNo(c.relevant == nil || c.relevant(in.Vars["question"], in.Vars["document"]))
	case "hallucination":
		c.hallucination++
		raw = yesNo(c.grounded == nil || c.grounded(c.hallucination))
	case "answer":
		raw = yesNo(c.useful == nil || c.useful(in.Vars["question"], in.Vars["generation"]))
	default:
		return model.Decision{}, fmt.Errorf("unexpected criterion %q", in.Criterion)
	}
	return parsers.ParseDecision(raw)
}

func (c *scriptedClassifier) count(criterion string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[criterion]
}

func yesNo(b bool) string {
	if b {
		return `{"score": "yes"}`
	}
	return `{"score": "no"}`
}

// scriptedLLM numbers its answers so tests can tell generations apart.
type scriptedLLM struct {
	mu     sync.Mutex
	prefix string
	calls  int
	hook   func(call int)
}

func (l *scriptedLLM) Complete(_ context.Context, msgs []*schema.Message) (string, error) {
	l.mu.Lock()
	l.calls++
	n := l.calls
	l.mu.Unlock()
	if l.hook != nil {
		l.hook(n)
	}
	return fmt.Sprintf("%s %d", l.prefix, n), nil
}

func (l *scriptedLLM) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type fakeIndex struct {
	mu      sync.Mutex
	docs    []model.Evidence
	byQuery map[string][]model.Evidence
	err     error
	queries []string
}

func (f *fakeIndex) Search(_ context.Context, query string, k int) ([]model.Evidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if docs, ok := f.byQuery[query]; ok {
		return docs, nil
	}
	return f.docs, nil
}

type fakeWeb struct {
	mu      sync.Mutex
	results []model.SearchResult
	calls   int
}

func (f *fakeWeb) Query(context.Context, string) ([]model.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results, nil
}

func doc(content, source string) model.Evidence {
	return model.NewEvidence(content, map[string]string{model.MetaSource: source})
}

type harness struct {
	classifier *scriptedClassifier
	generator  *scriptedLLM
	rewriter   *scriptedLLM
	index      *fakeIndex
	web        *fakeWeb
	settings   Settings
}

func newHarness() *harness {
	return &harness{
		classifier: &scriptedClassifier{},
		generator:  &scriptedLLM{prefix: "answer"},
		rewriter:   &scriptedLLM{prefix: "rewritten"},
		index: &fakeIndex{docs: []model.Evidence{
			doc("Late fees are $50 after the 5th.", "lease.pdf"),
			doc("Rent is due on the 1st.", "handbook.md"),
		}},
		web:      &fakeWeb{},
		settings: Settings{MaxRegenerations: 2, MaxRewrites: 2, TopK: 4, RelevanceConcurrency: 2},
	}
}

func (h *harness) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := BuildAnswerGraph(context.Background(), Dependencies{
		Classifier: h.classifier,
		Generator:  h.generator,
		Rewriter:   h.rewriter,
		Index:      h.index,
		WebSearch:  h.web,
	}, h.settings)
	if err != nil {
		t.Fatalf("BuildAnswerGraph: %v", err)
	}
	return r
}

func assertPath(t *testing.T, got *model.Answer, want ...string) {
	t.Helper()
	if !reflect.DeepEqual(got.Path, want) {
		t.Fatalf("path = %v\nwant   %v", got.Path, want)
	}
}

func TestAnswerHappyPath(t *testing.T) {
	h := newHarness()
	out, err := h.runner(t).Answer(context.Background(), "When is rent due?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != model.OutcomeDone || out.LowConfidence {
		t.Fatalf("outcome = %s low=%v", out.Outcome, out.LowConfidence)
	}
	assertPath(t, out, nodes.NodeRoute, nodes.NodeRetrieve, nodes.NodeGradeEvidence,
		nodes.NodeGenerate, nodes.NodeGradeGeneration, nodes.NodeDone)
	if out.Answer != "answer 1" || out.Generations != 1 || out.Rewrites != 0 {
		t.Fatalf("answer = %+v", out)
	}
	if len(out.Sources) != 2 || out.Sources[0].Source != "lease.pdf" {
		t.Fatalf("sources = %+v", out.Sources)
	}
	if out.Route != model.RouteIndex || h.web.calls != 0 {
		t.Fatalf("route = %s, web calls = %d", out.Route, h.web.calls)
	}
}

func TestScenarioSingleRelevantDocument(t *testing.T) {
	h := newHarness()
	h.index.docs = []model.Evidence{
		doc("Parking is assigned.", "parking.md"),
		doc("A late fee of $50 applies after the 5th.", "late-fees.md"),
		doc("Pets require a deposit.", "pets.md"),
	}
	h.classifier.relevant = func(_, document string) bool { return strings.Contains(document, "late fee") }

	out, err := h.runner(t).Answer(context.Background(), "What is the late fee policy?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != model.OutcomeDone {
		t.Fatalf("outcome = %s", out.Outcome)
	}
	if len(out.Sources) != 1 || out.Sources[0].Source != "late-fees.md" {
		t.Fatalf("sources = %+v", out.Sources)
	}
	if h.classifier.count("relevance") != 3 {
		t.Fatalf("relevance calls = %d", h.classifier.count("relevance"))
	}
}

func TestScenarioWebRoute(t *testing.T) {
	h := newHarness()
	h.classifier.route = func(string) string { return "web_search" }
	h.web.results = []model.SearchResult{
		{URL: "https://example.com/a", Content: "City ordinance caps late fees."},
		{URL: "https://example.com/b", Content: "Fees above 5% are unenforceable."},
	}

	out, err := h.runner(t).Answer(context.Background(), "What does city law say about late fees?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != model.OutcomeDone || out.Route != model.RouteWeb {
		t.Fatalf("outcome = %s route = %s", out.Outcome, out.Route)
	}
	assertPath(t, out, nodes.NodeRoute, nodes.NodeWebSearch, nodes.NodeGenerate,
		nodes.NodeGradeGeneration, nodes.NodeDone)
	if len(out.Sources) != 1 || out.Sources[0].Source != "web_search" {
		t.Fatalf("sources = %+v", out.Sources)
	}
	if !strings.Contains(out.Sources[0].Snippet, "caps late fees. Fees above") {
		t.Fatalf("snippet = %q", out.Sources[0].Snippet)
	}
	if len(h.index.queries) != 0 {
		t.Fatal("index searched on web route")
	}
}

func TestScenarioAllIrrelevantExhaustsRewrites(t *testing.T) {
	h := newHarness()
	h.settings.MaxRewrites = 1
	h.classifier.relevant = func(string, string) bool { return false }

	out, err := h.runner(t).Answer(context.Background(), "Is the pool open?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != model.OutcomeBudgetExceeded || !out.LowConfidence {
		t.Fatalf("outcome = %s low=%v", out.Outcome, out.LowConfidence)
	}
	assertPath(t, out, nodes.NodeRoute, nodes.NodeRetrieve, nodes.NodeGradeEvidence,
		nodes.NodeTransformQuery, nodes.NodeRetrieve, nodes.NodeGradeEvidence, nodes.NodeBudgetExceeded)
	if h.generator.count() != 0 {
		t.Fatalf("generator called %d times", h.generator.count())
	}
	if out.Answer != nodes.UnableToAnswer || len(out.Sources) != 0 {
		t.Fatalf("answer = %q sources = %v", out.Answer, out.Sources)
	}
	if out.Rewrites != 1 || out.Question != "rewritten 1" {
		t.Fatalf("rewrites = %d question = %q", out.Rewrites, out.Question)
	}
}

func TestSingleRewriteBeforeGeneration(t *testing.T) {
	h := newHarness()
	h.index.byQuery = map[string][]model.Evidence{
		"rewritten 1": {doc("Quiet hours are 10pm to 7am.", "rules.md")},
	}
	h.classifier.relevant = func(question, _ string) bool { return question == "rewritten 1" }

	out, err := h.runner(t).Answer(context.Background(), "noise?")
	if err != nil {
		t.Fatal(err)
	}
	assertPath(t, out, nodes.NodeRoute, nodes.NodeRetrieve, nodes.NodeGradeEvidence,
		nodes.NodeTransformQuery, nodes.NodeRetrieve, nodes.NodeGradeEvidence,
		nodes.NodeGenerate, nodes.NodeGradeGeneration, nodes.NodeDone)
	if !reflect.DeepEqual(h.index.queries, []string{"noise?", "rewritten 1"}) {
		t.Fatalf("queries = %v", h.index.queries)
	}
	if out.Sources[0].Source != "rules.md" {
		t.Fatalf("sources = %+v", out.Sources)
	}
}

func TestRegenerationCeiling(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("budget=%d", n), func(t *testing.T) {
			h := newHarness()
			h.settings.MaxRegenerations = n
			h.classifier.grounded = func(int) bool { return false }

			out, err := h.runner(t).Answer(context.Background(), "When is rent due?")
			if err != nil {
				t.Fatal(err)
			}
			if out.Outcome != model.OutcomeBudgetExceeded || !out.LowConfidence {
				t.Fatalf("outcome = %s", out.Outcome)
			}
			if got := h.generator.count(); got != n+1 {
				t.Fatalf("generations = %d, want %d", got, n+1)
			}
			if out.Answer != fmt.Sprintf("answer %d", n+1) {
				t.Fatalf("answer = %q", out.Answer)
			}
			if len(out.Sources) != 2 {
				t.Fatalf("sources = %+v", out.Sources)
			}
			if h.classifier.count("answer") != 0 {
				t.Fatal("answer grader called for ungrounded answers")
			}
		})
	}
}

func TestExpiredTimeoutStopsRegeneration(t *testing.T) {
	h := newHarness()
	h.settings.Timeout = time.Nanosecond
	h.classifier.grounded = func(int) bool { return false }

	out, err := h.runner(t).Answer(context.Background(), "When is rent due?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != model.OutcomeBudgetExceeded || !out.LowConfidence {
		t.Fatalf("outcome = %s low=%v", out.Outcome, out.LowConfidence)
	}
	assertPath(t, out, nodes.NodeRoute, nodes.NodeRetrieve, nodes.NodeGradeEvidence,
		nodes.NodeGenerate, nodes.NodeGradeGeneration, nodes.NodeBudgetExceeded)
	if got := h.generator.count(); got != 1 {
		t.Fatalf("generations = %d, want 1", got)
	}
	if out.Answer != "answer 1" || len(out.Sources) != 2 {
		t.Fatalf("answer = %q sources = %+v", out.Answer, out.Sources)
	}
}

func TestExpiredTimeoutStopsRewrite(t *testing.T) {
	h := newHarness()
	h.settings.Timeout = time.Nanosecond
	h.classifier.relevant = func(string, string) bool { return false }

	out, err := h.runner(t).Answer(context.Background(), "Is the pool open?")
	if err != nil {
		t.Fatal(err)
	}
	assertPath(t, out, nodes.NodeRoute, nodes.NodeRetrieve, nodes.NodeGradeEvidence, nodes.NodeBudgetExceeded)
	if h.rewriter.count() != 0 || h.generator.count() != 0 {
		t.Fatalf("rewriter = %d generator = %d, want no calls", h.rewriter.count(), h.generator.count())
	}
	if out.Answer != nodes.UnableToAnswer || len(out.Sources) != 0 {
		t.Fatalf("answer = %q sources = %v", out.Answer, out.Sources)
	}
}

func TestRegenerationRecovers(t *testing.T) {
	h := newHarness()
	h.classifier.grounded = func(call int) bool { return call == 2 }

	out, err := h.runner(t).Answer(context.Background(), "When is rent due?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != model.OutcomeDone || out.Answer != "answer 2" {
		t.Fatalf("out = %+v", out)
	}
	assertPath(t, out, nodes.NodeRoute, nodes.NodeRetrieve, nodes.NodeGradeEvidence,
		nodes.NodeGenerate, nodes.NodeGradeGeneration, nodes.NodeGenerate, nodes.NodeGradeGeneration, nodes.NodeDone)
}

func TestMissesExhaustsRewrites(t *testing.T) {
	h := newHarness()
	h.settings.MaxRewrites = 2
	h.classifier.useful = func(string, string) bool { return false }

	out, err := h.runner(t).Answer(context.Background(), "When is rent due?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != model.OutcomeBudgetExceeded {
		t.Fatalf("outcome = %s", out.Outcome)
	}
	if out.Rewrites != 2 || h.rewriter.count() != 2 || h.generator.count() != 3 {
		t.Fatalf("rewrites = %d/%d generations = %d", out.Rewrites, h.rewriter.count(), h.generator.count())
	}
	if out.Answer != "answer 3" || !out.LowConfidence {
		t.Fatalf("answer = %q", out.Answer)
	}
}

func TestIdempotentDecisions(t *testing.T) {
	h := newHarness()
	h.index.docs = append(h.index.docs, doc("Unrelated parking note.", "parking.md"))
	h.classifier.relevant = func(_, document string) bool { return !strings.Contains(document, "parking") }
	r := h.runner(t)

	first, err := r.Answer(context.Background(), "When is rent due?")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Answer(context.Background(), "When is rent due?")
	if err != nil {
		t.Fatal(err)
	}
	if first.Route != second.Route || !reflect.DeepEqual(first.Sources, second.Sources) ||
		!reflect.DeepEqual(first.Path, second.Path) {
		t.Fatalf("runs differ:\n%+v\n%+v", first, second)
	}
}

func TestConcurrentQuestionsKeepSeparateState(t *testing.T) {
	h := newHarness()
	r := h.runner(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Answer(context.Background(), fmt.Sprintf("question %d", i))
			if err != nil {
				errs <- err
				return
			}
			if len(out.Path) != 6 || out.Question != fmt.Sprintf("question %d", i) {
				errs <- fmt.Errorf("run %d leaked state: %+v", i, out)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.runner(t).Answer(ctx, "When is rent due?")
	if !errx.IsKind(err, errx.KindCancelled) {
		t.Fatalf("err = %v", err)
	}
	if h.classifier.count("route") != 0 {
		t.Fatal("router called after cancellation")
	}
}

func TestCancelledBetweenStates(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.generator.hook = func(int) { cancel() }

	_, err := h.runner(t).Answer(ctx, "When is rent due?")
	if !errx.IsKind(err, errx.KindCancelled) {
		t.Fatalf("err = %v", err)
	}
	if h.classifier.count("hallucination") != 0 {
		t.Fatal("grading ran after cancellation")
	}
}

func TestRetrievalFailureIsTyped(t *testing.T) {
	h := newHarness()
	h.index.err = errors.New("connection refused")
	_, err := h.runner(t).Answer(context.Background(), "When is rent due?")
	if !errx.IsKind(err, errx.KindRetrieval) {
		t.Fatalf("err = %v (kind %s)", err, errx.KindOf(err))
	}
}

func TestRouterDefaultsToIndex(t *testing.T) {
	h := newHarness()
	h.classifier.route = func(string) string { return "carrier pigeon" }
	out, err := h.runner(t).Answer(context.Background(), "When is rent due?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Route != model.RouteIndex || h.web.calls != 0 {
		t.Fatalf("route = %s", out.Route)
	}
}

func TestEmptyQuestion(t *testing.T) {
	_, err := newHarness().runner(t).Answer(context.Background(), "   ")
	if !errx.IsKind(err, errx.KindInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestMaxStepsCoversWorstCase(t *testing.T) {
	h := newHarness()
	h.settings.MaxRewrites = 3
	h.settings.MaxRegenerations = 3
	h.classifier.grounded = func(call int) bool { return call%4 == 0 }
	h.classifier.useful = func(string, string) bool { return false }

	out, err := h.runner(t).Answer(context.Background(), "When is rent due?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != model.OutcomeBudgetExceeded {
		t.Fatalf("outcome = %s", out.Outcome)
	}
	if len(out.Path) > maxSteps(h.settings) {
		t.Fatalf("path %d exceeds max steps %d", len(out.Path), maxSteps(h.settings))
	}
}
