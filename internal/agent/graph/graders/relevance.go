package graders

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

const DefaultRelevanceConcurrency = 4

// RelevanceGrader judges each evidence item against the question.
type RelevanceGrader struct {
	judge       *Judge
	concurrency int
}

func NewRelevanceGrader(c model.Classifier, concurrency int) *RelevanceGrader {
	if concurrency <= 0 {
		concurrency = DefaultRelevanceConcurrency
	}
	return &RelevanceGrader{judge: NewJudge(c, CriterionRelevance), concurrency: concurrency}
}

// Grade judges a single item. Unusable output counts as Irrelevant.
func (g *RelevanceGrader) Grade(ctx context.Context, question string, ev model.Evidence) (model.Relevance, error) {
	ok, err := g.judge.Decide(ctx, map[string]string{"question": question, "document": ev.Content})
	if err != nil {
		if errx.IsKind(err, errx.KindClassification) {
			logx.Warn().Err(err).Str("component", "relevance_grader").Str("source", ev.Source()).Msg("treating evidence as irrelevant")
			return model.Irrelevant, nil
		}
		return "", err
	}
	if ok {
		return model.Relevant, nil
	}
	return model.Irrelevant, nil
}

// Filter grades items concurrently and returns the relevant ones in their
// original order. The first transport error cancels the remaining grades.
func (g *RelevanceGrader) Filter(ctx context.Context, question string, evidence []model.Evidence) ([]model.Evidence, error) {
	if len(evidence) == 0 {
		return nil, nil
	}
	verdicts := make([]model.Relevance, len(evidence))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, ev := range evidence {
		eg.Go(func() error {
			v, err := g.Grade(egCtx, question, ev)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	kept := make([]model.Evidence, 0, len(evidence))
	for i, v := range verdicts {
		if v == model.Relevant {
			kept = append(kept, evidence[i])
		}
	}
	return kept, nil
}
