package graders

import (
	"context"
	"strings"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

// HallucinationGrader judges whether an answer is supported by the evidence.
type HallucinationGrader struct {
	judge *Judge
}

func NewHallucinationGrader(c model.Classifier) *HallucinationGrader {
	return &HallucinationGrader{judge: NewJudge(c, CriterionHallucination)}
}

// Grade returns Grounded only on an explicit "yes". Unusable output counts
// as Ungrounded.
func (g *HallucinationGrader) Grade(ctx context.Context, evidence []model.Evidence, answer string) (model.Grounding, error) {
	ok, err := g.judge.Decide(ctx, map[string]string{
		"documents":  JoinEvidence(evidence),
		"generation": answer,
	})
	if err != nil {
		if errx.IsKind(err, errx.KindClassification) {
			logx.Warn().Err(err).Str("component", "hallucination_grader").Msg("treating answer as ungrounded")
			return model.Ungrounded, nil
		}
		return "", err
	}
	if ok {
		return model.Grounded, nil
	}
	return model.Ungrounded, nil
}

// JoinEvidence renders the evidence set as one block of text.
func JoinEvidence(evidence []model.Evidence) string {
	parts := make([]string, 0, len(evidence))
	for _, ev := range evidence {
		parts = append(parts, ev.Content)
	}
	return strings.Join(parts, "\n\n")
}
