package graders

import (
	"context"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

// AnswerGrader judges whether an answer resolves the question.
type AnswerGrader struct {
	judge *Judge
}

func NewAnswerGrader(c model.Classifier) *AnswerGrader {
	return &AnswerGrader{judge: NewJudge(c, CriterionAnswer)}
}

// Grade returns Addresses only on an explicit "yes". Unusable output counts
// as Misses.
func (g *AnswerGrader) Grade(ctx context.Context, question, answer string) (model.Usefulness, error) {
	ok, err := g.judge.Decide(ctx, map[string]string{"question": question, "generation": answer})
	if err != nil {
		if errx.IsKind(err, errx.KindClassification) {
			logx.Warn().Err(err).Str("component", "answer_grader").Msg("treating answer as missing the question")
			return model.Misses, nil
		}
		return "", err
	}
	if ok {
		return model.Addresses, nil
	}
	return model.Misses, nil
}
