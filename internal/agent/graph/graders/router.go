package graders

import (
	"context"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

// Router chooses between the local index and web search.
type Router struct {
	judge *Judge
}

func NewRouter(c model.Classifier) *Router {
	return &Router{judge: NewJudge(c, CriterionRoute)}
}

// Route returns RouteWeb only when the classifier explicitly asks for web
// search. Unusable classifier output falls back to RouteIndex.
func (r *Router) Route(ctx context.Context, question string) (model.Route, error) {
	web, err := r.judge.Decide(ctx, map[string]string{"question": question})
	if err != nil {
		if errx.IsKind(err, errx.KindClassification) {
			logx.Warn().Err(err).Str("component", "router").Msg("routing to index by default")
			return model.RouteIndex, nil
		}
		return "", err
	}
	if web {
		return model.RouteWeb, nil
	}
	return model.RouteIndex, nil
}
