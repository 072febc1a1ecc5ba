package graders

import (
	"context"

	"github.com/aptify/knowledge-rag/internal/agent/graph/prompts"
	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

// Criterion names the judgment a Judge makes, and the decision field the
// classifier answers in.
type Criterion struct {
	Name  string
	Field string
	// Positive is the field value that means "yes"; everything else is "no".
	Positive string
}

var (
	CriterionRoute         = Criterion{Name: prompts.Route, Field: "datasource", Positive: "web_search"}
	CriterionRelevance     = Criterion{Name: prompts.Relevance, Field: "score", Positive: "yes"}
	CriterionHallucination = Criterion{Name: prompts.Hallucination, Field: "score", Positive: "yes"}
	CriterionAnswer        = Criterion{Name: prompts.Answer, Field: "score", Positive: "yes"}
)

// Judge makes one binary judgment through a Classifier.
type Judge struct {
	classifier model.Classifier
	criterion  Criterion
}

func NewJudge(c model.Classifier, criterion Criterion) *Judge {
	return &Judge{classifier: c, criterion: criterion}
}

// Decide returns true when the classifier answers the positive value.
// A missing or empty field is a KindClassification error; transport errors
// from the classifier are returned unchanged.
func (j *Judge) Decide(ctx context.Context, vars map[string]string) (bool, error) {
	op := "graders." + j.criterion.Name
	d, err := j.classifier.Classify(ctx, model.ClassifyInput{Criterion: j.criterion.Name, Vars: vars})
	if err != nil {
		return false, err
	}
	v, ok := d.Get(j.criterion.Field)
	if !ok || v == "" {
		return false, errx.Classification(op, errMissingField(j.criterion.Field))
	}
	return v == j.criterion.Positive, nil
}

type errMissingField string

func (e errMissingField) Error() string { return "decision field " + string(e) + " missing" }
