package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Index returns the k passages most similar to query. Implementations must
// be safe for concurrent use; an empty result is not an error.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]Evidence, error)
}

// Classifier makes a structured judgment. Unparsable model output must be
// reported as an errx KindClassification error so callers can apply their
// safe default.
type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput) (Decision, error)
}

// TextGenerator completes a prompt into free-form text.
type TextGenerator interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

// WebSearch queries an external search provider.
type WebSearch interface {
	Query(ctx context.Context, text string) ([]SearchResult, error)
}
