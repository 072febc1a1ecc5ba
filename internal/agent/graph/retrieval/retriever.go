package retrieval

import (
	"context"
	"strings"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
)

const (
	DefaultTopK = 4
	MaxTopK     = 20
)

// Retriever fetches the top-k passages for a question from an Index.
type Retriever struct {
	index model.Index
	k     int
}

// New clamps k to [1, MaxTopK]; zero selects DefaultTopK.
func New(index model.Index, k int) *Retriever {
	switch {
	case k <= 0:
		k = DefaultTopK
	case k > MaxTopK:
		k = MaxTopK
	}
	return &Retriever{index: index, k: k}
}

func (r *Retriever) K() int { return r.k }

// Retrieve returns at most k items. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]model.Evidence, error) {
	const op = "retrieval.Retrieve"
	if strings.TrimSpace(question) == "" {
		return nil, nil
	}
	ev, err := r.index.Search(ctx, question, r.k)
	if err != nil {
		if k := errx.KindOf(err); k == errx.KindCancelled || k == errx.KindRetrieval {
			return nil, err
		}
		return nil, errx.Retrieval(op, err)
	}
	if len(ev) > r.k {
		ev = ev[:r.k]
	}
	return ev, nil
}
