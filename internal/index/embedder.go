package index

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"google.golang.org/genai"
)

// maxEmbedBatch is the Gemini API limit on contents per EmbedContent call.
const maxEmbedBatch = 100

// GenAIEmbedder embeds text with the Gemini embedding API.
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int32
}

func NewGenAIEmbedder(client *genai.Client, model string, dimensions int) *GenAIEmbedder {
	return &GenAIEmbedder{client: client, model: model, dimensions: int32(dimensions)}
}

// EmbedStrings implements embedding.Embedder.
func (e *GenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		cfg := &genai.EmbedContentConfig{}
		if e.dimensions > 0 {
			cfg.OutputDimensionality = &e.dimensions
		}
		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("embed content: got %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			vec := make([]float64, len(emb.Values))
			for i, v := range emb.Values {
				vec[i] = float64(v)
			}
			out = append(out, vec)
		}
	}
	return out, nil
}

var _ embedding.Embedder = (*GenAIEmbedder)(nil)

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// embedOne embeds a single query string.
func embedOne(ctx context.Context, e embedding.Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one text", len(vecs))
	}
	return toFloat32(vecs[0]), nil
}
