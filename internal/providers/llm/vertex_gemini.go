package llm

import (
	"context"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

// VertexGemini answers bot prompts through Gemini on Vertex AI.
type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName, system string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	m.SetTemperature(0.3)
	m.SetMaxOutputTokens(256)
	if system != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(system)}}
	}
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		it := v.model.GenerateContentStream(ctx, vertexgenai.Text(prompt))
		for {
			resp, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				errs <- err
				return
			}

			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					t, ok := part.(vertexgenai.Text)
					if !ok || t == "" {
						continue
					}
					select {
					case out <- string(t):
					case <-ctx.Done():
						errs <- ctx.Err()
						return
					}
				}
			}
		}
	}()

	return out, errs
}
