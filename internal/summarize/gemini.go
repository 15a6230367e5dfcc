package summarize

import (
	"context"

	"google.golang.org/genai"

	"github.com/hpungsan/minutes/internal/errors"
)

type gemini struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, apiKey, model, endpoint string) (*gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.NewSummarizer("create gemini client", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &gemini{client: client, model: model}, nil
}

func (g *gemini) Name() string { return "gemini" }

func (g *gemini) Complete(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
