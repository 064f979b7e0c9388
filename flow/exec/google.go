package exec

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dagrun/dagrun/flow"
)

// DefaultGoogleModel is used when a node does not name a model.
const DefaultGoogleModel = "gemini-1.5-flash"

// GoogleExecutor is a flow.TaskExecutor backed by Google's Gemini API.
// Close must be called when the executor is no longer needed.
type GoogleExecutor struct {
	client *genai.Client
	model  string
}

// NewGoogleExecutor creates an executor. An empty apiKey falls back to the
// GOOGLE_API_KEY environment variable; an empty model falls back to
// DefaultGoogleModel.
func NewGoogleExecutor(ctx context.Context, apiKey, model string) (*GoogleExecutor, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, errors.New("google API key not provided and GOOGLE_API_KEY not set")
		}
	}
	if model == "" {
		model = DefaultGoogleModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	return &GoogleExecutor{client: client, model: model}, nil
}

// Close releases the underlying Gemini client.
func (g *GoogleExecutor) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Execute implements flow.TaskExecutor.
func (g *GoogleExecutor) Execute(ctx context.Context, node flow.Node, vars map[string]any) (any, error) {
	prompt, err := buildTaskPrompt(node, vars)
	if err != nil {
		return nil, err
	}

	modelName := g.model
	if m, _ := node.Config["model"].(string); m != "" {
		modelName = m
	}

	model := g.client.GenerativeModel(modelName)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("google request for node %s: %w", node.ID, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("google request for node %s: empty response", node.ID)
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return parseTaskResult(text), nil
}
