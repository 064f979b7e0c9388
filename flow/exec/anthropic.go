package exec

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dagrun/dagrun/flow"
)

// DefaultAnthropicModel is used when a node does not name a model.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicExecutor is a flow.TaskExecutor backed by Anthropic's Messages
// API. Each AGENT_SPAWN or AGENT_EXECUTE node becomes one message request:
// the node's task plus the run's shared variables form the prompt, and the
// response text becomes the node output (decoded from JSON when the model
// returns a JSON value).
//
// Safe for concurrent use; the underlying SDK client handles concurrent
// requests.
type AnthropicExecutor struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicExecutor creates an executor with the given API key and
// default model. An empty model falls back to DefaultAnthropicModel; nodes
// may override it per-task with a "model" config entry.
func NewAnthropicExecutor(apiKey, model string) *AnthropicExecutor {
	if model == "" {
		model = DefaultAnthropicModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicExecutor{
		client:    &client,
		model:     model,
		maxTokens: 4096,
	}
}

// Execute implements flow.TaskExecutor.
func (a *AnthropicExecutor) Execute(ctx context.Context, node flow.Node, vars map[string]any) (any, error) {
	prompt, err := buildTaskPrompt(node, vars)
	if err != nil {
		return nil, err
	}

	model := a.model
	if m, _ := node.Config["model"].(string); m != "" {
		model = m
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic request for node %s: %w", node.ID, err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return parseTaskResult(text), nil
}
