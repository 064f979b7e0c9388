package exec

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dagrun/dagrun/flow"
)

// DefaultOpenAIModel is used when a node does not name a model.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIExecutor is a flow.TaskExecutor backed by OpenAI's chat completions
// API. See AnthropicExecutor for the prompt and output conventions; the
// two are interchangeable behind the TaskExecutor interface.
type OpenAIExecutor struct {
	client *openai.Client
	model  string
}

// NewOpenAIExecutor creates an executor with the given API key and default
// model. Nodes may override the model per-task with a "model" config entry.
func NewOpenAIExecutor(apiKey, model string) (*OpenAIExecutor, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIExecutor{client: &client, model: model}, nil
}

// Execute implements flow.TaskExecutor.
func (p *OpenAIExecutor) Execute(ctx context.Context, node flow.Node, vars map[string]any) (any, error) {
	prompt, err := buildTaskPrompt(node, vars)
	if err != nil {
		return nil, err
	}

	model := p.model
	if m, _ := node.Config["model"].(string); m != "" {
		model = m
	}

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai request for node %s: %w", node.ID, err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai request for node %s: empty completion", node.ID)
	}
	return parseTaskResult(completion.Choices[0].Message.Content), nil
}
