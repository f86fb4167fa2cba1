package runner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/pkg/errors"
)

var errNoChoices = errors.New("no choices in completion response")

const defaultOpenAIModel = "gpt-4o"

// OpenAIStrategy runs the agentic loop against the OpenAI chat completions
// API with the track tool exposed as a function tool.
type OpenAIStrategy struct {
	client openai.Client
}

// NewOpenAIStrategy builds the strategy from an API key.
func NewOpenAIStrategy(apiKey string) *OpenAIStrategy {
	return &OpenAIStrategy{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (s *OpenAIStrategy) Name() string { return "openai" }

// Run drives the session loop, mirroring the Anthropic strategy with the
// OpenAI message and tool-call shapes.
func (s *OpenAIStrategy) Run(ctx context.Context, session *Session) (*Result, error) {
	start := time.Now()

	model := session.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(BuildSystemPrompt(session.Scenario)),
		openai.UserMessage(BuildTaskMessage(session.Scenario)),
	}

	tools := []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        trackToolName,
			Description: openai.String(trackToolDescription),
			Parameters:  shared.FunctionParameters(trackInputSchema()),
		}),
	}

	var (
		commands     []CommandExecution
		finalText    string
		inputTokens  int64
		outputTokens int64
		turns        int
	)

	for {
		turns++
		if turns > session.maxTurns() {
			session.log().Warn("maximum turns reached", "max_turns", session.maxTurns())
			break
		}

		if session.Verbose {
			session.log().Info("turn", "n", turns)
		}

		completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages:            messages,
			Model:               shared.ChatModel(model),
			Tools:               tools,
			MaxCompletionTokens: openai.Int(4096),
		})
		if err != nil {
			return nil, &TransportError{Op: "openai completion", Err: err}
		}
		if len(completion.Choices) == 0 {
			return nil, &TransportError{Op: "openai completion", Err: errNoChoices}
		}

		inputTokens += completion.Usage.PromptTokens
		outputTokens += completion.Usage.CompletionTokens

		choice := completion.Choices[0]
		messages = append(messages, choice.Message.ToParam())

		if choice.Message.Content != "" && session.Verbose {
			session.log().Info("agent", "text", choice.Message.Content)
		}

		if len(choice.Message.ToolCalls) == 0 {
			finalText = choice.Message.Content
			break
		}

		for _, toolCall := range choice.Message.ToolCalls {
			if toolCall.Function.Name != trackToolName {
				messages = append(messages, openai.ToolMessage(
					"unknown tool "+toolCall.Function.Name, toolCall.ID))
				continue
			}

			args, err := ParseTrackInput(json.RawMessage(toolCall.Function.Arguments))
			if err != nil {
				messages = append(messages, openai.ToolMessage(
					"Invalid input: "+err.Error(), toolCall.ID))
				continue
			}

			output, _ := runTrackCommand(ctx, session, args, &commands)
			messages = append(messages, openai.ToolMessage(output, toolCall.ID))
		}
	}

	return &Result{
		TurnsUsed:    turns,
		Commands:     commands,
		FinalText:    finalText,
		Duration:     time.Since(start),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}
