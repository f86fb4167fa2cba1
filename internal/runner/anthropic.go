package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicStrategy runs the agentic loop against the Anthropic Messages API
// with the track tool as the only tool.
type AnthropicStrategy struct {
	client anthropic.Client
}

// NewAnthropicStrategy builds the strategy from an API key.
func NewAnthropicStrategy(apiKey string) *AnthropicStrategy {
	return &AnthropicStrategy{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (s *AnthropicStrategy) Name() string { return "anthropic" }

// toolResultBlock builds a tool_result content block carrying text output.
func toolResultBlock(toolUseID, output string, isError bool) anthropic.ContentBlockParamUnion {
	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: toolUseID,
			Content: []anthropic.ToolResultBlockParamContentUnion{
				{OfText: &anthropic.TextBlockParam{Text: output}},
			},
			IsError: anthropic.Bool(isError),
		},
	}
}

// Run drives the session: send the task, execute tool calls in order, feed
// results back, stop on end_turn or the turn ceiling.
func (s *AnthropicStrategy) Run(ctx context.Context, session *Session) (*Result, error) {
	start := time.Now()

	model := session.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	system := BuildSystemPrompt(session.Scenario)
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(BuildTaskMessage(session.Scenario))),
	}

	tools := []anthropic.ToolUnionParam{{
		OfTool: &anthropic.ToolParam{
			Name:        trackToolName,
			Description: anthropic.String(trackToolDescription),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: trackInputSchema()["properties"],
				Required:   []string{"args"},
			},
		},
	}}

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

		msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
			MaxTokens: 4096,
			Model:     anthropic.Model(model),
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages:  messages,
			Tools:     tools,
		})
		if err != nil {
			return nil, &TransportError{Op: "anthropic message", Err: err}
		}

		inputTokens += msg.Usage.InputTokens
		outputTokens += msg.Usage.OutputTokens

		var toolResults []anthropic.ContentBlockParamUnion
		var turnText string

		for _, block := range msg.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				turnText += variant.Text
				if session.Verbose {
					session.log().Info("agent", "text", variant.Text)
				}

			case anthropic.ToolUseBlock:
				if variant.Name != trackToolName {
					toolResults = append(toolResults, toolResultBlock(
						variant.ID, fmt.Sprintf("unknown tool %q", variant.Name), true))
					continue
				}

				args, err := ParseTrackInput(variant.Input)
				if err != nil {
					toolResults = append(toolResults, toolResultBlock(
						variant.ID, "Invalid input: "+err.Error(), true))
					continue
				}

				output, isError := runTrackCommand(ctx, session, args, &commands)
				toolResults = append(toolResults, toolResultBlock(
					variant.ID, output, isError))
			}
		}

		messages = append(messages, msg.ToParam())

		if msg.StopReason == anthropic.StopReasonEndTurn {
			finalText = turnText
			break
		}

		if len(toolResults) == 0 {
			// Not end_turn and no tool use; nothing to feed back.
			session.log().Warn("no tool use in response", "stop_reason", msg.StopReason)
			finalText = turnText
			break
		}

		messages = append(messages, anthropic.NewUserMessage(toolResults...))
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
