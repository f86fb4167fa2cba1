// Package runner drives one agent session against a scenario. Two families
// of strategies exist: in-process strategies talk to a model API directly and
// execute track commands through the in-process executor; subprocess
// strategies spawn an external agent CLI restricted to the track binary and
// reconstruct its command trace from its event stream. Either way the mock
// provider writes the call log, which is what the evaluator scores.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fpt/go-trackeval/internal/scenario"
	"github.com/fpt/go-trackeval/internal/trackcmd"
	"github.com/fpt/go-trackeval/pkg/logger"
)

// DefaultMaxTurns bounds the agentic loop when no ceiling is configured.
const DefaultMaxTurns = 20

// DefaultDeadline bounds the wall clock of a single session so a hung
// external agent cannot stall a batch forever.
const DefaultDeadline = 10 * time.Minute

// Strategy runs an agent session against a scenario.
type Strategy interface {
	Name() string
	Run(ctx context.Context, session *Session) (*Result, error)
}

// Session carries everything one scenario run needs.
type Session struct {
	Scenario    *scenario.Scenario
	ScenarioDir string

	// Executor runs track commands in-process. Subprocess strategies do not
	// use it; their track binary talks to the provider on its own.
	Executor *trackcmd.Executor

	Model    string
	MaxTurns int
	Verbose  bool
	Logger   *logger.Logger
}

func (s *Session) maxTurns() int {
	if s.MaxTurns > 0 {
		return s.MaxTurns
	}
	return DefaultMaxTurns
}

func (s *Session) log() *logger.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logger.Default
}

// CommandExecution is one track command the agent ran, with its output.
type CommandExecution struct {
	Args    []string `json:"args"`
	Output  string   `json:"output"`
	IsError bool     `json:"is_error"`
}

// Result summarizes a completed session. It feeds verbose diagnostics only;
// scoring reads the call log.
type Result struct {
	TurnsUsed    int                `json:"turns_used"`
	Commands     []CommandExecution `json:"commands"`
	FinalText    string             `json:"final_text,omitempty"`
	Duration     time.Duration      `json:"duration"`
	InputTokens  int64              `json:"input_tokens,omitempty"`
	OutputTokens int64              `json:"output_tokens,omitempty"`
}

// TransportError marks a model API or child process failure. The run aborts
// and produces no score; CI can tell "agent did poorly" from "harness broke".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// skillFilePath locates the track skill file relative to the working
// directory, walking up a few levels like a checkout layout would need.
const skillFilePath = "agent-skills/SKILL.md"

func loadSkillFile() string {
	for _, prefix := range []string{".", "..", "../.."} {
		data, err := os.ReadFile(filepath.Join(prefix, skillFilePath))
		if err == nil {
			return stripFrontmatter(string(data))
		}
	}
	return ""
}

// stripFrontmatter removes a leading YAML frontmatter block.
func stripFrontmatter(content string) string {
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return content
	}
	idx := strings.Index(rest, "\n---\n")
	if idx < 0 {
		return content
	}
	return strings.TrimLeft(rest[idx+5:], "\n \t")
}

// BuildSystemPrompt assembles the evaluation-mode system prompt for
// in-process strategies: guidelines, the skill file when present, and any
// scenario context.
func BuildSystemPrompt(s *scenario.Scenario) string {
	var b strings.Builder

	b.WriteString("# Evaluation Mode\n\n")
	b.WriteString("You are an AI agent being evaluated on your ability to use the `track` CLI tool efficiently and correctly.\n\n")

	b.WriteString("## Guidelines\n\n")
	b.WriteString("1. Use the `track` tool to execute CLI commands\n")
	b.WriteString("2. Be efficient - minimize the number of commands you use\n")
	b.WriteString("3. Parse command output to inform your next actions\n")
	b.WriteString("4. When you've completed the task, simply respond with a summary (no more tool calls)\n")
	b.WriteString("5. Use -o json for output you need to parse programmatically\n\n")

	if skill := loadSkillFile(); skill != "" {
		b.WriteString("---\n\n")
		b.WriteString(skill)
		b.WriteString("\n---\n\n")
	} else {
		b.WriteString("## Track CLI Quick Reference\n\n")
		b.WriteString("```\n")
		b.WriteString("track issue get <ID>              # Get issue details\n")
		b.WriteString("track issue search <query>        # Search issues\n")
		b.WriteString("track issue create -p <proj> -s <summary>\n")
		b.WriteString("track issue update <ID> [--state <state>] [--summary <summary>]\n")
		b.WriteString("track issue comment <ID> -m <message>\n")
		b.WriteString("track issue comments <ID>         # List comments\n")
		b.WriteString("track project list                # List projects\n")
		b.WriteString("track project fields <ID>         # List custom fields\n")
		b.WriteString("```\n\n")
	}

	if s.Setup.Context != "" {
		b.WriteString("## Context\n\n")
		b.WriteString(s.Setup.Context)
		b.WriteString("\n\n")
	}

	b.WriteString("Remember: You are being evaluated on both correctness AND efficiency. Complete the task with as few commands as possible while ensuring all requirements are met.")

	return b.String()
}

// BuildTaskMessage builds the opening user message.
func BuildTaskMessage(s *scenario.Scenario) string {
	return fmt.Sprintf(
		"## Your Task\n\n%s\n\nPlease complete this task using the track CLI tool.",
		s.Setup.Prompt)
}

// runTrackCommand executes one tool invocation in-process and records it.
func runTrackCommand(ctx context.Context, session *Session, args []string, commands *[]CommandExecution) (string, bool) {
	if session.Verbose {
		session.log().Info("executing command", "args", "track "+strings.Join(args, " "))
	}

	output, isError := session.Executor.Execute(ctx, args)

	if session.Verbose {
		if isError {
			session.log().Warn("command failed", "output", truncate(output, 500))
		} else {
			session.log().Info("command output", "output", truncate(output, 500))
		}
	}

	*commands = append(*commands, CommandExecution{
		Args:    args,
		Output:  output,
		IsError: isError,
	})

	return output, isError
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
