package runner

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
)

// Event is one line of an external agent's stream-json output. Unknown event
// types are skipped; the stream stays usable across agent CLI versions.
type Event struct {
	Type      string        `json:"type"`
	Subtype   string        `json:"subtype,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Message   *EventMessage `json:"message,omitempty"`

	// Result-event fields.
	Result     string  `json:"result,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	NumTurns   int     `json:"num_turns,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
}

// EventMessage wraps the content blocks of assistant and user events.
type EventMessage struct {
	Content []EventBlock `json:"content"`
}

// EventBlock is one content block: text, tool_use or tool_result.
type EventBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ResultContent renders a tool_result content payload as plain text. Agents
// emit either a bare string or a list of typed blocks.
func (b *EventBlock) ResultContent() string {
	if len(b.Content) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(b.Content, &s) == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(b.Content, &blocks) == nil {
		var parts []string
		for _, blk := range blocks {
			if blk.Text != "" {
				parts = append(parts, blk.Text)
			}
		}
		return strings.Join(parts, "\n")
	}

	return string(b.Content)
}

// knownEventTypes are the categories the harness consumes.
var knownEventTypes = map[string]bool{
	"system":    true,
	"assistant": true,
	"user":      true,
	"result":    true,
}

// ParseEventStream decodes line-delimited events from an agent's stdout.
// Malformed or unrecognized lines are skipped. A read failure mid-stream is a
// transport error: it means the child died abruptly, not that the agent
// performed badly.
func ParseEventStream(r io.Reader, onEvent func(*Event)) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var events []Event
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if !knownEventTypes[event.Type] {
			continue
		}

		if onEvent != nil {
			onEvent(&event)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return events, errors.Wrap(err, "failed to read agent event stream")
	}

	return events, nil
}

// ExtractCommands reconstructs the ordered trace of track commands: tool_use
// events carrying a track invocation, paired with their tool_result by ID.
// The trace is diagnostic only; the call log remains the scoring ground truth.
func ExtractCommands(events []Event) []CommandExecution {
	type pending struct {
		id  string
		cmd string
	}

	var commands []CommandExecution
	var queue []pending

	for i := range events {
		event := &events[i]
		if event.Message == nil {
			continue
		}

		switch event.Type {
		case "assistant":
			for _, block := range event.Message.Content {
				if block.Type != "tool_use" || block.Name != "Bash" {
					continue
				}
				var input struct {
					Command string `json:"command"`
				}
				if json.Unmarshal(block.Input, &input) != nil {
					continue
				}
				if IsTrackCommand(input.Command) {
					queue = append(queue, pending{id: block.ID, cmd: input.Command})
				}
			}

		case "user":
			for _, block := range event.Message.Content {
				if block.Type != "tool_result" {
					continue
				}
				for i, p := range queue {
					if p.id != block.ToolUseID {
						continue
					}
					commands = append(commands, CommandExecution{
						Args:    ParseTrackArgs(p.cmd),
						Output:  block.ResultContent(),
						IsError: block.IsError,
					})
					queue = append(queue[:i], queue[i+1:]...)
					break
				}
			}
		}
	}

	return commands
}

// CountTurns counts assistant events in a stream.
func CountTurns(events []Event) int {
	turns := 0
	for i := range events {
		if events[i].Type == "assistant" {
			turns++
		}
	}
	return turns
}

// FinalResult returns the last result event's text, if any.
func FinalResult(events []Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == "result" {
			return events[i].Result
		}
	}
	return ""
}

// IsTrackCommand reports whether a shell command invokes the track binary,
// directly or via a path.
func IsTrackCommand(cmd string) bool {
	trimmed := strings.TrimSpace(cmd)

	if trimmed == "track" || strings.HasPrefix(trimmed, "track ") {
		return true
	}
	if idx := strings.Index(trimmed, "track "); idx > 0 {
		prev := trimmed[idx-1]
		if prev == '/' || prev == '\\' {
			return true
		}
	}
	if strings.HasSuffix(trimmed, "/track") || strings.HasSuffix(trimmed, "\\track") {
		return true
	}
	return false
}

// ParseTrackArgs tokenizes everything after the track binary name into argv,
// honoring shell quoting.
func ParseTrackArgs(cmd string) []string {
	trimmed := strings.TrimSpace(cmd)

	idx := strings.Index(trimmed, "track ")
	if idx < 0 {
		return nil
	}
	rest := trimmed[idx+len("track "):]

	args, err := shlex.Split(rest)
	if err != nil {
		return strings.Fields(rest)
	}
	return args
}
