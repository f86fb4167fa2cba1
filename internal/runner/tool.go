package runner

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// trackToolName is the single tool exposed to in-process agents.
const trackToolName = "track"

const trackToolDescription = `Execute a track CLI command to interact with the issue tracker.

The track CLI supports the following commands:
- issue get <ID> - Get an issue by ID (e.g., track issue get DEMO-1)
- issue search <query> - Search for issues
- issue create -p <project> -s <summary> [-d <description>] [--state <state>] [--priority <priority>]
- issue update <ID> [--summary <summary>] [--state <state>] [--priority <priority>]
- issue comment <ID> -m <message> - Add a comment to an issue
- issue comments <ID> - List comments on an issue
- issue link <source> <target> [-t <type>] - Link two issues
- project list - List all projects
- project get <ID> - Get project details
- project fields <ID> - List custom fields for a project
- tags list - List all tags
- cache show - Show cached context

Use -o json for machine-readable output when you need to parse results.
Common issue states: Open, In Progress, Done
Common priorities: Low, Normal, High, Critical`

// TrackInput is the input contract of the track tool: one argv slice, no
// shell interpretation.
type TrackInput struct {
	Args []string `json:"args" jsonschema:"required,description=Command line arguments to pass to track"`
}

// trackInputSchema reflects the tool input schema as a plain map for the
// model SDKs, both of which take schemas as loose JSON.
func trackInputSchema() map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&TrackInput{})

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{
			"type":     "object",
			"required": []string{"args"},
			"properties": map[string]any{
				"args": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
		}
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// ParseTrackInput decodes a tool invocation payload into argv.
func ParseTrackInput(input json.RawMessage) ([]string, error) {
	var parsed TrackInput
	if err := json.Unmarshal(input, &parsed); err != nil {
		return nil, errors.Wrap(err, "invalid track tool input")
	}
	if parsed.Args == nil {
		return nil, errors.New("missing 'args' field")
	}
	return parsed.Args, nil
}
