// Package trackcmd implements the track command surface the agent drives.
// Commands are parsed from an argv slice and executed against the capability
// provider; output is returned as a string so it can be fed back to the agent
// as a tool result. Command failures are results to score, not session errors.
package trackcmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fpt/go-trackeval/pkg/tracker"
)

// OutputFormat selects between human-readable and machine-readable output.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// RawCaller dispatches a capability call by method name. It covers commands
// with no typed tracker operation, such as cache inspection.
type RawCaller interface {
	Call(ctx context.Context, method string, args map[string]string, body string) (json.RawMessage, error)
}

// Executor runs track commands against a tracker backend.
type Executor struct {
	tracker        tracker.IssueTracker
	raw            RawCaller
	defaultProject string
}

// NewExecutor builds an executor. raw may be nil, in which case cache
// commands report an error instead of calling the backend.
func NewExecutor(t tracker.IssueTracker, raw RawCaller, defaultProject string) *Executor {
	return &Executor{tracker: t, raw: raw, defaultProject: defaultProject}
}

// Execute parses and runs one command. The returned bool reports failure;
// failed commands return their error text as output so the agent sees what
// went wrong and can recover.
func (e *Executor) Execute(ctx context.Context, args []string) (string, bool) {
	var buf bytes.Buffer

	root := e.newRootCommand(&buf)
	root.SetArgs(args)
	root.SetOut(&buf)
	root.SetErr(&buf)

	if err := root.ExecuteContext(ctx); err != nil {
		msg := strings.TrimSpace(buf.String())
		if msg != "" {
			return msg + "\nError: " + err.Error(), true
		}
		return "Error: " + err.Error(), true
	}

	return strings.TrimRight(buf.String(), "\n"), false
}

func (e *Executor) newRootCommand(out *bytes.Buffer) *cobra.Command {
	var format string

	root := &cobra.Command{
		Use:           "track",
		Short:         "Issue tracker CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&format, "output", "o", "text", "output format (text or json)")

	ofmt := func() OutputFormat {
		if format == "json" {
			return FormatJSON
		}
		return FormatText
	}

	root.AddCommand(e.newIssueCommand(out, ofmt))
	root.AddCommand(e.newProjectCommand(out, ofmt))
	root.AddCommand(e.newTagsCommand(out, ofmt))
	root.AddCommand(e.newCacheCommand(out, ofmt))

	return root
}

func (e *Executor) newIssueCommand(out *bytes.Buffer, ofmt func() OutputFormat) *cobra.Command {
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Work with issues",
	}

	issue.AddCommand(&cobra.Command{
		Use:   "get <ID>",
		Short: "Get an issue by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iss, err := e.tracker.GetIssue(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to fetch issue %q", args[0])
			}
			return renderIssue(out, iss, ofmt())
		},
	})

	var limit, skip int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := e.tracker.SearchIssues(cmd.Context(), args[0], limit, skip)
			if err != nil {
				return errors.Wrap(err, "failed to search issues")
			}
			return renderIssueList(out, issues, ofmt())
		},
	}
	search.Flags().IntVar(&limit, "limit", 10, "maximum results")
	search.Flags().IntVar(&skip, "skip", 0, "results to skip")
	issue.AddCommand(search)

	var project, summary, description, state, priority string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a new issue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proj := project
			if proj == "" {
				proj = e.defaultProject
			}
			if proj == "" {
				return errors.New("project is required: use -p/--project")
			}
			if summary == "" {
				return errors.New("summary is required: use -s/--summary")
			}
			iss, err := e.tracker.CreateIssue(cmd.Context(), &tracker.CreateIssue{
				Project:     proj,
				Summary:     summary,
				Description: description,
				State:       state,
				Priority:    priority,
			})
			if err != nil {
				return errors.Wrap(err, "failed to create issue")
			}
			return renderIssue(out, iss, ofmt())
		},
	}
	create.Flags().StringVarP(&project, "project", "p", "", "project ID")
	create.Flags().StringVarP(&summary, "summary", "s", "", "issue summary")
	create.Flags().StringVarP(&description, "description", "d", "", "issue description")
	create.Flags().StringVar(&state, "state", "", "initial state")
	create.Flags().StringVar(&priority, "priority", "", "priority")
	issue.AddCommand(create)

	var upSummary, upState, upPriority, upAssignee string
	update := &cobra.Command{
		Use:   "update <ID>",
		Short: "Update an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := &tracker.UpdateIssue{}
			if cmd.Flags().Changed("summary") {
				upd.Summary = &upSummary
			}
			if cmd.Flags().Changed("state") {
				upd.State = &upState
			}
			if cmd.Flags().Changed("priority") {
				upd.Priority = &upPriority
			}
			if cmd.Flags().Changed("assignee") {
				upd.Assignee = &upAssignee
			}
			if upd.Summary == nil && upd.State == nil && upd.Priority == nil && upd.Assignee == nil {
				return errors.New("at least one field to update is required")
			}
			iss, err := e.tracker.UpdateIssue(cmd.Context(), args[0], upd)
			if err != nil {
				return errors.Wrapf(err, "failed to update issue %q", args[0])
			}
			return renderIssue(out, iss, ofmt())
		},
	}
	update.Flags().StringVar(&upSummary, "summary", "", "new summary")
	update.Flags().StringVar(&upState, "state", "", "new state")
	update.Flags().StringVar(&upPriority, "priority", "", "new priority")
	update.Flags().StringVar(&upAssignee, "assignee", "", "new assignee")
	issue.AddCommand(update)

	var message string
	comment := &cobra.Command{
		Use:   "comment <ID>",
		Short: "Add a comment to an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return errors.New("message is required: use -m/--message")
			}
			c, err := e.tracker.AddComment(cmd.Context(), args[0], message)
			if err != nil {
				return errors.Wrapf(err, "failed to add comment to issue %q", args[0])
			}
			return renderCommentAdded(out, args[0], c, ofmt())
		},
	}
	comment.Flags().StringVarP(&message, "message", "m", "", "comment text")
	issue.AddCommand(comment)

	issue.AddCommand(&cobra.Command{
		Use:   "comments <ID>",
		Short: "List comments on an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comments, err := e.tracker.GetComments(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to get comments for issue %q", args[0])
			}
			return renderComments(out, args[0], comments, ofmt())
		},
	})

	var linkType string
	link := &cobra.Command{
		Use:   "link <source> <target>",
		Short: "Link two issues",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := linkDescription(linkType)
			if err != nil {
				return err
			}
			if err := e.tracker.LinkIssues(cmd.Context(), args[0], args[1], linkType); err != nil {
				return errors.Wrapf(err, "failed to link %s to %s", args[0], args[1])
			}
			return renderLink(out, args[0], args[1], linkType, desc, ofmt())
		},
	}
	link.Flags().StringVarP(&linkType, "type", "t", "relates", "link type")
	issue.AddCommand(link)

	issue.AddCommand(&cobra.Command{
		Use:   "delete <ID>",
		Short: "Delete an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.tracker.DeleteIssue(cmd.Context(), args[0]); err != nil {
				return errors.Wrapf(err, "failed to delete issue %q", args[0])
			}
			return renderDeleted(out, args[0], ofmt())
		},
	})

	return issue
}

func (e *Executor) newProjectCommand(out *bytes.Buffer, ofmt func() OutputFormat) *cobra.Command {
	project := &cobra.Command{
		Use:   "project",
		Short: "Work with projects",
	}

	project.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := e.tracker.ListProjects(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to list projects")
			}
			return renderProjects(out, projects, ofmt())
		},
	})

	project.AddCommand(&cobra.Command{
		Use:   "get <ID>",
		Short: "Get project details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := e.tracker.GetProject(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to fetch project %q", args[0])
			}
			return renderProject(out, p, ofmt())
		},
	})

	project.AddCommand(&cobra.Command{
		Use:   "fields <ID>",
		Short: "List custom fields for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := e.tracker.GetProjectFields(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to fetch fields for project %q", args[0])
			}
			return renderFields(out, args[0], fields, ofmt())
		},
	})

	return project
}

func (e *Executor) newTagsCommand(out *bytes.Buffer, ofmt func() OutputFormat) *cobra.Command {
	tags := &cobra.Command{
		Use:   "tags",
		Short: "Work with tags",
	}

	tags.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := e.tracker.ListTags(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to list tags")
			}
			return renderTags(out, list, ofmt())
		},
	})

	return tags
}

func (e *Executor) newCacheCommand(out *bytes.Buffer, ofmt func() OutputFormat) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Inspect cached tracker context",
	}

	cache.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show cached context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.raw == nil {
				return errors.New("cache is not available")
			}
			data, err := e.raw.Call(cmd.Context(), "cache_show", map[string]string{}, "")
			if err != nil {
				return errors.Wrap(err, "failed to read cache")
			}
			return renderRaw(out, data, ofmt())
		},
	})

	return cache
}

// linkDescription validates a user-facing link type and returns its
// human-readable phrasing.
func linkDescription(linkType string) (string, error) {
	switch strings.ToLower(linkType) {
	case "relates":
		return "relates to", nil
	case "depends":
		return "depends on", nil
	case "required", "required-for":
		return "is required for", nil
	case "duplicates", "duplicate":
		return "duplicates", nil
	case "subtask", "subtask-of":
		return "is subtask of", nil
	case "parent", "parent-of":
		return "is parent of", nil
	default:
		return "", fmt.Errorf("unknown link type %q: valid types are relates, depends, required, duplicates, subtask, parent", linkType)
	}
}
