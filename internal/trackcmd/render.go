package trackcmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/fpt/go-trackeval/pkg/tracker"
)

func renderJSON(out *bytes.Buffer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	out.Write(data)
	out.WriteByte('\n')
	return nil
}

func renderIssue(out *bytes.Buffer, issue *tracker.Issue, format OutputFormat) error {
	if format == FormatJSON {
		return renderJSON(out, issue)
	}

	fmt.Fprintf(out, "%s  %s\n", color.New(color.FgCyan, color.Bold).Sprint(issue.ID), issue.Summary)
	if issue.State != "" {
		fmt.Fprintf(out, "  State: %s", issue.State)
		if issue.Priority != "" {
			fmt.Fprintf(out, "  Priority: %s", issue.Priority)
		}
		fmt.Fprintln(out)
	}
	if issue.Project != "" {
		fmt.Fprintf(out, "  Project: %s\n", issue.Project)
	}
	if issue.Assignee != "" {
		fmt.Fprintf(out, "  Assignee: %s\n", issue.Assignee)
	}
	if len(issue.Tags) > 0 {
		fmt.Fprintf(out, "  Tags: %v\n", issue.Tags)
	}
	if issue.Description != "" {
		fmt.Fprintf(out, "\n%s\n", issue.Description)
	}
	return nil
}

func renderIssueList(out *bytes.Buffer, issues []tracker.Issue, format OutputFormat) error {
	if format == FormatJSON {
		if issues == nil {
			issues = []tracker.Issue{}
		}
		return renderJSON(out, issues)
	}

	if len(issues) == 0 {
		fmt.Fprintln(out, "No issues found")
		return nil
	}
	fmt.Fprintf(out, "Found %d issues:\n", len(issues))
	for i := range issues {
		issue := &issues[i]
		fmt.Fprintf(out, "  %s  %s", color.CyanString(issue.ID), issue.Summary)
		if issue.State != "" {
			fmt.Fprintf(out, " [%s]", issue.State)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func renderCommentAdded(out *bytes.Buffer, issueID string, comment *tracker.Comment, format OutputFormat) error {
	if format == FormatJSON {
		return renderJSON(out, comment)
	}

	fmt.Fprintf(out, "Comment added to %s:\n", color.New(color.FgCyan, color.Bold).Sprint(issueID))
	fmt.Fprintf(out, "  %s\n", comment.Text)
	return nil
}

func renderComments(out *bytes.Buffer, issueID string, comments []tracker.Comment, format OutputFormat) error {
	if format == FormatJSON {
		if comments == nil {
			comments = []tracker.Comment{}
		}
		return renderJSON(out, comments)
	}

	id := color.New(color.FgCyan, color.Bold).Sprint(issueID)
	if len(comments) == 0 {
		fmt.Fprintf(out, "No comments on %s\n", id)
		return nil
	}
	fmt.Fprintf(out, "Comments on %s (%d):\n", id, len(comments))
	for i := range comments {
		c := &comments[i]
		author := c.Author
		if author == "" {
			author = "unknown"
		}
		fmt.Fprintf(out, "\n  [%s] %s wrote:\n", c.CreatedAt.Format("2006-01-02 15:04"), color.CyanString(author))
		fmt.Fprintf(out, "    %s\n", c.Text)
	}
	return nil
}

func renderLink(out *bytes.Buffer, source, target, linkType, description string, format OutputFormat) error {
	if format == FormatJSON {
		return renderJSON(out, map[string]any{
			"success":  true,
			"source":   source,
			"target":   target,
			"linkType": linkType,
		})
	}

	fmt.Fprintf(out, "%s %s %s\n",
		color.New(color.FgCyan, color.Bold).Sprint(source),
		description,
		color.New(color.FgCyan, color.Bold).Sprint(target))
	return nil
}

func renderDeleted(out *bytes.Buffer, id string, format OutputFormat) error {
	if format == FormatJSON {
		return renderJSON(out, map[string]any{"success": true, "message": "Issue deleted"})
	}

	fmt.Fprintf(out, "Issue %s deleted\n", color.New(color.FgCyan, color.Bold).Sprint(id))
	return nil
}

func renderProject(out *bytes.Buffer, p *tracker.Project, format OutputFormat) error {
	if format == FormatJSON {
		return renderJSON(out, p)
	}

	fmt.Fprintf(out, "%s  %s\n", color.New(color.FgCyan, color.Bold).Sprint(p.ShortName), p.Name)
	if p.Description != "" {
		fmt.Fprintf(out, "  %s\n", p.Description)
	}
	return nil
}

func renderProjects(out *bytes.Buffer, projects []tracker.Project, format OutputFormat) error {
	if format == FormatJSON {
		if projects == nil {
			projects = []tracker.Project{}
		}
		return renderJSON(out, projects)
	}

	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects found")
		return nil
	}
	fmt.Fprintf(out, "Projects (%d):\n", len(projects))
	for i := range projects {
		p := &projects[i]
		fmt.Fprintf(out, "  %s  %s\n", color.CyanString(p.ShortName), p.Name)
	}
	return nil
}

func renderFields(out *bytes.Buffer, projectID string, fields []tracker.CustomField, format OutputFormat) error {
	if format == FormatJSON {
		if fields == nil {
			fields = []tracker.CustomField{}
		}
		return renderJSON(out, fields)
	}

	if len(fields) == 0 {
		fmt.Fprintf(out, "No custom fields for %s\n", projectID)
		return nil
	}
	fmt.Fprintf(out, "Custom fields for %s:\n", color.CyanString(projectID))
	for i := range fields {
		f := &fields[i]
		fmt.Fprintf(out, "  %s (%s)", f.Name, f.Type)
		if len(f.Values) > 0 {
			fmt.Fprintf(out, ": %v", f.Values)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func renderTags(out *bytes.Buffer, tags []tracker.Tag, format OutputFormat) error {
	if format == FormatJSON {
		if tags == nil {
			tags = []tracker.Tag{}
		}
		return renderJSON(out, tags)
	}

	if len(tags) == 0 {
		fmt.Fprintln(out, "No tags found")
		return nil
	}
	fmt.Fprintf(out, "Tags (%d):\n", len(tags))
	for i := range tags {
		fmt.Fprintf(out, "  %s\n", tags[i].Name)
	}
	return nil
}

// renderRaw prints a raw capability payload. JSON mode passes it through;
// text mode pretty-prints it.
func renderRaw(out *bytes.Buffer, data json.RawMessage, format OutputFormat) error {
	if format == FormatJSON {
		out.Write(data)
		out.WriteByte('\n')
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		out.Write(data)
		out.WriteByte('\n')
		return nil
	}
	return renderJSON(out, v)
}
