package tracker

import "time"

// Issue is a single issue in a tracker project.
type Issue struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Project     string    `json:"project"`
	State       string    `json:"state,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Assignee    string    `json:"assignee,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Project is a tracker project.
type Project struct {
	ID          string `json:"id"`
	ShortName   string `json:"short_name"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Comment is a comment on an issue.
type Comment struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id,omitempty"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Tag is an issue tag.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CustomField describes a project-level custom field and its allowed values.
type CustomField struct {
	Name   string   `json:"name"`
	Type   string   `json:"type,omitempty"`
	Values []string `json:"values,omitempty"`
}

// CreateIssue carries the fields needed to create a new issue.
type CreateIssue struct {
	Project     string `json:"project"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	State       string `json:"state,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// UpdateIssue carries the fields of an issue update. Nil fields are untouched.
type UpdateIssue struct {
	Summary  *string `json:"summary,omitempty"`
	State    *string `json:"state,omitempty"`
	Priority *string `json:"priority,omitempty"`
	Assignee *string `json:"assignee,omitempty"`
}
