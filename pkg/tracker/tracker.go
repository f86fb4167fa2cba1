// Package tracker defines the capability interface an issue tracker backend
// exposes, along with the data shapes those operations exchange. Backends are
// external; the harness only consumes this boundary.
package tracker

import "context"

// IssueTracker is the operation surface a tracker backend implements.
type IssueTracker interface {
	GetIssue(ctx context.Context, id string) (*Issue, error)
	SearchIssues(ctx context.Context, query string, limit, skip int) ([]Issue, error)
	CreateIssue(ctx context.Context, create *CreateIssue) (*Issue, error)
	UpdateIssue(ctx context.Context, id string, update *UpdateIssue) (*Issue, error)
	DeleteIssue(ctx context.Context, id string) error
	LinkIssues(ctx context.Context, source, target, linkType string) error

	AddComment(ctx context.Context, issueID, text string) (*Comment, error)
	GetComments(ctx context.Context, issueID string) ([]Comment, error)

	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectFields(ctx context.Context, projectID string) ([]CustomField, error)

	ListTags(ctx context.Context) ([]Tag, error)
}
