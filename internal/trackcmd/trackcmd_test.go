package trackcmd

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fpt/go-trackeval/pkg/tracker"
)

// fakeTracker records calls and returns canned data.
type fakeTracker struct {
	calls   []string
	created *tracker.CreateIssue
	updated *tracker.UpdateIssue
}

func (f *fakeTracker) record(name string) { f.calls = append(f.calls, name) }

func (f *fakeTracker) GetIssue(ctx context.Context, id string) (*tracker.Issue, error) {
	f.record("get_issue")
	return &tracker.Issue{ID: id, Summary: "Login fails", State: "Open", Priority: "Major"}, nil
}

func (f *fakeTracker) SearchIssues(ctx context.Context, query string, limit, skip int) ([]tracker.Issue, error) {
	f.record("search_issues")
	return []tracker.Issue{
		{ID: "DEMO-1", Summary: "Login fails", State: "Open"},
		{ID: "DEMO-2", Summary: "Signup broken", State: "Open"},
	}, nil
}

func (f *fakeTracker) CreateIssue(ctx context.Context, create *tracker.CreateIssue) (*tracker.Issue, error) {
	f.record("create_issue")
	f.created = create
	return &tracker.Issue{ID: "DEMO-42", Summary: create.Summary, Project: create.Project}, nil
}

func (f *fakeTracker) UpdateIssue(ctx context.Context, id string, update *tracker.UpdateIssue) (*tracker.Issue, error) {
	f.record("update_issue")
	f.updated = update
	return &tracker.Issue{ID: id, Summary: "Login fails"}, nil
}

func (f *fakeTracker) DeleteIssue(ctx context.Context, id string) error {
	f.record("delete_issue")
	return nil
}

func (f *fakeTracker) LinkIssues(ctx context.Context, source, target, linkType string) error {
	f.record("link_issues")
	return nil
}

func (f *fakeTracker) AddComment(ctx context.Context, issueID, text string) (*tracker.Comment, error) {
	f.record("add_comment")
	return &tracker.Comment{ID: "c1", IssueID: issueID, Text: text, CreatedAt: time.Now()}, nil
}

func (f *fakeTracker) GetComments(ctx context.Context, issueID string) ([]tracker.Comment, error) {
	f.record("get_comments")
	return nil, nil
}

func (f *fakeTracker) ListProjects(ctx context.Context) ([]tracker.Project, error) {
	f.record("list_projects")
	return []tracker.Project{{ID: "0-0", ShortName: "DEMO", Name: "Demo Project"}}, nil
}

func (f *fakeTracker) GetProject(ctx context.Context, id string) (*tracker.Project, error) {
	f.record("get_project")
	return &tracker.Project{ID: id, ShortName: "DEMO", Name: "Demo Project"}, nil
}

func (f *fakeTracker) GetProjectFields(ctx context.Context, projectID string) ([]tracker.CustomField, error) {
	f.record("get_project_custom_fields")
	return []tracker.CustomField{{Name: "State", Type: "state", Values: []string{"Open", "Done"}}}, nil
}

func (f *fakeTracker) ListTags(ctx context.Context) ([]tracker.Tag, error) {
	f.record("list_tags")
	return []tracker.Tag{{ID: "t1", Name: "regression"}}, nil
}

type fakeRaw struct {
	called bool
}

func (f *fakeRaw) Call(ctx context.Context, method string, args map[string]string, body string) (json.RawMessage, error) {
	f.called = true
	return json.RawMessage(`{"projects": ["DEMO"]}`), nil
}

func exec(t *testing.T, args ...string) (string, bool, *fakeTracker) {
	t.Helper()
	ft := &fakeTracker{}
	e := NewExecutor(ft, &fakeRaw{}, "")
	out, isErr := e.Execute(context.Background(), args)
	return out, isErr, ft
}

func TestIssueGet(t *testing.T) {
	out, isErr, ft := exec(t, "issue", "get", "DEMO-1")
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.Contains(out, "DEMO-1") || !strings.Contains(out, "Login fails") {
		t.Errorf("unexpected output: %s", out)
	}
	if len(ft.calls) != 1 || ft.calls[0] != "get_issue" {
		t.Errorf("unexpected calls: %v", ft.calls)
	}
}

func TestIssueGetJSON(t *testing.T) {
	out, isErr, _ := exec(t, "issue", "get", "DEMO-1", "-o", "json")
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	var issue tracker.Issue
	if err := json.Unmarshal([]byte(out), &issue); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out)
	}
	if issue.ID != "DEMO-1" {
		t.Errorf("unexpected issue: %+v", issue)
	}
}

func TestIssueSearch(t *testing.T) {
	out, isErr, _ := exec(t, "issue", "search", "state: Open", "--limit", "5")
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.Contains(out, "Found 2 issues") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestIssueCreate(t *testing.T) {
	out, isErr, ft := exec(t, "issue", "create", "-p", "DEMO", "-s", "New bug", "--priority", "High")
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if ft.created == nil {
		t.Fatal("create was not called")
	}
	if ft.created.Project != "DEMO" || ft.created.Summary != "New bug" || ft.created.Priority != "High" {
		t.Errorf("unexpected create payload: %+v", ft.created)
	}
}

func TestIssueCreateRequiresProject(t *testing.T) {
	out, isErr, ft := exec(t, "issue", "create", "-s", "New bug")
	if !isErr {
		t.Fatal("expected error for missing project")
	}
	if !strings.Contains(out, "project is required") {
		t.Errorf("unexpected message: %s", out)
	}
	if len(ft.calls) != 0 {
		t.Errorf("backend should not be called: %v", ft.calls)
	}
}

func TestIssueCreateDefaultProject(t *testing.T) {
	ft := &fakeTracker{}
	e := NewExecutor(ft, nil, "DEMO")
	_, isErr := e.Execute(context.Background(), []string{"issue", "create", "-s", "New bug"})
	if isErr {
		t.Fatal("default project should satisfy the project requirement")
	}
	if ft.created.Project != "DEMO" {
		t.Errorf("unexpected project: %s", ft.created.Project)
	}
}

func TestIssueUpdate(t *testing.T) {
	_, isErr, ft := exec(t, "issue", "update", "DEMO-1", "--state", "Done")
	if isErr {
		t.Fatal("unexpected error")
	}
	if ft.updated == nil || ft.updated.State == nil || *ft.updated.State != "Done" {
		t.Errorf("unexpected update payload: %+v", ft.updated)
	}
	if ft.updated.Summary != nil {
		t.Error("summary should not be set")
	}
}

func TestIssueUpdateRequiresField(t *testing.T) {
	out, isErr, _ := exec(t, "issue", "update", "DEMO-1")
	if !isErr {
		t.Fatal("expected error for empty update")
	}
	if !strings.Contains(out, "at least one field") {
		t.Errorf("unexpected message: %s", out)
	}
}

func TestIssueComment(t *testing.T) {
	out, isErr, ft := exec(t, "issue", "comment", "DEMO-1", "-m", "Working on this")
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.Contains(out, "Comment added to DEMO-1") {
		t.Errorf("unexpected output: %s", out)
	}
	if len(ft.calls) != 1 || ft.calls[0] != "add_comment" {
		t.Errorf("unexpected calls: %v", ft.calls)
	}
}

func TestIssueLinkRejectsUnknownType(t *testing.T) {
	out, isErr, ft := exec(t, "issue", "link", "DEMO-1", "DEMO-2", "-t", "blocks")
	if !isErr {
		t.Fatal("expected error for unknown link type")
	}
	if !strings.Contains(out, "unknown link type") {
		t.Errorf("unexpected message: %s", out)
	}
	if len(ft.calls) != 0 {
		t.Errorf("backend should not be called: %v", ft.calls)
	}
}

func TestProjectList(t *testing.T) {
	out, isErr, _ := exec(t, "project", "list")
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.Contains(out, "DEMO") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestTagsList(t *testing.T) {
	out, isErr, _ := exec(t, "tags", "list")
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.Contains(out, "regression") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestCacheShow(t *testing.T) {
	ft := &fakeTracker{}
	raw := &fakeRaw{}
	e := NewExecutor(ft, raw, "")
	out, isErr := e.Execute(context.Background(), []string{"cache", "show"})
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !raw.called {
		t.Error("cache show should go through the raw caller")
	}
}

func TestCacheShowUnavailable(t *testing.T) {
	e := NewExecutor(&fakeTracker{}, nil, "")
	out, isErr := e.Execute(context.Background(), []string{"cache", "show"})
	if !isErr {
		t.Fatal("expected error when cache is unavailable")
	}
	if !strings.Contains(out, "cache is not available") {
		t.Errorf("unexpected message: %s", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, isErr, _ := exec(t, "frobnicate")
	if !isErr {
		t.Fatal("expected error for unknown command")
	}
}
