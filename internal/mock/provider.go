package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fpt/go-trackeval/pkg/logger"
	"github.com/fpt/go-trackeval/pkg/tracker"
)

// APIError simulates a backend error response injected by the manifest.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
}

// Provider resolves capability calls against the scenario manifest and logs
// every call. It implements tracker.IssueTracker so command execution is
// written against the capability boundary, not the mock.
type Provider struct {
	scenarioDir string
	manifest    *Manifest

	mu     sync.Mutex
	counts map[string]int

	log    *CallLog
	logger *logger.Logger
}

var _ tracker.IssueTracker = (*Provider)(nil)

// NewProvider loads the manifest from a scenario directory and opens its
// call log for appending. State is scoped to the directory, never shared,
// so parallel scenario runs stay isolated.
func NewProvider(scenarioDir string) (*Provider, error) {
	manifest, err := LoadManifest(filepath.Join(scenarioDir, "manifest.toml"))
	if err != nil {
		return nil, err
	}

	log, err := OpenCallLog(scenarioDir)
	if err != nil {
		return nil, err
	}

	return &Provider{
		scenarioDir: scenarioDir,
		manifest:    manifest,
		counts:      make(map[string]int),
		log:         log,
		logger:      logger.NewComponentLogger("mock"),
	}, nil
}

// Close releases the call log.
func (p *Provider) Close() error { return p.log.Close() }

// Manifest exposes the loaded manifest, e.g. for vocabulary checks.
func (p *Provider) Manifest() *Manifest { return p.manifest }

// CallCount returns the total number of calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.counts {
		total += n
	}
	return total
}

// Call resolves one capability call against the manifest, logs it, and
// returns the raw response payload. Every call is logged before returning,
// success or not.
func (p *Provider) Call(ctx context.Context, method string, args map[string]string, body string) (json.RawMessage, error) {
	start := time.Now()

	p.mu.Lock()
	key := RequestKey(method, args)
	mapping, filename, findErr := p.manifest.FindResponse(method, args, body, p.counts)
	p.counts[key]++
	p.mu.Unlock()

	if findErr != nil {
		status := 404
		if _, exhausted := findErr.(*SequenceExhaustedError); exhausted {
			status = 410
		}
		p.logCall(method, args, "", findErr.Error(), status, start)
		return nil, findErr
	}

	if mapping.DelayMS > 0 {
		if err := sleepCtx(ctx, time.Duration(mapping.DelayMS)*time.Millisecond); err != nil {
			p.logCall(method, args, "", err.Error(), 0, start)
			return nil, err
		}
	}

	data, err := p.readResponse(filename)

	if mapping.Status >= 400 {
		msg := fmt.Sprintf("HTTP %d", mapping.Status)
		if err == nil {
			var payload struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
				msg = payload.Message
			}
		}
		p.logCall(method, args, "", msg, mapping.Status, start)
		return nil, &APIError{Status: mapping.Status, Message: msg}
	}

	if err != nil {
		p.logCall(method, args, "", err.Error(), 0, start)
		return nil, err
	}

	p.logCall(method, args, filename, "", mapping.Status, start)
	return data, nil
}

func (p *Provider) readResponse(filename string) (json.RawMessage, error) {
	path := filepath.Join(p.scenarioDir, "responses", filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read mock response %s", path)
	}
	return data, nil
}

func (p *Provider) logCall(method string, args map[string]string, file, errMsg string, status int, start time.Time) {
	entry := CallLogEntry{
		Timestamp:    time.Now().UTC(),
		Method:       method,
		Args:         args,
		ResponseFile: file,
		Error:        errMsg,
		Status:       status,
		DurationMS:   time.Since(start).Milliseconds(),
	}
	if err := p.log.Append(entry); err != nil {
		p.logger.Error("failed to append call log entry", "method", method, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Provider) callInto(ctx context.Context, method string, args map[string]string, body string, out any) error {
	data, err := p.Call(ctx, method, args, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "failed to parse mock response for %s", method)
	}
	return nil
}

// GetIssue implements tracker.IssueTracker.
func (p *Provider) GetIssue(ctx context.Context, id string) (*tracker.Issue, error) {
	var issue tracker.Issue
	args := map[string]string{"id": id}
	if err := p.callInto(ctx, "get_issue", args, "", &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// SearchIssues implements tracker.IssueTracker.
func (p *Provider) SearchIssues(ctx context.Context, query string, limit, skip int) ([]tracker.Issue, error) {
	var issues []tracker.Issue
	args := map[string]string{
		"query": query,
		"limit": strconv.Itoa(limit),
		"skip":  strconv.Itoa(skip),
	}
	if err := p.callInto(ctx, "search_issues", args, "", &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// CreateIssue implements tracker.IssueTracker.
func (p *Provider) CreateIssue(ctx context.Context, create *tracker.CreateIssue) (*tracker.Issue, error) {
	var issue tracker.Issue
	args := map[string]string{
		"project": create.Project,
		"summary": create.Summary,
	}
	if create.Description != "" {
		args["description"] = create.Description
	}
	if err := p.callInto(ctx, "create_issue", args, create.Description, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// UpdateIssue implements tracker.IssueTracker. Updated fields are recorded as
// arguments so outcome checks can verify what was set.
func (p *Provider) UpdateIssue(ctx context.Context, id string, update *tracker.UpdateIssue) (*tracker.Issue, error) {
	args := map[string]string{"id": id}
	if update.Summary != nil {
		args["summary"] = *update.Summary
	}
	if update.State != nil {
		args["state"] = *update.State
	}
	if update.Priority != nil {
		args["priority"] = *update.Priority
	}
	if update.Assignee != nil {
		args["assignee"] = *update.Assignee
	}

	var issue tracker.Issue
	if err := p.callInto(ctx, "update_issue", args, "", &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// DeleteIssue implements tracker.IssueTracker.
func (p *Provider) DeleteIssue(ctx context.Context, id string) error {
	args := map[string]string{"id": id}
	return p.callInto(ctx, "delete_issue", args, "", nil)
}

// LinkIssues implements tracker.IssueTracker.
func (p *Provider) LinkIssues(ctx context.Context, source, target, linkType string) error {
	args := map[string]string{
		"source":    source,
		"target":    target,
		"link_type": linkType,
	}
	return p.callInto(ctx, "link_issues", args, "", nil)
}

// AddComment implements tracker.IssueTracker. The comment text doubles as the
// request body for conditional manifest matching.
func (p *Provider) AddComment(ctx context.Context, issueID, text string) (*tracker.Comment, error) {
	var comment tracker.Comment
	args := map[string]string{
		"issue_id": issueID,
		"text":     text,
	}
	if err := p.callInto(ctx, "add_comment", args, text, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// GetComments implements tracker.IssueTracker.
func (p *Provider) GetComments(ctx context.Context, issueID string) ([]tracker.Comment, error) {
	var comments []tracker.Comment
	args := map[string]string{"issue_id": issueID}
	if err := p.callInto(ctx, "get_comments", args, "", &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// ListProjects implements tracker.IssueTracker.
func (p *Provider) ListProjects(ctx context.Context) ([]tracker.Project, error) {
	var projects []tracker.Project
	if err := p.callInto(ctx, "list_projects", map[string]string{}, "", &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject implements tracker.IssueTracker.
func (p *Provider) GetProject(ctx context.Context, id string) (*tracker.Project, error) {
	var project tracker.Project
	args := map[string]string{"id": id}
	if err := p.callInto(ctx, "get_project", args, "", &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProjectFields implements tracker.IssueTracker.
func (p *Provider) GetProjectFields(ctx context.Context, projectID string) ([]tracker.CustomField, error) {
	var fields []tracker.CustomField
	args := map[string]string{"project_id": projectID}
	if err := p.callInto(ctx, "get_project_custom_fields", args, "", &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ListTags implements tracker.IssueTracker.
func (p *Provider) ListTags(ctx context.Context) ([]tracker.Tag, error) {
	var tags []tracker.Tag
	if err := p.callInto(ctx, "list_tags", map[string]string{}, "", &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
