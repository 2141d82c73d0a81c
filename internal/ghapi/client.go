// Package ghapi wraps the GitHub REST API for the relay: cached reads,
// cache-invalidating writes, and repository automation (auto-labeling,
// format advice, review submission).
package ghapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v72/github"

	"github.com/chimeyao/ghrelay/internal/cache"
)

// Cache namespaces. Read results live under NSGitHubAPI and are dropped
// wholesale after any write.
const (
	NSGitHubAPI     = "github_api"
	NSSearchResults = "search_results"
	NSPermissions   = "permissions"
	NSContextStats  = "context_stats"
)

// Client wraps go-github with a TTL cache. Safe for concurrent use.
type Client struct {
	gh    *github.Client
	cache *cache.Cache
}

// NewClient builds an authenticated client. proxyURL is optional.
// Network-class failures are retried once after a short delay; see
// retryTransport.
func NewClient(token, proxyURL string, c *cache.Cache) (*Client, error) {
	var base http.RoundTripper
	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		base = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}
	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: newRetryTransport(base),
	}

	gh := github.NewClient(httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh, cache: c}, nil
}

// Raw exposes the underlying go-github client.
func (c *Client) Raw() *github.Client { return c.gh }

func (c *Client) cached(key string) (interface{}, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *Client) store(key string, v interface{}) {
	if c.cache != nil {
		c.cache.Set(key, v)
	}
}

// invalidate drops all cached API reads after a mutation.
func (c *Client) invalidate() {
	if c.cache != nil {
		c.cache.ClearNamespace(NSGitHubAPI)
	}
}

// --- Read operations (cached) ---

// SearchCode searches code within one repository.
func (c *Client) SearchCode(ctx context.Context, owner, repo, query, fileExt, path string, limit int) (*github.CodeSearchResult, error) {
	key := cache.Key(NSSearchResults, "code", owner, repo, query, fileExt, path, limit)
	if v, ok := c.cached(key); ok {
		return v.(*github.CodeSearchResult), nil
	}

	q := fmt.Sprintf("%s repo:%s/%s", query, owner, repo)
	if fileExt != "" {
		q += " extension:" + fileExt
	}
	if path != "" {
		q += " path:" + path
	}
	opts := &github.SearchOptions{
		Sort:        "indexed",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: min(limit, 100)},
	}
	result, _, err := c.gh.Search.Code(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("search code: %w", err)
	}
	c.store(key, result)
	return result, nil
}

// GetFileContent fetches one file's content at a ref.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (*github.RepositoryContent, error) {
	key := cache.Key(NSGitHubAPI, "file", owner, repo, path, ref)
	if v, ok := c.cached(key); ok {
		return v.(*github.RepositoryContent), nil
	}

	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("get file content: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("get file content: %s is a directory", path)
	}
	c.store(key, file)
	return file, nil
}

// ListFiles lists a directory at a ref.
func (c *Client) ListFiles(ctx context.Context, owner, repo, path, ref string) ([]*github.RepositoryContent, error) {
	key := cache.Key(NSGitHubAPI, "ls", owner, repo, path, ref)
	if v, ok := c.cached(key); ok {
		return v.([]*github.RepositoryContent), nil
	}

	file, dir, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if file != nil {
		dir = []*github.RepositoryContent{file}
	}
	c.store(key, dir)
	return dir, nil
}

// ListPullRequests lists PRs with state/sort filters.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo, state, sort, direction string, limit int) ([]*github.PullRequest, error) {
	key := cache.Key(NSGitHubAPI, "prs", owner, repo, state, sort, direction, limit)
	if v, ok := c.cached(key); ok {
		return v.([]*github.PullRequest), nil
	}

	opts := &github.PullRequestListOptions{
		State:       state,
		Sort:        sort,
		Direction:   direction,
		ListOptions: github.ListOptions{PerPage: min(limit, 100)},
	}
	prs, _, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	c.store(key, prs)
	return prs, nil
}

// GetPullRequest fetches one PR.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	key := cache.Key(NSGitHubAPI, "pr", owner, repo, number)
	if v, ok := c.cached(key); ok {
		return v.(*github.PullRequest), nil
	}

	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("get pull request: %w", err)
	}
	c.store(key, pr)
	return pr, nil
}

// ListPullRequestFiles lists a PR's changed files.
func (c *Client) ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]*github.CommitFile, error) {
	key := cache.Key(NSGitHubAPI, "pr_files", owner, repo, number)
	if v, ok := c.cached(key); ok {
		return v.([]*github.CommitFile), nil
	}

	files, _, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("list pull request files: %w", err)
	}
	c.store(key, files)
	return files, nil
}

// ListReviews lists a PR's reviews.
func (c *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestReview, error) {
	key := cache.Key(NSGitHubAPI, "pr_reviews", owner, repo, number)
	if v, ok := c.cached(key); ok {
		return v.([]*github.PullRequestReview), nil
	}

	reviews, _, err := c.gh.PullRequests.ListReviews(ctx, owner, repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	c.store(key, reviews)
	return reviews, nil
}

// ListIssues lists issues with filters.
func (c *Client) ListIssues(ctx context.Context, owner, repo, state, sort, direction, labels, assignee string, limit int) ([]*github.Issue, error) {
	key := cache.Key(NSGitHubAPI, "issues", owner, repo, state, sort, direction, labels, assignee, limit)
	if v, ok := c.cached(key); ok {
		return v.([]*github.Issue), nil
	}

	opts := &github.IssueListByRepoOptions{
		State:       state,
		Sort:        sort,
		Direction:   direction,
		Assignee:    assignee,
		ListOptions: github.ListOptions{PerPage: min(limit, 100)},
	}
	if labels != "" {
		opts.Labels = splitCSV(labels)
	}
	issues, _, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	c.store(key, issues)
	return issues, nil
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error) {
	key := cache.Key(NSGitHubAPI, "issue", owner, repo, number)
	if v, ok := c.cached(key); ok {
		return v.(*github.Issue), nil
	}

	issue, _, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	c.store(key, issue)
	return issue, nil
}

// ListComments lists issue or PR comments.
func (c *Client) ListComments(ctx context.Context, owner, repo string, number int, sort, direction string, limit int) ([]*github.IssueComment, error) {
	key := cache.Key(NSGitHubAPI, "comments", owner, repo, number, sort, direction, limit)
	if v, ok := c.cached(key); ok {
		return v.([]*github.IssueComment), nil
	}

	opts := &github.IssueListCommentsOptions{
		Sort:        github.Ptr(sort),
		Direction:   github.Ptr(direction),
		ListOptions: github.ListOptions{PerPage: min(limit, 100)},
	}
	comments, _, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	c.store(key, comments)
	return comments, nil
}

// ListLabels lists a repository's labels.
func (c *Client) ListLabels(ctx context.Context, owner, repo string, limit int) ([]*github.Label, error) {
	key := cache.Key(NSGitHubAPI, "labels", owner, repo, limit)
	if v, ok := c.cached(key); ok {
		return v.([]*github.Label), nil
	}

	labels, _, err := c.gh.Issues.ListLabels(ctx, owner, repo, &github.ListOptions{PerPage: min(limit, 100)})
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	c.store(key, labels)
	return labels, nil
}

// ReviewRequests returns the users currently requested to review a PR.
func (c *Client) ReviewRequests(ctx context.Context, owner, repo string, number int) ([]*github.User, error) {
	reviewers, _, err := c.gh.PullRequests.ListReviewers(ctx, owner, repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("list review requests: %w", err)
	}
	return reviewers.Users, nil
}

// --- Write operations (invalidate cached reads) ---

// CreatePullRequest opens a new PR.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string, draft bool) (*github.PullRequest, error) {
	defer c.invalidate()
	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
		Draft: github.Ptr(draft),
	})
	if err != nil {
		return nil, fmt.Errorf("create pull request: %w", err)
	}
	return pr, nil
}

// UpdatePullRequest edits PR fields; empty strings leave fields unchanged.
func (c *Client) UpdatePullRequest(ctx context.Context, owner, repo string, number int, title, body, state, base string) (*github.PullRequest, error) {
	defer c.invalidate()
	patch := &github.PullRequest{}
	if title != "" {
		patch.Title = github.Ptr(title)
	}
	if body != "" {
		patch.Body = github.Ptr(body)
	}
	if state != "" {
		patch.State = github.Ptr(state)
	}
	if base != "" {
		patch.Base = &github.PullRequestBranch{Ref: github.Ptr(base)}
	}
	pr, _, err := c.gh.PullRequests.Edit(ctx, owner, repo, number, patch)
	if err != nil {
		return nil, fmt.Errorf("update pull request: %w", err)
	}
	return pr, nil
}

// MergePullRequest merges a PR with the given method.
func (c *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, commitTitle, commitMessage, method string) (*github.PullRequestMergeResult, error) {
	defer c.invalidate()
	opts := &github.PullRequestOptions{MergeMethod: method, CommitTitle: commitTitle}
	result, _, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, commitMessage, opts)
	if err != nil {
		return nil, fmt.Errorf("merge pull request: %w", err)
	}
	return result, nil
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels, assignees []string, milestone int) (*github.Issue, error) {
	defer c.invalidate()
	req := &github.IssueRequest{Title: github.Ptr(title)}
	if body != "" {
		req.Body = github.Ptr(body)
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	if len(assignees) > 0 {
		req.Assignees = &assignees
	}
	if milestone > 0 {
		req.Milestone = github.Ptr(milestone)
	}
	issue, _, err := c.gh.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return issue, nil
}

// UpdateIssue edits issue fields; zero values leave fields unchanged.
func (c *Client) UpdateIssue(ctx context.Context, owner, repo string, number int, title, body, state string, labels, assignees []string, milestone int) (*github.Issue, error) {
	defer c.invalidate()
	req := &github.IssueRequest{}
	if title != "" {
		req.Title = github.Ptr(title)
	}
	if body != "" {
		req.Body = github.Ptr(body)
	}
	if state != "" {
		req.State = github.Ptr(state)
	}
	if labels != nil {
		req.Labels = &labels
	}
	if assignees != nil {
		req.Assignees = &assignees
	}
	if milestone > 0 {
		req.Milestone = github.Ptr(milestone)
	}
	issue, _, err := c.gh.Issues.Edit(ctx, owner, repo, number, req)
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	return issue, nil
}

// CloseIssue closes an issue with an optional state reason.
func (c *Client) CloseIssue(ctx context.Context, owner, repo string, number int, stateReason string) (*github.Issue, error) {
	defer c.invalidate()
	req := &github.IssueRequest{State: github.Ptr("closed")}
	if stateReason != "" {
		req.StateReason = github.Ptr(stateReason)
	}
	issue, _, err := c.gh.Issues.Edit(ctx, owner, repo, number, req)
	if err != nil {
		return nil, fmt.Errorf("close issue: %w", err)
	}
	return issue, nil
}

// CreateComment adds a comment to an issue or PR.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) (*github.IssueComment, error) {
	defer c.invalidate()
	comment, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return comment, nil
}

// UpdateComment edits a comment body.
func (c *Client) UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) (*github.IssueComment, error) {
	defer c.invalidate()
	comment, _, err := c.gh.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	return comment, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, owner, repo string, commentID int64) error {
	defer c.invalidate()
	if _, err := c.gh.Issues.DeleteComment(ctx, owner, repo, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// CreateLabel creates a repository label.
func (c *Client) CreateLabel(ctx context.Context, owner, repo, name, color, description string) (*github.Label, error) {
	defer c.invalidate()
	label := &github.Label{Name: github.Ptr(name), Color: github.Ptr(color)}
	if description != "" {
		label.Description = github.Ptr(description)
	}
	created, _, err := c.gh.Issues.CreateLabel(ctx, owner, repo, label)
	if err != nil {
		return nil, fmt.Errorf("create label: %w", err)
	}
	return created, nil
}

// AddLabels attaches labels to an issue or PR.
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) ([]*github.Label, error) {
	defer c.invalidate()
	attached, _, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
	if err != nil {
		return nil, fmt.Errorf("add labels: %w", err)
	}
	return attached, nil
}

// CreateReview submits a PR review (APPROVE, REQUEST_CHANGES, or COMMENT).
func (c *Client) CreateReview(ctx context.Context, owner, repo string, number int, body, event string, comments []*github.DraftReviewComment) (*github.PullRequestReview, error) {
	defer c.invalidate()
	review, _, err := c.gh.PullRequests.CreateReview(ctx, owner, repo, number, &github.PullRequestReviewRequest{
		Body:     github.Ptr(body),
		Event:    github.Ptr(event),
		Comments: comments,
	})
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	return review, nil
}

// DismissReview marks a review as outdated.
func (c *Client) DismissReview(ctx context.Context, owner, repo string, number int, reviewID int64, message string) error {
	defer c.invalidate()
	req := &github.PullRequestReviewDismissalRequest{Message: github.Ptr(message)}
	if _, _, err := c.gh.PullRequests.DismissReview(ctx, owner, repo, number, reviewID, req); err != nil {
		return fmt.Errorf("dismiss review: %w", err)
	}
	return nil
}

// RemoveReviewRequest removes pending review requests for the given users.
func (c *Client) RemoveReviewRequest(ctx context.Context, owner, repo string, number int, reviewers []string) error {
	defer c.invalidate()
	req := github.ReviewersRequest{Reviewers: reviewers}
	if _, err := c.gh.PullRequests.RemoveReviewers(ctx, owner, repo, number, req); err != nil {
		return fmt.Errorf("remove review request: %w", err)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
