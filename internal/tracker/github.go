// Package tracker implements milestone.IssueTracker on top of the GitHub REST API.
package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/go-github/v72/github"
	"github.com/mattjoyce/milestone-hook/internal/config"
)

// pageSize is the maximum page size the issues API accepts.
const pageSize = 100

// Client implements milestone.IssueTracker for GitHub.
type Client struct {
	gh *github.Client
}

// New builds a Client from tracker configuration, authenticating with
// GitHub App credentials when present and the static token otherwise.
func New(cfg config.TrackerConfig) (*Client, error) {
	if cfg.App != nil {
		key, err := os.ReadFile(cfg.App.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read app private key: %w", err)
		}

		source, err := NewInstallationTokenSource(cfg.App.AppID, cfg.App.InstallationID, key, cfg.BaseURL, cfg.AppName)
		if err != nil {
			return nil, err
		}

		httpClient := &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &bearerTransport{token: source.Token},
		}
		return NewClient(httpClient, cfg.BaseURL, cfg.AppName)
	}

	client, err := NewClient(&http.Client{Timeout: cfg.Timeout}, cfg.BaseURL, cfg.AppName)
	if err != nil {
		return nil, err
	}
	client.gh = client.gh.WithAuthToken(cfg.Token)
	return client, nil
}

// NewClient wraps httpClient in a go-github client rooted at baseURL.
func NewClient(httpClient *http.Client, baseURL, userAgent string) (*Client, error) {
	gh, err := newGitHubClient(httpClient, baseURL, userAgent)
	if err != nil {
		return nil, err
	}
	return &Client{gh: gh}, nil
}

func newGitHubClient(httpClient *http.Client, baseURL, userAgent string) (*github.Client, error) {
	gh := github.NewClient(httpClient)

	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid tracker base URL %q: %w", baseURL, err)
		}
		gh.BaseURL = u
	}
	if userAgent != "" {
		gh.UserAgent = userAgent
	}

	return gh, nil
}

// GetOpenIssuesForMilestone lists every open issue of a milestone, following pagination.
// Pull requests attached to the milestone are returned as well.
func (c *Client) GetOpenIssuesForMilestone(ctx context.Context, org, repo string, milestone int) ([]*github.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		Milestone:   strconv.Itoa(milestone),
		State:       "open",
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	var all []*github.Issue
	for {
		page, resp, err := c.gh.Issues.ListByRepo(ctx, org, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list open issues for %s/%s milestone %d: %w", org, repo, milestone, err)
		}
		all = append(all, page...)

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// UpdateLabel adds label to issue. GitHub appends it server side; existing
// labels are kept.
func (c *Client) UpdateLabel(ctx context.Context, org, repo string, issue *github.Issue, label string) (*github.Issue, error) {
	if issue == nil {
		return nil, fmt.Errorf("issue is nil")
	}

	labels, _, err := c.gh.Issues.AddLabelsToIssue(ctx, org, repo, issue.GetNumber(), []string{label})
	if err != nil {
		return nil, fmt.Errorf("add label %q to %s/%s#%d: %w", label, org, repo, issue.GetNumber(), err)
	}

	updated := *issue
	updated.Labels = labels
	return &updated, nil
}
