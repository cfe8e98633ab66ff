package milestone

import (
	"context"

	"github.com/google/go-github/v72/github"
)

// Verifier decides whether a raw payload carries a valid signature header.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) bool
}

//go:generate mockgen -destination=mocks/mock_tracker.go -package=mocks github.com/mattjoyce/milestone-hook/internal/milestone IssueTracker

// IssueTracker is the subset of the GitHub issues API the engine needs.
type IssueTracker interface {
	// GetOpenIssuesForMilestone lists every open issue attached to a milestone.
	GetOpenIssuesForMilestone(ctx context.Context, org, repo string, milestone int) ([]*github.Issue, error)

	// UpdateLabel adds label to issue, keeping its existing labels.
	UpdateLabel(ctx context.Context, org, repo string, issue *github.Issue, label string) (*github.Issue, error)
}

// Request is a single inbound delivery as seen by the engine.
type Request struct {
	// Payload is the exact body received; signatures are computed over it.
	Payload []byte

	// SignatureHeader is the raw header value, empty when absent.
	SignatureHeader string

	// DeliveryID correlates log lines for one delivery.
	DeliveryID string
}

// Outcome is the terminal result of processing one request.
type Outcome struct {
	Status  int    `json:"-"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Response messages.
const (
	MsgMissingSignature = "Missing signature header value"
	MsgInvalidSignature = "Invalid signature."
	MsgNullPayload      = "Posted object cannot be null."
	MsgMilestoneOpen    = "Milestone state is open. No further action."
	MsgNoOpenIssues     = "No open issues for this milestone. No further action."
	MsgNoIssuesFound    = "No open issues found."
	MsgInternal         = "Internal error."
)
