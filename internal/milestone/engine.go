package milestone

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v72/github"
	"github.com/mattjoyce/milestone-hook/internal/log"
	"golang.org/x/sync/errgroup"
)

// Config holds the engine's immutable settings.
type Config struct {
	// Label is added to every open issue of a closed milestone.
	Label string

	// Timeout bounds each tracker call.
	Timeout time.Duration

	// MaxConcurrentUpdates limits in-flight label updates per request.
	MaxConcurrentUpdates int
}

// Default engine settings.
const (
	DefaultLabel                = "Needs Attention!"
	DefaultTimeout              = 10 * time.Second
	DefaultMaxConcurrentUpdates = 4
)

// Engine runs the ordered gates for a milestone delivery and performs the
// label updates when a milestone closes with open issues.
type Engine struct {
	verifier Verifier
	tracker  IssueTracker
	config   Config
	logger   *slog.Logger
}

// NewEngine creates an Engine. Zero config fields fall back to defaults.
func NewEngine(verifier Verifier, tracker IssueTracker, config Config, logger *slog.Logger) *Engine {
	if config.Label == "" {
		config.Label = DefaultLabel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxConcurrentUpdates < 1 {
		config.MaxConcurrentUpdates = DefaultMaxConcurrentUpdates
	}
	if logger == nil {
		logger = log.WithComponent("milestone")
	}

	return &Engine{
		verifier: verifier,
		tracker:  tracker,
		config:   config,
		logger:   logger,
	}
}

// Process evaluates one delivery and returns the response to send.
// It never returns an error: every failure is folded into the Outcome.
func (e *Engine) Process(ctx context.Context, req Request) (outcome Outcome) {
	logger := log.WithDelivery(e.logger, req.DeliveryID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("milestone processing panicked", "panic", r)
			outcome = Outcome{Status: http.StatusInternalServerError, Message: MsgInternal}
		}
	}()

	outcome, err := e.process(ctx, logger, req)
	if err != nil {
		outcome = OutcomeFromError(err)
		logger.Debug("milestone delivery rejected", "status", outcome.Status, "error", err)
	}
	return outcome
}

func (e *Engine) process(ctx context.Context, logger *slog.Logger, req Request) (Outcome, error) {
	if req.SignatureHeader == "" {
		return Outcome{}, authError(MsgMissingSignature)
	}
	if !e.verifier.Verify(req.Payload, req.SignatureHeader) {
		logger.Warn("milestone signature verification failed")
		return Outcome{}, authError(MsgInvalidSignature)
	}
	if IsNullPayload(req.Payload) {
		return Outcome{}, badInputError(MsgNullPayload)
	}

	event, err := ParseEvent(req.Payload)
	if err != nil {
		return Outcome{}, invalidEventError(err)
	}

	logger = logger.With(
		"repository", event.Organization+"/"+event.Repository,
		"milestone", event.MilestoneNumber,
		"action", event.Action,
	)

	if event.Action != ActionClosed {
		logger.Debug("milestone not closed, skipping")
		return ok(MsgMilestoneOpen), nil
	}
	if event.OpenIssueCount == 0 {
		logger.Debug("closed milestone has no open issues")
		return ok(MsgNoOpenIssues), nil
	}

	issues, err := e.fetchOpenIssues(ctx, event)
	if err != nil {
		logger.Error("failed to fetch open issues", "error", err)
		return Outcome{}, trackerError(err,
			fmt.Sprintf("Failed to fetch open issues for milestone %d.", event.MilestoneNumber),
			map[string]any{"milestone": event.MilestoneNumber})
	}
	if len(issues) == 0 {
		return ok(MsgNoIssuesFound), nil
	}

	return e.labelIssues(ctx, logger, event, issues)
}

func (e *Engine) fetchOpenIssues(ctx context.Context, event Event) ([]*github.Issue, error) {
	callCtx, cancel := e.trackerContext(ctx)
	defer cancel()
	return e.tracker.GetOpenIssuesForMilestone(callCtx, event.Organization, event.Repository, event.MilestoneNumber)
}

// labelIssues attempts every update, then reports successes and failures in
// fetch order.
func (e *Engine) labelIssues(ctx context.Context, logger *slog.Logger, event Event, issues []*github.Issue) (Outcome, error) {
	results := make([]error, len(issues))

	var g errgroup.Group
	g.SetLimit(e.config.MaxConcurrentUpdates)
	for i, issue := range issues {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = fmt.Errorf("label update panicked: %v", r)
				}
			}()
			callCtx, cancel := e.trackerContext(ctx)
			defer cancel()
			_, results[i] = e.tracker.UpdateLabel(callCtx, event.Organization, event.Repository, issue, e.config.Label)
			return nil
		})
	}
	_ = g.Wait()

	var updated, failed []string
	for i, issue := range issues {
		number := strconv.Itoa(issue.GetNumber())
		if err := results[i]; err != nil {
			logger.Error("failed to label issue", "issue", issue.GetNumber(), "label", e.config.Label, "error", err)
			failed = append(failed, number)
			continue
		}
		updated = append(updated, number)
	}

	if len(failed) == 0 {
		logger.Info("labelled open issues of closed milestone", "count", len(updated))
		return ok("Issues updated: " + strings.Join(updated, ",")), nil
	}

	message := "Failed to update issues: " + strings.Join(failed, ",") + "."
	if len(updated) > 0 {
		message += " Issues updated: " + strings.Join(updated, ",")
	}
	return Outcome{}, trackerError(nil, message, map[string]any{
		"failed":  failed,
		"updated": updated,
	})
}

// trackerContext ignores request cancellation but keeps its values.
func (e *Engine) trackerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.config.Timeout)
}

func ok(message string) Outcome {
	return Outcome{Status: http.StatusOK, Success: true, Message: message}
}
