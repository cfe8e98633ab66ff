package milestone

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ActionClosed is the only milestone action that triggers labelling.
const ActionClosed = "closed"

// Event is the subset of a milestone webhook the engine acts on.
type Event struct {
	Action          string
	Organization    string
	Repository      string
	MilestoneNumber int
	OpenIssueCount  int
}

// ParseError reports why a payload is not a usable milestone event.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + " " + e.Reason
}

// IsNullPayload reports whether body carries no object at all.
func IsNullPayload(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// milestoneEvent holds only the fields the engine reads, so unrelated
// members of the webhook body never fail decoding.
type milestoneEvent struct {
	Action     *string `json:"action"`
	Repository *struct {
		FullName *string `json:"full_name"`
	} `json:"repository"`
	Milestone *struct {
		Number     json.RawMessage `json:"number"`
		OpenIssues json.RawMessage `json:"open_issues"`
	} `json:"milestone"`
}

// ParseEvent decodes a GitHub milestone webhook payload.
func ParseEvent(body []byte) (Event, error) {
	if IsNullPayload(body) {
		return Event{}, &ParseError{Reason: "payload is null"}
	}

	var raw milestoneEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, decodeError(err)
	}

	if raw.Action == nil {
		return Event{}, &ParseError{Field: "action", Reason: "is required"}
	}
	if raw.Repository == nil || raw.Repository.FullName == nil {
		return Event{}, &ParseError{Field: "repository.full_name", Reason: "is required"}
	}
	if raw.Milestone == nil {
		return Event{}, &ParseError{Field: "milestone.number", Reason: "is required"}
	}
	number, err := intField("milestone.number", raw.Milestone.Number)
	if err != nil {
		return Event{}, err
	}
	openIssues, err := intField("milestone.open_issues", raw.Milestone.OpenIssues)
	if err != nil {
		return Event{}, err
	}

	fullName := *raw.Repository.FullName
	org, repo, ok := strings.Cut(fullName, "/")
	if !ok || org == "" || repo == "" {
		return Event{}, &ParseError{
			Field:  "repository.full_name",
			Reason: fmt.Sprintf("must be <owner>/<repo> (got %q)", fullName),
		}
	}

	return Event{
		Action:          *raw.Action,
		Organization:    org,
		Repository:      repo,
		MilestoneNumber: number,
		OpenIssueCount:  openIssues,
	}, nil
}

// intField reads a required JSON number holding an integral value. 2.0 is
// accepted as 2.
func intField(field string, raw json.RawMessage) (int, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, &ParseError{Field: field, Reason: "is required"}
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return 0, &ParseError{Field: field, Reason: fmt.Sprintf("has wrong type (got %s, want int)", typeErr.Value)}
		}
		return 0, &ParseError{Field: field, Reason: err.Error()}
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, &ParseError{Field: field, Reason: fmt.Sprintf("must be an integer (got %s)", raw)}
	}
	return int(f), nil
}

func decodeError(err error) *ParseError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return &ParseError{Reason: fmt.Sprintf("payload must be a JSON object (got %s)", typeErr.Value)}
		}
		return &ParseError{
			Field:  typeErr.Field,
			Reason: fmt.Sprintf("has wrong type (got %s, want %s)", typeErr.Value, typeErr.Type),
		}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ParseError{Reason: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)}
	}

	return &ParseError{Reason: err.Error()}
}
