package milestone_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-github/v72/github"
	"github.com/mattjoyce/milestone-hook/internal/milestone"
	"github.com/mattjoyce/milestone-hook/internal/milestone/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVerifier returns a fixed answer and counts calls.
type fakeVerifier struct {
	valid bool
	calls atomic.Int32
}

func (f *fakeVerifier) Verify(payload []byte, signatureHeader string) bool {
	f.calls.Add(1)
	return f.valid
}

func milestonePayload(action string, openIssues int) []byte {
	return []byte(fmt.Sprintf(
		`{"action":%q,"milestone":{"number":7,"open_issues":%d},"repository":{"full_name":"acme/widgets"}}`,
		action, openIssues,
	))
}

func issues(numbers ...int) []*github.Issue {
	out := make([]*github.Issue, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, &github.Issue{Number: github.Ptr(n)})
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newEngine(t *testing.T, valid bool) (*milestone.Engine, *fakeVerifier, *mocks.MockIssueTracker) {
	t.Helper()
	ctrl := gomock.NewController(t)
	tracker := mocks.NewMockIssueTracker(ctrl)
	verifier := &fakeVerifier{valid: valid}
	engine := milestone.NewEngine(verifier, tracker, milestone.Config{
		Label:                "Needs Attention!",
		Timeout:              time.Second,
		MaxConcurrentUpdates: 4,
	}, testLogger())
	return engine, verifier, tracker
}

func TestProcess_MissingSignatureSkipsVerifier(t *testing.T) {
	engine, verifier, _ := newEngine(t, true)

	got := engine.Process(context.Background(), milestone.Request{
		Payload: milestonePayload("closed", 2),
	})

	assert.Equal(t, milestone.Outcome{Status: http.StatusUnauthorized, Message: milestone.MsgMissingSignature}, got)
	assert.Equal(t, int32(0), verifier.calls.Load())
}

func TestProcess_InvalidSignature(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "valid event", payload: milestonePayload("closed", 2)},
		{name: "null body", payload: []byte("null")},
		{name: "empty body", payload: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, verifier, _ := newEngine(t, false)

			got := engine.Process(context.Background(), milestone.Request{
				Payload:         tt.payload,
				SignatureHeader: "sha1=deadbeef",
			})

			assert.Equal(t, http.StatusUnauthorized, got.Status)
			assert.False(t, got.Success)
			assert.Equal(t, milestone.MsgInvalidSignature, got.Message)
			assert.Equal(t, int32(1), verifier.calls.Load())
		})
	}
}

func TestProcess_NullPayload(t *testing.T) {
	for _, body := range []string{"", "   ", "null", " null\n"} {
		t.Run(fmt.Sprintf("%q", body), func(t *testing.T) {
			engine, _, _ := newEngine(t, true)

			got := engine.Process(context.Background(), milestone.Request{
				Payload:         []byte(body),
				SignatureHeader: "sha1=ok",
			})

			assert.Equal(t, milestone.Outcome{Status: http.StatusBadRequest, Message: milestone.MsgNullPayload}, got)
		})
	}
}

func TestProcess_InvalidEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "missing action",
			payload: `{"milestone":{"number":1,"open_issues":1},"repository":{"full_name":"a/b"}}`,
			want:    "Invalid milestone event: action is required",
		},
		{
			name:    "full name without slash",
			payload: `{"action":"closed","milestone":{"number":1,"open_issues":1},"repository":{"full_name":"ab"}}`,
			want:    `Invalid milestone event: repository.full_name must be <owner>/<repo> (got "ab")`,
		},
		{
			name:    "not an object",
			payload: `[1,2,3]`,
			want:    "Invalid milestone event: payload must be a JSON object (got array)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, _ := newEngine(t, true)

			got := engine.Process(context.Background(), milestone.Request{
				Payload:         []byte(tt.payload),
				SignatureHeader: "sha1=ok",
			})

			assert.Equal(t, http.StatusBadRequest, got.Status)
			assert.False(t, got.Success)
			assert.Equal(t, tt.want, got.Message)
		})
	}
}

func TestProcess_NoActionGates(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{name: "opened", payload: milestonePayload("opened", 3), want: milestone.MsgMilestoneOpen},
		{name: "edited", payload: milestonePayload("edited", 3), want: milestone.MsgMilestoneOpen},
		{name: "closed without issues", payload: milestonePayload("closed", 0), want: milestone.MsgNoOpenIssues},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No tracker expectations: any call fails the test.
			engine, _, _ := newEngine(t, true)

			got := engine.Process(context.Background(), milestone.Request{
				Payload:         tt.payload,
				SignatureHeader: "sha1=ok",
			})

			assert.Equal(t, milestone.Outcome{Status: http.StatusOK, Success: true, Message: tt.want}, got)
		})
	}
}

func TestProcess_FetchFailure(t *testing.T) {
	engine, _, tracker := newEngine(t, true)
	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), "acme", "widgets", 7).
		Return(nil, errors.New("connection refused"))

	got := engine.Process(context.Background(), milestone.Request{
		Payload:         milestonePayload("closed", 2),
		SignatureHeader: "sha1=ok",
	})

	assert.Equal(t, milestone.Outcome{
		Status:  http.StatusBadGateway,
		Message: "Failed to fetch open issues for milestone 7.",
	}, got)
}

func TestProcess_FetchReturnsNothing(t *testing.T) {
	engine, _, tracker := newEngine(t, true)
	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), "acme", "widgets", 7).
		Return([]*github.Issue{}, nil)

	got := engine.Process(context.Background(), milestone.Request{
		Payload:         milestonePayload("closed", 2),
		SignatureHeader: "sha1=ok",
	})

	assert.Equal(t, milestone.Outcome{Status: http.StatusOK, Success: true, Message: milestone.MsgNoIssuesFound}, got)
}

func TestProcess_LabelsEveryIssue(t *testing.T) {
	engine, _, tracker := newEngine(t, true)
	found := issues(11, 12, 13)

	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), "acme", "widgets", 7).
		Return(found, nil)
	for _, issue := range found {
		tracker.EXPECT().
			UpdateLabel(gomock.Any(), "acme", "widgets", issue, "Needs Attention!").
			Return(issue, nil)
	}

	got := engine.Process(context.Background(), milestone.Request{
		Payload:         milestonePayload("closed", 3),
		SignatureHeader: "sha1=ok",
		DeliveryID:      "delivery-1",
	})

	assert.Equal(t, milestone.Outcome{Status: http.StatusOK, Success: true, Message: "Issues updated: 11,12,13"}, got)
}

func TestProcess_MessageKeepsFetchOrder(t *testing.T) {
	engine, _, tracker := newEngine(t, true)
	found := issues(1, 2, 3, 4, 5, 6)

	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), "acme", "widgets", 7).
		Return(found, nil)
	tracker.EXPECT().
		UpdateLabel(gomock.Any(), "acme", "widgets", gomock.Any(), "Needs Attention!").
		DoAndReturn(func(_ context.Context, _, _ string, issue *github.Issue, _ string) (*github.Issue, error) {
			// Earlier issues finish last.
			time.Sleep(time.Duration(7-issue.GetNumber()) * 5 * time.Millisecond)
			return issue, nil
		}).
		Times(len(found))

	got := engine.Process(context.Background(), milestone.Request{
		Payload:         milestonePayload("closed", 6),
		SignatureHeader: "sha1=ok",
	})

	assert.Equal(t, "Issues updated: 1,2,3,4,5,6", got.Message)
	assert.True(t, got.Success)
}

func TestProcess_RespectsConcurrencyLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	tracker := mocks.NewMockIssueTracker(ctrl)
	engine := milestone.NewEngine(&fakeVerifier{valid: true}, tracker, milestone.Config{
		MaxConcurrentUpdates: 2,
	}, testLogger())

	var mu sync.Mutex
	inFlight, peak := 0, 0

	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), "acme", "widgets", 7).
		Return(issues(1, 2, 3, 4, 5), nil)
	tracker.EXPECT().
		UpdateLabel(gomock.Any(), "acme", "widgets", gomock.Any(), milestone.DefaultLabel).
		DoAndReturn(func(_ context.Context, _, _ string, issue *github.Issue, _ string) (*github.Issue, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return issue, nil
		}).
		Times(5)

	got := engine.Process(context.Background(), milestone.Request{
		Payload:         milestonePayload("closed", 5),
		SignatureHeader: "sha1=ok",
	})

	assert.True(t, got.Success)
	assert.LessOrEqual(t, peak, 2)
}

func TestProcess_PartialUpdateFailure(t *testing.T) {
	engine, _, tracker := newEngine(t, true)
	found := issues(21, 22, 23)

	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), "acme", "widgets", 7).
		Return(found, nil)
	tracker.EXPECT().UpdateLabel(gomock.Any(), "acme", "widgets", found[0], gomock.Any()).Return(found[0], nil)
	tracker.EXPECT().UpdateLabel(gomock.Any(), "acme", "widgets", found[1], gomock.Any()).Return(nil, errors.New("boom"))
	tracker.EXPECT().UpdateLabel(gomock.Any(), "acme", "widgets", found[2], gomock.Any()).Return(found[2], nil)

	got := engine.Process(context.Background(), milestone.Request{
		Payload:         milestonePayload("closed", 3),
		SignatureHeader: "sha1=ok",
	})

	assert.Equal(t, milestone.Outcome{
		Status:  http.StatusBadGateway,
		Message: "Failed to update issues: 22. Issues updated: 21,23",
	}, got)
}

func TestProcess_AllUpdatesFail(t *testing.T) {
	engine, _, tracker := newEngine(t, true)
	found := issues(1, 2)

	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), "acme", "widgets", 7).
		Return(found, nil)
	tracker.EXPECT().
		UpdateLabel(gomock.Any(), "acme", "widgets", gomock.Any(), gomock.Any()).
		Return(nil, errors.New("forbidden")).
		Times(2)

	got := engine.Process(context.Background(), milestone.Request{
		Payload:         milestonePayload("closed", 2),
		SignatureHeader: "sha1=ok",
	})

	assert.Equal(t, http.StatusBadGateway, got.Status)
	assert.Equal(t, "Failed to update issues: 1,2.", got.Message)
}

func TestProcess_TrackerIgnoresRequestCancellation(t *testing.T) {
	engine, _, tracker := newEngine(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), "acme", "widgets", 7).
		DoAndReturn(func(callCtx context.Context, _, _ string, _ int) ([]*github.Issue, error) {
			require.NoError(t, callCtx.Err())
			_, hasDeadline := callCtx.Deadline()
			assert.True(t, hasDeadline)
			return nil, nil
		})

	got := engine.Process(ctx, milestone.Request{
		Payload:         milestonePayload("closed", 1),
		SignatureHeader: "sha1=ok",
	})

	assert.Equal(t, milestone.MsgNoIssuesFound, got.Message)
}

func TestProcess_PanicBecomesInternalError(t *testing.T) {
	engine, _, tracker := newEngine(t, true)
	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, int) ([]*github.Issue, error) {
			panic("tracker exploded")
		})

	got := engine.Process(context.Background(), milestone.Request{
		Payload:         milestonePayload("closed", 1),
		SignatureHeader: "sha1=ok",
	})

	assert.Equal(t, milestone.Outcome{Status: http.StatusInternalServerError, Message: milestone.MsgInternal}, got)
}

func TestProcess_UpdatePanicBecomesIssueFailure(t *testing.T) {
	engine, _, tracker := newEngine(t, true)
	tracker.EXPECT().
		GetOpenIssuesForMilestone(gomock.Any(), "acme", "widgets", 7).
		Return(issues(1, 2), nil)
	tracker.EXPECT().
		UpdateLabel(gomock.Any(), "acme", "widgets", gomock.Any(), "Needs Attention!").
		DoAndReturn(func(_ context.Context, _, _ string, issue *github.Issue, _ string) (*github.Issue, error) {
			if issue.GetNumber() == 1 {
				panic("update exploded")
			}
			return issue, nil
		}).
		Times(2)

	got := engine.Process(context.Background(), milestone.Request{
		Payload:         milestonePayload("closed", 2),
		SignatureHeader: "sha1=ok",
	})

	assert.Equal(t, milestone.Outcome{
		Status:  http.StatusBadGateway,
		Message: "Failed to update issues: 1. Issues updated: 2",
	}, got)
}

func TestOutcomeFromError_PlainError(t *testing.T) {
	got := milestone.OutcomeFromError(errors.New("raw"))
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, milestone.MsgInternal, got.Message)
}
