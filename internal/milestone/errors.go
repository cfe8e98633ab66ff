package milestone

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to engine errors.
const (
	TextCodeUnauthorized  = "WEBHOOK_UNAUTHORIZED"
	TextCodeBadInput      = "WEBHOOK_BAD_INPUT"
	TextCodeTrackerFailed = "WEBHOOK_TRACKER_FAILED"
)

func authError(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(TextCodeUnauthorized)
}

func badInputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeBadInput)
}

func invalidEventError(source error) error {
	return goerrors.Wrap(source, goerrors.CategoryValidation, "Invalid milestone event: "+source.Error()).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeBadInput)
}

func trackerError(source error, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryExternal)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	}
	err = err.WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeTrackerFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// OutcomeFromError maps an engine error to the response it produces.
// Errors outside the taxonomy become a 500 without leaking their text.
func OutcomeFromError(err error) Outcome {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code != 0 {
		return Outcome{Status: rich.Code, Success: false, Message: rich.Message}
	}
	return Outcome{Status: http.StatusInternalServerError, Success: false, Message: MsgInternal}
}
