package scanner

import (
	"context"
	"errors"
	"fmt"
)

// Messages shown to the user for each failure kind
const (
	MessageNoImage     = "No image selected"
	MessageTimeout     = "Analysis is taking longer than expected. Please try with a smaller image or check your connection."
	MessageUnreachable = "Network error - unable to connect to server"
	MessageServerError = "Server error occurred"
	MessageInProgress  = "A scan is already in progress"
	MessageCanceled    = "Scan canceled"
)

var (
	ErrNoImage        = errors.New("no image selected")
	ErrTimeout        = errors.New("analysis timed out")
	ErrUnreachable    = errors.New("unable to connect to server")
	ErrScanInProgress = errors.New("a scan is already in progress")
)

// ServerError is a non-2xx answer from the inference backend
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// UserMessage returns the text to show for an error from Submit or Health
func UserMessage(err error) string {
	var serverErr *ServerError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &serverErr):
		return serverErr.Message
	case errors.Is(err, ErrNoImage):
		return MessageNoImage
	case errors.Is(err, ErrTimeout):
		return MessageTimeout
	case errors.Is(err, ErrUnreachable):
		return MessageUnreachable
	case errors.Is(err, ErrScanInProgress):
		return MessageInProgress
	case errors.Is(err, context.Canceled):
		return MessageCanceled
	default:
		return err.Error()
	}
}

// Outcome is the metrics label for the result of a submission
func Outcome(err error) string {
	var serverErr *ServerError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &serverErr):
		return "server_error"
	case errors.Is(err, ErrNoImage):
		return "no_image"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrScanInProgress):
		return "in_progress"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
