package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

type Kind string

const (
	KindConfig    Kind = "config"
	KindTransport Kind = "transport"
	KindCapture   Kind = "capture"
	KindInvalid   Kind = "invalid"
	KindInternal  Kind = "internal"
)

const (
	genericMessage = "An unexpected error occurred. Please try again."
	unknownMessage = "An unknown error occurred."
)

// Error separates the message shown to an operator from the technical detail
// that only goes to the log.
type Error struct {
	Kind             Kind
	UserMessage      string
	TechnicalDetails string
	HTTPStatus       int
	Err              error
}

func (e *Error) Error() string {
	if e.TechnicalDetails != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.UserMessage, e.TechnicalDetails)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.UserMessage)
}

func (e *Error) Unwrap() error { return e.Err }

func Config(userMsg, details string) *Error {
	return &Error{Kind: KindConfig, UserMessage: userMsg, TechnicalDetails: details, HTTPStatus: http.StatusPreconditionFailed}
}

func Transport(userMsg, details string, status int) *Error {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &Error{Kind: KindTransport, UserMessage: userMsg, TechnicalDetails: details, HTTPStatus: status}
}

func Capture(userMsg string, err error) *Error {
	e := &Error{Kind: KindCapture, UserMessage: userMsg, HTTPStatus: http.StatusInternalServerError, Err: err}
	if err != nil {
		e.TechnicalDetails = err.Error()
	}
	return e
}

// Invalid reports input that was rejected before anything was changed.
func Invalid(userMsg, details string) *Error {
	return &Error{Kind: KindInvalid, UserMessage: userMsg, TechnicalDetails: details, HTTPStatus: http.StatusBadRequest}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func IsKind(err error, k Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == k
}

// UserMessage logs the full error and returns the text that is safe to show.
func UserMessage(err error, logger *slog.Logger) string {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		if logger != nil {
			logger.Error("application error",
				"kind", string(ae.Kind),
				"user_message", ae.UserMessage,
				"details", ae.TechnicalDetails,
				"err", err,
			)
		}
		return ae.UserMessage
	}
	if logger != nil {
		logger.Error("unexpected error", "err", err)
	}
	return genericMessage
}

// Details returns the technical detail of err, if any.
func Details(err error) string {
	if ae, ok := As(err); ok {
		return ae.TechnicalDetails
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func HTTPStatus(err error) int {
	if ae, ok := As(err); ok && ae.HTTPStatus != 0 {
		return ae.HTTPStatus
	}
	return http.StatusInternalServerError
}
