package relay

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	pkgerrors "github.com/pkg/errors"
)

// MsgQueryRequired is returned to clients that send no query.
const MsgQueryRequired = "Query is required"

type ErrorKind int

const (
	InvalidInput ErrorKind = iota + 1
	UpstreamFailure
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case UpstreamFailure:
		return "upstream_failure"
	}
	return "unknown"
}

// Error is the only error type Handle returns.
// Stack is always captured for upstream failures; exposing it is the caller's decision.
type Error struct {
	Kind    ErrorKind
	Message string
	Stack   string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidInput(msg string) *Error {
	return &Error{Kind: InvalidInput, Message: msg}
}

func upstreamFailure(err error) *Error {
	traced := pkgerrors.WithStack(err)
	return &Error{
		Kind:    UpstreamFailure,
		Message: upstreamMessage(err),
		Stack:   fmt.Sprintf("%+v", traced),
		Err:     err,
	}
}

// upstreamMessage prefers the service's own message over the SDK's
// operation-wrapped error string.
func upstreamMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}
