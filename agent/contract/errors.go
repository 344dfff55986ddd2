package contract

import (
	"errors"
	"fmt"
)

var (
	ErrNoMatch              = errors.New("no handler matched the utterance")
	ErrInvalidSlotValue     = errors.New("invalid slot value")
	ErrSlotExtractionAbsent = errors.New("no value extracted for slot")
	ErrConversationClosed   = errors.New("conversation is closed")
	ErrHandlerFailure       = errors.New("handler failure")
	ErrUndeclaredSlot       = errors.New("slot is not declared")
	ErrEmptyMessage         = errors.New("message text is empty")
	ErrInvalidTrigger       = errors.New("invalid trigger pattern")
	ErrInvalidHandler       = errors.New("invalid handler definition")
)

// HandlerError reports an unexpected failure raised by handler code.
type HandlerError struct {
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("error in plugin %s: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() []error {
	return []error{ErrHandlerFailure, e.Err}
}

// NewHandlerError wraps err as a failure of the named handler.
func NewHandlerError(handler string, err error) *HandlerError {
	return &HandlerError{Handler: handler, Err: err}
}
