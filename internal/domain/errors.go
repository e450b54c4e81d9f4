package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRejected is returned when the channel refuses the auth token. It is never retried.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrNotConnected is returned when a request is issued without a live connection.
	ErrNotConnected = errors.New("channel not connected")
	// ErrAckTimeout indicates no acknowledgement arrived in time.
	ErrAckTimeout = errors.New("acknowledgement timed out")
	// ErrReconnectExhausted is reported once every reconnection attempt failed.
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")
	// ErrClosed is returned after the channel or controller was closed.
	ErrClosed = errors.New("closed")
	// ErrUnknownEvent marks an inbound frame whose type is not part of the protocol.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrAnswerExposed marks a question payload that leaked the correct option.
	ErrAnswerExposed = errors.New("question payload exposes the correct answer")
	// ErrAlreadySubmitted is returned for a second answer to the same question.
	ErrAlreadySubmitted = errors.New("answer already submitted for this question")
	// ErrWrongPhase is returned when a command is not valid in the current phase.
	ErrWrongPhase = errors.New("command not valid in current phase")
	// ErrChatDisabled is returned when sending while the host has disabled chat.
	ErrChatDisabled = errors.New("chat is disabled")
	// ErrNoSelection is returned when submitting without a selected option.
	ErrNoSelection = errors.New("no option selected")
	// ErrInvalidOption is returned for an option index outside the question.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrJournalNotFound is returned when no frames were recorded for a room.
	ErrJournalNotFound = errors.New("no journal recorded for room")
)

// ConnectionError covers an unreachable transport or a rejected authentication.
type ConnectionError struct {
	Op    string
	Err   error
	Fatal bool
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or unrecognized payload. It is logged and ignored.
type ProtocolError struct {
	Type string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %q: %v", e.Type, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// CommandRejected is an acknowledgement that reported failure.
type CommandRejected struct {
	Command string
	Reason  string
	Err     error
}

func (e *CommandRejected) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s rejected", e.Command)
	}
	return fmt.Sprintf("%s rejected: %s", e.Command, e.Reason)
}

func (e *CommandRejected) Unwrap() error { return e.Err }

// StaleEventError is an inbound event behind the current question, or a duplicate terminal event.
type StaleEventError struct {
	Type    string
	Index   int
	Current int
	Reason  string
}

func (e *StaleEventError) Error() string {
	return fmt.Sprintf("stale %s (index %d, current %d): %s", e.Type, e.Index, e.Current, e.Reason)
}

// IsFatal reports whether err ends the session view and requires the user to re-enter.
func IsFatal(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) && connErr.Fatal {
		return true
	}
	return errors.Is(err, ErrAuthRejected)
}

// Rejected builds a CommandRejected wrapping the given sentinel.
func Rejected(command string, err error) *CommandRejected {
	return &CommandRejected{Command: command, Reason: err.Error(), Err: err}
}
