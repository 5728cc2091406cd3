package negotiate

import (
	"errors"
	"fmt"

	"github.com/1ureka/pastelink/internal/signal"
)

// Error kinds. Every concrete error below matches exactly one of these via
// errors.Is.
var (
	ErrDecode         = signal.ErrDecode
	ErrProtocol       = errors.New("protocol error")
	ErrNegotiation    = errors.New("negotiation error")
	ErrChannelNotOpen = errors.New("channel not open")

	// ErrClosed is returned by inputs submitted after the event loop stopped.
	ErrClosed = errors.New("orchestrator closed")
)

// DecodeError reports a pasted blob that is not a valid descriptor.
type DecodeError = signal.DecodeError

// ProtocolError reports an input that the current state does not accept,
// such as an offer arriving while this side is itself waiting for an answer.
type ProtocolError struct {
	State  State
	Input  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s not accepted in state %s: %s", e.Input, e.State, e.Reason)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// NegotiationError reports a transport-level failure: descriptor creation
// or application rejected, path discovery failed, or the connection failed.
type NegotiationError struct {
	Step string
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation failed during %s: %v", e.Step, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

func (e *NegotiationError) Is(target error) bool { return target == ErrNegotiation }

// ChannelNotOpenError reports a send attempted while the channel is not open.
type ChannelNotOpenError struct {
	State ReadyState
}

func (e *ChannelNotOpenError) Error() string {
	return fmt.Sprintf("cannot send: channel is %s", e.State)
}

func (e *ChannelNotOpenError) Is(target error) bool { return target == ErrChannelNotOpen }
