package settlement

import "github.com/go-errors/errors"

// ErrKind classifies an executor-level failure, independent of whatever
// kind a wrapped port error carries.
type ErrKind uint8

const (
	// ErrUnknownPeer means peerAddressMap has no entry for the event's
	// peerId. Non-retryable.
	ErrUnknownPeer ErrKind = iota

	// ErrDisabled means the executor is configured with enabled=false
	// and should not process events.
	ErrDisabled

	// ErrConfigInvalid means the executor's configuration failed
	// validation at construction time.
	ErrConfigInvalid
)

func (k ErrKind) String() string {
	switch k {
	case ErrUnknownPeer:
		return "unknown peer"
	case ErrDisabled:
		return "settlement executor disabled"
	case ErrConfigInvalid:
		return "invalid settlement executor configuration"
	default:
		return "settlement executor error"
	}
}

// ExecutorError carries the structured context spec.md §7 requires on
// every error crossing a task boundary: which component/operation
// produced it, and which peer/channel/attempt it concerns.
type ExecutorError struct {
	Kind      ErrKind
	Component string
	Operation string
	PeerID    string
	ChannelID string
	Attempt   int
	Cause     error
}

func (e *ExecutorError) Error() string {
	msg := e.Component + "." + e.Operation + ": " + e.Kind.String()
	if e.PeerID != "" {
		msg += " peer=" + e.PeerID
	}
	if e.ChannelID != "" {
		msg += " channel=" + e.ChannelID
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ExecutorError) Unwrap() error {
	return e.Cause
}

func newExecutorError(kind ErrKind, op, peerID string, cause error) *ExecutorError {
	return &ExecutorError{
		Kind:      kind,
		Component: "settlement",
		Operation: op,
		PeerID:    peerID,
		Cause:     cause,
	}
}

var errNotEnabled = errors.New("settlement executor is not enabled")
