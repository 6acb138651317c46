package facetrack

import (
	"errors"

	"facetrack/detection"
	"facetrack/frame"
	"facetrack/landmark"
)

// ErrorKind is the coarse error category of the engine's taxonomy. Every
// error crossing the session boundary classifies into exactly one kind via
// Classify; callers branch on kinds or sentinel errors, never on message
// text.
type ErrorKind int

const (
	// KindConfig: invalid configuration, rejected at Initialize before any
	// model load, never silently clamped.
	KindConfig ErrorKind = iota
	// KindResource: model missing or failed to load. Fatal to the session.
	KindResource
	// KindInput: malformed frame, rejected per call. Session state unchanged.
	KindInput
	// KindProcessing: transient inference or estimation failure, reported
	// per frame alongside any partial result.
	KindProcessing
	// KindState: operation invalid in the session's current lifecycle state.
	KindState
)

// String returns the kind name
func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindResource:
		return "resource"
	case KindInput:
		return "input"
	case KindProcessing:
		return "processing"
	case KindState:
		return "state"
	}
	return "unknown"
}

var (
	// ErrInvalidConfig wraps all configuration validation failures
	ErrInvalidConfig = errors.New("facetrack: invalid configuration")
	// ErrNotInitialized is returned for operations requiring a Ready session
	ErrNotInitialized = errors.New("facetrack: session not initialized")
	// ErrAlreadyInitialized is returned when Initialize is called on a
	// session that is past Uninitialized.
	ErrAlreadyInitialized = errors.New("facetrack: session already initialized")
	// ErrDisposed is returned for any operation other than Dispose on a
	// disposed session.
	ErrDisposed = errors.New("facetrack: session disposed")
	// ErrNotStreaming is returned by StopTracking outside streaming
	ErrNotStreaming = errors.New("facetrack: session is not streaming")
	// ErrStreaming is returned for operations that conflict with an active
	// streaming run.
	ErrStreaming = errors.New("facetrack: session is streaming")
)

// Classify maps any engine error onto the taxonomy. Unknown errors count as
// processing errors, the only recoverable default.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return KindConfig
	case errors.Is(err, detection.ErrModelNotLoaded),
		errors.Is(err, landmark.ErrModelNotLoaded):
		return KindResource
	case errors.Is(err, frame.ErrInvalidDimensions),
		errors.Is(err, frame.ErrUnsupportedFormat),
		errors.Is(err, frame.ErrBufferTooSmall),
		errors.Is(err, frame.ErrInvalidRotation):
		return KindInput
	case errors.Is(err, ErrNotInitialized),
		errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, ErrDisposed),
		errors.Is(err, ErrNotStreaming),
		errors.Is(err, ErrStreaming):
		return KindState
	}
	return KindProcessing
}
