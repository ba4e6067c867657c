package msgstream

import (
	"errors"
	"fmt"
)

// ErrorKind classifies stream failures so callers can branch on them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindCapacityExceeded
	KindOperationLimitExceeded
	KindInvalidMessage
	KindInvalidRange
	KindInvalidKey
	KindPartitionFull
	KindIndexOutOfRange
	KindInvalidArgument
	KindInvalidPath
	KindIO
	KindClosed
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindOperationLimitExceeded:
		return "operation_limit_exceeded"
	case KindInvalidMessage:
		return "invalid_message"
	case KindInvalidRange:
		return "invalid_range"
	case KindInvalidKey:
		return "invalid_key"
	case KindPartitionFull:
		return "partition_full"
	case KindIndexOutOfRange:
		return "index_out_of_range"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidPath:
		return "invalid_path"
	case KindIO:
		return "io_error"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind.
var (
	ErrCapacityExceeded       = errors.New("stream capacity exceeded")
	ErrOperationLimitExceeded = errors.New("operation limit exceeded")
	ErrInvalidMessage         = errors.New("invalid message")
	ErrInvalidRange           = errors.New("invalid range")
	ErrInvalidKey             = errors.New("invalid partition key")
	ErrPartitionFull          = errors.New("no free partition")
	ErrIndexOutOfRange        = errors.New("partition index out of range")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrInvalidPath            = errors.New("invalid path")
	ErrIO                     = errors.New("i/o error")
	ErrClosed                 = errors.New("stream closed")
)

var kindSentinels = map[ErrorKind]error{
	KindCapacityExceeded:       ErrCapacityExceeded,
	KindOperationLimitExceeded: ErrOperationLimitExceeded,
	KindInvalidMessage:         ErrInvalidMessage,
	KindInvalidRange:           ErrInvalidRange,
	KindInvalidKey:             ErrInvalidKey,
	KindPartitionFull:          ErrPartitionFull,
	KindIndexOutOfRange:        ErrIndexOutOfRange,
	KindInvalidArgument:        ErrInvalidArgument,
	KindInvalidPath:            ErrInvalidPath,
	KindIO:                     ErrIO,
	KindClosed:                 ErrClosed,
}

// StreamError carries the failing operation and kind along with an optional cause.
type StreamError struct {
	Op     string
	Kind   ErrorKind
	Detail string
	Err    error
}

// Error implements the error interface
func (e *StreamError) Error() string {
	msg := e.Op + ": " + kindSentinels[e.Kind].Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *StreamError) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(op string, kind ErrorKind, format string, args ...any) *StreamError {
	return &StreamError{Op: op, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func wrapIO(op string, err error) *StreamError {
	return &StreamError{Op: op, Kind: KindIO, Err: err}
}

// KindOf reports the kind of err, or KindUnknown when it did not come from this package.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}
