// Package rtstterr classifies errors raised anywhere in the ingestion core
// into the small taxonomy the session controller and CLI need to make
// decisions on: whether to retry, whether to exit, and which exit code to use.
package rtstterr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for routing purposes. The zero value is KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig covers invalid URLs, unknown driver tags, out-of-range
	// numeric options. Surfaced at start; never retried.
	KindConfig
	// KindDevice covers device-unavailable, permission-denied, and
	// format-unsupported failures from a Driver.
	KindDevice
	// KindTransport covers connect refused, TLS failure, send timeout, and
	// unexpected close. Drives the reconnect state machine.
	KindTransport
	// KindProtocol covers oversized or malformed inbound messages.
	KindProtocol
	// KindInternal covers assertion failures and model load failures. Fatal.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindDevice:
		return "device"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged error. Use [errors.As] to recover the Kind from
// an error chain produced anywhere in this module.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap annotates err with kind. Returns nil if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: err}
}

// Wrapf is Wrap with fmt.Errorf-style formatting of the cause.
func Wrapf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// KindOf returns the classified Kind of err, or KindUnknown if err was never
// wrapped by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Sentinel errors for conditions the session controller and CLI branch on by
// identity rather than by Kind alone.
var (
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrFormatUnsupported  = errors.New("audio format unsupported")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrRetriesExhausted   = errors.New("reconnect retries exhausted")
	ErrSessionStopped     = errors.New("session already stopped")
	ErrRingBufferClosed   = errors.New("ring buffer closed")
	ErrVADModelLoadFailed = errors.New("VAD model load failed")
)
