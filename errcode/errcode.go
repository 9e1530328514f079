package errcode

// Code is a stable, wire-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	NoSession      Code = "no_session"
	SessionClosed  Code = "session_closed"
	QueueFull      Code = "queue_full"
	FrameTooLarge  Code = "frame_too_large"
	BadFrame       Code = "bad_frame"
	UnknownCommand Code = "unknown_command"
	InvalidArgs    Code = "invalid_args"
	PortBusy       Code = "port_busy"
	Unsupported    Code = "unsupported"
	NoIdentity     Code = "no_identity"
	Timeout        Code = "timeout"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
