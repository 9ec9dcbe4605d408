package errcode

// Code is a stable, log- and metric-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK    Code = "ok"
	Error Code = "error" // generic fallback

	// Two-wire bus.
	WriteFailed Code = "write_failed"
	ShortRead   Code = "short_read"

	// Message-bus session.
	Timeout          Code = "timeout"
	RetriesExhausted Code = "retries_exhausted"
	NotConnected     Code = "not_connected"

	// Capture pipeline.
	BufferUnavailable Code = "buffer_unavailable"
	UnsupportedFormat Code = "unsupported_format"
	UploadFailed      Code = "upload_failed"

	// Inbound command payloads.
	MissingField   Code = "missing_field"
	MalformedValue Code = "malformed_value"
	UnknownState   Code = "unknown_state"
	InvalidTopic   Code = "invalid_topic"

	// Boot.
	InvalidConfig Code = "invalid_config"
)

// E is the wrapper used when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, SomeCode) match a wrapped E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E. A nil cause is allowed.
func Wrap(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

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
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return Of(u.Unwrap())
	}
	return Error
}
