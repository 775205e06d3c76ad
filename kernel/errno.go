package kernel

import "errors"

// Errno is the small fixed error enumeration shared by the kernel and its drivers.
type Errno int8

const (
	OK             Errno = 0
	Unknown        Errno = -1
	NotImplemented Errno = -2
	Unavailable    Errno = -3
	WrongArg       Errno = -4
	NotEnoughArgs  Errno = -5
	Range          Errno = -6
	Full           Errno = -7
	Empty          Errno = -8
	Timeout        Errno = -9
	IO             Errno = -10
	Busy           Errno = -11
)

func (e Errno) String() string {
	switch e {
	case OK:
		return "ok"
	case Unknown:
		return "unknown error"
	case NotImplemented:
		return "not implemented"
	case Unavailable:
		return "unavailable"
	case WrongArg:
		return "wrong argument"
	case NotEnoughArgs:
		return "not enough arguments"
	case Range:
		return "out of range"
	case Full:
		return "full"
	case Empty:
		return "empty"
	case Timeout:
		return "timeout"
	case IO:
		return "i/o error"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

func (e Errno) Error() string { return e.String() }

// Error attaches an operation and detail to an Errno.
//
// errors.Is(err, kernel.Full) matches any *Error carrying that code.
type Error struct {
	Code Errno
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	s := e.Code.String()
	if e.Msg != "" {
		s = e.Msg
	}
	if e.Op != "" {
		return e.Op + ": " + s
	}
	return s
}

func (e *Error) Is(target error) bool {
	code, ok := target.(Errno)
	return ok && code == e.Code
}

// E builds an *Error.
func E(op string, code Errno, msg string) *Error {
	return &Error{Code: code, Op: op, Msg: msg}
}

// CodeOf returns the numeric code carried by err, OK for nil and Unknown
// for errors that carry none.
func CodeOf(err error) Errno {
	if err == nil {
		return OK
	}
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code
	}
	var code Errno
	if errors.As(err, &code) {
		return code
	}
	return Unknown
}
