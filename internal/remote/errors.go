package remote

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed remote operation. These are semantic kinds,
// not wire codes; adapters translate whatever their transport reports into
// one of these.
type ErrorKind int

const (
	KindUnclassified ErrorKind = iota
	// KindAuthExpired: credentials no longer accepted, user must re-login.
	KindAuthExpired
	// KindRateLimited: the service asked us to back off.
	KindRateLimited
	// KindQuotaExceeded: the account's upload allowance is used up.
	KindQuotaExceeded
	// KindNotFound: the referenced entity vanished remotely.
	KindNotFound
	// KindConflict: sequence mismatch detected locally, never a wire error.
	KindConflict
	// KindTransport: network failure or timeout.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth expired"
	case KindRateLimited:
		return "rate limited"
	case KindQuotaExceeded:
		return "quota exceeded"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindTransport:
		return "transport failure"
	}
	return "unclassified"
}

// Error is a classified remote failure with an optional human-readable
// message. Match with errors.As or the KindOf helper.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapTransport classifies err as a transport failure.
func WrapTransport(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// KindOf extracts the classification from err. A nil err or an error that is
// no *Error reports KindUnclassified.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnclassified
}

// IsNotFound reports whether err means the entity vanished remotely.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
