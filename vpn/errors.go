package vpn

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the category of a boundary error, used to map
// failures to CLI exit codes and elevation hints.
type ErrorKind int

const (
	// ErrUnknown is the zero value and should not be constructed directly.
	ErrUnknown ErrorKind = iota
	ErrPrivilege
	ErrConfig
	ErrConfigNoInteractiveInput
	ErrAuthCredentials
	ErrAuthMfa
	ErrAuthUnsupported
	ErrNetworkResolve
	ErrNetworkConnect
	ErrNetworkTLS
	ErrProtocolBadResponse
	ErrTunnelInterface
	ErrTunnelRoute
	ErrTunnelNameTable
	ErrTunnelDead
	ErrSessionExpired
	ErrAlreadyRunning
)

func (k ErrorKind) String() string {
	switch k {
	case ErrPrivilege:
		return "Privilege"
	case ErrConfig:
		return "Config"
	case ErrConfigNoInteractiveInput:
		return "Config/NoInteractiveInput"
	case ErrAuthCredentials:
		return "Auth/Credentials"
	case ErrAuthMfa:
		return "Auth/Mfa"
	case ErrAuthUnsupported:
		return "Auth/Unsupported"
	case ErrNetworkResolve:
		return "Network/Resolve"
	case ErrNetworkConnect:
		return "Network/Connect"
	case ErrNetworkTLS:
		return "Network/Tls"
	case ErrProtocolBadResponse:
		return "Protocol/BadResponse"
	case ErrTunnelInterface:
		return "Tunnel/Interface"
	case ErrTunnelRoute:
		return "Tunnel/Route"
	case ErrTunnelNameTable:
		return "Tunnel/NameTable"
	case ErrTunnelDead:
		return "Tunnel/Dead"
	case ErrSessionExpired:
		return "Session/Expired"
	case ErrAlreadyRunning:
		return "Already/Running"
	default:
		return "Unknown"
	}
}

// Error is a boundary error carrying the kind needed for CLI exit-code
// mapping and user-facing hints, alongside the usual wrapped cause.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Reason != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newErr constructs a boundary error of the given kind wrapping err.
func newErr(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// NewError is newErr's exported form, for the external interface layer
// to raise boundary errors (e.g. Config/NoInteractiveInput, Privilege)
// that originate outside the vpn package itself.
func NewError(kind ErrorKind, reason string, err error) *Error {
	return newErr(kind, reason, err)
}

// KindOf extracts the ErrorKind from err if it (or something it wraps)
// is a *Error, and ErrUnknown otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}
