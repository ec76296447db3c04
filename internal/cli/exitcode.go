// Package cli implements the external interface layer: CLI subcommand
// dispatch, exit-code mapping, and the thin collaborators (config
// loading, interactive prompting) the core state machines consume as
// plain values.
package cli

import (
	"errors"

	"github.com/drivaslab/pmacs-vpn/vpn"
)

// connectExitCode maps a Connect error to the exit codes documented for
// the connect command: 0 graceful, 1 auth, 2 network, 3 privilege,
// 4 already-connected.
func connectExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch vpn.KindOf(err) {
	case vpn.ErrAlreadyRunning:
		return 4
	case vpn.ErrPrivilege:
		return 3
	case vpn.ErrNetworkResolve, vpn.ErrNetworkConnect, vpn.ErrNetworkTLS, vpn.ErrTunnelDead, vpn.ErrSessionExpired:
		return 2
	case vpn.ErrAuthCredentials, vpn.ErrAuthMfa, vpn.ErrAuthUnsupported, vpn.ErrProtocolBadResponse:
		return 1
	default:
		return 1
	}
}

// privilegeHint returns the platform-appropriate elevation hint every
// Privilege error carries.
func privilegeHint() string {
	return privilegeHintForPlatform()
}

// IsNoInteractiveInput reports whether err is the
// Config/NoInteractiveInput boundary error raised for non-interactive
// invocations missing required input.
func IsNoInteractiveInput(err error) bool {
	var e *vpn.Error
	return errors.As(err, &e) && e.Kind == vpn.ErrConfigNoInteractiveInput
}
