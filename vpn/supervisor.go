package vpn

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/sys/unix"
)

// ConnectParams are the inputs to Supervisor.Connect.
type ConnectParams struct {
	Gateway     GatewayEndpoint
	Credential  Credential
	Hosts       []string
	Preferences Preferences
	Daemon      bool
}

// Supervisor is the top-level connect orchestrator. It owns the
// install/teardown lifecycle of routes, name-table entries, and the
// virtual interface, and runs the data-plane pump with bounded,
// backed-off reconnection.
type Supervisor struct {
	logger log.Logger
}

// NewSupervisor constructs a Supervisor. A nil logger becomes a no-op
// logger.
func NewSupervisor(logger log.Logger) *Supervisor {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Supervisor{logger: logger}
}

// teardownHandler is the single handler reachable from every exit path:
// clean shutdown, signal, or panic. Every removal is best-effort: errors
// are logged, never returned, since teardown itself must never fail
// loudly.
type teardownHandler struct {
	logger    log.Logger
	router    Router
	hosts     *HostsEditor
	iface     *VirtualInterface
	routedIPs []net.IP
	didHosts  bool
	ran       bool

	gateway GatewayEndpoint
	cookie  *AuthCookie

	// cancel is the real cancellation signal handed to every DataPlane.Run
	// this session runs; requestStop closes it exactly once. Closing it
	// lets the pump unwind on its own in the owning goroutine instead of
	// racing a second goroutine into iface.Close.
	cancel     chan struct{}
	cancelOnce sync.Once
}

// requestStop asks the running pump (if any) to shut down gracefully.
// Safe to call from a signal handler, and safe to call more than once.
func (t *teardownHandler) requestStop() {
	if t == nil || t.cancel == nil {
		return
	}
	t.cancelOnce.Do(func() { close(t.cancel) })
}

func (t *teardownHandler) run() {
	if t == nil || t.ran {
		return
	}
	t.ran = true

	if t.cookie != nil {
		if client, err := NewAuthClient(t.gateway, t.logger); err == nil {
			_ = client.Logout(t.cookie)
		}
	}

	if t.didHosts && t.hosts != nil {
		if err := t.hosts.Clear(); err != nil {
			level.Error(t.logger).Log("message", "teardown: clear hosts block failed", "error", err)
		}
	}
	if t.router != nil {
		for _, ip := range t.routedIPs {
			if err := t.router.RemoveHostRoute(ip); err != nil {
				level.Error(t.logger).Log("message", "teardown: remove route failed", "ip", ip, "error", err)
			}
		}
		if err := t.router.Close(); err != nil {
			level.Error(t.logger).Log("message", "teardown: close router failed", "error", err)
		}
	}
	if t.iface != nil {
		if err := t.iface.Close(); err != nil {
			level.Error(t.logger).Log("message", "teardown: close virtual interface failed", "error", err)
		}
	}
	if err := DeleteState(); err != nil {
		level.Error(t.logger).Log("message", "teardown: delete persisted state failed", "error", err)
	}
	level.Info(t.logger).Log("message", "teardown complete")
}

// Connect runs the full connect sequence. For daemon mode it
// spawns a detached child and returns as soon as the child has been
// started; the child brings the tunnel up asynchronously (the caller is
// expected to exit the parent process). For
// foreground mode it blocks, running the pump (and, if enabled,
// reconnection) until the tunnel is torn down.
func (s *Supervisor) Connect(params ConnectParams) error {
	if existing, err := LoadState(); err == nil {
		if ProcessAlive(existing.PID) {
			return newErr(ErrAlreadyRunning, fmt.Sprintf("tunnel already running (pid %d)", existing.PID), nil)
		}
		level.Warn(s.logger).Log("message", "cleaning up stale state from crashed run", "pid", existing.PID)
		s.cleanupOrphan(existing)
	}

	cookie, tunCfg, domain, err := s.authenticate(params)
	if err != nil {
		return err
	}

	if params.Daemon {
		return s.spawnDaemon(params, cookie, domain)
	}

	return s.runForeground(params, cookie, tunCfg)
}

// authenticate drives the portal auth state machine: prelogin, login,
// the MFA challenge loop, and getconfig.
func (s *Supervisor) authenticate(params ConnectParams) (*AuthCookie, *TunnelConfig, string, error) {
	client, err := NewAuthClient(params.Gateway, s.logger)
	if err != nil {
		return nil, nil, "", err
	}

	pre, err := client.Prelogin()
	if err != nil {
		return nil, nil, "", err
	}
	if pre.RequiresSAML {
		return nil, nil, "", newErr(ErrAuthUnsupported, "saml interactive authentication is not supported", nil)
	}

	challenge, cookie, err := client.Login(params.Credential)
	if err != nil {
		return nil, nil, "", err
	}
	for challenge != nil {
		challenge, cookie, err = client.SubmitChallenge(params.Credential, challenge)
		if err != nil {
			return nil, nil, "", err
		}
	}
	params.Credential.Zero()

	if cookie.Domain == "" {
		cookie.Domain = "local.domain"
	}
	tunCfg, err := client.GetConfig(cookie, cookie.Domain)
	if err != nil {
		return nil, nil, "", err
	}
	return cookie, tunCfg, cookie.Domain, nil
}

// spawnDaemon writes AuthHandoff, spawns a detached child with a marker
// flag, and returns so the parent can exit. The auth cookie is never
// passed on the command line, only through the handoff file.
func (s *Supervisor) spawnDaemon(params ConnectParams, cookie *AuthCookie, domain string) error {
	handoff := &AuthHandoff{
		Gateway:    params.Gateway.Host,
		Username:   cookie.Username,
		AuthCookie: cookie.Value,
		Portal:     cookie.Portal,
		Domain:     domain,
		Hosts:      params.Hosts,
		Preferences: map[string]string{
			"duo_method": string(params.Preferences.DuoMethod),
		},
		WrittenAt: time.Now(),
	}
	if err := WriteHandoff(handoff); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return newErr(ErrConfig, "resolve own executable path", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	cmd := exec.Command(exe, "connect", "--daemon-child")
	cmd.Dir = wd // set explicitly: the child does not inherit the parent's interactive directory on all platforms
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	applyDetachAttr(cmd)

	if err := cmd.Start(); err != nil {
		return newErr(ErrConfig, "spawn daemon child", err)
	}
	level.Info(s.logger).Log("message", "daemon spawned", "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}

// ResumeFromHandoff is the daemon child's entry point: read and delete
// the handoff, re-run getconfig against the already-authenticated cookie
// (producing a fresh tunnel session), then proceed through the rest of
// connect as if running in the foreground.
func (s *Supervisor) ResumeFromHandoff(prefs Preferences) error {
	handoff, err := ReadAndDeleteHandoff()
	if err != nil {
		return err
	}

	cookie := &AuthCookie{
		Value:    handoff.AuthCookie,
		Portal:   handoff.Portal,
		Domain:   handoff.Domain,
		Username: handoff.Username,
		IssuedAt: handoff.WrittenAt,
	}
	client, err := NewAuthClient(GatewayEndpoint{Host: handoff.Gateway}, s.logger)
	if err != nil {
		return err
	}
	tunCfg, err := client.GetConfig(cookie, handoff.Domain)
	if err != nil {
		return err
	}

	params := ConnectParams{
		Gateway:     GatewayEndpoint{Host: handoff.Gateway},
		Hosts:       handoff.Hosts,
		Preferences: prefs,
	}
	return s.runForeground(params, cookie, tunCfg)
}

// runForeground handles interface creation, per-host route/name-table
// install, persistent-state write, pump run, reconnection, and final
// teardown.
func (s *Supervisor) runForeground(params ConnectParams, cookie *AuthCookie, tunCfg *TunnelConfig) error {
	internalIP := net.ParseIP(tunCfg.InternalIPv4)
	iface, err := NewVirtualInterface(tunDeviceParams{
		InternalIPv4: internalIP,
		PrefixLen:    32,
		MTU:          tunCfg.EffectiveMTU(),
	}, s.logger)
	if err != nil {
		return err
	}

	router, err := NewRouter()
	if err != nil {
		iface.Close()
		return err
	}

	td := &teardownHandler{logger: s.logger, router: router, hosts: NewHostsEditor(), iface: iface, gateway: params.Gateway, cookie: cookie, cancel: make(chan struct{})}
	s.installSignalHandler(td)
	defer td.run()

	ifIndex, err := router.InterfaceIndex(iface.Name())
	if err != nil {
		return newErr(ErrTunnelInterface, "resolve interface index", err)
	}

	resolver, err := NewResolver(dnsServerIPs(tunCfg.DNSServers), internalIP, ifIndex)
	if err != nil {
		return err
	}

	installer := NewRouteInstaller(router, ifIndex)
	hostIPs := make(map[string]net.IP, len(params.Hosts))
	for _, host := range params.Hosts {
		ip, err := resolver.Resolve(host)
		if err != nil {
			installer.Rollback()
			return err
		}
		if err := installer.Add(ip); err != nil {
			installer.Rollback()
			return err
		}
		hostIPs[host] = ip
	}
	td.routedIPs = append(td.routedIPs, installer.Installed()...)

	if err := td.hosts.Apply(hostIPs); err != nil {
		installer.Rollback()
		return err
	}
	td.didHosts = true

	state := &PersistentState{
		PID:           os.Getpid(),
		InterfaceName: iface.Name(),
		InternalIP:    internalIP.String(),
		Gateway:       params.Gateway.Host,
		ConnectedAt:   time.Now(),
	}
	for host, ip := range hostIPs {
		state.Routes = append(state.Routes, RouteEntry{Hostname: host, IP: ip.String()})
	}
	if err := state.Save(); err != nil {
		installer.Rollback()
		_ = td.hosts.Clear()
		return err
	}

	return s.runPumpWithReconnect(params, cookie, tunCfg, iface, td)
}

// runPumpWithReconnect runs the reconnection policy: a Dead
// result retries with linear backoff (reconnect_delay_secs × attempt) up
// to max_reconnect_attempts, reusing the auth cookie while it remains
// inside its lifetime and re-authenticating otherwise; a SessionExpired
// result ends the loop with a Session/Expired error.
// Routes and the name-table block stay in place across reconnects. Every
// attempt shares td.cancel, the one cancellation signal a signal handler
// or disconnect request can close to unwind the loop gracefully, whether
// it is currently pumping or sleeping out a reconnect backoff.
func (s *Supervisor) runPumpWithReconnect(params ConnectParams, cookie *AuthCookie, tunCfg *TunnelConfig, iface *VirtualInterface, td *teardownHandler) error {
	attempt := 0
	for {
		dp := NewDataPlane(params.Gateway, cookie, iface, DataPlaneOptions{
			InboundTimeout: time.Duration(params.Preferences.InboundTimeoutSecs) * time.Second,
			Lifetime:       tunCfg.Lifetime,
		}, s.logger)

		result, err := dp.Run(td.cancel)
		if err != nil {
			level.Error(s.logger).Log("message", "data plane error", "error", err)
			return err
		}

		switch result {
		case PumpStopped:
			return nil
		case PumpSessionExpired:
			return newErr(ErrSessionExpired, "tunnel session lifetime elapsed", nil)
		case PumpDead:
			if !params.Preferences.AutoReconnect {
				return newErr(ErrTunnelDead, "tunnel liveness check failed", nil)
			}
			attempt++
			if attempt > params.Preferences.MaxReconnectAttempts {
				return newErr(ErrTunnelDead, "exceeded max reconnect attempts", nil)
			}
			delay := time.Duration(params.Preferences.ReconnectDelaySecs) * time.Duration(attempt) * time.Second
			level.Warn(s.logger).Log("message", "reconnecting", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-td.cancel:
				return nil
			}

			if time.Since(cookie.IssuedAt) >= tunCfg.Lifetime {
				newCookie, newCfg, _, err := s.authenticate(params)
				if err != nil {
					return err
				}
				cookie, tunCfg = newCookie, newCfg
				td.cookie = cookie
			}
		}
	}
}

// installSignalHandler arranges for SIGINT/SIGTERM to request a graceful
// pump shutdown rather than tearing down routes/interface/state directly
// from the signal goroutine. Closing td.cancel lets the goroutine running
// the pump unwind on its own -- through dp.Run, runPumpWithReconnect, and
// the deferred td.run() in runForeground -- so teardown only ever runs
// once the pump goroutines have actually exited, never concurrently with
// them.
func (s *Supervisor) installSignalHandler(td *teardownHandler) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, unix.SIGINT, unix.SIGTERM)
	go func() {
		sig := <-sigChan
		level.Info(s.logger).Log("message", "received signal, requesting graceful shutdown", "signal", sig)
		td.requestStop()
	}()
}

// cleanupOrphan removes routes and name-table entries left behind by a
// crashed prior run.
func (s *Supervisor) cleanupOrphan(st *PersistentState) {
	router, err := NewRouter()
	if err == nil {
		for _, r := range st.Routes {
			if ip := net.ParseIP(r.IP); ip != nil {
				_ = router.RemoveHostRoute(ip)
			}
		}
		_ = router.Close()
	}
	_ = NewHostsEditor().Clear()
	_ = DeleteState()
}

// Disconnect implements the disconnect command: read state,
// signal the pid, wait up to 3 seconds, then run teardown from the
// persisted route/name-table list regardless of whether the signal was
// delivered in time.
func (s *Supervisor) Disconnect() error {
	st, err := LoadState()
	if err != nil {
		if os.IsNotExist(err) {
			return newErr(ErrTunnelDead, "not running", nil)
		}
		return err
	}

	if ProcessAlive(st.PID) {
		if err := killProcess(st.PID); err != nil {
			level.Warn(s.logger).Log("message", "signal daemon failed", "pid", st.PID, "error", err)
		}
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) && ProcessAlive(st.PID) {
			time.Sleep(100 * time.Millisecond)
		}
	}

	s.cleanupOrphan(st)
	return nil
}

// Status reports whether a tunnel is running, for the status
// command: connected, not connected, or stale when state exists but
// the pid is dead.
type StatusResult struct {
	Connected bool
	Stale     bool
	State     *PersistentState
}

func (s *Supervisor) Status() (*StatusResult, error) {
	st, err := LoadState()
	if err != nil {
		if os.IsNotExist(err) {
			return &StatusResult{Connected: false}, nil
		}
		return nil, err
	}
	if ProcessAlive(st.PID) {
		return &StatusResult{Connected: true, State: st}, nil
	}
	return &StatusResult{Connected: false, Stale: true, State: st}, nil
}

func dnsServerIPs(servers []string) []net.IP {
	out := make([]net.IP, 0, len(servers))
	for _, s := range servers {
		if ip := net.ParseIP(s); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}
