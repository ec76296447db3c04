package vpn

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// authHTTPTimeout bounds each individual portal HTTP step,
// with the documented exception of the MFA long-poll, which has no
// client-side timeout (the server times out the push itself).
const authHTTPTimeout = 30 * time.Second

const clientVersion = "4100"

// Credential is the user identifier plus opaque secret (and optional
// one-shot MFA factor) consumed only in memory during authentication.
// The CLI commands call Zero as soon as Supervisor.Connect returns so the
// secret does not linger in memory longer than the auth exchange needs it.
type Credential struct {
	Username string
	Password string
	Factor   MFAFactor
}

// MFAFactor describes the one-shot second-factor the caller wants to
// present Credential.
type MFAFactor struct {
	Method   DuoMethod
	Passcode string // only meaningful when Method == DuoPasscode
}

// Zero overwrites the secret fields in place so the credential does not
// survive past the auth exchange in memory.
func (c *Credential) Zero() {
	c.Password = ""
	c.Factor.Passcode = ""
}

// PreloginOutcome is the result of the prelogin step.
type PreloginOutcome struct {
	RequiresSAML  bool
	UsernameLabel string
	PasswordLabel string
}

// Challenge carries a second-factor prompt and the opaque continuation
// token that must be echoed verbatim in the next login request.
type Challenge struct {
	Prompt     string
	InputToken string
}

// AuthCookie is the bearer session token plus the metadata captured
// from the same login response.
type AuthCookie struct {
	Value            string
	PersistentCookie string // JNLP index 2; parsed but intentionally never consumed elsewhere
	Portal           string
	Domain           string
	Username         string
	GatewayName      string
	IssuedAt         time.Time
}

// TunnelConfig is the immutable getconfig response.
type TunnelConfig struct {
	InternalIPv4 string
	InternalIPv6 string
	MTU          int
	DNSServers   []string
	AccessRoutes []string
	IdleTimeout  time.Duration
	Lifetime     time.Duration
}

// EffectiveMTU applies the fallback rule: a server returning an MTU of
// 0 means "use 1400".
func (tc *TunnelConfig) EffectiveMTU() int {
	if tc.MTU <= 0 {
		return 1400
	}
	return tc.MTU
}

// GatewayEndpoint is a fully-qualified gateway host; TLS port 443 is
// implicit.
type GatewayEndpoint struct {
	Host string
}

func (g GatewayEndpoint) baseURL() string {
	return fmt.Sprintf("https://%s", g.Host)
}

// AuthClient drives the portal conversation: prelogin, login, the MFA
// challenge loop, and getconfig. It is not safe for
// concurrent reuse across simultaneous logins; one AuthClient serves one
// connect attempt.
type AuthClient struct {
	gateway GatewayEndpoint
	http    *http.Client
	logger  log.Logger
}

// NewAuthClient constructs an AuthClient against gateway, using the
// system root store for TLS and a cookie jar for the portal session
// cookies the HTTP exchange relies on.
func NewAuthClient(gateway GatewayEndpoint, logger log.Logger) (*AuthClient, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, newErr(ErrNetworkTLS, "create cookie jar", err)
	}
	return &AuthClient{
		gateway: gateway,
		http: &http.Client{
			Jar:     jar,
			Timeout: 0, // no timeout, for the MFA long-poll; doRequest applies authHTTPTimeout to every other step
		},
		logger: NewRedactingLogger(logger),
	}, nil
}

func (c *AuthClient) endpoint(path string) string {
	return c.gateway.baseURL() + "/global-protect/" + path
}

func clientOS() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows"
	case "darwin":
		return "Mac"
	default:
		return "Linux"
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// doRequest posts form to the gateway-relative path and returns the raw
// body. longPoll disables the client timeout for the MFA step, which has
// no client-side deadline; every other step uses
// authHTTPTimeout.
func (c *AuthClient) doRequest(path string, form url.Values, longPoll bool) (string, error) {
	req, err := http.NewRequest(http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return "", newErr(ErrNetworkConnect, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := c.http
	if !longPoll {
		cp := *c.http
		cp.Timeout = authHTTPTimeout
		client = &cp
	}

	level.Debug(c.logger).Log("message", "portal request", "path", path)
	resp, err := client.Do(req)
	if err != nil {
		return "", newErr(ErrNetworkConnect, fmt.Sprintf("POST %s", path), err)
	}
	defer resp.Body.Close()

	body := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	level.Debug(c.logger).Log("message", "portal response", "path", path, "status", resp.StatusCode, "bytes", len(body))
	return string(body), nil
}

// Prelogin performs the prelogin step.
func (c *AuthClient) Prelogin() (*PreloginOutcome, error) {
	form := url.Values{
		"tmp":       {"tmp"},
		"clientVer": {clientVersion},
		"clientos":  {clientOS()},
	}
	body, err := c.doRequest("prelogin.esp", form, false)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Status        string `xml:"status"`
		SAMLMethod    string `xml:"saml-auth-method"`
		UsernameLabel string `xml:"username-label"`
		PasswordLabel string `xml:"password-label"`
	}
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, newErr(ErrProtocolBadResponse, "parse prelogin response", err)
	}

	outcome := &PreloginOutcome{
		UsernameLabel: firstNonEmpty(doc.UsernameLabel, "Username"),
		PasswordLabel: firstNonEmpty(doc.PasswordLabel, "Password"),
	}
	if doc.SAMLMethod != "" {
		outcome.RequiresSAML = true
	}
	return outcome, nil
}

func firstNonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// loginFields builds the literal parameter set the login step requires.
// Omitting jnlpReady, ok, or direct causes some deployments to respond
// with an empty 200 rather than an error.
func (c *AuthClient) loginFields(cred Credential) url.Values {
	form := url.Values{
		"jnlpReady":    {"jnlpReady"},
		"ok":           {"Login"},
		"direct":       {"yes"},
		"clientVer":    {clientVersion},
		"clientos":     {clientOS()},
		"prot":         {"https:"},
		"server":       {c.gateway.Host},
		"computer":     {hostname()},
		"ipv6-support": {"yes"},
		"user":         {cred.Username},
		"passwd":       {cred.Password},
	}
	return form
}

// Login submits the initial credential-based login request. If the
// portal demands a second factor it returns a Challenge; the caller then
// calls SubmitChallenge. If the portal accepts the login outright it
// returns an AuthCookie (no challenge loop needed).
func (c *AuthClient) Login(cred Credential) (*Challenge, *AuthCookie, error) {
	form := c.loginFields(cred)
	return c.loginRequest(form)
}

// SubmitChallenge answers a pending Challenge with the MFA factor
// requested by the caller. This call long-polls: for a push factor it
// does not return until the user acknowledges the push on their device,
// an out-of-band acknowledgment delivered inside a long-polling HTTP
// request.
func (c *AuthClient) SubmitChallenge(cred Credential, ch *Challenge) (*Challenge, *AuthCookie, error) {
	form := c.loginFields(cred)
	form.Set("inputStr", ch.InputToken)
	form.Set("passwd", factorValue(cred.Factor))

	req, err := http.NewRequest(http.MethodPost, c.endpoint("login.esp"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, newErr(ErrNetworkConnect, "build challenge request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	level.Debug(c.logger).Log("message", "portal MFA long-poll request")
	resp, err := c.http.Do(req) // no timeout override: long-poll
	if err != nil {
		return nil, nil, newErr(ErrNetworkConnect, "POST login.esp (mfa)", err)
	}
	defer resp.Body.Close()

	body, err := readAll(resp)
	if err != nil {
		return nil, nil, newErr(ErrNetworkConnect, "read mfa response", err)
	}
	return c.parseLoginResponse(body)
}

func factorValue(f MFAFactor) string {
	switch f.Method {
	case DuoPasscode:
		return f.Passcode
	case DuoSMS, DuoCall:
		return string(f.Method)
	}
	return string(DuoPush)
}

func readAll(resp *http.Response) (string, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf), nil
}

func (c *AuthClient) loginRequest(form url.Values) (*Challenge, *AuthCookie, error) {
	body, err := c.doRequest("login.esp", form, false)
	if err != nil {
		return nil, nil, err
	}
	return c.parseLoginResponse(body)
}

// challengeRegexes extract the three JavaScript assignments the portal
// embeds in an HTML challenge response: respStatus,
// respMsg, and thisForm.inputStr.value.
var (
	respStatusRe = regexp.MustCompile(`respStatus\s*=\s*"([^"]*)"`)
	respMsgRe    = regexp.MustCompile(`respMsg\s*=\s*"([^"]*)"`)
	inputStrRe   = regexp.MustCompile(`thisForm\.inputStr\.value\s*=\s*"([^"]*)"`)
)

var hexToken32Re = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// parseLoginResponse implements tagged-union handling: the
// same logical state yields either an HTML challenge or XML (JNLP)
// success, discriminated by sniffing content, not status code.
func (c *AuthClient) parseLoginResponse(body string) (*Challenge, *AuthCookie, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, nil, newErr(ErrProtocolBadResponse, "missing-required-params", nil)
	}

	if strings.Contains(trimmed, "<jnlp") {
		cookie, err := parseJNLP(trimmed)
		if err != nil {
			return nil, nil, err
		}
		return nil, cookie, nil
	}

	if m := respStatusRe.FindStringSubmatch(trimmed); m != nil {
		status := m[1]
		msgMatch := respMsgRe.FindStringSubmatch(trimmed)
		msg := ""
		if msgMatch != nil {
			msg = msgMatch[1]
		}
		switch status {
		case "Challenge":
			tokenMatch := inputStrRe.FindStringSubmatch(trimmed)
			if tokenMatch == nil {
				return nil, nil, newErr(ErrProtocolBadResponse, "challenge missing inputStr", nil)
			}
			return &Challenge{Prompt: msg, InputToken: tokenMatch[1]}, nil, nil
		case "Failed":
			return nil, nil, newErr(ErrAuthCredentials, msg, nil)
		case "Error":
			return nil, nil, newErr(ErrAuthMfa, msg, nil)
		default:
			return nil, nil, newErr(ErrProtocolBadResponse, fmt.Sprintf("unrecognised respStatus %q", status), nil)
		}
	}

	return nil, nil, newErr(ErrProtocolBadResponse, "unrecognised login response shape", nil)
}

// jnlpDoc is a loose XML shape that captures both the labeled and
// positional argument encodings the gateway may return:
// <jnlp><application-desc><argument>...</argument>...</application-desc></jnlp>.
type jnlpDoc struct {
	XMLName     xml.Name `xml:"jnlp"`
	Application struct {
		Arguments []string `xml:"argument"`
	} `xml:"application-desc"`
}

// parseJNLP handles both variants a gateway may return:
//   - Labeled: arguments alternate (key) then value.
//   - Positional: fixed ordering, index 1 = auth cookie.
// If argument[1] looks like a 32-hex token and argument[0] is not a
// "(key)" label, the positional form applies.
func parseJNLP(body string) (*AuthCookie, error) {
	var doc jnlpDoc
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, newErr(ErrProtocolBadResponse, "parse jnlp", err)
	}
	args := doc.Application.Arguments
	if len(args) == 0 {
		return nil, newErr(ErrProtocolBadResponse, "jnlp has no arguments", nil)
	}

	if len(args) > 1 && !isJNLPLabel(args[0]) && hexToken32Re.MatchString(strings.TrimSpace(args[1])) {
		return parsePositionalJNLP(args)
	}
	return parseLabeledJNLP(args)
}

// isJNLPLabel reports whether arg is a "(key)" label of the labeled form.
func isJNLPLabel(arg string) bool {
	arg = strings.TrimSpace(arg)
	return strings.HasPrefix(arg, "(") && strings.HasSuffix(arg, ")")
}

func parsePositionalJNLP(args []string) (*AuthCookie, error) {
	get := func(i int) string {
		if i < len(args) {
			return strings.TrimSpace(args[i])
		}
		return ""
	}
	cookie := &AuthCookie{
		Value:            get(1),
		PersistentCookie: get(2),
		GatewayName:      get(3),
		Username:         get(4),
		Domain:           get(7),
		IssuedAt:         now(),
	}
	if cookie.Value == "" {
		return nil, newErr(ErrProtocolBadResponse, "positional jnlp missing auth cookie", nil)
	}
	return cookie, nil
}

// parseLabeledJNLP handles the "(key) value" alternating form.
func parseLabeledJNLP(args []string) (*AuthCookie, error) {
	cookie := &AuthCookie{IssuedAt: now()}
	for i := 0; i+1 < len(args); i += 2 {
		key := strings.Trim(strings.TrimSpace(args[i]), "()")
		value := strings.TrimSpace(args[i+1])
		switch key {
		case "authcookie":
			cookie.Value = value
		case "persistent-cookie":
			cookie.PersistentCookie = value
		case "portal":
			cookie.Portal = value
		case "domain":
			cookie.Domain = value
		case "user":
			cookie.Username = value
		case "preferred-gw":
			cookie.GatewayName = value
		}
	}
	if cookie.Value == "" {
		return nil, newErr(ErrProtocolBadResponse, "labeled jnlp missing authcookie", nil)
	}
	return cookie, nil
}

func now() time.Time {
	return time.Now()
}

// getconfigDoc mirrors the XML shape getconfig returns.
type getconfigDoc struct {
	IP  string `xml:"ip-address"`
	IP6 string `xml:"ip6-address"`
	MTU string `xml:"mtu"`
	DNS struct {
		Members []string `xml:"member"`
	} `xml:"dns"`
	AccessRoutes struct {
		Members []string `xml:"member"`
	} `xml:"access-routes"`
	Timeout  string `xml:"timeout"`
	Lifetime string `xml:"lifetime"`
}

// GetConfig retrieves the tunnel configuration document.
func (c *AuthClient) GetConfig(cookie *AuthCookie, domain string) (*TunnelConfig, error) {
	form := url.Values{
		"user":             {cookie.Username},
		"authcookie":       {cookie.Value},
		"portal":           {cookie.Portal},
		"domain":           {domain},
		"protocol-version": {"p1"},
		"enc-algo":         {"aes-256-gcm,aes-128-gcm,aes-128-cbc"},
		"hmac-algo":        {"sha1"},
		"computer":         {hostname()},
	}
	body, err := c.doRequest("getconfig.esp", form, false)
	if err != nil {
		return nil, err
	}

	var doc getconfigDoc
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, newErr(ErrProtocolBadResponse, "parse getconfig response", err)
	}
	if doc.IP == "" {
		return nil, newErr(ErrProtocolBadResponse, "getconfig missing ip-address", nil)
	}

	mtu, _ := strconv.Atoi(strings.TrimSpace(doc.MTU))
	timeoutSecs, _ := strconv.Atoi(strings.TrimSpace(doc.Timeout))
	lifetimeSecs, _ := strconv.Atoi(strings.TrimSpace(doc.Lifetime))

	return &TunnelConfig{
		InternalIPv4: doc.IP,
		InternalIPv6: doc.IP6,
		MTU:          mtu,
		DNSServers:   doc.DNS.Members,
		AccessRoutes: doc.AccessRoutes.Members,
		IdleTimeout:  time.Duration(timeoutSecs) * time.Second,
		Lifetime:     time.Duration(lifetimeSecs) * time.Second,
	}, nil
}

// Logout posts to the portal's logout endpoint so the server-side
// session doesn't linger for its full lifetime after a clean disconnect.
func (c *AuthClient) Logout(cookie *AuthCookie) error {
	form := url.Values{
		"user":       {cookie.Username},
		"authcookie": {cookie.Value},
		"computer":   {hostname()},
	}
	_, err := c.doRequest("logout.esp", form, false)
	if err != nil {
		level.Warn(c.logger).Log("message", "logout request failed", "error", err)
	}
	return nil
}
