package vpn

import (
	"fmt"

	"github.com/pelletier/go-toml"
)

// DuoMethod identifies the MFA factor a login attempt should present.
type DuoMethod string

const (
	DuoPush     DuoMethod = "push"
	DuoSMS      DuoMethod = "sms"
	DuoCall     DuoMethod = "call"
	DuoPasscode DuoMethod = "passcode"
)

// Preferences mirrors the [preferences] table of pmacs-vpn.toml.
type Preferences struct {
	SavePassword         bool
	DuoMethod            DuoMethod
	AutoConnect          bool
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectDelaySecs   int
	InboundTimeoutSecs   int
}

// defaultPreferences matches the data-plane supervisor's own defaults
// (45s liveness, linear reconnect backoff) so an absent [preferences]
// table still produces sane behavior.
func defaultPreferences() Preferences {
	return Preferences{
		DuoMethod:            DuoPush,
		MaxReconnectAttempts: 5,
		ReconnectDelaySecs:   5,
		InboundTimeoutSecs:   45,
	}
}

// Config represents pmacs-vpn.toml, the [vpn]/[preferences] file loaded
// by the out-of-scope config-loading collaborator and handed into the
// supervisor. Parsed with a map-walking style (newConfig / newPreferences /
// toBool / toString family) rather than struct tags, matching go-toml's
// tree-to-map API.
type Config struct {
	Gateway     string
	Username    string
	Protocol    string
	Hosts       []string
	Preferences Preferences
}

func toString(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("supplied value could not be parsed as a string")
}

func toBool(v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("supplied value could not be parsed as a bool")
}

func toInt(v interface{}) (int, error) {
	if b, ok := v.(int64); ok {
		return int(b), nil
	}
	if b, ok := v.(uint64); ok {
		return int(b), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

func toStringSlice(v interface{}) ([]string, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array value")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, err := toString(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func toDuoMethod(v interface{}) (DuoMethod, error) {
	s, err := toString(v)
	if err != nil {
		return "", err
	}
	switch DuoMethod(s) {
	case DuoPush, DuoSMS, DuoCall, DuoPasscode:
		return DuoMethod(s), nil
	}
	return "", fmt.Errorf("expect 'push', 'sms', 'call' or 'passcode'")
}

func newPreferences(pm map[string]interface{}) (Preferences, error) {
	prefs := defaultPreferences()
	for k, v := range pm {
		var err error
		switch k {
		case "save_password":
			prefs.SavePassword, err = toBool(v)
		case "duo_method":
			prefs.DuoMethod, err = toDuoMethod(v)
		case "auto_connect":
			prefs.AutoConnect, err = toBool(v)
		case "auto_reconnect":
			prefs.AutoReconnect, err = toBool(v)
		case "max_reconnect_attempts":
			prefs.MaxReconnectAttempts, err = toInt(v)
		case "reconnect_delay_secs":
			prefs.ReconnectDelaySecs, err = toInt(v)
		case "inbound_timeout_secs":
			prefs.InboundTimeoutSecs, err = toInt(v)
		default:
			return prefs, fmt.Errorf("unrecognised parameter %q", k)
		}
		if err != nil {
			return prefs, fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return prefs, nil
}

func newConfig(cm map[string]interface{}) (*Config, error) {
	cfg := &Config{Protocol: "gp", Preferences: defaultPreferences()}

	vm, ok := cm["vpn"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("no [vpn] table present")
	}
	for k, v := range vm {
		var err error
		switch k {
		case "gateway":
			cfg.Gateway, err = toString(v)
		case "username":
			cfg.Username, err = toString(v)
		case "protocol":
			cfg.Protocol, err = toString(v)
		case "hosts":
			cfg.Hosts, err = toStringSlice(v)
		default:
			return nil, fmt.Errorf("unrecognised parameter %q", k)
		}
		if err != nil {
			return nil, fmt.Errorf("[vpn].%v: %v", k, err)
		}
	}
	if cfg.Gateway == "" {
		return nil, fmt.Errorf("[vpn].gateway is required")
	}

	if pm, ok := cm["preferences"].(map[string]interface{}); ok {
		prefs, err := newPreferences(pm)
		if err != nil {
			return nil, fmt.Errorf("[preferences]: %v", err)
		}
		cfg.Preferences = prefs
	}

	return cfg, nil
}

// LoadConfigFile loads pmacs-vpn.toml from path.
func LoadConfigFile(path string) (*Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, newErr(ErrConfig, "load config file", err)
	}
	cfg, err := newConfig(tree.ToMap())
	if err != nil {
		return nil, newErr(ErrConfig, "parse config", err)
	}
	return cfg, nil
}

// LoadConfigString loads pmacs-vpn.toml content from an in-memory string,
// used by tests.
func LoadConfigString(content string) (*Config, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, newErr(ErrConfig, "load config string", err)
	}
	cfg, err := newConfig(tree.ToMap())
	if err != nil {
		return nil, newErr(ErrConfig, "parse config", err)
	}
	return cfg, nil
}
