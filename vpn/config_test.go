package vpn

import "testing"

func TestLoadConfigStringMinimal(t *testing.T) {
	cfg, err := LoadConfigString(`
[vpn]
gateway = "vpn.example.org"
hosts = ["cluster.example.org", "storage.example.org"]
`)
	if err != nil {
		t.Fatalf("LoadConfigString() error = %v", err)
	}
	if cfg.Gateway != "vpn.example.org" {
		t.Errorf("Gateway = %q", cfg.Gateway)
	}
	if len(cfg.Hosts) != 2 {
		t.Errorf("Hosts = %v, want 2 entries", cfg.Hosts)
	}
	if cfg.Preferences.DuoMethod != DuoPush {
		t.Errorf("default DuoMethod = %q, want push", cfg.Preferences.DuoMethod)
	}
	if cfg.Preferences.InboundTimeoutSecs != 45 {
		t.Errorf("default InboundTimeoutSecs = %d, want 45", cfg.Preferences.InboundTimeoutSecs)
	}
}

func TestLoadConfigStringPreferences(t *testing.T) {
	cfg, err := LoadConfigString(`
[vpn]
gateway = "vpn.example.org"
username = "jdoe"

[preferences]
duo_method = "passcode"
auto_reconnect = true
max_reconnect_attempts = 10
reconnect_delay_secs = 3
inbound_timeout_secs = 60
`)
	if err != nil {
		t.Fatalf("LoadConfigString() error = %v", err)
	}
	if cfg.Username != "jdoe" {
		t.Errorf("Username = %q", cfg.Username)
	}
	if cfg.Preferences.DuoMethod != DuoPasscode {
		t.Errorf("DuoMethod = %q, want passcode", cfg.Preferences.DuoMethod)
	}
	if !cfg.Preferences.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if cfg.Preferences.MaxReconnectAttempts != 10 {
		t.Errorf("MaxReconnectAttempts = %d, want 10", cfg.Preferences.MaxReconnectAttempts)
	}
}

func TestLoadConfigStringMissingGateway(t *testing.T) {
	_, err := LoadConfigString(`[vpn]
hosts = []
`)
	if err == nil {
		t.Fatal("expected an error for missing gateway")
	}
}

func TestLoadConfigStringUnrecognisedKey(t *testing.T) {
	_, err := LoadConfigString(`
[vpn]
gateway = "vpn.example.org"
bogus = "value"
`)
	if err == nil {
		t.Fatal("expected an error for an unrecognised key")
	}
}

func TestLoadConfigStringUnrecognisedDuoMethod(t *testing.T) {
	_, err := LoadConfigString(`
[vpn]
gateway = "vpn.example.org"

[preferences]
duo_method = "carrier-pigeon"
`)
	if err == nil {
		t.Fatal("expected an error for an unrecognised duo_method")
	}
}
