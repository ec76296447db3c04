package vpn

import (
	"testing"
)

func TestParseLoginResponsePositionalJNLP(t *testing.T) {
	body := `<jnlp><application-desc>
		<argument></argument>
		<argument>ec85fe94925569dbaaaaaaaaaaaaaaaa</argument>
		<argument>persistent-token</argument>
		<argument>gw.example.org</argument>
		<argument>jdoe</argument>
		<argument>default</argument>
		<argument>vsys1</argument>
		<argument>example.org</argument>
	</application-desc></jnlp>`

	c := &AuthClient{}
	challenge, cookie, err := c.parseLoginResponse(body)
	if err != nil {
		t.Fatalf("parseLoginResponse() error = %v", err)
	}
	if challenge != nil {
		t.Fatalf("expected no challenge, got %+v", challenge)
	}
	if cookie == nil {
		t.Fatal("expected a cookie, got nil")
	}
	if cookie.Value != "ec85fe94925569dbaaaaaaaaaaaaaaaa" {
		t.Errorf("Value = %q, want the 32-hex token", cookie.Value)
	}
	if cookie.Username != "jdoe" {
		t.Errorf("Username = %q, want jdoe", cookie.Username)
	}
	if cookie.Domain != "example.org" {
		t.Errorf("Domain = %q, want example.org", cookie.Domain)
	}
}

func TestParseLoginResponseLabeledJNLP(t *testing.T) {
	body := `<jnlp><application-desc>
		<argument>(authcookie)</argument>
		<argument>ec85fe94925569dbaaaaaaaaaaaaaaaa</argument>
		<argument>(user)</argument>
		<argument>jdoe</argument>
		<argument>(domain)</argument>
		<argument>example.org</argument>
	</application-desc></jnlp>`

	c := &AuthClient{}
	_, cookie, err := c.parseLoginResponse(body)
	if err != nil {
		t.Fatalf("parseLoginResponse() error = %v", err)
	}
	if cookie.Value != "ec85fe94925569dbaaaaaaaaaaaaaaaa" {
		t.Errorf("Value = %q, want the 32-hex token", cookie.Value)
	}
	if cookie.Username != "jdoe" {
		t.Errorf("Username = %q, want jdoe", cookie.Username)
	}
}

func TestParseLoginResponseChallenge(t *testing.T) {
	body := `<html><script>
		thisForm.inputStr.value = "T123456789";
		respStatus = "Challenge";
		respMsg = "Please approve the push notification";
	</script></html>`

	c := &AuthClient{}
	challenge, cookie, err := c.parseLoginResponse(body)
	if err != nil {
		t.Fatalf("parseLoginResponse() error = %v", err)
	}
	if cookie != nil {
		t.Fatalf("expected no cookie from a challenge response, got %+v", cookie)
	}
	if challenge == nil {
		t.Fatal("expected a challenge, got nil")
	}
	if challenge.InputToken != "T123456789" {
		t.Errorf("InputToken = %q, want T123456789", challenge.InputToken)
	}
	if challenge.Prompt != "Please approve the push notification" {
		t.Errorf("Prompt = %q", challenge.Prompt)
	}
}

// TestParseLoginResponseEmptyBody covers a login missing a required
// literal parameter: some deployments respond with an empty 200 rather
// than an error, which must surface as Protocol/BadResponse rather than
// looping or panicking.
func TestParseLoginResponseEmptyBody(t *testing.T) {
	c := &AuthClient{}
	_, _, err := c.parseLoginResponse("")
	if KindOf(err) != ErrProtocolBadResponse {
		t.Fatalf("KindOf(err) = %v, want Protocol/BadResponse", KindOf(err))
	}
}

func TestParseLoginResponseFailedCredentials(t *testing.T) {
	body := `<html><script>
		respStatus = "Failed";
		respMsg = "Invalid credentials";
	</script></html>`

	c := &AuthClient{}
	_, _, err := c.parseLoginResponse(body)
	if KindOf(err) != ErrAuthCredentials {
		t.Fatalf("KindOf(err) = %v, want Auth/Credentials", KindOf(err))
	}
}

// TestGetConfigMTUZero covers an <mtu>0</mtu> response, which must
// resolve to 1400 via EffectiveMTU, not 0.
func TestGetConfigMTUZero(t *testing.T) {
	tc := &TunnelConfig{MTU: 0}
	if got := tc.EffectiveMTU(); got != 1400 {
		t.Errorf("EffectiveMTU() = %d, want 1400", got)
	}
	tc2 := &TunnelConfig{MTU: 1350}
	if got := tc2.EffectiveMTU(); got != 1350 {
		t.Errorf("EffectiveMTU() = %d, want 1350", got)
	}
}

func TestHexToken32Re(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"ec85fe94925569dbaaaaaaaaaaaaaaaa", true},
		{"not-hex", false},
		{"", false},
		{"ec85fe94925569dbaaaaaaaaaaaaaaa", false}, // 31 chars
	}
	for _, c := range cases {
		if got := hexToken32Re.MatchString(c.in); got != c.want {
			t.Errorf("hexToken32Re.MatchString(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
