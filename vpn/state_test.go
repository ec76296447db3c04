package vpn

import (
	"os"
	"testing"
	"time"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := os.Getenv("HOME")
	os.Setenv("HOME", dir)
	t.Cleanup(func() { os.Setenv("HOME", old) })
	return dir
}

func TestStateSaveLoadDelete(t *testing.T) {
	withTempHome(t)

	st := &PersistentState{
		PID:           12345,
		InterfaceName: "tun3",
		InternalIP:    "10.10.10.2",
		Gateway:       "vpn.example.org",
		Routes:        []RouteEntry{{Hostname: "cluster.example.org", IP: "10.1.2.3"}},
		ConnectedAt:   time.Now(),
	}
	if err := st.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := LoadState()
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if got.PID != st.PID || got.Gateway != st.Gateway {
		t.Errorf("LoadState() = %+v, want matching %+v", got, st)
	}
	if len(got.Routes) != 1 || got.Routes[0].Hostname != "cluster.example.org" {
		t.Errorf("Routes = %+v", got.Routes)
	}

	if err := DeleteState(); err != nil {
		t.Fatalf("DeleteState() error = %v", err)
	}
	if _, err := LoadState(); err == nil || !os.IsNotExist(err) {
		t.Fatalf("LoadState() after delete: err = %v, want IsNotExist", err)
	}
}

func TestProcessAliveCurrentProcess(t *testing.T) {
	if !ProcessAlive(os.Getpid()) {
		t.Error("ProcessAlive(os.Getpid()) = false, want true")
	}
}

func TestProcessAliveImplausiblePID(t *testing.T) {
	if ProcessAlive(0) {
		t.Error("ProcessAlive(0) = true, want false")
	}
}

func TestHandoffWriteReadDeleteOnce(t *testing.T) {
	withTempHome(t)

	h := &AuthHandoff{
		Gateway:    "vpn.example.org",
		Username:   "jdoe",
		AuthCookie: "ec85fe94925569dbaaaaaaaaaaaaaaaa",
		Portal:     "portal",
		Domain:     "example.org",
		Hosts:      []string{"cluster.example.org"},
		WrittenAt:  time.Now(),
	}
	if err := WriteHandoff(h); err != nil {
		t.Fatalf("WriteHandoff() error = %v", err)
	}

	got, err := ReadAndDeleteHandoff()
	if err != nil {
		t.Fatalf("ReadAndDeleteHandoff() error = %v", err)
	}
	if got.AuthCookie != h.AuthCookie {
		t.Errorf("AuthCookie = %q, want %q", got.AuthCookie, h.AuthCookie)
	}

	if _, err := ReadAndDeleteHandoff(); err == nil {
		t.Fatal("second ReadAndDeleteHandoff() should fail: the file must not survive the first read")
	}
}

func TestHandoffRejectsStale(t *testing.T) {
	withTempHome(t)

	h := &AuthHandoff{
		Gateway:    "vpn.example.org",
		AuthCookie: "ec85fe94925569dbaaaaaaaaaaaaaaaa",
		WrittenAt:  time.Now().Add(-10 * time.Minute),
	}
	if err := WriteHandoff(h); err != nil {
		t.Fatalf("WriteHandoff() error = %v", err)
	}
	if _, err := ReadAndDeleteHandoff(); err == nil {
		t.Fatal("expected a stale handoff to be rejected")
	}
}
