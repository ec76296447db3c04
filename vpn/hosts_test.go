package vpn

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHostsEditorApplyAndClear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	if err := os.WriteFile(path, []byte("127.0.0.1\tlocalhost\n"), 0o644); err != nil {
		t.Fatalf("seed hosts file: %v", err)
	}

	h := NewHostsEditorAt(path)
	entries := map[string]net.IP{
		"cluster.example": net.ParseIP("10.1.2.3"),
		"alpha.example":   net.ParseIP("10.1.2.4"),
	}
	if err := h.Apply(entries); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read hosts file: %v", err)
	}
	got := string(content)
	if !strings.Contains(got, "127.0.0.1\tlocalhost") {
		t.Errorf("Apply() clobbered pre-existing content:\n%s", got)
	}
	if !strings.Contains(got, beginMarker) || !strings.Contains(got, endMarker) {
		t.Errorf("Apply() missing markers:\n%s", got)
	}
	if !strings.Contains(got, "10.1.2.3\tcluster.example") {
		t.Errorf("Apply() missing cluster.example entry:\n%s", got)
	}

	if err := h.Clear(); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	content, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read hosts file after clear: %v", err)
	}
	got = string(content)
	if strings.Contains(got, beginMarker) {
		t.Errorf("Clear() left marker behind:\n%s", got)
	}
	if !strings.Contains(got, "127.0.0.1\tlocalhost") {
		t.Errorf("Clear() clobbered pre-existing content:\n%s", got)
	}
}

func TestHostsEditorApplyReplacesPriorBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")

	h := NewHostsEditorAt(path)
	if err := h.Apply(map[string]net.IP{"a.example": net.ParseIP("10.0.0.1")}); err != nil {
		t.Fatalf("first Apply() failed: %v", err)
	}
	if err := h.Apply(map[string]net.IP{"b.example": net.ParseIP("10.0.0.2")}); err != nil {
		t.Fatalf("second Apply() failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read hosts file: %v", err)
	}
	got := string(content)
	if strings.Contains(got, "a.example") {
		t.Errorf("second Apply() left stale entry behind:\n%s", got)
	}
	if strings.Count(got, beginMarker) != 1 {
		t.Errorf("expected exactly one begin marker, got content:\n%s", got)
	}
}

func TestHostsEditorMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")

	h := NewHostsEditorAt(path)
	if err := h.Apply(map[string]net.IP{"a.example": net.ParseIP("10.0.0.1")}); err != nil {
		t.Fatalf("Apply() against missing file failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Apply() did not create file: %v", err)
	}
}
