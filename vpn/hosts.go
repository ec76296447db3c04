package vpn

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

const (
	beginMarker = "# BEGIN pmacs-vpn"
	endMarker   = "# END pmacs-vpn"
)

// HostsEditor maintains a scoped, marker-delimited block in the OS
// host-to-address file.
type HostsEditor struct {
	path string
}

// NewHostsEditor opens the editor against the platform's default
// host-to-address file path.
func NewHostsEditor() *HostsEditor {
	return &HostsEditor{path: defaultHostsPath()}
}

// NewHostsEditorAt opens the editor against an explicit path, used by
// tests.
func NewHostsEditorAt(path string) *HostsEditor {
	return &HostsEditor{path: path}
}

func defaultHostsPath() string {
	if runtime.GOOS == "windows" {
		root := os.Getenv("SystemRoot")
		if root == "" {
			root = `C:\Windows`
		}
		return filepath.Join(root, "System32", "drivers", "etc", "hosts")
	}
	return "/etc/hosts"
}

// Apply replaces the managed block with entries, atomically: write to a
// temporary file in the same directory, then rename over the original.
// A write failure here must abort the whole connection and roll back
// routes already added -- this method itself only reports the error;
// the caller (connection supervisor) is responsible for the rollback.
func (h *HostsEditor) Apply(entries map[string]net.IP) error {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var block strings.Builder
	block.WriteString(beginMarker + "\n")
	for _, name := range names {
		fmt.Fprintf(&block, "%s\t%s\n", entries[name].String(), name)
	}
	block.WriteString(endMarker + "\n")

	return h.replaceBlock(block.String())
}

// Clear removes the managed block entirely, idempotently.
func (h *HostsEditor) Clear() error {
	return h.replaceBlock("")
}

func (h *HostsEditor) replaceBlock(block string) error {
	original, err := h.readLinesIgnoringMissing()
	if err != nil {
		return newErr(ErrTunnelNameTable, "read hosts file", err)
	}

	updated := stripManagedBlock(original)
	if block != "" {
		if len(updated) > 0 && strings.TrimSpace(updated[len(updated)-1]) != "" {
			updated = append(updated, "")
		}
		updated = append(updated, strings.TrimRight(block, "\n"))
	}

	content := strings.Join(updated, "\n")
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	dir := filepath.Dir(h.path)
	tmp, err := os.CreateTemp(dir, ".pmacs-vpn-hosts-*")
	if err != nil {
		return newErr(ErrTunnelNameTable, "create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return newErr(ErrTunnelNameTable, "write temp file", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return newErr(ErrTunnelNameTable, "chmod temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return newErr(ErrTunnelNameTable, "close temp file", err)
	}

	if err := os.Rename(tmpPath, h.path); err != nil {
		return newErr(ErrTunnelNameTable, "rename into place", err)
	}
	return nil
}

func (h *HostsEditor) readLinesIgnoringMissing() ([]string, error) {
	f, err := os.Open(h.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// stripManagedBlock removes any existing begin/end-delimited block from
// lines, leaving the rest of the file untouched.
func stripManagedBlock(lines []string) []string {
	out := make([]string, 0, len(lines))
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == beginMarker:
			inBlock = true
			continue
		case trimmed == endMarker:
			inBlock = false
			continue
		case inBlock:
			continue
		default:
			out = append(out, line)
		}
	}
	return out
}
