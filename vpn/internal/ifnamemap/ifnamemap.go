// Package ifnamemap provides the shell-based fallback for resolving an
// interface name to its OS index, used when the native interface table
// query (net.InterfaceByName) hasn't caught up with a just-created
// device.
package ifnamemap

import (
	"bufio"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// ResolveIndexByShell re-enumerates interfaces via a platform listing
// utility and matches by name, for callers whose fast path already failed.
func ResolveIndexByShell(name string) (uint32, error) {
	switch runtime.GOOS {
	case "windows":
		return resolveWindows(name)
	default:
		return resolveUnixIfconfig(name)
	}
}

func resolveWindows(name string) (uint32, error) {
	out, err := exec.Command("netsh", "interface", "ipv4", "show", "interfaces").CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("netsh show interfaces: %w", err)
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		if fields[len(fields)-1] == name {
			idx, err := strconv.ParseUint(fields[0], 10, 32)
			if err == nil {
				return uint32(idx), nil
			}
		}
	}
	return 0, fmt.Errorf("interface %q not found via netsh", name)
}

func resolveUnixIfconfig(name string) (uint32, error) {
	out, err := exec.Command("ifconfig", name).CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ifconfig %s: %w", name, err)
	}
	// ifconfig output format varies; look for "index: N" if present.
	for _, line := range strings.Split(string(out), "\n") {
		if i := strings.Index(line, "index:"); i >= 0 {
			fields := strings.Fields(line[i+len("index:"):])
			if len(fields) > 0 {
				idx, err := strconv.ParseUint(fields[0], 10, 32)
				if err == nil {
					return uint32(idx), nil
				}
			}
		}
	}
	return 0, fmt.Errorf("interface %q index not found via ifconfig", name)
}
