// Package windriver locates (and if necessary extracts) the vendor
// user-space tunnel driver DLL that the Windows tun device backend
// needs beside the executable.
package windriver

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// DLLName is the file name the driver must have alongside the executable.
const DLLName = "driver.dll"

//go:embed assets/driver.dll
var embeddedDLL []byte

// Ensure makes sure the driver DLL is present in a directory the OS tun
// backend will search, preferring the executable's own directory and
// falling back to a per-user writable directory when that one can't be
// written to.
func Ensure() (dir string, err error) {
	exeDir, err := executableDir()
	if err == nil {
		if path := filepath.Join(exeDir, DLLName); fileExists(path) {
			return exeDir, nil
		}
		if writable(exeDir) {
			if err := extractTo(exeDir); err == nil {
				return exeDir, nil
			}
		}
	}

	fallback, err := perUserDriverDir()
	if err != nil {
		return "", fmt.Errorf("windriver: no writable location for %s: %w", DLLName, err)
	}
	if path := filepath.Join(fallback, DLLName); !fileExists(path) {
		if err := extractTo(fallback); err != nil {
			return "", err
		}
	}
	return fallback, nil
}

func extractTo(dir string) error {
	if len(embeddedDLL) == 0 {
		// Release builds embed the real driver via the build pipeline;
		// a plain source checkout has nothing to extract.
		return fmt.Errorf("windriver: no embedded %s in this build", DLLName)
	}
	path := filepath.Join(dir, DLLName)
	return os.WriteFile(path, embeddedDLL, 0o644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writable(dir string) bool {
	probe := filepath.Join(dir, ".pmacs-vpn-write-test")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

func perUserDriverDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		base = home
	}
	dir := filepath.Join(base, "pmacs-vpn", "driver")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
