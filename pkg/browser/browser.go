// Package browser opens URLs for the command line login.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// start launches a command without waiting for it.
var start = func(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// Open opens a URL in the default browser for the current platform
func Open(url string) error {
	return open(runtime.GOOS, url)
}

func open(goos, url string) error {
	var cmd string
	var args []string

	switch goos {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	case "linux", "freebsd", "openbsd":
		// Try multiple commands as different distros have different defaults
		for _, c := range []string{"xdg-open", "x-www-browser", "www-browser"} {
			if err := start(c, url); err == nil {
				return nil
			}
		}
		return fmt.Errorf("could not find a browser to open - please visit the URL manually")
	default:
		return fmt.Errorf("unsupported platform: %s", goos)
	}

	if err := start(cmd, args...); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
