package server

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/conneroisu/devsite/internal/validation"
)

// browserCommand builds the platform command that opens url.
func browserCommand(url string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	case "darwin":
		return exec.Command("open", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

// OpenBrowser opens url in the default browser. The URL is validated
// before it reaches a system command.
func OpenBrowser(url string) error {
	if err := validation.ValidateURL(url); err != nil {
		return fmt.Errorf("refusing to open %q: %w", url, err)
	}
	cmd, err := browserCommand(url)
	if err != nil {
		return err
	}
	return cmd.Start()
}
