// Package validation guards the points where configuration reaches the
// operating system: external commands, websocket origins and URLs handed
// to the browser opener.
package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var shellMetacharacters = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}

// ValidateArgument rejects a command argument that could be interpreted by
// a shell or that points outside the project.
func ValidateArgument(arg string) error {
	for _, char := range shellMetacharacters {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %q", char)
		}
	}

	if strings.Contains(arg, "..") {
		return fmt.Errorf("contains path traversal: %s", arg)
	}

	if filepath.IsAbs(arg) {
		return fmt.Errorf("absolute path not allowed: %s", arg)
	}

	return nil
}

// ValidateCommand checks a command name against an allowlist.
func ValidateCommand(command string, allowedCommands map[string]bool) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}

	if !allowedCommands[command] {
		return fmt.Errorf("command '%s' is not allowed", command)
	}

	if err := ValidateArgument(command); err != nil {
		return fmt.Errorf("invalid command '%s': %w", command, err)
	}

	return nil
}

// ValidateCommandLine splits line on whitespace and validates the
// executable and every argument. It returns the executable and arguments.
func ValidateCommandLine(line string, allowedCommands map[string]bool) (string, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("command cannot be empty")
	}

	if err := ValidateCommand(fields[0], allowedCommands); err != nil {
		return "", nil, err
	}
	for _, arg := range fields[1:] {
		if err := ValidateArgument(arg); err != nil {
			return "", nil, fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}

	return fields[0], fields[1:], nil
}

// ValidateOrigin checks a websocket Origin header against allowedOrigins.
// Entries may be full origins ("http://localhost:3000") or bare hosts.
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}
