package watcher

import (
	"path/filepath"
	"strings"
)

// ExtFilter accepts paths whose extension is one of exts.
func ExtFilter(exts ...string) FileFilter {
	return func(path string) bool {
		ext := filepath.Ext(path)
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}

// DirectChildFilter accepts only paths whose parent directory is dir.
func DirectChildFilter(dir string) FileFilter {
	dir = filepath.Clean(dir)
	return func(path string) bool {
		return filepath.Dir(filepath.Clean(path)) == dir
	}
}

// NoHiddenFilter rejects hidden files plus editor swap, backup and lock files.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return false
	}

	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return false
	}

	if base == "Thumbs.db" || base == "4913" {
		return false
	}

	return true
}
