package cmd

import "os"

// ensureDir creates dir (and any parents) if it doesn't already exist.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o750)
}
