package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/toolcall/examples"
)

// runInit writes the example configuration to dir/toolcall.yaml. An
// existing file is never overwritten.
func runInit(w io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "toolcall.yaml")
	written, err := writeIfMissing(configPath, examples.ConfigYAML, 0o600)
	if err != nil {
		return err
	}
	if !written {
		fmt.Fprintf(w, "%s already exists, left unchanged\n", configPath)
		return nil
	}

	fmt.Fprintf(w, "Wrote %s\n", configPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Set server.url and export the token variable it references, then run:")
	fmt.Fprintln(w, "  toolcall tools")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist. It reports whether the file was written.
func writeIfMissing(path string, content []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
