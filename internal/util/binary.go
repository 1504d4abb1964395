// Package util holds small helpers shared across packages.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FindBinary locates an executable by name. The override environment
// variable is consulted first (when envVar is non-empty and set), then a
// sibling binary in the working directory, then PATH. Candidates from the
// first two sources must exist and carry an executable bit.
func FindBinary(name, envVar string) (string, error) {
	var candidates []string
	if envVar != "" {
		if p := os.Getenv(envVar); p != "" {
			candidates = append(candidates, p)
		}
	}
	candidates = append(candidates, "./"+name)

	for _, c := range candidates {
		if isExecutableFile(c) {
			return c, nil
		}
	}

	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("binary %q not found", name)
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
