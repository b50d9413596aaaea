//go:build !unix

package proc

import "os/exec"

// configureProcessGroup is a no-op off unix; CommandContext kills the direct
// child only.
func configureProcessGroup(cmd *exec.Cmd) {}
