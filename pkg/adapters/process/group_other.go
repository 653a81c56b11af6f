//go:build !unix

package process

import "os/exec"

// killProcessGroup keeps exec's default behavior of killing the direct child.
func killProcessGroup(cmd *exec.Cmd) {}
