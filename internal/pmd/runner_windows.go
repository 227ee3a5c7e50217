//go:build windows

package pmd

import "os/exec"

// terminateGroup keeps the default direct-child kill; WaitDelay in Analyze
// unblocks the output read when a descendant outlives pmd.bat.
func terminateGroup(cmd *exec.Cmd) {}
