//go:build !unix

package platform

import "os/exec"

// SetProcessGroup is a no-op where process groups are unavailable
func SetProcessGroup(cmd *exec.Cmd) {}

// TerminateTree kills the direct child. Grandchildren may survive on
// platforms without process groups.
func TerminateTree(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
