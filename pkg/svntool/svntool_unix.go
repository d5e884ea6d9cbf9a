//go:build !windows

package svntool

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

const exeSuffix = ""

// isolate puts the tool into its own process group so a cancelled context
// terminates svnadmin together with anything it spawned.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
