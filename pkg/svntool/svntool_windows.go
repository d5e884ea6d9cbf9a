//go:build windows

package svntool

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

const exeSuffix = ".exe"

// isolate starts the tool in a new process group.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}
