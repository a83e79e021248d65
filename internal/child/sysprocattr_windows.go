//go:build windows

package child

import "os/exec"

func configureCmdSysProcAttr(cmd *exec.Cmd) {}
