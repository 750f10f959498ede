//go:build !unix

package execution

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}
