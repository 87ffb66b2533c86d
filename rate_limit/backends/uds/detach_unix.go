//go:build unix

package uds

import "syscall"

// detachAttr puts the daemon in its own session so it survives the parent
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}
