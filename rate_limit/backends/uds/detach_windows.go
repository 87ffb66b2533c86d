//go:build windows

package uds

import "syscall"

// detachAttr breaks the daemon out of the parent's console and process group
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | syscall.DETACHED_PROCESS,
	}
}
