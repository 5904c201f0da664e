//go:build !unix

package fsx

import "syscall"

func isEXDEV(error) bool { return false }

func errNotDir() error { return syscall.ENOTDIR }
