package glbridge

import "golang.org/x/sys/unix"

func currentThread() int { return unix.Gettid() }
