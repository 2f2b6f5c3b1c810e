package glbridge

import "golang.org/x/sys/windows"

func currentThread() int { return int(windows.GetCurrentThreadId()) }
