//go:build !linux && !windows

package glbridge

// Threads cannot be identified here; CheckThread always passes.
func currentThread() int { return 0 }
