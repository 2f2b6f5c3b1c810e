//go:build !linux && !darwin && !windows

package plugin

import "errors"

const libraryName = ""

var errUnsupported = errors.New("dynamic loading not supported on this platform")

func openLibrary(string) (uintptr, error) { return 0, errUnsupported }

func lookup(uintptr, string) (uintptr, error) { return 0, errUnsupported }

func closeLibrary(uintptr) {}
