package streamtexture

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the taxonomy of controller failures.
type ErrorKind int

const (
	// KindConfig: bad descriptor or a missing processing stage. Returned
	// synchronously by New and Start.
	KindConfig ErrorKind = iota + 1
	// KindLink: a pad could not be connected. Non-fatal, see Warnings.
	KindLink
	// KindContext: the GL context could not be wrapped or activated. Ends the run.
	KindContext
	// KindRuntime: the engine raised an error. Ends the run.
	KindRuntime
	// KindPlugin: no frame consumer. Non-fatal, delivery is disabled.
	KindPlugin
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindLink:
		return "link"
	case KindContext:
		return "context"
	case KindRuntime:
		return "runtime"
	case KindPlugin:
		return "plugin"
	}
	return "unknown"
}

// Sentinels matching each ErrorKind with errors.Is.
var (
	ErrConfig  = errors.New("stream-texture: config error")
	ErrLink    = errors.New("stream-texture: link error")
	ErrContext = errors.New("stream-texture: context error")
	ErrRuntime = errors.New("stream-texture: runtime error")
	ErrPlugin  = errors.New("stream-texture: plugin error")
)

var kindSentinels = map[ErrorKind]error{
	KindConfig:  ErrConfig,
	KindLink:    ErrLink,
	KindContext: ErrContext,
	KindRuntime: ErrRuntime,
	KindPlugin:  ErrPlugin,
}

// ErrorCategory classifies engine errors for telemetry.
type ErrorCategory int

const (
	CategoryUnknown ErrorCategory = iota
	CategoryNetwork
	CategoryCodec
	CategoryAuth
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryCodec:
		return "codec"
	case CategoryAuth:
		return "auth"
	}
	return "unknown"
}

// ErrorRecord is a failure produced by a run.
type ErrorRecord struct {
	Kind ErrorKind
	// SourceComponent names where the error came from ("engine", "graph",
	// "glbridge", "plugin", "source").
	SourceComponent string
	Message         string
	DebugDetail     string
	Category        ErrorCategory

	err error
}

func (e *ErrorRecord) Error() string {
	if e.DebugDetail != "" {
		return fmt.Sprintf("%s: %s error: %s (%s)", e.SourceComponent, e.Kind, e.Message, e.DebugDetail)
	}
	return fmt.Sprintf("%s: %s error: %s", e.SourceComponent, e.Kind, e.Message)
}

func (e *ErrorRecord) Unwrap() error { return e.err }

// Is matches the sentinel of the record's kind.
func (e *ErrorRecord) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newRecord(kind ErrorKind, component string, err error) *ErrorRecord {
	rec := &ErrorRecord{Kind: kind, SourceComponent: component, err: err}
	if err != nil {
		rec.Message = err.Error()
	}
	return rec
}

func engineError(source, text, debug string) *ErrorRecord {
	detail := debug
	if source != "" {
		detail = strings.TrimSpace(fmt.Sprintf("element %s: %s", source, debug))
	}
	return &ErrorRecord{
		Kind:            KindRuntime,
		SourceComponent: "engine",
		Message:         text,
		DebugDetail:     detail,
		Category:        classify(text, debug),
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden", "authentication", "credentials",
		"password", "username",
	}
	codecKeywords = []string{
		"codec", "decode", "encode", "format", "negotiation", "caps", "h264", "h265",
		"not negotiated", "no decoder", "missing plugin",
	}
	networkKeywords = []string{
		"connection", "timeout", "timed out", "unreachable", "network", "dns",
		"resolve", "socket", "tcp", "udp", "rtsp", "not found", "could not connect",
		"failed to connect",
	}
)

// classify sorts an engine error by message heuristics. Auth is checked
// first, then codec, then network.
func classify(text, debug string) ErrorCategory {
	combined := strings.ToLower(text + " " + debug)
	switch {
	case containsAny(combined, authKeywords):
		return CategoryAuth
	case containsAny(combined, codecKeywords):
		return CategoryCodec
	case containsAny(combined, networkKeywords):
		return CategoryNetwork
	}
	return CategoryUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Retryable reports whether a terminal result is worth a restart: engine
// errors other than authentication and codec failures.
func Retryable(err error) bool {
	var rec *ErrorRecord
	if !errors.As(err, &rec) || rec.Kind != KindRuntime {
		return false
	}
	return rec.Category != CategoryAuth && rec.Category != CategoryCodec
}
