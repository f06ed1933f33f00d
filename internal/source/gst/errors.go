package gst

import "strings"

// ErrorCategory classifies pipeline errors for logs and counters.
type ErrorCategory int

const (
	ErrCategoryNetwork ErrorCategory = iota
	ErrCategoryCodec
	ErrCategoryAuth
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden",
		"authentication", "credentials", "password",
	}
	codecKeywords = []string{
		"codec", "decode", "format", "negotiat", "caps",
		"h264", "h265", "jpeg", "no decoder", "missing plugin",
	}
	networkKeywords = []string{
		"connection", "timeout", "timed out", "unreachable", "network",
		"dns", "resolve", "socket", "tcp", "udp", "rtsp", "could not connect",
	}
)

// Classify categorises an error from its message and debug string. Auth is
// checked first, then codec, then network.
//
// go-gst's GError exposes no domain, so this is keyword matching.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)
	switch {
	case containsAny(combined, authKeywords):
		return ErrCategoryAuth
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
