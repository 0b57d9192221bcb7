package appErrors

import "strings"

// Category buckets a delivery failure for retry policy purposes.
type Category string

const (
	// CategoryUnavailable: the recipient cannot receive messages at all.
	// Terminal, never retried.
	CategoryUnavailable Category = "unavailable"
	// CategoryConnection: the session or transport hiccuped. Retried up
	// to the attempt ceiling.
	CategoryConnection Category = "connection"
	// CategoryGeneric: everything else. Recorded, not retried.
	CategoryGeneric Category = "generic"
)

var unavailablePatterns = []string{
	"not registered",
	"not on whatsapp",
	"unregistered",
	"recipient unavailable",
	"item-not-found",
	"invalid recipient",
}

var connectionPatterns = []string{
	"not connected",
	"not logged in",
	"connection",
	"disconnected",
	"websocket",
	"socket",
	"timeout",
	"timed out",
	"stream error",
	"server closed",
	"eof",
}

// Classify inspects error text and buckets the failure. Pattern order
// matters: unavailable wins over connection when both match, because a
// dead recipient should never burn the retry budget.
func Classify(err error) Category {
	if err == nil {
		return CategoryGeneric
	}
	text := strings.ToLower(err.Error())
	for _, p := range unavailablePatterns {
		if strings.Contains(text, p) {
			return CategoryUnavailable
		}
	}
	for _, p := range connectionPatterns {
		if strings.Contains(text, p) {
			return CategoryConnection
		}
	}
	return CategoryGeneric
}
