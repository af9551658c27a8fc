package telemetry

import (
	"strconv"
	"strings"

	"github.com/saaga0h/shelf-bridge/pkg/mqtt"
)

// ShelfFromTopic returns the integer segment following the first "shelf" segment.
// store/shelf/2/telemetry -> 2. Whether the number is a known shelf is left to the caller.
func ShelfFromTopic(topic string) (int, bool) {
	parts := strings.Split(topic, "/")
	for i, p := range parts {
		if p != mqtt.ShelfSegment {
			continue
		}
		if i+1 >= len(parts) {
			return 0, false
		}
		n, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ResolveShelf prefers the topic-derived shelf and falls back to the body's "shelf" field
func ResolveShelf(topic string, body map[string]any) (int, bool) {
	if shelf, ok := ShelfFromTopic(topic); ok {
		return shelf, true
	}
	return ParseInt(body[KeyShelf])
}
