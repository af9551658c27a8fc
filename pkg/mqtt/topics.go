package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout under a configurable base namespace:
//
//	{base}/shelf/{id}/display/cmd     commands to a shelf display (publish)
//	{base}/shelf/+/display/ack        display acknowledgements (subscribe)
//	{base}/device/+/telemetry         sensor board telemetry (subscribe)
//	{base}/shelf/+/telemetry          per-shelf telemetry (subscribe)
const (
	ShelfSegment     = "shelf"
	TelemetrySuffix  = "/telemetry"
	displayCmdSuffix = "display/cmd"
)

// Subscription pairs a topic filter with the QoS it is requested at
type Subscription struct {
	Topic string
	QoS   byte
}

// ShelfCommandTopic constructs the command topic for a shelf display
// Pattern: {base}/shelf/{shelf}/display/cmd
func ShelfCommandTopic(base string, shelf int) string {
	return fmt.Sprintf("%s/%s/%d/%s", base, ShelfSegment, shelf, displayCmdSuffix)
}

// DisplayAckTopic returns the wildcard filter for display acknowledgements
func DisplayAckTopic(base string) string {
	return fmt.Sprintf("%s/%s/+/display/ack", base, ShelfSegment)
}

// DeviceTelemetryTopic returns the wildcard filter for device-addressed telemetry
func DeviceTelemetryTopic(base string) string {
	return fmt.Sprintf("%s/device/+/telemetry", base)
}

// ShelfTelemetryTopic returns the wildcard filter for shelf-addressed telemetry
func ShelfTelemetryTopic(base string) string {
	return fmt.Sprintf("%s/%s/+/telemetry", base, ShelfSegment)
}

// BridgeSubscriptions lists every filter the bridge needs after each (re)connect
func BridgeSubscriptions(base string) []Subscription {
	return []Subscription{
		{Topic: DisplayAckTopic(base), QoS: QoSAtLeastOnce},
		{Topic: DeviceTelemetryTopic(base), QoS: QoSAtMostOnce},
		{Topic: ShelfTelemetryTopic(base), QoS: QoSAtMostOnce},
	}
}

// IsTelemetryTopic reports whether topic carries telemetry
func IsTelemetryTopic(topic string) bool {
	return strings.HasSuffix(topic, TelemetrySuffix)
}
