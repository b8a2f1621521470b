package message

import (
	"fmt"
	"strings"
)

// MaxTopicLength is the longest topic the platform accepts, in bytes.
const MaxTopicLength = 128

// Kind selects the topic family a payload is published on.
type Kind int

// Topic kinds.
const (
	KindTelemetry Kind = iota
	KindAttribute
	// KindUp is the upstream control topic for command results,
	// RPC responses and subscribe requests.
	KindUp
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTelemetry:
		return "telemetry"
	case KindAttribute:
		return "attribute"
	case KindUp:
		return "up"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a kind name ("telemetry", "attribute", "up") to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "telemetry":
		return KindTelemetry, nil
	case "attribute":
		return KindAttribute, nil
	case "up":
		return KindUp, nil
	default:
		return 0, fmt.Errorf("%w: unknown topic kind %q", ErrInvalidFormat, s)
	}
}

// Topic templates. Both placeholders are service name then device name.
const (
	telemetryTopic       = "v1/dev/%s/%s/telemetry"
	telemetryCSVTopic    = "v1/dev/%s/%s/telemetry/csv"
	telemetryOffsetTopic = "v1/dev/%s/%s/telemetry/offset"
	attributeTopic       = "v1/dev/%s/%s/attribute"
	attributeCSVTopic    = "v1/dev/%s/%s/attribute/csv"
	attributeOffsetTopic = "v1/dev/%s/%s/attribute/offset"
	upTopic              = "v1/dev/%s/%s/up"
	downTopic            = "v1/dev/%s/%s/down"
)

// topicTemplates maps kind then format to a topic template.
var topicTemplates = map[Kind]map[Format]string{
	KindTelemetry: {
		FormatJSON:   telemetryTopic,
		FormatCSV:    telemetryCSVTopic,
		FormatOffset: telemetryOffsetTopic,
	},
	KindAttribute: {
		FormatJSON:   attributeTopic,
		FormatCSV:    attributeCSVTopic,
		FormatOffset: attributeOffsetTopic,
	},
	KindUp: {
		FormatJSON:   upTopic,
		FormatCSV:    upTopic,
		FormatOffset: upTopic,
	},
}

// Topic derives the publish topic for kind and format.
//
// Parameters:
//   - kind: telemetry, attribute or up
//   - format: payload data format (the up topic ignores it)
//   - serviceID: platform service name
//   - deviceID: platform device name
//
// Returns:
//   - string: the topic, at most MaxTopicLength bytes
//   - error: ErrInvalidFormat for an unknown kind or format,
//     ErrTopicTooLong if the result exceeds MaxTopicLength
func Topic(kind Kind, format Format, serviceID, deviceID string) (string, error) {
	byFormat, ok := topicTemplates[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown topic kind %v", ErrInvalidFormat, kind)
	}
	tmpl, ok := byFormat[format]
	if !ok {
		return "", fmt.Errorf("%w: unknown format %v", ErrInvalidFormat, format)
	}
	return checkLength(fmt.Sprintf(tmpl, serviceID, deviceID))
}

// ControlDownTopic returns the downstream control topic the agent
// subscribes to.
func ControlDownTopic(serviceID, deviceID string) (string, error) {
	return checkLength(fmt.Sprintf(downTopic, serviceID, deviceID))
}

func checkLength(topic string) (string, error) {
	if len(topic) > MaxTopicLength {
		return "", fmt.Errorf("%w: %d bytes", ErrTopicTooLong, len(topic))
	}
	return topic, nil
}
