package message

import (
	"errors"

	"github.com/nerrad567/thingplug-agent/internal/status"
)

// Domain errors for the message package.
var (
	// ErrInvalidFormat is returned for an unknown data format or topic kind.
	ErrInvalidFormat = status.New(status.InvalidParameter, "message: invalid format")

	// ErrUnsupportedFormat is returned when a payload cannot be produced in
	// the requested format (offset payloads are supplied pre-built).
	ErrUnsupportedFormat = status.New(status.NotSupported, "message: format not supported for encoding")

	// ErrTopicTooLong is returned when a derived topic exceeds MaxTopicLength.
	ErrTopicTooLong = status.New(status.InvalidParameter, "message: topic too long")

	// ErrEncodingFailed is returned when a value cannot be represented.
	ErrEncodingFailed = errors.New("message: encoding failed")

	// ErrMalformedMessage is returned when an inbound payload parses but
	// lacks required fields or carries them with the wrong type.
	ErrMalformedMessage = errors.New("message: malformed message")

	// ErrInvalidJSON is returned when an inbound payload is not a JSON object.
	ErrInvalidJSON = errors.New("message: invalid JSON")
)
