// Package message implements the ThingPlug wire codec.
//
// It covers everything that turns agent data into bytes and back:
//   - Element and Collection, the typed, ordered key/value model
//   - Encoding a Collection as JSON or CSV
//   - Decoding inbound downstream payloads into a CommandEnvelope
//   - Encoding RPC responses and subscribe requests
//   - Deriving publish topics from service and device names
//
// # Wire Formats
//
// JSON payloads are single objects whose field order follows the
// Collection. CSV payloads are the bare values joined by commas, no header
// and no names; the platform maps them positionally.
//
//	c := message.NewCollection().
//	    Add(message.Int64("ts", 1700000000)).
//	    Add(message.Raw("temp1", "23.50"))
//	payload, err := message.Encode(c, message.FormatJSON)
//	// {"ts":1700000000,"temp1":23.50}
//
// # Topics
//
//	topic, err := message.Topic(message.KindTelemetry, message.FormatCSV, "svc", "dev")
//	// v1/dev/svc/dev/telemetry/csv
//
// The package has no state and is safe for concurrent use.
package message
