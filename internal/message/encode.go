package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format is a payload data format.
type Format int

// Data formats.
const (
	FormatJSON Format = iota
	FormatCSV
	FormatOffset
)

// csvSeparator joins CSV values.
const csvSeparator = ","

// String returns the format name as used in configuration.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	case FormatOffset:
		return "offset"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat converts a configuration value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "offset":
		return FormatOffset, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
}

// Encode renders a collection in the given format.
//
// Offset payloads are device specific binary layouts and are not produced
// here; Encode returns ErrUnsupportedFormat for them.
func Encode(c *Collection, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return EncodeJSON(c)
	case FormatCSV:
		return []byte(EncodeCSV(c)), nil
	case FormatOffset:
		return nil, ErrUnsupportedFormat
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, format)
	}
}

// EncodeJSON renders a collection as one JSON object, fields in order.
func EncodeJSON(c *Collection) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeObject(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeCSV joins element values with commas. An empty collection yields "".
func EncodeCSV(c *Collection) string {
	if c.Len() == 0 {
		return ""
	}
	values := make([]string, 0, c.Len())
	for _, e := range c.elements {
		values = append(values, e.Text())
	}
	return strings.Join(values, csvSeparator)
}

// writeObject writes c as a JSON object into buf.
func writeObject(buf *bytes.Buffer, c *Collection) error {
	buf.WriteByte('{')
	for i, e := range c.Elements() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, e.Name)
		buf.WriteByte(':')
		if err := writeValue(buf, e); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeValue writes a single element value using its type rule.
func writeValue(buf *bytes.Buffer, e Element) error {
	switch e.Type {
	case TypeString:
		writeString(buf, e.str)
	case TypeRaw:
		if !json.Valid([]byte(e.str)) {
			return fmt.Errorf("%w: %s is not a JSON literal", ErrEncodingFailed, e.Name)
		}
		buf.WriteString(e.str)
	case TypeInt, TypeInt64:
		buf.WriteString(strconv.FormatInt(e.i64, 10))
	case TypeDouble:
		if math.IsNaN(e.f64) || math.IsInf(e.f64, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrEncodingFailed, e.Name)
		}
		b, err := json.Marshal(e.f64)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrEncodingFailed, e.Name, err)
		}
		buf.Write(b)
		// Keep whole numbers distinguishable from integers.
		if !bytes.ContainsAny(b, ".eE") {
			buf.WriteString(".0")
		}
	case TypeBool:
		buf.WriteString(strconv.FormatBool(e.b))
	default:
		return fmt.Errorf("%w: %s has unknown type %v", ErrEncodingFailed, e.Name, e.Type)
	}
	return nil
}

// writeString writes s as a quoted JSON string.
func writeString(buf *bytes.Buffer, s string) {
	// json.Marshal of a string cannot fail.
	b, _ := json.Marshal(s) //nolint:errchkjson // string marshalling is infallible
	buf.Write(b)
}
