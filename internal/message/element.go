package message

import (
	"fmt"
	"strconv"
)

// Type is the type tag of an Element. It decides how the value is rendered.
type Type int

// Element types.
const (
	// TypeString is quoted and escaped in JSON.
	TypeString Type = iota

	// TypeRaw is embedded verbatim. Used for readings that are already
	// formatted numeric text (e.g. "23.50").
	TypeRaw

	// TypeInt is a platform integer.
	TypeInt

	// TypeInt64 is a 64-bit integer (timestamps, memory sizes).
	TypeInt64

	// TypeDouble is a 64-bit float.
	TypeDouble

	// TypeBool renders as true/false.
	TypeBool
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeRaw:
		return "raw"
	case TypeInt:
		return "int"
	case TypeInt64:
		return "int64"
	case TypeDouble:
		return "double"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Element is a typed name/value pair.
// Construct it with String, Raw, Int, Int64, Double or Bool.
type Element struct {
	Name string
	Type Type

	str string
	i64 int64
	f64 float64
	b   bool
}

// String returns a string element.
func String(name, value string) Element {
	return Element{Name: name, Type: TypeString, str: value}
}

// Raw returns an element whose text is embedded into the output as-is.
func Raw(name, text string) Element {
	return Element{Name: name, Type: TypeRaw, str: text}
}

// Int returns an integer element.
func Int(name string, value int) Element {
	return Element{Name: name, Type: TypeInt, i64: int64(value)}
}

// Int64 returns a 64-bit integer element.
func Int64(name string, value int64) Element {
	return Element{Name: name, Type: TypeInt64, i64: value}
}

// Double returns a floating point element.
func Double(name string, value float64) Element {
	return Element{Name: name, Type: TypeDouble, f64: value}
}

// Bool returns a boolean element.
func Bool(name string, value bool) Element {
	return Element{Name: name, Type: TypeBool, b: value}
}

// Value returns the element value as a Go value:
// string for string and raw, int for int, int64, float64 or bool.
func (e Element) Value() any {
	switch e.Type {
	case TypeString, TypeRaw:
		return e.str
	case TypeInt:
		return int(e.i64)
	case TypeInt64:
		return e.i64
	case TypeDouble:
		return e.f64
	case TypeBool:
		return e.b
	default:
		return nil
	}
}

// Text returns the element value as it appears in a CSV row.
func (e Element) Text() string {
	switch e.Type {
	case TypeInt, TypeInt64:
		return strconv.FormatInt(e.i64, 10)
	case TypeDouble:
		return strconv.FormatFloat(e.f64, 'f', -1, 64)
	case TypeBool:
		return strconv.FormatBool(e.b)
	default:
		return e.str
	}
}

// Collection is an ordered, append-only sequence of Elements.
// Insertion order is preserved and defines output field order.
//
// The zero value is an empty collection ready for use.
type Collection struct {
	elements []Element
}

// NewCollection returns a collection holding elems in order.
func NewCollection(elems ...Element) *Collection {
	c := &Collection{}
	c.elements = append(c.elements, elems...)
	return c
}

// Add appends an element and returns the collection for chaining.
func (c *Collection) Add(e Element) *Collection {
	c.elements = append(c.elements, e)
	return c
}

// Len returns the number of elements.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.elements)
}

// Elements returns a copy of the elements in insertion order.
func (c *Collection) Elements() []Element {
	if c == nil {
		return nil
	}
	out := make([]Element, len(c.elements))
	copy(out, c.elements)
	return out
}

// Get returns the first element named name.
func (c *Collection) Get(name string) (Element, bool) {
	if c == nil {
		return Element{}, false
	}
	for _, e := range c.elements {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

// Names returns the element names in order.
func (c *Collection) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.elements))
	for i, e := range c.elements {
		names[i] = e.Name
	}
	return names
}

// AlignTo returns a new collection laid out by schema: one element per
// schema name, taken from c when present, otherwise an empty string.
// CSV consumers map columns by position, so partial updates are sent as
// full-width rows.
func (c *Collection) AlignTo(schema []string) *Collection {
	out := &Collection{elements: make([]Element, 0, len(schema))}
	for _, name := range schema {
		if e, ok := c.Get(name); ok {
			out.elements = append(out.elements, e)
			continue
		}
		out.elements = append(out.elements, String(name, ""))
	}
	return out
}
