package capability

import "sync"

// LED colour codes.
const (
	ColorOff     = 0
	ColorRed     = 1
	ColorGreen   = 2
	ColorBlue    = 3
	ColorMagenta = 4
	ColorCyan    = 5
	ColorYellow  = 6
	ColorWhite   = 7
)

// Actuator result codes.
const (
	ActuatorOK      = 0
	ActuatorInvalid = -1
)

// RGBLED is a seven colour LED. It only tracks the applied colour.
// Safe for concurrent use.
type RGBLED struct {
	mu     sync.Mutex
	status int
}

// NewRGBLED returns an LED that is switched off.
func NewRGBLED() *RGBLED {
	return &RGBLED{status: ColorOff}
}

// SetColor applies a colour code in 0..7.
// Returns ActuatorOK, or ActuatorInvalid and leaves the colour unchanged.
func (l *RGBLED) SetColor(code int) int {
	if code < ColorOff || code > ColorWhite {
		return ActuatorInvalid
	}
	l.mu.Lock()
	l.status = code
	l.mu.Unlock()
	return ActuatorOK
}

// ColorStatus returns the last applied colour code.
func (l *RGBLED) ColorStatus() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}
