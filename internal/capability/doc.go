// Package capability provides the device capabilities the agent drives:
// an RGB LED actuator, sensor readers and host system information.
//
// The agent only depends on small interfaces (Actuator, SensorReader,
// SystemInfo); the types here are the implementations used on a plain
// Linux host. Real boards replace RGBLED and SimulatedSensors with GPIO or
// I2C backed versions.
package capability
