// Package serial opens the USB serial link to a Joybus adapter.
package serial

import (
	"io"
)

// Port is a byte stream to the adapter. Tests substitute in-memory pipes.
type Port interface {
	io.ReadWriteCloser

	// Flush drops any buffered input so the next read starts on fresh
	// adapter output.
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate. USB CDC adapters ignore it.
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultBaud is the adapter firmware's UART rate.
const DefaultBaud = 115200

// DefaultConfig returns the adapter's default settings for device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}
