// Package serialport opens the serial link to a USB Pro widget.
package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaud is ignored by the FTDI chip but has to be set.
	DefaultBaud = 115200
	// DefaultReadTimeout bounds a single read so the read loop can notice shutdown.
	DefaultReadTimeout = 500 * time.Millisecond
)

// Conf настройки последовательного порта.
type Conf struct {
	Device      string        // Device - путь к порту, например /dev/ttyUSB0.
	Baud        int           // Baud - скорость.
	ReadTimeout time.Duration // ReadTimeout - таймаут чтения.
}

// Open opens and configures the port, dropping anything already buffered.
func Open(cfg Conf) (serial.Port, error) {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Device, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Device, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", cfg.Device, err)
	}
	return port, nil
}

// List returns the serial ports present on the system.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
