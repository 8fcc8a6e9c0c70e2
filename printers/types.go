// Package printers enumerates locally-installed printers from the OS print
// subsystem and classifies them into stable descriptors. On Linux and macOS
// it reads CUPS via lpstat; on Windows it calls the spooler API. It never
// discovers printers over the network, only what the OS already knows.
package printers

import "fmt"

// Type categorizes the printing technology of a device.
type Type string

const (
	TypeThermal   Type = "thermal"
	TypeLabel     Type = "label"
	TypeLaser     Type = "laser"
	TypeInkjet    Type = "inkjet"
	TypeDotMatrix Type = "dotmatrix"
	TypeGeneric   Type = "generic"
)

// Transport categorizes how a printer is attached.
type Transport string

const (
	TransportUSB       Transport = "usb"
	TransportNetwork   Transport = "network"
	TransportBluetooth Transport = "bluetooth"
	TransportSerial    Transport = "serial"
	TransportParallel  Transport = "parallel"
	TransportUnknown   Transport = "unknown"
)

// Capabilities describes what a printer can do, derived from its type and
// name keywords only.
type Capabilities struct {
	Color         bool     `json:"color"`
	Duplex        bool     `json:"duplex"`
	PaperSizes    []string `json:"paperSizes"`
	MaxWidthMm    float64  `json:"maxWidthMm"`
	HasCutter     bool     `json:"hasCutter"`
	HasCashDrawer bool     `json:"hasCashDrawer"`
}

// Metadata carries OS-level details that do not affect scheduling.
type Metadata struct {
	IsDefault bool   `json:"isDefault"`
	Status    string `json:"status"`
	PortName  string `json:"portName"`
	Location  string `json:"location,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// Descriptor is a stable, immutable snapshot of a local printer. The
// SystemName is the identity key.
type Descriptor struct {
	SystemName   string       `json:"systemName"`
	DisplayName  string       `json:"displayName"`
	Type         Type         `json:"type"`
	Transport    Transport    `json:"transport"`
	Capabilities Capabilities `json:"capabilities"`
	Metadata     Metadata     `json:"metadata"`
}

// Record is a raw printer record as reported by the platform, before
// classification.
type Record struct {
	Name        string
	DisplayName string
	Driver      string
	PortName    string
	DeviceURI   string
	Status      string
	IsDefault   bool
	Location    string
	Comment     string
}

// EnumerationError wraps a platform printer service failure.
type EnumerationError struct {
	Err error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("printer enumeration failed: %v", e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// nullLogger is a no-op logger
type nullLogger struct{}

func (nullLogger) Error(msg string, context ...interface{}) {}
func (nullLogger) Warn(msg string, context ...interface{})  {}
func (nullLogger) Info(msg string, context ...interface{})  {}
func (nullLogger) Debug(msg string, context ...interface{}) {}
