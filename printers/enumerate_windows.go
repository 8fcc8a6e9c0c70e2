//go:build windows
// +build windows

package printers

import (
	"context"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	winspool              = windows.NewLazySystemDLL("winspool.drv")
	procEnumPrinters      = winspool.NewProc("EnumPrintersW")
	procGetDefaultPrinter = winspool.NewProc("GetDefaultPrinterW")
)

const (
	printerEnumLocal       = 0x00000002
	printerEnumConnections = 0x00000004

	printerStatusPaused   = 0x00000001
	printerStatusError    = 0x00000002
	printerStatusPaperJam = 0x00000008
	printerStatusPaperOut = 0x00000010
	printerStatusOffline  = 0x00000080
	printerStatusPrinting = 0x00000400
)

// PRINTER_INFO_2 layout (winspool.drv)
type printerInfo2 struct {
	ServerName         *uint16
	PrinterName        *uint16
	ShareName          *uint16
	PortName           *uint16
	DriverName         *uint16
	Comment            *uint16
	Location           *uint16
	DevMode            uintptr
	SepFile            *uint16
	PrintProcessor     *uint16
	Datatype           *uint16
	Parameters         *uint16
	SecurityDescriptor uintptr
	Attributes         uint32
	Priority           uint32
	DefaultPriority    uint32
	StartTime          uint32
	UntilTime          uint32
	Status             uint32
	Jobs               uint32
	AveragePPM         uint32
}

// Enumerator snapshots local printers from the Windows print spooler.
type Enumerator struct {
	logger Logger
}

// NewEnumerator creates a spooler-backed enumerator.
func NewEnumerator(logger Logger) *Enumerator {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Enumerator{logger: logger}
}

// Enumerate returns a snapshot of all printers the spooler knows about,
// classified into descriptors.
func (e *Enumerator) Enumerate(ctx context.Context) ([]Descriptor, error) {
	flags := uintptr(printerEnumLocal | printerEnumConnections)

	var needed, returned uint32
	// First call gets the required buffer size.
	procEnumPrinters.Call(flags, 0, 2, 0, 0,
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if needed == 0 {
		return nil, nil
	}

	buf := make([]byte, needed)
	ret, _, err := procEnumPrinters.Call(flags, 0, 2,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(needed),
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if ret == 0 {
		return nil, &EnumerationError{Err: err}
	}

	defaultPrinter := e.defaultPrinter()

	infos := unsafe.Slice((*printerInfo2)(unsafe.Pointer(&buf[0])), returned)
	descriptors := make([]Descriptor, 0, returned)
	for i := range infos {
		name := windows.UTF16PtrToString(infos[i].PrinterName)
		if name == "" {
			continue
		}

		rec := Record{
			Name:      name,
			Driver:    windows.UTF16PtrToString(infos[i].DriverName),
			PortName:  windows.UTF16PtrToString(infos[i].PortName),
			Comment:   windows.UTF16PtrToString(infos[i].Comment),
			Location:  windows.UTF16PtrToString(infos[i].Location),
			Status:    statusToString(infos[i].Status),
			IsDefault: name == defaultPrinter,
		}

		desc := Classify(rec)
		e.logger.Debug("Enumerated printer",
			"name", desc.SystemName, "type", desc.Type, "transport", desc.Transport)
		descriptors = append(descriptors, desc)
	}

	return descriptors, nil
}

// defaultPrinter returns the user default printer name.
func (e *Enumerator) defaultPrinter() string {
	var size uint32
	procGetDefaultPrinter.Call(0, uintptr(unsafe.Pointer(&size)))
	if size == 0 {
		return ""
	}

	buf := make([]uint16, size)
	ret, _, _ := procGetDefaultPrinter.Call(
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if ret == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf)
}

func statusToString(status uint32) string {
	switch {
	case status == 0:
		return "ready"
	case status&printerStatusOffline != 0:
		return "offline"
	case status&printerStatusError != 0:
		return "error"
	case status&printerStatusPaperJam != 0:
		return "paper_jam"
	case status&printerStatusPaperOut != 0:
		return "paper_out"
	case status&printerStatusPrinting != 0:
		return "printing"
	case status&printerStatusPaused != 0:
		return "paused"
	default:
		return "unknown"
	}
}
