//go:build windows
// +build windows

package spool

import (
	"context"
	"fmt"
	"path/filepath"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"repairmind/print-agent/printers"
	"repairmind/print-agent/render"
)

// Submit hands rendered output to the Windows print system. Raw streams go
// through winspool with the RAW datatype and recover a spooler job id; PDF
// files go through the shell printto verb, which exposes none.
func Submit(ctx context.Context, out *render.Output, desc printers.Descriptor, logger Logger) (Handle, error) {
	if logger == nil {
		logger = nullLogger{}
	}
	if out.Raw {
		return submitRaw(desc.SystemName, out.Stream, logger)
	}
	return submitFile(desc.SystemName, out.FilePath, logger)
}

// submitRaw writes a device stream straight to the driver.
func submitRaw(printerName string, stream []byte, logger Logger) (Handle, error) {
	namePtr, err := syscall.UTF16PtrFromString(printerName)
	if err != nil {
		return Handle{}, fmt.Errorf("invalid printer name %q: %w", printerName, err)
	}

	var handle syscall.Handle
	ret, _, callErr := procOpenPrinter.Call(
		uintptr(unsafe.Pointer(namePtr)),
		uintptr(unsafe.Pointer(&handle)),
		0)
	if ret == 0 {
		return Handle{}, fmt.Errorf("OpenPrinter %s failed: %w", printerName, callErr)
	}
	defer procClosePrinter.Call(uintptr(handle))

	docName, _ := syscall.UTF16PtrFromString("print-agent raw document")
	datatype, _ := syscall.UTF16PtrFromString("RAW")
	doc := docInfo1{DocName: docName, Datatype: datatype}

	jobID, _, callErr := procStartDocPrinter.Call(
		uintptr(handle), 1, uintptr(unsafe.Pointer(&doc)))
	if jobID == 0 {
		return Handle{}, fmt.Errorf("StartDocPrinter on %s failed: %w", printerName, callErr)
	}
	defer procEndDocPrinter.Call(uintptr(handle))

	ret, _, callErr = procStartPagePrinter.Call(uintptr(handle))
	if ret == 0 {
		return Handle{}, fmt.Errorf("StartPagePrinter on %s failed: %w", printerName, callErr)
	}
	defer procEndPagePrinter.Call(uintptr(handle))

	var written uint32
	ret, _, callErr = procWritePrinter.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(&stream[0])),
		uintptr(len(stream)),
		uintptr(unsafe.Pointer(&written)))
	if ret == 0 {
		return Handle{}, fmt.Errorf("WritePrinter on %s failed: %w", printerName, callErr)
	}
	if int(written) != len(stream) {
		return Handle{}, fmt.Errorf("WritePrinter on %s wrote %d of %d bytes",
			printerName, written, len(stream))
	}

	logger.Debug("submitted raw stream to spooler",
		"printer", printerName, "jobId", int(jobID), "bytes", len(stream))
	return Handle{PrinterName: printerName, OSJobID: int(jobID)}, nil
}

// submitFile prints a spool file through the registered printto handler.
// The shell gives no spooler id back, so the handle carries none.
func submitFile(printerName, path string, logger Logger) (Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Handle{}, fmt.Errorf("resolving spool file path: %w", err)
	}

	verb, _ := syscall.UTF16PtrFromString("printto")
	file, _ := syscall.UTF16PtrFromString(abs)
	args, _ := syscall.UTF16PtrFromString(fmt.Sprintf("%q", printerName))
	dir, _ := syscall.UTF16PtrFromString(filepath.Dir(abs))

	if err := windows.ShellExecute(0, verb, file, args, dir, windows.SW_HIDE); err != nil {
		return Handle{}, fmt.Errorf("printto submission to %s failed: %w", printerName, err)
	}

	logger.Debug("submitted file via printto", "printer", printerName, "file", abs)
	return Handle{PrinterName: printerName}, nil
}
