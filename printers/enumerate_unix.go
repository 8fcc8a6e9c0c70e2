//go:build linux || darwin
// +build linux darwin

package printers

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

var (
	printerLineRe = regexp.MustCompile(`^printer\s+(\S+)\s+(.*)$`)
	deviceLineRe  = regexp.MustCompile(`^device\s+for\s+(\S+):\s+(.*)$`)
)

// Enumerator snapshots local printers from CUPS.
type Enumerator struct {
	logger Logger
}

// NewEnumerator creates a CUPS-backed enumerator.
func NewEnumerator(logger Logger) *Enumerator {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Enumerator{logger: logger}
}

// Enumerate returns a snapshot of all printers CUPS knows about, classified
// into descriptors. An empty system is not an error; an unreachable CUPS is.
func (e *Enumerator) Enumerate(ctx context.Context) ([]Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "lpstat", "-p")
	output, err := cmd.Output()
	if err != nil {
		// lpstat exits 1 when no destinations exist
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, &EnumerationError{Err: err}
	}

	defaultPrinter := e.defaultPrinter(ctx)
	deviceURIs := e.deviceURIs(ctx)

	var descriptors []Descriptor
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		matches := printerLineRe.FindStringSubmatch(scanner.Text())
		if matches == nil {
			continue
		}

		name := matches[1]
		statusLine := matches[2]

		status := "unknown"
		switch {
		case strings.Contains(statusLine, "is idle"):
			status = "ready"
		case strings.Contains(statusLine, "now printing"):
			status = "printing"
		case strings.Contains(statusLine, "disabled"):
			status = "offline"
		}

		rec := Record{
			Name:      name,
			DeviceURI: deviceURIs[name],
			Status:    status,
			IsDefault: name == defaultPrinter,
			Driver:    e.driverName(ctx, name),
		}

		desc := Classify(rec)
		e.logger.Debug("Enumerated printer",
			"name", desc.SystemName, "type", desc.Type, "transport", desc.Transport)
		descriptors = append(descriptors, desc)
	}

	return descriptors, nil
}

// defaultPrinter returns the system default destination name.
func (e *Enumerator) defaultPrinter(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "lpstat", "-d")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	line := strings.TrimSpace(string(output))
	if strings.HasPrefix(line, "system default destination:") {
		return strings.TrimSpace(strings.TrimPrefix(line, "system default destination:"))
	}
	return ""
}

// deviceURIs returns a map of printer name to CUPS device URI.
func (e *Enumerator) deviceURIs(ctx context.Context) map[string]string {
	cmd := exec.CommandContext(ctx, "lpstat", "-v")
	output, err := cmd.Output()
	if err != nil {
		return nil
	}

	result := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		matches := deviceLineRe.FindStringSubmatch(scanner.Text())
		if matches != nil {
			result[matches[1]] = matches[2]
		}
	}
	return result
}

// driverName returns the make-and-model line for a printer, if any.
func (e *Enumerator) driverName(ctx context.Context, printerName string) string {
	cmd := exec.CommandContext(ctx, "lpoptions", "-p", printerName)
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	// lpoptions prints key=value pairs; printer-make-and-model is quoted
	for _, field := range strings.Split(string(output), " ") {
		if strings.HasPrefix(field, "printer-make-and-model=") {
			return strings.Trim(strings.TrimPrefix(field, "printer-make-and-model="), "'\"")
		}
	}
	return ""
}
