package printers

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Printer-MIB / Host-Resources-MIB status OIDs.
const (
	oidHrPrinterStatus             = "1.3.6.1.2.1.25.3.5.1.1.1"
	oidHrPrinterDetectedErrorState = "1.3.6.1.2.1.25.3.5.1.2.1"
)

// hrPrinterStatus enumeration (RFC 2790).
var hrPrinterStatusNames = map[int]string{
	1: "other",
	2: "unknown",
	3: "idle",
	4: "printing",
	5: "warmup",
}

// ProbeStatus queries a network-attached printer for its live status over
// SNMP. It only ever targets printers the OS already knows about; failures
// are reported, never fatal. Non-network descriptors return "" immediately.
func ProbeStatus(desc Descriptor, community string, timeout time.Duration) (string, error) {
	if desc.Transport != TransportNetwork {
		return "", nil
	}

	host := networkHost(desc)
	if host == "" {
		return "", fmt.Errorf("no resolvable host in port name %q", desc.Metadata.PortName)
	}

	if community == "" {
		community = "public"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	conn := &gosnmp.GoSNMP{
		Target:    host,
		Port:      161,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   1,
	}
	if err := conn.Connect(); err != nil {
		return "", fmt.Errorf("snmp connect to %s: %w", host, err)
	}
	defer conn.Conn.Close()

	packet, err := conn.Get([]string{oidHrPrinterStatus, oidHrPrinterDetectedErrorState})
	if err != nil {
		return "", fmt.Errorf("snmp get from %s: %w", host, err)
	}

	status := ""
	for _, variable := range packet.Variables {
		switch variable.Name {
		case "." + oidHrPrinterStatus:
			if code, ok := variable.Value.(int); ok {
				if name, known := hrPrinterStatusNames[code]; known {
					status = name
				}
			}
		case "." + oidHrPrinterDetectedErrorState:
			if bits, ok := variable.Value.([]byte); ok && len(bits) > 0 {
				// Bit 0: lowPaper, bit 1: noPaper, bit 2: lowToner,
				// bit 4: doorOpen, bit 6: offline (high-order first).
				if bits[0]&0x40 != 0 {
					status = "paper_out"
				}
				if bits[0]&0x02 != 0 {
					status = "offline"
				}
			}
		}
	}

	if status == "" {
		return "", fmt.Errorf("printer %s returned no status", desc.SystemName)
	}
	return status, nil
}

// networkHost extracts a host from a port name or device URI.
func networkHost(desc Descriptor) string {
	port := desc.Metadata.PortName

	if strings.Contains(port, "://") {
		if u, err := url.Parse(port); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}

	if m := ipv4Re.FindString(port); m != "" {
		return m
	}

	// Windows standard TCP/IP ports are often named IP_10.0.0.5
	if strings.HasPrefix(port, "IP_") {
		return strings.TrimPrefix(port, "IP_")
	}

	return ""
}
