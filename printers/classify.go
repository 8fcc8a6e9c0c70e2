package printers

import (
	"regexp"
	"strings"
)

// typeRules are evaluated in order over name+displayName+driver;
// the first matching rule wins.
var typeRules = []struct {
	printerType Type
	keywords    []string
}{
	{TypeThermal, []string{
		"thermal", "receipt", "tm-", "tm_", "tsp", "rp-", "pos-", "pos80", "pos58",
		"epson tm", "star tsp", "bixolon", "citizen ct", "metapace", "sunmi", "rongta",
	}},
	{TypeLabel, []string{
		"label", "zebra", "zpl", "ql-", "brother ql", "dymo", "labelwriter",
		"gk420", "gx420", "zd4", "zd6", "tlp", "etiquette",
	}},
	{TypeLaser, []string{
		"laser", "laserjet", "lj ", "mfc-l", "hl-l", "lexmark m", "kyocera",
	}},
	{TypeDotMatrix, []string{
		"dot matrix", "dotmatrix", "lx-", "fx-", "lq-", "oki ml", "matrix",
	}},
	{TypeInkjet, []string{
		"inkjet", "deskjet", "officejet", "envy", "pixma", "stylus", "ecotank", "workforce",
	}},
}

// macTailRe matches a trailing MAC-address fragment commonly appended by
// OS driver installers to network printer names, e.g. "EPSON XP-440 (A1B2C3)".
var macTailRe = regexp.MustCompile(`(?i)([0-9a-f]{2}[:\-]){2,5}[0-9a-f]{2}\)?$|\(?[0-9a-f]{6}\)?$`)

// Classify maps a raw platform record to an immutable descriptor.
func Classify(rec Record) Descriptor {
	display := rec.DisplayName
	if display == "" {
		display = rec.Name
	}

	haystack := strings.ToLower(rec.Name + " " + display + " " + rec.Driver)
	ptype := classifyType(haystack)

	port := rec.PortName
	if port == "" {
		port = rec.DeviceURI
	}

	return Descriptor{
		SystemName:   rec.Name,
		DisplayName:  display,
		Type:         ptype,
		Transport:    detectTransport(rec),
		Capabilities: deriveCapabilities(ptype, haystack),
		Metadata: Metadata{
			IsDefault: rec.IsDefault,
			Status:    rec.Status,
			PortName:  port,
			Location:  rec.Location,
			Comment:   rec.Comment,
		},
	}
}

func classifyType(haystack string) Type {
	for _, rule := range typeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.printerType
			}
		}
	}
	return TypeGeneric
}

// detectTransport applies the detection order: port-name substrings, CUPS
// device-uri scheme, MAC-tail suffix on the name, wifi keywords, unknown.
func detectTransport(rec Record) Transport {
	port := strings.ToLower(rec.PortName)

	// URI-shaped port values go straight to scheme parsing; substring
	// matching would misread path segments (usb in serial://dev/ttyUSB0).
	if !strings.Contains(port, "://") {
		switch {
		case strings.Contains(port, "usb"):
			return TransportUSB
		case strings.Contains(port, "bth") || strings.Contains(port, "bluetooth"):
			return TransportBluetooth
		case strings.Contains(port, "com") && !strings.Contains(port, ".com"):
			return TransportSerial
		case strings.Contains(port, "lpt"):
			return TransportParallel
		case strings.Contains(port, "wsd") || strings.Contains(port, "ip_") ||
			strings.Contains(port, "tcp") || hasIPv4(port):
			return TransportNetwork
		}
	}

	uri := strings.ToLower(rec.DeviceURI)
	if uri == "" && strings.Contains(port, "://") {
		uri = port
	}
	if uri != "" {
		switch {
		case strings.HasPrefix(uri, "usb:"):
			return TransportUSB
		case strings.HasPrefix(uri, "serial:"):
			return TransportSerial
		case strings.HasPrefix(uri, "parallel:"):
			return TransportParallel
		case strings.HasPrefix(uri, "bluetooth:"):
			return TransportBluetooth
		case strings.HasPrefix(uri, "ipp:") || strings.HasPrefix(uri, "ipps:") ||
			strings.HasPrefix(uri, "http:") || strings.HasPrefix(uri, "https:") ||
			strings.HasPrefix(uri, "socket:") || strings.HasPrefix(uri, "lpd:") ||
			strings.HasPrefix(uri, "smb:") || strings.HasPrefix(uri, "dnssd:"):
			return TransportNetwork
		}
	}

	name := strings.ToLower(rec.Name + " " + rec.DisplayName)
	if macTailRe.MatchString(strings.TrimSpace(rec.Name)) {
		return TransportNetwork
	}
	if strings.Contains(name, "wifi") || strings.Contains(name, "wi-fi") ||
		strings.Contains(name, "wireless") || strings.Contains(name, "airprint") {
		return TransportNetwork
	}

	return TransportUnknown
}

// deriveCapabilities is a pure function of type + keywords. Color and duplex
// are forced off for thermal, label and dot-matrix devices.
func deriveCapabilities(ptype Type, haystack string) Capabilities {
	caps := Capabilities{}

	switch ptype {
	case TypeThermal:
		caps.PaperSizes = []string{"80mm", "58mm"}
		caps.MaxWidthMm = 80
		if strings.Contains(haystack, "58") {
			caps.MaxWidthMm = 58
		}
		caps.HasCutter = !strings.Contains(haystack, "no cutter")
		caps.HasCashDrawer = true
	case TypeLabel:
		caps.PaperSizes = []string{"Label", "Continuous"}
		caps.MaxWidthMm = 104
	case TypeDotMatrix:
		caps.PaperSizes = []string{"A4", "Letter"}
		caps.MaxWidthMm = 210
	default:
		caps.PaperSizes = []string{"A4", "Letter"}
		caps.MaxWidthMm = 210
		caps.Color = strings.Contains(haystack, "color") || strings.Contains(haystack, "colour") ||
			ptype == TypeInkjet
		caps.Duplex = strings.Contains(haystack, "duplex") || strings.Contains(haystack, "mfp") ||
			strings.Contains(haystack, "dn")
	}

	return caps
}

var ipv4Re = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)

func hasIPv4(s string) bool {
	return ipv4Re.MatchString(s)
}
