package printers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyType(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		expected Type
	}{
		{"epson thermal", Record{Name: "EPSON TM-T20III Receipt"}, TypeThermal},
		{"star thermal", Record{Name: "Star TSP143IV"}, TypeThermal},
		{"generic pos", Record{Name: "POS80 Printer"}, TypeThermal},
		{"zebra label", Record{Name: "Zebra GK420d"}, TypeLabel},
		{"brother label", Record{Name: "Brother QL-820NWB", Driver: "Brother QL Series"}, TypeLabel},
		{"dymo", Record{Name: "DYMO LabelWriter 450"}, TypeLabel},
		{"hp laser", Record{Name: "HP LaserJet Pro M404dn"}, TypeLaser},
		{"brother laser by driver", Record{Name: "Bureau", Driver: "Brother HL-L2350DW series"}, TypeLaser},
		{"epson dot matrix", Record{Name: "EPSON LX-350"}, TypeDotMatrix},
		{"hp inkjet", Record{Name: "HP OfficeJet 8020"}, TypeInkjet},
		{"canon inkjet", Record{Name: "Canon PIXMA TS3350"}, TypeInkjet},
		{"unknown model", Record{Name: "Samsung SCX-3400"}, TypeGeneric},
		{"thermal beats label order", Record{Name: "Thermal Label Maker"}, TypeThermal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.record).Type)
		})
	}
}

func TestDetectTransport(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		expected Transport
	}{
		{"windows usb port", Record{Name: "X", PortName: "USB001"}, TransportUSB},
		{"bluetooth port", Record{Name: "X", PortName: "BTH001"}, TransportBluetooth},
		{"serial port", Record{Name: "X", PortName: "COM3"}, TransportSerial},
		{"parallel port", Record{Name: "X", PortName: "LPT1"}, TransportParallel},
		{"wsd port", Record{Name: "X", PortName: "WSD-a1b2c3"}, TransportNetwork},
		{"standard tcp port", Record{Name: "X", PortName: "IP_192.168.1.50"}, TransportNetwork},
		{"bare ip port", Record{Name: "X", PortName: "192.168.0.20"}, TransportNetwork},
		{"cups usb uri", Record{Name: "X", DeviceURI: "usb://EPSON/TM-T20III"}, TransportUSB},
		{"cups ipp uri", Record{Name: "X", DeviceURI: "ipp://printer.local/ipp/print"}, TransportNetwork},
		{"cups socket uri", Record{Name: "X", DeviceURI: "socket://192.168.1.77:9100"}, TransportNetwork},
		{"cups dnssd uri", Record{Name: "X", DeviceURI: "dnssd://Brother%20QL._pdl-datastream._tcp.local"}, TransportNetwork},
		{"uri in port field", Record{Name: "X", PortName: "serial://dev/ttyUSB0"}, TransportSerial},
		{"mac tail suffix", Record{Name: "EPSON XP-440 (A1B2C3)"}, TransportNetwork},
		{"wifi keyword", Record{Name: "Canon TS3350 WiFi"}, TransportNetwork},
		{"nothing known", Record{Name: "Mystery Device"}, TransportUnknown},
		{"port beats uri", Record{Name: "X", PortName: "USB001", DeviceURI: "ipp://somewhere"}, TransportUSB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.record).Transport)
		})
	}
}

func TestDeriveCapabilities(t *testing.T) {
	t.Run("thermal 80mm with drawer", func(t *testing.T) {
		d := Classify(Record{Name: "EPSON TM-T20III"})
		assert.Equal(t, float64(80), d.Capabilities.MaxWidthMm)
		assert.True(t, d.Capabilities.HasCutter)
		assert.True(t, d.Capabilities.HasCashDrawer)
		assert.False(t, d.Capabilities.Color)
		assert.False(t, d.Capabilities.Duplex)
	})

	t.Run("thermal 58mm narrow", func(t *testing.T) {
		d := Classify(Record{Name: "POS58 Thermal"})
		assert.Equal(t, float64(58), d.Capabilities.MaxWidthMm)
	})

	t.Run("label has no color or drawer", func(t *testing.T) {
		d := Classify(Record{Name: "Zebra ZD420"})
		assert.Equal(t, float64(104), d.Capabilities.MaxWidthMm)
		assert.False(t, d.Capabilities.Color)
		assert.False(t, d.Capabilities.HasCashDrawer)
	})

	t.Run("duplex laser", func(t *testing.T) {
		d := Classify(Record{Name: "HP LaserJet Pro M404dn"})
		assert.True(t, d.Capabilities.Duplex)
		assert.Contains(t, d.Capabilities.PaperSizes, "A4")
	})

	t.Run("inkjet is color", func(t *testing.T) {
		d := Classify(Record{Name: "Canon PIXMA TS3350"})
		assert.True(t, d.Capabilities.Color)
	})
}

func TestClassifyMetadata(t *testing.T) {
	d := Classify(Record{
		Name:      "Front_Desk",
		Driver:    "EPSON TM-T88V",
		PortName:  "USB002",
		Status:    "idle",
		IsDefault: true,
		Location:  "Accueil",
	})
	assert.Equal(t, "Front_Desk", d.SystemName)
	assert.Equal(t, "Front_Desk", d.DisplayName, "display name falls back to system name")
	assert.True(t, d.Metadata.IsDefault)
	assert.Equal(t, "idle", d.Metadata.Status)
	assert.Equal(t, "USB002", d.Metadata.PortName)
	assert.Equal(t, "Accueil", d.Metadata.Location)
}

func TestClassifyDeviceURIFallsBackToPort(t *testing.T) {
	d := Classify(Record{Name: "Kitchen", DeviceURI: "socket://10.0.0.5:9100"})
	assert.Equal(t, "socket://10.0.0.5:9100", d.Metadata.PortName)
}
