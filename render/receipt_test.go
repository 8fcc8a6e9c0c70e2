package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairmind/print-agent/printers"
	"repairmind/print-agent/protocol"
)

func thermalDescriptor(widthMm int) printers.Descriptor {
	return printers.Descriptor{
		SystemName: "EPSON_TM_T88V",
		Type:       printers.TypeThermal,
		Capabilities: printers.Capabilities{
			MaxWidthMm: float64(widthMm),
			HasCutter:  true,
		},
	}
}

func TestBuildReceiptLayout(t *testing.T) {
	job := &protocol.Job{
		ID:           "job-1",
		DocumentType: protocol.DocReceipt,
		Content: protocol.Content{
			StoreName:    "Atelier Martin",
			StoreAddress: "12 rue des Lilas",
			TicketNumber: "T-0042",
			ClientName:   "Dupont",
			ClientPhone:  "0601020304",
			Items: []protocol.Item{
				{Quantity: 2, Description: "Ecran", Price: 49.90},
				{Description: "Pose", Price: 15},
			},
			Total:    114.80,
			HasTotal: true,
			Footer:   "TVA non applicable",
		},
	}

	stream, err := buildReceipt(job, thermalDescriptor(80))
	require.NoError(t, err)

	text := string(stream)
	assert.Contains(t, text, "Atelier Martin")
	assert.Contains(t, text, "12 rue des Lilas")
	assert.Contains(t, text, "Ticket T-0042")
	assert.Contains(t, text, "Dupont - 0601020304")
	assert.Contains(t, text, "2x Ecran")
	// Zero quantity defaults to 1.
	assert.Contains(t, text, "1x Pose")
	assert.Contains(t, text, "TOTAL: 114.80 EUR")
	assert.Contains(t, text, "TVA non applicable")
	assert.Contains(t, text, thankYouLine)
	// Full-width rules for 80mm paper.
	assert.Contains(t, text, strings.Repeat("-", 48))
}

func TestBuildReceiptNarrowPaper(t *testing.T) {
	job := &protocol.Job{
		ID:           "job-2",
		DocumentType: protocol.DocReceipt,
		Content: protocol.Content{
			StoreName: "Atelier",
			Items:     []protocol.Item{{Quantity: 1, Description: "Film", Price: 9.90}},
		},
	}

	stream, err := buildReceipt(job, thermalDescriptor(58))
	require.NoError(t, err)
	assert.Contains(t, string(stream), strings.Repeat("-", 32))
	assert.NotContains(t, string(stream), strings.Repeat("-", 48))
}

func TestBuildReceiptTicketNumberFallback(t *testing.T) {
	tests := []struct {
		name    string
		content protocol.Content
		want    string
	}{
		{
			"ticketNumber wins",
			protocol.Content{StoreName: "S", TicketNumber: "T-1", ReceiptNo: "R-1"},
			"Ticket T-1",
		},
		{
			"receiptNo fallback",
			protocol.Content{StoreName: "S", ReceiptNo: "R-1"},
			"Ticket R-1",
		},
		{
			"job id fallback",
			protocol.Content{StoreName: "S"},
			"Ticket job-3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &protocol.Job{ID: "job-3", DocumentType: protocol.DocTicket, Content: tt.content}
			stream, err := buildReceipt(job, thermalDescriptor(80))
			require.NoError(t, err)
			assert.Contains(t, string(stream), tt.want)
		})
	}
}

func TestBuildReceiptRejectsEmptyContent(t *testing.T) {
	job := &protocol.Job{ID: "job-4", DocumentType: protocol.DocReceipt}
	_, err := buildReceipt(job, thermalDescriptor(80))
	require.Error(t, err)

	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Reason, "neither storeName nor items")
}

func TestBuildReceiptNoTotalNoThankYou(t *testing.T) {
	job := &protocol.Job{
		ID:           "job-5",
		DocumentType: protocol.DocReceipt,
		Content:      protocol.Content{StoreName: "Atelier"},
	}
	stream, err := buildReceipt(job, thermalDescriptor(80))
	require.NoError(t, err)
	assert.NotContains(t, string(stream), "TOTAL:")
	assert.NotContains(t, string(stream), thankYouLine)
}
