package render

import (
	"fmt"
	"time"

	"repairmind/print-agent/printers"
	"repairmind/print-agent/protocol"
)

const thankYouLine = "Merci de votre visite !"

// buildReceipt renders a receipt or ticket as an ESC/POS command stream in
// the dialect the target printer speaks.
func buildReceipt(job *protocol.Job, desc printers.Descriptor) ([]byte, error) {
	c := job.Content
	if c.StoreName == "" && len(c.Items) == 0 {
		return nil, renderErr("receipt carries neither storeName nor items", nil)
	}

	width := 48
	if desc.Capabilities.MaxWidthMm > 0 && desc.Capabilities.MaxWidthMm <= 58 {
		width = 32
	}

	b := NewEscposBuilder(DialectFor(desc.SystemName), width)

	// Header: store identity
	if c.StoreName != "" {
		b.Align(AlignCenter).DoubleSize(true).Bold(true)
		b.Line(c.StoreName)
		b.Bold(false).DoubleSize(false)
	}
	if c.StoreAddress != "" {
		b.Align(AlignCenter).Line(c.StoreAddress)
	}
	b.Rule()

	number := c.TicketNumber
	if number == "" {
		number = c.ReceiptNo
	}
	if number == "" {
		number = job.ID
	}
	b.Align(AlignCenter).Line(fmt.Sprintf("Ticket %s", number))

	ts := c.Timestamp
	if ts == "" {
		ts = time.Now().Format("02/01/2006 15:04")
	}
	b.Align(AlignLeft).Line(ts)

	if c.ClientName != "" {
		client := c.ClientName
		if c.ClientPhone != "" {
			client += " - " + c.ClientPhone
		}
		b.Line(client)
	}
	b.Rule()

	for _, item := range c.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		left := fmt.Sprintf("%dx %s", qty, item.Description)
		b.Columns(left, fmt.Sprintf("%.2f", item.Price))
	}
	b.Rule()

	if c.HasTotal {
		b.Align(AlignRight).Bold(true)
		b.Line(fmt.Sprintf("TOTAL: %s", FormatEUR(c.Total)))
		b.Bold(false)
	}

	if c.Footer != "" {
		b.Align(AlignCenter).Line(c.Footer)
	}
	if len(c.Items) > 0 {
		b.Align(AlignCenter).Line(thankYouLine)
	}

	b.Cut()
	return b.Bytes(), nil
}
